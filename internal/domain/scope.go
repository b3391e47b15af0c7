package domain

import (
	"sort"
	"strings"
)

// Scope is an unordered set of opaque scope values.
// It is kept sorted and free of duplicates so that two equal sets compare equal.
type Scope []string

// ParseScope parses a space-delimited scope string as sent on the wire
func ParseScope(raw string) Scope {
	return NewScope(strings.Fields(raw)...)
}

// NewScope builds a scope set from individual values
func NewScope(values ...string) Scope {
	seen := make(map[string]struct{}, len(values))
	scope := make(Scope, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		scope = append(scope, v)
	}
	sort.Strings(scope)
	return scope
}

// String returns the wire representation of the scope
func (s Scope) String() string {
	return strings.Join(s, " ")
}

// IsEmpty reports whether the set has no values
func (s Scope) IsEmpty() bool {
	return len(s) == 0
}

// Contains reports whether value is a member of the set
func (s Scope) Contains(value string) bool {
	i := sort.SearchStrings(s, value)
	return i < len(s) && s[i] == value
}

// IsSubsetOf reports whether every value of s is also in other
func (s Scope) IsSubsetOf(other Scope) bool {
	for _, v := range s {
		if !other.Contains(v) {
			return false
		}
	}
	return true
}
