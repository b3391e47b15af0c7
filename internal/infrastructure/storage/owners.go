package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/manorfm/oauth2-provider/internal/domain"
	"github.com/manorfm/oauth2-provider/internal/infrastructure/password"
)

// StaticOwners authenticates resource owners from a fixed list of bcrypt hashes.
// The username doubles as the user ID.
type StaticOwners struct {
	hashes map[string]string
}

// ParseOwners reads a comma separated list of username:bcrypt-hash pairs
func ParseOwners(raw string) (*StaticOwners, error) {
	owners := &StaticOwners{hashes: make(map[string]string)}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		username, hash, ok := strings.Cut(entry, ":")
		if !ok || username == "" || hash == "" {
			return nil, fmt.Errorf("invalid resource owner entry %q, want username:bcrypt-hash", entry)
		}
		if _, exists := owners.hashes[username]; exists {
			return nil, fmt.Errorf("resource owner %q listed twice", username)
		}
		owners.hashes[username] = hash
	}
	return owners, nil
}

// Len returns the number of known owners
func (o *StaticOwners) Len() int {
	return len(o.hashes)
}

// Authenticate implements domain.ResourceOwnerAuthenticator
func (o *StaticOwners) Authenticate(_ context.Context, username, secret string) (string, error) {
	hash, ok := o.hashes[username]
	if !ok {
		return "", domain.ErrInvalidCredentials
	}
	if err := password.Check(secret, hash); err != nil {
		return "", domain.ErrInvalidCredentials
	}
	return username, nil
}
