package domain

import "context"

// ContextKey is a type for context keys to avoid magic strings
type ContextKey string

// ContextKeySubject is the key for the authenticated resource owner in the context
const ContextKeySubject ContextKey = "sub"

// WithSubject adds the subject (user ID) to the context
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, ContextKeySubject, subject)
}

// GetSubject retrieves the subject (user ID) from the context
func GetSubject(ctx context.Context) (string, bool) {
	subject, ok := ctx.Value(ContextKeySubject).(string)
	return subject, ok && subject != ""
}
