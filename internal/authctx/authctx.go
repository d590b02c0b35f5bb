// Package authctx holds the request-context keys and accessors shared by the
// auth middleware and the handlers that consume the authenticated identity.
// It lives below both internal/auth and internal/user so neither has to
// import the other for context access.
package authctx

import "context"

type contextKey string

const (
	// UserIDKey is the context key for the authenticated user id
	UserIDKey contextKey = "user_id"
	// EmailKey is the context key for the authenticated email
	EmailKey contextKey = "email"
)

// GetUserID extracts the user id from context
func GetUserID(ctx context.Context) (int, bool) {
	userID, ok := ctx.Value(UserIDKey).(int)
	return userID, ok
}

// GetEmail extracts the email from context
func GetEmail(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(EmailKey).(string)
	return email, ok
}
