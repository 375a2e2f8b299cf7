// Package identity resolves the user a request acts for and carries it through
// the request context.
package identity

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

// ErrUnauthenticated means the request carried no usable credentials.
var ErrUnauthenticated = errors.New("unauthenticated")

type contextKey string

const userIDKey contextKey = "userID"

// WithUserID returns a copy of ctx carrying userID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserID returns the user stored in ctx, or "" if none.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// Provider maps a request to a user id.
type Provider interface {
	Authenticate(r *http.Request) (string, error)
}

// Static authenticates every request as the same user.
type Static struct {
	User string
}

// Authenticate implements Provider.
func (s Static) Authenticate(*http.Request) (string, error) {
	if s.User == "" {
		return "", ErrUnauthenticated
	}
	return s.User, nil
}

// Tokens maps bearer tokens to user ids.
type Tokens map[string]string

// Authenticate implements Provider.
func (t Tokens) Authenticate(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || token == "" {
		return "", ErrUnauthenticated
	}
	for known, user := range t {
		if subtle.ConstantTimeCompare([]byte(known), []byte(token)) == 1 {
			return user, nil
		}
	}
	return "", ErrUnauthenticated
}
