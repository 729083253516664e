// Package session stores signed-in identities behind opaque cookie ids.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("session not found or expired")

// DefaultTTL applies when Save is called without a positive ttl.
const DefaultTTL = 7 * 24 * time.Hour

// Identity is the signed-in user attached to a request.
type Identity struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Store persists identities by session id. Implementations only ever see the
// hash of the id.
type Store interface {
	Save(ctx context.Context, id string, identity Identity, ttl time.Duration) error
	Lookup(ctx context.Context, id string) (Identity, error)
	Revoke(ctx context.Context, id string) error
}

func NewID() string {
	return uuid.NewString() + uuid.NewString()
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, identity)
}

// FromContext returns nil when the request is anonymous.
func FromContext(ctx context.Context) *Identity {
	identity, ok := ctx.Value(ctxKey{}).(Identity)
	if !ok {
		return nil
	}
	return &identity
}
