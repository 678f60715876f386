package auth

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/example/trips/internal/lifecycle"
)

const (
	RolePassenger = "passenger"
	RoleDriver    = "driver"
)

// Identity is the caller resolved from a bearer credential.
type Identity struct {
	ID   string
	Role string
}

// Verifier resolves a bearer token into a caller identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// HS256Verifier validates HMAC-signed tokens carrying an "id" claim and
// an optional "role" claim.
type HS256Verifier struct {
	secret []byte
}

func NewHS256Verifier(secret string) *HS256Verifier {
	return &HS256Verifier{secret: []byte(secret)}
}

func (v *HS256Verifier) Verify(_ context.Context, raw string) (Identity, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !tok.Valid {
		return Identity{}, fmt.Errorf("%w: %v", lifecycle.ErrUnauthenticated, err)
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, fmt.Errorf("%w: unexpected claims shape", lifecycle.ErrUnauthenticated)
	}
	id, _ := claims["id"].(string)
	if id == "" {
		return Identity{}, fmt.Errorf("%w: missing id claim", lifecycle.ErrUnauthenticated)
	}
	role, _ := claims["role"].(string)
	return Identity{ID: id, Role: role}, nil
}

type contextKey struct{}

// WithIdentity stores the resolved caller identity on the context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the caller identity placed by the auth middleware.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}
