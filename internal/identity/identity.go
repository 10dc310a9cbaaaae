// Package identity resolves caller credentials into caller identities.
package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/xiaot623/gogo/consult/internal/domain"
)

var (
	// ErrNotFound is returned by a Provider when the token matches no user.
	ErrNotFound = errors.New("identity not found")
	// ErrUnauthenticated is returned by the Resolver when a supplied credential is invalid.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrProviderUnavailable wraps failures of the identity provider itself.
	ErrProviderUnavailable = errors.New("identity provider unavailable")
)

// Provider looks up the identity behind a token.
type Provider interface {
	Lookup(ctx context.Context, token string) (domain.CallerIdentity, error)
}

// HashToken returns the hex SHA-256 digest of token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
