package identity

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
)

// ErrInvalidToken is returned by verifiers for tokens that fail validation.
var ErrInvalidToken = errors.New("invalid id token")

// StaticVerifier accepts tokens of the form "uid" or "uid:admin" without
// any cryptographic checks. It exists for local development when no
// Firebase project is configured and must never be enabled in production.
type StaticVerifier struct{}

// Verify parses the unauthenticated development token format.
func (StaticVerifier) Verify(_ context.Context, idToken string) (*TokenInfo, error) {
	uid, role, _ := strings.Cut(strings.TrimSpace(idToken), ":")
	if uid == "" {
		return nil, ErrInvalidToken
	}
	return &TokenInfo{UserID: uid, Admin: role == "admin"}, nil
}
