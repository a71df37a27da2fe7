package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/org/certledger/internal/storage"
	"github.com/org/certledger/pkg/models"
)

const tokenPrefix = "clt_"

// IdentityService issues caller identities and the opaque bearer tokens that
// map to them. It stands in for the external wallet/identity provider: every
// core operation receives a caller address resolved through it.
type IdentityService struct {
	store storage.Store
}

// NewIdentityService creates an IdentityService backed by the given storage.
func NewIdentityService(store storage.Store) *IdentityService {
	return &IdentityService{store: store}
}

// CreateIdentity generates a new identity and persists it.
// Returns the identity and the plaintext token (shown once to the caller).
func (s *IdentityService) CreateIdentity(ctx context.Context, displayName string) (*models.Identity, string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", fmt.Errorf("generating token: %w", err)
	}
	plaintext := tokenPrefix + base64.RawURLEncoding.EncodeToString(raw)

	addr, err := newAddress()
	if err != nil {
		return nil, "", fmt.Errorf("generating address: %w", err)
	}

	ident := &models.Identity{
		Address:     addr,
		DisplayName: displayName,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.WriteIdentity(ctx, ident, HashToken(plaintext)); err != nil {
		return nil, "", fmt.Errorf("persisting identity: %w", err)
	}
	return ident, plaintext, nil
}

// Resolve looks up an identity by its plaintext bearer token.
// Returns an error if unknown or revoked.
func (s *IdentityService) Resolve(ctx context.Context, plaintext string) (*models.Identity, error) {
	ident, err := s.store.GetIdentityByToken(ctx, HashToken(plaintext))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errors.New("invalid token")
		}
		return nil, err
	}
	if ident.IsRevoked() {
		return nil, errors.New("identity has been revoked")
	}
	return ident, nil
}

// Revoke invalidates the token bound to an identity address.
func (s *IdentityService) Revoke(ctx context.Context, address string) error {
	return s.store.RevokeIdentity(ctx, address)
}

// HashToken returns the SHA-256 hex hash of a plaintext token.
func HashToken(plaintext string) string {
	h := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(h[:])
}

// newAddress returns a random 20-byte 0x-prefixed hex address.
func newAddress() (string, error) {
	b := make([]byte, 20)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(b), nil
}
