package authz

import (
	"context"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// KeyRecord is a stored API key.
type KeyRecord struct {
	KeyID      string
	SecretHash string
	Name       string
	Active     bool
	Grants     []Grant
}

// Repository defines the persistence behaviour the service needs.
type Repository interface {
	FindKey(ctx context.Context, keyID string) (KeyRecord, error)
}

// Service validates API keys.
type Service struct {
	repo   Repository
	pepper string
}

// NewService constructs an authorization service. The pepper is appended to
// presented secrets before the bcrypt comparison, so a dumped key table
// cannot be verified without the process environment. An empty pepper keeps
// the comparison on the bare secret.
func NewService(repo Repository, pepper string) *Service {
	return &Service{repo: repo, pepper: pepper}
}

// Authenticate validates a presented "keyID.secret" credential and returns
// the principal it identifies. Every failure mode collapses into
// ErrInvalidKey so responses never leak whether a key ID exists.
func (s *Service) Authenticate(ctx context.Context, presented string) (*Principal, error) {
	if s == nil || s.repo == nil {
		return nil, ErrInvalidKey
	}
	keyID, secret, ok := strings.Cut(strings.TrimSpace(presented), ".")
	if !ok || keyID == "" || secret == "" {
		return nil, ErrInvalidKey
	}
	record, err := s.repo.FindKey(ctx, keyID)
	if err != nil {
		return nil, ErrInvalidKey
	}
	if !record.Active {
		return nil, ErrInvalidKey
	}
	if err := bcrypt.CompareHashAndPassword([]byte(record.SecretHash), []byte(secret+s.pepper)); err != nil {
		return nil, ErrInvalidKey
	}
	return &Principal{KeyID: record.KeyID, Name: record.Name, Grants: record.Grants}, nil
}
