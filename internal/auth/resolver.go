package auth

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"

	"honestai/internal/models"
)

// UserFinder looks up live users by username.
type UserFinder interface {
	FindByUsername(ctx context.Context, username string) (*models.User, error)
}

// Resolver maps a bearer token to a live user.
type Resolver struct {
	tokens *Service
	users  UserFinder
}

// NewResolver builds a resolver over the token service and user store.
func NewResolver(tokens *Service, users UserFinder) *Resolver {
	return &Resolver{tokens: tokens, users: users}
}

// Resolve verifies the token, rejects revoked ones, and re-reads the subject
// from the store. Every failure is reported as models.ErrUnauthorized.
func (r *Resolver) Resolve(ctx context.Context, raw string) (*models.User, *Claims, error) {
	claims, err := r.tokens.VerifyToken(ctx, raw)
	if err != nil {
		log.Debug("token rejected", "error", err)
		return nil, nil, models.ErrUnauthorized
	}
	revoked, err := r.tokens.IsRevoked(ctx, claims)
	if err != nil {
		log.Error("revocation check failed", "error", err)
		return nil, nil, models.ErrUnauthorized
	}
	if revoked {
		return nil, nil, models.ErrUnauthorized
	}
	user, err := r.users.FindByUsername(ctx, claims.Subject)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			log.Error("resolve token subject failed", "error", err)
		}
		return nil, nil, models.ErrUnauthorized
	}
	return user, claims, nil
}
