package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"honestai/internal/models"
)

const (
	DefaultTokenTTL = 60 * time.Minute
	DefaultIssuer   = "honestai"

	revokedKeyPrefix = "revoked:"
)

// RevocationStore remembers revoked token ids until they would have expired anyway.
type RevocationStore interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
}

// Claims is the payload of an issued bearer token.
type Claims struct {
	jwt.RegisteredClaims
}

// Token is a signed bearer credential handed to the client verbatim.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// Service issues, verifies, and revokes bearer tokens. It is stateless apart
// from the optional revocation store.
type Service struct {
	secret      []byte
	tokenTTL    time.Duration
	issuer      string
	revocations RevocationStore
	now         func() time.Time
}

// NewService constructs an auth service signing with secret.
func NewService(secret []byte, ttl time.Duration, issuer string) (*Service, error) {
	if len(secret) == 0 {
		return nil, errors.New("token signing key is required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if issuer == "" {
		issuer = DefaultIssuer
	}
	key := make([]byte, len(secret))
	copy(key, secret)
	return &Service{
		secret:   key,
		tokenTTL: ttl,
		issuer:   issuer,
		now:      time.Now,
	}, nil
}

// GenerateSigningKey returns a random 32-byte key for deployments that did not configure one.
func GenerateSigningKey() ([]byte, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	return buf, nil
}

// UseRevocationStore enables logout revocation. A nil store disables it.
func (s *Service) UseRevocationStore(store RevocationStore) {
	s.revocations = store
}

// IssueToken mints a signed token for the user.
func (s *Service) IssueToken(user *models.User) (Token, error) {
	if user == nil || user.Username == "" {
		return Token{}, errors.New("invalid user")
	}
	now := s.now().UTC()
	expiresAt := now.Add(s.tokenTTL)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign token: %w", err)
	}
	return Token{Value: signed, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// VerifyToken checks signature, algorithm, issuer and expiry. The subject is
// not checked against the user store.
func (s *Service) VerifyToken(_ context.Context, raw string) (*Claims, error) {
	if raw == "" {
		return nil, models.ErrInvalidToken
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (interface{}, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrInvalidToken, err)
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, models.ErrInvalidToken
	}
	return claims, nil
}

// RevokeToken marks the token id as revoked for its remaining lifetime.
func (s *Service) RevokeToken(ctx context.Context, claims *Claims) error {
	if s.revocations == nil || claims == nil || claims.ExpiresAt == nil {
		return nil
	}
	remaining := claims.ExpiresAt.Time.Sub(s.now())
	if remaining <= 0 {
		return nil
	}
	if err := s.revocations.Set(ctx, revokedKeyPrefix+claims.ID, claims.Subject, remaining); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// IsRevoked reports whether the token id was revoked.
func (s *Service) IsRevoked(ctx context.Context, claims *Claims) (bool, error) {
	if s.revocations == nil {
		return false, nil
	}
	revoked, err := s.revocations.Exists(ctx, revokedKeyPrefix+claims.ID)
	if err != nil {
		return false, fmt.Errorf("lookup revocation: %w", err)
	}
	return revoked, nil
}

// TokenTTL reports the configured token lifetime.
func (s *Service) TokenTTL() time.Duration {
	return s.tokenTTL
}
