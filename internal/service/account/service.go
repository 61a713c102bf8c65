package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"honestai/internal/auth"
	"honestai/internal/models"
	"honestai/internal/storage"
)

// bcrypt silently ignores everything past 72 bytes.
const maxPasswordBytes = 72

// Service handles user registration and credential checks.
type Service struct {
	db         *sql.DB
	bcryptCost int
	dummyHash  func() []byte
}

// NewService builds a new account service. The dummy hash used for unknown
// users is built lazily at bcryptCost.
func NewService(db *sql.DB, bcryptCost int) *Service {
	cost := auth.NormalizeCost(bcryptCost)
	return &Service{
		db:         db,
		bcryptCost: cost,
		dummyHash: sync.OnceValue(func() []byte {
			hash, err := auth.DummyHash(cost)
			if err != nil {
				panic(fmt.Sprintf("account: %v", err))
			}
			return hash
		}),
	}
}

// Register creates a user with the supplied credentials.
func (s *Service) Register(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if err := validateCredentials(username, password); err != nil {
		return nil, err
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE username = ?)`, username,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check username: %w", err)
	}
	if exists {
		return nil, models.ErrDuplicateIdentity
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)`,
		username, hash, now,
	)
	if err != nil {
		// lost a race with a concurrent registration
		if storage.IsUniqueViolation(err) {
			return nil, models.ErrDuplicateIdentity
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("user id: %w", err)
	}
	log.Info("user registered", "user_id", id, "username", username)
	return &models.User{ID: id, Username: username, PasswordHash: hash, CreatedAt: now}, nil
}

// Authenticate validates credentials and returns the user profile.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		auth.BurnPasswordCheck(s.dummyHash(), password)
		return nil, models.ErrInvalidCredentials
	}

	user, err := s.FindByUsername(ctx, username)
	if errors.Is(err, models.ErrNotFound) {
		auth.BurnPasswordCheck(s.dummyHash(), password)
		return nil, models.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(user.PasswordHash, password) {
		return nil, models.ErrInvalidCredentials
	}
	return user, nil
}

// FindByUsername loads a user by exact username.
func (s *Service) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE username = ?`, username,
	)
	return scanUser(row)
}

// FindByID loads a user by id.
func (s *Service) FindByID(ctx context.Context, id int64) (*models.User, error) {
	if id <= 0 {
		return nil, models.ErrNotFound
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE id = ?`, id,
	)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*models.User, error) {
	var user models.User
	if err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &user, nil
}

func validateCredentials(username, password string) error {
	switch {
	case username == "":
		return fmt.Errorf("%w: username is required", models.ErrValidation)
	case password == "":
		return fmt.Errorf("%w: password is required", models.ErrValidation)
	case len(password) > maxPasswordBytes:
		return fmt.Errorf("%w: password must be at most %d bytes", models.ErrValidation, maxPasswordBytes)
	}
	return nil
}
