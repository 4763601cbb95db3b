package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/bizmatters/agent-builder/pages-builder/internal/models"
)

const (
	// MinPasswordLength is the minimum password length requirement
	MinPasswordLength = 8
	// BcryptCost is the cost factor for bcrypt hashing (10 = ~100ms)
	BcryptCost = 10
)

var (
	// ErrUserNotFound is returned when no user has the given email.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists is returned when the email is already registered.
	ErrUserExists = errors.New("user already exists")

	emailRegex     = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)
	hasLetterRegex = regexp.MustCompile(`[a-zA-Z]`)
	hasNumberRegex = regexp.MustCompile(`[0-9]`)
)

// UserStore looks up operator accounts.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*models.Operator, error)
}

// PgxUserStore keeps operator accounts in the users table.
type PgxUserStore struct {
	pool *pgxpool.Pool
}

// NewPgxUserStore creates a user store backed by pool.
func NewPgxUserStore(pool *pgxpool.Pool) *PgxUserStore {
	return &PgxUserStore{pool: pool}
}

// FindByEmail returns the operator registered under email.
func (s *PgxUserStore) FindByEmail(ctx context.Context, email string) (*models.Operator, error) {
	var op models.Operator
	err := s.pool.QueryRow(ctx,
		`SELECT id::text, name, email, hashed_password FROM users WHERE email = $1`,
		NormalizeEmail(email),
	).Scan(&op.ID, &op.Name, &op.Email, &op.PasswordHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &op, nil
}

// CreateUser inserts a user with a bcrypt-hashed password and returns its ID.
func (s *PgxUserStore) CreateUser(ctx context.Context, name, email, password string) (string, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var returnedID string
	err = tx.QueryRow(ctx, `
		INSERT INTO users (id, name, email, hashed_password)
		VALUES ($1::uuid, $2, $3, $4)
		RETURNING id::text`,
		uuid.New().String(), strings.TrimSpace(name), NormalizeEmail(email), string(hashedPassword),
	).Scan(&returnedID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return "", fmt.Errorf("%w: %s", ErrUserExists, email)
		}
		return "", fmt.Errorf("failed to insert user: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}

	return returnedID, nil
}

// CheckPassword reports whether password matches the operator's hash.
func CheckPassword(op *models.Operator, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(password)) == nil
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateNewUser checks the inputs of an account about to be created.
func ValidateNewUser(name, email, password string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("name is required and cannot be empty")
	}
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format: %s", email)
	}
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters long", MinPasswordLength)
	}
	if !hasLetterRegex.MatchString(password) || !hasNumberRegex.MatchString(password) {
		return fmt.Errorf("password must contain at least one letter and one number")
	}
	return nil
}
