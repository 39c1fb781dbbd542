package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/tendant/listings-idm/pkg/auth"
	"github.com/tendant/listings-idm/pkg/domain"
)

const (
	uniqueViolation = "23505"

	emailConstraint    = "accounts_email_unique"
	usernameConstraint = "accounts_username_unique"
)

const accountColumns = `id, username, email, password_hash, mfa_enabled, mfa_secret,
	reset_token_hash, reset_token_expires_at, profile_picture, created_at, updated_at`

// AccountsRepository handles account persistence.
type AccountsRepository struct {
	db *sql.DB
}

// NewAccountsRepository creates a new accounts repository.
func NewAccountsRepository(db *sql.DB) *AccountsRepository {
	return &AccountsRepository{db: db}
}

var _ auth.AccountStore = (*AccountsRepository)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	a := &domain.Account{}
	err := row.Scan(
		&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.MFAEnabled, &a.MFASecret,
		&a.ResetTokenHash, &a.ResetTokenExpiresAt, &a.ProfilePicture, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// FindByEmail retrieves an account by email.
func (r *AccountsRepository) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	return scanAccount(r.db.QueryRowContext(ctx, query, email))
}

// FindByUsername retrieves an account by username.
func (r *AccountsRepository) FindByUsername(ctx context.Context, username string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE username = $1`
	return scanAccount(r.db.QueryRowContext(ctx, query, username))
}

// FindByID retrieves an account by ID.
func (r *AccountsRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(r.db.QueryRowContext(ctx, query, id))
}

// Insert creates a new account.
func (r *AccountsRepository) Insert(ctx context.Context, a *domain.Account) error {
	query := `
		INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.ExecContext(ctx, query,
		a.ID, a.Username, a.Email, a.PasswordHash, a.MFAEnabled, a.MFASecret,
		a.ResetTokenHash, a.ResetTokenExpiresAt, a.ProfilePicture, a.CreatedAt, a.UpdatedAt,
	)
	return mapError(err)
}

// UpdateConditional applies patch with a single UPDATE ... WHERE ... RETURNING
// statement, so the filter check and the write happen atomically.
func (r *AccountsRepository) UpdateConditional(ctx context.Context, filter auth.AccountFilter, patch auth.AccountPatch) (*domain.Account, error) {
	b := &updateBuilder{}
	b.setPatch(patch, time.Now().UTC())
	if err := b.whereFilter(filter); err != nil {
		return nil, err
	}

	account, err := scanAccount(r.db.QueryRowContext(ctx, b.sql(), b.args...))
	if err != nil {
		return nil, mapError(err)
	}
	return account, nil
}

// Update applies patch to the account with the given ID.
func (r *AccountsRepository) Update(ctx context.Context, id uuid.UUID, patch auth.AccountPatch) (*domain.Account, error) {
	return r.UpdateConditional(ctx, auth.AccountFilter{ID: &id}, patch)
}

type updateBuilder struct {
	sets   []string
	wheres []string
	args   []any
}

func (b *updateBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *updateBuilder) set(column string, v any) {
	b.sets = append(b.sets, column+" = "+b.arg(v))
}

func (b *updateBuilder) setPatch(p auth.AccountPatch, now time.Time) {
	if p.Username != nil {
		b.set("username", *p.Username)
	}
	if p.Email != nil {
		b.set("email", *p.Email)
	}
	if p.PasswordHash != nil {
		b.set("password_hash", *p.PasswordHash)
	}
	if p.ProfilePicture != nil {
		b.set("profile_picture", *p.ProfilePicture)
	}
	if p.MFAEnabled != nil {
		b.set("mfa_enabled", *p.MFAEnabled)
	}
	if p.ClearMFASecret {
		b.sets = append(b.sets, "mfa_secret = NULL")
	} else if p.MFASecret != nil {
		b.set("mfa_secret", *p.MFASecret)
	}
	if p.ClearResetToken {
		b.sets = append(b.sets, "reset_token_hash = NULL", "reset_token_expires_at = NULL")
	} else if p.ResetTokenHash != nil && p.ResetTokenExpiresAt != nil {
		b.set("reset_token_hash", *p.ResetTokenHash)
		b.set("reset_token_expires_at", *p.ResetTokenExpiresAt)
	}
	b.set("updated_at", now)
}

func (b *updateBuilder) whereFilter(f auth.AccountFilter) error {
	if f.ID != nil {
		b.wheres = append(b.wheres, "id = "+b.arg(*f.ID))
	}
	if f.MFAEnabled != nil {
		b.wheres = append(b.wheres, "mfa_enabled = "+b.arg(*f.MFAEnabled))
	}
	if f.MFASecret != nil {
		b.wheres = append(b.wheres, "mfa_secret = "+b.arg(*f.MFASecret))
	}
	if f.ResetTokenHash != nil {
		b.wheres = append(b.wheres, "reset_token_hash = "+b.arg(*f.ResetTokenHash))
	}
	if f.ResetTokenValidAt != nil {
		b.wheres = append(b.wheres, "reset_token_expires_at > "+b.arg(*f.ResetTokenValidAt))
	}

	// Only id and the reset token hash are unique.
	if f.ID == nil && f.ResetTokenHash == nil {
		return errors.New("conditional update needs an id or reset token filter")
	}
	return nil
}

func (b *updateBuilder) sql() string {
	return "UPDATE accounts SET " + strings.Join(b.sets, ", ") +
		" WHERE " + strings.Join(b.wheres, " AND ") +
		" RETURNING " + accountColumns
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		switch pqErr.Constraint {
		case emailConstraint:
			return domain.ErrEmailTaken
		case usernameConstraint:
			return domain.ErrUsernameTaken
		}
	}
	return err
}
