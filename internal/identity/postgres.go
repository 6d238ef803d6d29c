package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/familyledger/ledger/shared/utils"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const identitiesSchema = `
	CREATE TABLE IF NOT EXISTS identities (
		uid           TEXT PRIMARY KEY,
		email         TEXT NOT NULL UNIQUE,
		display_name  TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)
`

// PostgresProvider stores identities next to the document store. Emails are
// unique case-insensitively; they are normalised before insert.
type PostgresProvider struct {
	db *sql.DB
}

func NewPostgresProvider(db *sql.DB) *PostgresProvider {
	return &PostgresProvider{db: db}
}

func (p *PostgresProvider) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, identitiesSchema); err != nil {
		return fmt.Errorf("failed to create identities table: %w", err)
	}
	return nil
}

func (p *PostgresProvider) CreateUser(ctx context.Context, user UserToCreate) (*UserRecord, error) {
	if err := user.validate(); err != nil {
		return nil, err
	}
	password := utils.GenerateTemporaryPassword()
	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash temporary password: %w", err)
	}

	record := &UserRecord{
		UID:               uuid.NewString(),
		Email:             normalizeEmail(user.Email),
		DisplayName:       user.DisplayName,
		TemporaryPassword: password,
		CreatedAt:         time.Now().UTC(),
	}
	query := `
		INSERT INTO identities (uid, email, display_name, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err = p.db.ExecContext(ctx, query, record.UID, record.Email, record.DisplayName, hash, record.CreatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return nil, ErrEmailAlreadyExists
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create identity: %w", err)
	}
	return record, nil
}

func (p *PostgresProvider) DeleteUser(ctx context.Context, uid string) error {
	result, err := p.db.ExecContext(ctx, `DELETE FROM identities WHERE uid = $1`, uid)
	if err != nil {
		return fmt.Errorf("failed to delete identity: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}
