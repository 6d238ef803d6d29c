// Package identity issues user identities for new ledger accounts.
package identity

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrEmailAlreadyExists = errors.New("the email address is already in use by another account")
	ErrUserNotFound       = errors.New("no user record found for the given identifier")
	ErrInvalidUser        = errors.New("email and display name are required")
)

// Provider creates identities and removes them when account creation has to
// be rolled back.
type Provider interface {
	CreateUser(ctx context.Context, user UserToCreate) (*UserRecord, error)
	DeleteUser(ctx context.Context, uid string) error
}

type UserToCreate struct {
	Email       string
	DisplayName string
}

// UserRecord carries the temporary password only on the value returned by
// CreateUser; it is never stored in clear.
type UserRecord struct {
	UID               string
	Email             string
	DisplayName       string
	TemporaryPassword string
	CreatedAt         time.Time
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (u UserToCreate) validate() error {
	if normalizeEmail(u.Email) == "" || strings.TrimSpace(u.DisplayName) == "" {
		return ErrInvalidUser
	}
	return nil
}
