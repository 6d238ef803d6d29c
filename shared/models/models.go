package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleParent Role = "parent"
	RoleChild  Role = "child"
)

func (r Role) Valid() bool {
	return r == RoleParent || r == RoleChild
}

// Account is the ledger record. Its ID is the identity provider user id and
// is the document key, so it is not part of the stored body.
type Account struct {
	ID      string          `json:"-"`
	DOB     string          `json:"dob"`
	Email   string          `json:"email"`
	Name    string          `json:"name"`
	Role    Role            `json:"role"`
	Balance decimal.Decimal `json:"balance"`
}

type ChildProfile struct {
	ID     string `json:"-"`
	Name   string `json:"name"`
	Parent string `json:"parent"`
}

type ParentChildMapping struct {
	ParentID string   `json:"-"`
	Children []string `json:"children"`
}

type Transfer struct {
	ID        string          `json:"id"`
	From      string          `json:"from"`
	To        string          `json:"to"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"createdTimestamp"`
}
