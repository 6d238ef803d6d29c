package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountView is the read-optimised projection of an account held in the
// balance cache. It never carries contact details.
type AccountView struct {
	AccountID string          `json:"accountId"`
	Role      Role            `json:"role"`
	Balance   decimal.Decimal `json:"balance"`
	UpdatedAt time.Time       `json:"updatedTimestamp"`
	// Version is the store document version the view was built from.
	Version int64 `json:"version"`
}

func AccountToView(a *Account, updatedAt time.Time, version int64) *AccountView {
	return &AccountView{
		AccountID: a.ID,
		Role:      a.Role,
		Balance:   a.Balance,
		UpdatedAt: updatedAt,
		Version:   version,
	}
}
