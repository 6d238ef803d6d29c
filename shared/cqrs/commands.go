package cqrs

import (
	"github.com/familyledger/ledger/shared/models"
	"github.com/shopspring/decimal"
)

type CreateAccountCommand struct {
	DOB     string
	Email   string
	Name    string
	Role    models.Role
	Balance decimal.Decimal
}

type AddChildCommand struct {
	Name     string
	Email    string
	DOB      string
	ParentID string
}

type DepositCommand struct {
	AccountID string
	Amount    decimal.Decimal
}

type TransferCommand struct {
	From   string
	To     string
	Amount decimal.Decimal
}
