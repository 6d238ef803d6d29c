package command

import (
	"context"

	"github.com/familyledger/ledger/shared/models"
	"github.com/shopspring/decimal"
)

// ChildTransfer is everything a policy may look at when a child account is
// the source of a transfer.
type ChildTransfer struct {
	FromID string
	ToID   string
	Amount decimal.Decimal
	From   models.Account
	To     models.Account
}

// ChildTransferPolicy decides whether a child account may make a transfer.
// Allowance caps, parent-only recipients, or approval workflows plug in here.
type ChildTransferPolicy interface {
	AuthorizeChildTransfer(ctx context.Context, transfer ChildTransfer) bool
}

// ChildTransferPolicyFunc adapts a plain function to ChildTransferPolicy.
type ChildTransferPolicyFunc func(ctx context.Context, transfer ChildTransfer) bool

func (f ChildTransferPolicyFunc) AuthorizeChildTransfer(ctx context.Context, transfer ChildTransfer) bool {
	return f(ctx, transfer)
}

// AllowAllChildTransfers is the default policy: no restrictions are defined
// for child accounts yet.
var AllowAllChildTransfers ChildTransferPolicy = ChildTransferPolicyFunc(func(context.Context, ChildTransfer) bool {
	return true
})
