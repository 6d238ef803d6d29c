package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	AccountCreated    = "account.created"
	ChildAdded        = "child.added"
	DepositCompleted  = "deposit.completed"
	TransferCompleted = "transfer.completed"
)

// Stream names
const (
	LedgerEventsStream = "ledger.events"
)

// Base event structure
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

type AccountCreatedEvent struct {
	AccountID string `json:"accountId"`
	Name      string `json:"name"`
	Role      string `json:"role"`
}

type ChildAddedEvent struct {
	ChildID  string `json:"childId"`
	ParentID string `json:"parentId"`
}

type DepositCompletedEvent struct {
	AccountID string          `json:"accountId"`
	Amount    decimal.Decimal `json:"amount"`
}

type TransferCompletedEvent struct {
	TransferID string          `json:"transferId"`
	From       string          `json:"from"`
	To         string          `json:"to"`
	Amount     decimal.Decimal `json:"amount"`
}
