package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/familyledger/ledger/internal/docstore"
	"github.com/familyledger/ledger/shared/models"
	"github.com/shopspring/decimal"
)

const (
	AccountsCollection           = "accounts"
	ChildCollection              = "child"
	ParentChildMappingCollection = "parentChildMapping"
	TransfersCollection          = "transfers"

	balanceField  = "balance"
	childrenField = "children"
)

func accountRef(id string) docstore.Ref { return docstore.Doc(AccountsCollection, id) }

// AccountWriteRepository handles all state-mutating operations for the ledger.
// It operates exclusively against the document store (source of truth).
type AccountWriteRepository struct {
	store docstore.Store
}

func NewAccountWriteRepository(store docstore.Store) *AccountWriteRepository {
	return &AccountWriteRepository{store: store}
}

// GetAccount returns models.ErrNotFound when no account document exists.
func (r *AccountWriteRepository) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	return getAccount(ctx, r.store, id)
}

// LedgerBatch stages ledger writes for one atomic commit.
type LedgerBatch struct {
	batch *docstore.Batch
}

func (r *AccountWriteRepository) NewBatch() *LedgerBatch {
	return &LedgerBatch{batch: docstore.NewBatch()}
}

func (b *LedgerBatch) CreateAccount(account *models.Account) *LedgerBatch {
	b.batch.Create(accountRef(account.ID), account)
	return b
}

func (b *LedgerBatch) CreateChildProfile(profile *models.ChildProfile) *LedgerBatch {
	b.batch.Set(docstore.Doc(ChildCollection, profile.ID), profile)
	return b
}

// LinkChild adds childID to the parent's mapping, creating it on first use.
func (b *LedgerBatch) LinkChild(parentID, childID string) *LedgerBatch {
	b.batch.ArrayUnion(docstore.Doc(ParentChildMappingCollection, parentID), childrenField, childID)
	return b
}

func (b *LedgerBatch) Credit(accountID string, amount decimal.Decimal) *LedgerBatch {
	b.batch.Increment(accountRef(accountID), balanceField, amount)
	return b
}

// Debit never lets the stored balance drop below zero, whatever the caller
// read beforehand.
func (b *LedgerBatch) Debit(accountID string, amount decimal.Decimal) *LedgerBatch {
	b.batch.IncrementWithFloor(accountRef(accountID), balanceField, amount.Neg(), decimal.Zero)
	return b
}

func (b *LedgerBatch) RecordTransfer(transfer *models.Transfer) *LedgerBatch {
	b.batch.Create(docstore.Doc(TransfersCollection, transfer.ID), transfer)
	return b
}

// Commit maps store failures onto the ledger error taxonomy: a crossed floor
// is ErrInsufficientBalance, a vanished account is ErrNotFound, anything else
// is a StoreWriteError.
func (r *AccountWriteRepository) Commit(ctx context.Context, b *LedgerBatch) error {
	err := r.store.Commit(ctx, b.batch)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, docstore.ErrPreconditionFailed):
		return models.ErrInsufficientBalance
	case errors.Is(err, docstore.ErrNotFound):
		return fmt.Errorf("%w: %v", models.ErrNotFound, err)
	default:
		return &models.StoreWriteError{Err: fmt.Errorf("failed to commit ledger batch: %w", err)}
	}
}

func getAccount(ctx context.Context, store docstore.Store, id string) (*models.Account, error) {
	snap, err := store.Get(ctx, accountRef(id))
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	var account models.Account
	if err := snap.DataTo(&account); err != nil {
		return nil, err
	}
	account.ID = id
	return &account, nil
}
