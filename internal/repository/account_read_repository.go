package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/familyledger/ledger/internal/docstore"
	"github.com/familyledger/ledger/shared/models"
)

const accountViewKeyPrefix = "account:view:"

// AccountViewCache is satisfied by shared/redis.ViewCache[models.AccountView].
type AccountViewCache interface {
	Get(ctx context.Context, key string) (*models.AccountView, bool)
	Set(ctx context.Context, key string, value *models.AccountView)
	Delete(ctx context.Context, key string)
}

// NoopViewCache is used when no Redis read model is configured.
type NoopViewCache struct{}

func (NoopViewCache) Get(context.Context, string) (*models.AccountView, bool) { return nil, false }
func (NoopViewCache) Set(context.Context, string, *models.AccountView)        {}
func (NoopViewCache) Delete(context.Context, string)                          {}

// AccountReadRepository handles all read operations for accounts. The cache
// is tried first and the document store is the fallback, warming the cache on
// every cold read.
type AccountReadRepository struct {
	store docstore.Store
	cache AccountViewCache
}

func NewAccountReadRepository(store docstore.Store, cache AccountViewCache) *AccountReadRepository {
	if cache == nil {
		cache = NoopViewCache{}
	}
	return &AccountReadRepository{store: store, cache: cache}
}

func (r *AccountReadRepository) GetAccountView(ctx context.Context, accountID string) (*models.AccountView, error) {
	if view, ok := r.cache.Get(ctx, accountViewKeyPrefix+accountID); ok {
		return view, nil
	}
	return r.loadAccountView(ctx, accountID)
}

// RefreshAccountView reloads the account from the store into the cache.
func (r *AccountReadRepository) RefreshAccountView(ctx context.Context, accountID string) error {
	_, err := r.loadAccountView(ctx, accountID)
	return err
}

// InvalidateAccountView drops the cached view. Called by the command services
// after every balance mutation.
func (r *AccountReadRepository) InvalidateAccountView(ctx context.Context, accountID string) {
	r.cache.Delete(ctx, accountViewKeyPrefix+accountID)
}

// ListChildren returns the children linked to parentID, or an empty list
// when the parent has none yet.
func (r *AccountReadRepository) ListChildren(ctx context.Context, parentID string) ([]string, error) {
	snap, err := r.store.Get(ctx, docstore.Doc(ParentChildMappingCollection, parentID))
	if errors.Is(err, docstore.ErrNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get child mapping: %w", err)
	}
	var mapping models.ParentChildMapping
	if err := snap.DataTo(&mapping); err != nil {
		return nil, err
	}
	if mapping.Children == nil {
		return []string{}, nil
	}
	return mapping.Children, nil
}

// loadAccountView builds the view from the store and caches it unless the
// cache already holds a view of a newer document version. The check and the
// write are not atomic, and a reader that loaded before an invalidation can
// still put back an older view once the key is gone. That view lives until
// the projector refreshes the account or the cache TTL expires.
func (r *AccountReadRepository) loadAccountView(ctx context.Context, accountID string) (*models.AccountView, error) {
	snap, err := r.store.Get(ctx, accountRef(accountID))
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
	account.ID = accountID

	updatedAt := snap.UpdateTime
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	view := models.AccountToView(&account, updatedAt, snap.Version)
	key := accountViewKeyPrefix + accountID
	if cached, ok := r.cache.Get(ctx, key); ok && cached.Version > view.Version {
		return cached, nil
	}
	r.cache.Set(ctx, key, view)
	return view, nil
}
