package projection

import (
	"context"
	"errors"
	"fmt"

	"github.com/familyledger/ledger/shared/events"
	"github.com/familyledger/ledger/shared/models"
	"github.com/rs/zerolog/log"
)

// ViewRefresher reloads an account view into the balance cache.
type ViewRefresher interface {
	RefreshAccountView(ctx context.Context, accountID string) error
}

// BalanceProjector keeps the cached balances in step with the ledger event
// stream. Refreshing reads the store, so replays and redeliveries are harmless.
type BalanceProjector struct {
	views ViewRefresher
}

func NewBalanceProjector(views ViewRefresher) *BalanceProjector {
	return &BalanceProjector{views: views}
}

// HandleLedgerEvent is an events.Handler.
func (p *BalanceProjector) HandleLedgerEvent(ctx context.Context, event events.Event) error {
	ids, err := affectedAccounts(event)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := p.views.RefreshAccountView(ctx, id); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				// Creation was rolled back after the event went out.
				log.Warn().Str("account", id).Str("event", event.Type).Msg("Skipping projection of missing account")
				continue
			}
			return fmt.Errorf("failed to refresh account %s: %w", id, err)
		}
	}
	log.Debug().Str("event", event.Type).Strs("accounts", ids).Msg("Projected ledger event")
	return nil
}

func affectedAccounts(event events.Event) ([]string, error) {
	switch event.Type {
	case events.AccountCreated:
		var data events.AccountCreatedEvent
		if err := events.DecodeData(event, &data); err != nil {
			return nil, err
		}
		return []string{data.AccountID}, nil
	case events.ChildAdded:
		var data events.ChildAddedEvent
		if err := events.DecodeData(event, &data); err != nil {
			return nil, err
		}
		return []string{data.ChildID}, nil
	case events.DepositCompleted:
		var data events.DepositCompletedEvent
		if err := events.DecodeData(event, &data); err != nil {
			return nil, err
		}
		return []string{data.AccountID}, nil
	case events.TransferCompleted:
		var data events.TransferCompletedEvent
		if err := events.DecodeData(event, &data); err != nil {
			return nil, err
		}
		return []string{data.From, data.To}, nil
	default:
		return nil, nil
	}
}
