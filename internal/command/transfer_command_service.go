package command

import (
	"context"
	"time"

	"github.com/familyledger/ledger/internal/repository"
	"github.com/familyledger/ledger/shared/cqrs"
	"github.com/familyledger/ledger/shared/events"
	"github.com/familyledger/ledger/shared/models"
	"github.com/familyledger/ledger/shared/utils"
	"github.com/rs/zerolog/log"
)

// TransferCommandService moves funds between two accounts. The balance read
// here only decides the response; the debit itself is guarded by the store,
// so a concurrent transfer can never push the source below zero.
type TransferCommandService struct {
	writeRepo *repository.AccountWriteRepository
	readRepo  *repository.AccountReadRepository
	policy    ChildTransferPolicy
	publisher EventPublisher
	now       func() time.Time
}

func NewTransferCommandService(
	writeRepo *repository.AccountWriteRepository,
	readRepo *repository.AccountReadRepository,
	policy ChildTransferPolicy,
	publisher EventPublisher,
) *TransferCommandService {
	if policy == nil {
		policy = AllowAllChildTransfers
	}
	return &TransferCommandService{
		writeRepo: writeRepo,
		readRepo:  readRepo,
		policy:    policy,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *TransferCommandService) Transfer(ctx context.Context, cmd cqrs.TransferCommand) (*models.Transfer, error) {
	if err := validateAmount(cmd.Amount, field{"from", cmd.From}, field{"to", cmd.To}); err != nil {
		return nil, err
	}
	if cmd.From == cmd.To {
		return nil, &models.ValidationError{Message: "Cannot transfer to the same account", Fields: []string{"from", "to"}}
	}

	from, err := s.writeRepo.GetAccount(ctx, cmd.From)
	if err != nil {
		return nil, err
	}
	to, err := s.writeRepo.GetAccount(ctx, cmd.To)
	if err != nil {
		return nil, err
	}

	if from.Role == models.RoleChild {
		allowed := s.policy.AuthorizeChildTransfer(ctx, ChildTransfer{
			FromID: cmd.From,
			ToID:   cmd.To,
			Amount: cmd.Amount,
			From:   *from,
			To:     *to,
		})
		if !allowed {
			return nil, &models.PolicyViolationError{Reason: "Transfer not authorized for child account"}
		}
	}

	if from.Balance.LessThan(cmd.Amount) {
		return nil, models.ErrInsufficientBalance
	}

	transfer := &models.Transfer{
		ID:        utils.GenerateID("trf"),
		From:      cmd.From,
		To:        cmd.To,
		Amount:    cmd.Amount,
		CreatedAt: s.now(),
	}
	batch := s.writeRepo.NewBatch().
		Debit(cmd.From, cmd.Amount).
		Credit(cmd.To, cmd.Amount).
		RecordTransfer(transfer)
	if err := s.writeRepo.Commit(ctx, batch); err != nil {
		return nil, err
	}
	s.readRepo.InvalidateAccountView(ctx, cmd.From)
	s.readRepo.InvalidateAccountView(ctx, cmd.To)

	if err := s.publisher.Publish(ctx, events.LedgerEventsStream, events.TransferCompleted, events.TransferCompletedEvent{
		TransferID: transfer.ID,
		From:       transfer.From,
		To:         transfer.To,
		Amount:     transfer.Amount,
	}); err != nil {
		log.Error().Err(err).Msg("Failed to publish transfer.completed event")
	}
	log.Info().
		Str("transfer", transfer.ID).
		Str("from", transfer.From).
		Str("to", transfer.To).
		Str("amount", transfer.Amount.String()).
		Msg("Transfer applied")
	return transfer, nil
}
