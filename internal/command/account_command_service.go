package command

import (
	"context"

	"github.com/familyledger/ledger/internal/identity"
	"github.com/familyledger/ledger/internal/repository"
	"github.com/familyledger/ledger/shared/cqrs"
	"github.com/familyledger/ledger/shared/events"
	"github.com/familyledger/ledger/shared/models"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// EventPublisher is satisfied by events.Publisher and events.NopPublisher.
type EventPublisher interface {
	Publish(ctx context.Context, stream, eventType string, data any) error
}

// AccountCommandService creates accounts and applies deposits. Every write is
// a single ledger batch; the balance cache is invalidated afterwards.
type AccountCommandService struct {
	writeRepo  *repository.AccountWriteRepository
	readRepo   *repository.AccountReadRepository
	identities identity.Provider
	publisher  EventPublisher
}

func NewAccountCommandService(
	writeRepo *repository.AccountWriteRepository,
	readRepo *repository.AccountReadRepository,
	identities identity.Provider,
	publisher EventPublisher,
) *AccountCommandService {
	return &AccountCommandService{
		writeRepo:  writeRepo,
		readRepo:   readRepo,
		identities: identities,
		publisher:  publisher,
	}
}

func (s *AccountCommandService) CreateAccount(ctx context.Context, cmd cqrs.CreateAccountCommand) (*models.Account, error) {
	if missing := missingFields(
		field{"dob", cmd.DOB}, field{"email", cmd.Email}, field{"name", cmd.Name}, field{"role", string(cmd.Role)},
	); len(missing) > 0 {
		return nil, &models.ValidationError{Message: models.MissingFieldsMessage, Fields: missing}
	}
	if !cmd.Role.Valid() {
		return nil, &models.ValidationError{Message: "Role must be parent or child", Fields: []string{"role"}}
	}
	if cmd.Balance.IsNegative() {
		return nil, &models.ValidationError{Message: "Balance cannot be negative", Fields: []string{"balance"}}
	}
	if err := checkAmountBounds("balance", cmd.Balance); err != nil {
		return nil, err
	}

	return s.openAccount(ctx, cmd, nil)
}

// AddChild opens a child account under parentID. The account, its child
// profile and the parent mapping are written in one batch.
func (s *AccountCommandService) AddChild(ctx context.Context, cmd cqrs.AddChildCommand) (*models.Account, error) {
	if missing := missingFields(
		field{"name", cmd.Name}, field{"email", cmd.Email}, field{"dob", cmd.DOB}, field{"parentId", cmd.ParentID},
	); len(missing) > 0 {
		return nil, &models.ValidationError{Message: models.MissingFieldsMessage, Fields: missing}
	}

	parent, err := s.writeRepo.GetAccount(ctx, cmd.ParentID)
	if err != nil {
		return nil, err
	}
	if parent.Role != models.RoleParent {
		return nil, &models.PolicyViolationError{Reason: "Only parent accounts can add children"}
	}

	child, err := s.openAccount(ctx, cqrs.CreateAccountCommand{
		DOB:     cmd.DOB,
		Email:   cmd.Email,
		Name:    cmd.Name,
		Role:    models.RoleChild,
		Balance: decimal.Zero,
	}, func(b *repository.LedgerBatch, account *models.Account) {
		b.CreateChildProfile(&models.ChildProfile{ID: account.ID, Name: account.Name, Parent: cmd.ParentID}).
			LinkChild(cmd.ParentID, account.ID)
	})
	if err != nil {
		return nil, err
	}

	if err := s.publisher.Publish(ctx, events.LedgerEventsStream, events.ChildAdded, events.ChildAddedEvent{
		ChildID:  child.ID,
		ParentID: cmd.ParentID,
	}); err != nil {
		log.Error().Err(err).Msg("Failed to publish child.added event")
	}
	return child, nil
}

func (s *AccountCommandService) Deposit(ctx context.Context, cmd cqrs.DepositCommand) error {
	if err := validateAmount(cmd.Amount, field{"accountId", cmd.AccountID}); err != nil {
		return err
	}

	account, err := s.writeRepo.GetAccount(ctx, cmd.AccountID)
	if err != nil {
		return err
	}
	if account.Role == models.RoleChild {
		// Allowances for children will need their own policy; until then the
		// ledger refuses the deposit outright.
		return &models.PolicyViolationError{Reason: "Cannot deposit to child account"}
	}

	if err := s.writeRepo.Commit(ctx, s.writeRepo.NewBatch().Credit(cmd.AccountID, cmd.Amount)); err != nil {
		return err
	}
	s.readRepo.InvalidateAccountView(ctx, cmd.AccountID)

	if err := s.publisher.Publish(ctx, events.LedgerEventsStream, events.DepositCompleted, events.DepositCompletedEvent{
		AccountID: cmd.AccountID,
		Amount:    cmd.Amount,
	}); err != nil {
		log.Error().Err(err).Msg("Failed to publish deposit.completed event")
	}
	log.Info().Str("account", cmd.AccountID).Str("amount", cmd.Amount.String()).Msg("Deposit applied")
	return nil
}

// openAccount creates the identity, then commits the account document along
// with whatever extra writes stage adds. A failed commit deletes the identity
// again so no orphan is left behind.
func (s *AccountCommandService) openAccount(
	ctx context.Context,
	cmd cqrs.CreateAccountCommand,
	stage func(*repository.LedgerBatch, *models.Account),
) (*models.Account, error) {
	user, err := s.identities.CreateUser(ctx, identity.UserToCreate{
		Email:       cmd.Email,
		DisplayName: cmd.Name,
	})
	if err != nil {
		return nil, &models.IdentityProviderError{Err: err}
	}

	account := &models.Account{
		ID:      user.UID,
		DOB:     cmd.DOB,
		Email:   cmd.Email,
		Name:    cmd.Name,
		Role:    cmd.Role,
		Balance: cmd.Balance,
	}
	batch := s.writeRepo.NewBatch().CreateAccount(account)
	if stage != nil {
		stage(batch, account)
	}

	if err := s.writeRepo.Commit(ctx, batch); err != nil {
		// The caller may have gone away; compensation must still run.
		if delErr := s.identities.DeleteUser(context.WithoutCancel(ctx), user.UID); delErr != nil {
			log.Error().Err(delErr).Str("uid", user.UID).Msg("Failed to delete orphaned identity")
		}
		return nil, err
	}

	if err := s.publisher.Publish(ctx, events.LedgerEventsStream, events.AccountCreated, events.AccountCreatedEvent{
		AccountID: account.ID,
		Name:      account.Name,
		Role:      string(account.Role),
	}); err != nil {
		log.Error().Err(err).Msg("Failed to publish account.created event")
	}
	log.Info().Str("account", account.ID).Str("role", string(account.Role)).Msg("Account created")
	return account, nil
}
