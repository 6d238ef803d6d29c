package query

import (
	"context"
	"strings"

	"github.com/familyledger/ledger/internal/repository"
	"github.com/familyledger/ledger/shared/cqrs"
	"github.com/familyledger/ledger/shared/models"
	"github.com/shopspring/decimal"
)

type AccountQueryService struct {
	readRepo *repository.AccountReadRepository
}

func NewAccountQueryService(readRepo *repository.AccountReadRepository) *AccountQueryService {
	return &AccountQueryService{readRepo: readRepo}
}

// GetBalance returns the stored balance. An unknown account is ErrNotFound,
// never a zero balance.
func (s *AccountQueryService) GetBalance(ctx context.Context, q cqrs.GetBalanceQuery) (decimal.Decimal, error) {
	if strings.TrimSpace(q.AccountID) == "" {
		return decimal.Zero, &models.ValidationError{Message: models.MissingFieldsMessage, Fields: []string{"accountId"}}
	}
	view, err := s.readRepo.GetAccountView(ctx, q.AccountID)
	if err != nil {
		return decimal.Zero, err
	}
	return view.Balance, nil
}

func (s *AccountQueryService) ListChildren(ctx context.Context, q cqrs.ListChildrenQuery) ([]string, error) {
	if strings.TrimSpace(q.ParentID) == "" {
		return nil, &models.ValidationError{Message: models.MissingFieldsMessage, Fields: []string{"parentId"}}
	}
	if _, err := s.readRepo.GetAccountView(ctx, q.ParentID); err != nil {
		return nil, err
	}
	return s.readRepo.ListChildren(ctx, q.ParentID)
}
