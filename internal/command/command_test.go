package command

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/familyledger/ledger/internal/docstore"
	"github.com/familyledger/ledger/internal/identity"
	"github.com/familyledger/ledger/internal/repository"
	"github.com/familyledger/ledger/shared/cqrs"
	"github.com/familyledger/ledger/shared/models"
	"github.com/shopspring/decimal"
)

// ---- fakes ----

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(_ context.Context, _, eventType string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
	return nil
}

func (p *recordingPublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e == eventType {
			n++
		}
	}
	return n
}

// flakyStore fails every commit while failCommits is set.
type flakyStore struct {
	docstore.Store
	mu          sync.Mutex
	failCommits bool
}

func (s *flakyStore) Commit(ctx context.Context, b *docstore.Batch) error {
	s.mu.Lock()
	fail := s.failCommits
	s.mu.Unlock()
	if fail {
		return errors.New("store unavailable")
	}
	return s.Store.Commit(ctx, b)
}

func (s *flakyStore) setFailing(fail bool) {
	s.mu.Lock()
	s.failCommits = fail
	s.mu.Unlock()
}

// ---- helpers ----

type fixture struct {
	mem        *docstore.MemoryStore
	store      *flakyStore
	identities *identity.MemoryProvider
	publisher  *recordingPublisher
	writeRepo  *repository.AccountWriteRepository
	accounts   *AccountCommandService
	transfers  *TransferCommandService
}

func newFixture(t *testing.T, policy ChildTransferPolicy) *fixture {
	t.Helper()
	mem := docstore.NewMemoryStore()
	store := &flakyStore{Store: mem}
	f := &fixture{
		mem:        mem,
		store:      store,
		identities: identity.NewMemoryProvider(),
		publisher:  &recordingPublisher{},
		writeRepo:  repository.NewAccountWriteRepository(store),
	}
	readRepo := repository.NewAccountReadRepository(store, nil)
	f.accounts = NewAccountCommandService(f.writeRepo, readRepo, f.identities, f.publisher)
	f.transfers = NewTransferCommandService(f.writeRepo, readRepo, policy, f.publisher)
	return f
}

func (f *fixture) createParent(t *testing.T, email string, balance int64) string {
	t.Helper()
	account, err := f.accounts.CreateAccount(context.Background(), cqrs.CreateAccountCommand{
		DOB: "1985-03-01", Email: email, Name: "Parent", Role: models.RoleParent, Balance: decimal.NewFromInt(balance),
	})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	return account.ID
}

func (f *fixture) addChild(t *testing.T, parentID, email string) string {
	t.Helper()
	child, err := f.accounts.AddChild(context.Background(), cqrs.AddChildCommand{
		Name: "Kid", Email: email, DOB: "2015-01-01", ParentID: parentID,
	})
	if err != nil {
		t.Fatalf("AddChild: %v", err)
	}
	return child.ID
}

func (f *fixture) balance(t *testing.T, id string) decimal.Decimal {
	t.Helper()
	account, err := f.writeRepo.GetAccount(context.Background(), id)
	if err != nil {
		t.Fatalf("GetAccount(%s): %v", id, err)
	}
	return account.Balance
}

func assertBalance(t *testing.T, f *fixture, id string, want int64) {
	t.Helper()
	if got := f.balance(t, id); !got.Equal(decimal.NewFromInt(want)) {
		t.Errorf("balance of %s: expected %d, got %s", id, want, got)
	}
}

func amount(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func isValidationError(err error) bool {
	var v *models.ValidationError
	return errors.As(err, &v)
}
