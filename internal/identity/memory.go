package identity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/familyledger/ledger/shared/utils"
	"github.com/google/uuid"
)

type memoryUser struct {
	record       UserRecord
	passwordHash string
}

// MemoryProvider is an in-process Provider for local runs and tests.
type MemoryProvider struct {
	mu      sync.Mutex
	byUID   map[string]*memoryUser
	byEmail map[string]string
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		byUID:   make(map[string]*memoryUser),
		byEmail: make(map[string]string),
	}
}

func (p *MemoryProvider) CreateUser(ctx context.Context, user UserToCreate) (*UserRecord, error) {
	if err := user.validate(); err != nil {
		return nil, err
	}
	email := normalizeEmail(user.Email)
	password := utils.GenerateTemporaryPassword()
	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash temporary password: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, taken := p.byEmail[email]; taken {
		return nil, ErrEmailAlreadyExists
	}
	record := UserRecord{
		UID:         uuid.NewString(),
		Email:       email,
		DisplayName: user.DisplayName,
		CreatedAt:   time.Now().UTC(),
	}
	p.byUID[record.UID] = &memoryUser{record: record, passwordHash: hash}
	p.byEmail[email] = record.UID

	record.TemporaryPassword = password
	return &record, nil
}

func (p *MemoryProvider) DeleteUser(ctx context.Context, uid string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.byUID[uid]
	if !ok {
		return ErrUserNotFound
	}
	delete(p.byEmail, u.record.Email)
	delete(p.byUID, uid)
	return nil
}

// GetUser returns the stored record, without the temporary password.
func (p *MemoryProvider) GetUser(uid string) (*UserRecord, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.byUID[uid]
	if !ok {
		return nil, false
	}
	record := u.record
	return &record, true
}

// VerifyPassword reports whether password is the one issued to uid.
func (p *MemoryProvider) VerifyPassword(uid, password string) bool {
	p.mu.Lock()
	u, ok := p.byUID[uid]
	p.mu.Unlock()
	return ok && utils.CheckPassword(password, u.passwordHash)
}

func (p *MemoryProvider) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byUID)
}
