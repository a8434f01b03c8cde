package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/membership-server/internal/model"
)

var _ model.AccountStore = (*AccountStore)(nil)

type AccountStore struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]model.Account
	byEmail map[string]uuid.UUID
}

func NewAccountStore() *AccountStore {
	return &AccountStore{
		byID:    make(map[uuid.UUID]model.Account),
		byEmail: make(map[string]uuid.UUID),
	}
}

func (s *AccountStore) GetByEmail(_ context.Context, email string) (model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return model.Account{}, model.ErrNotFound
	}
	return s.byID[id], nil
}

func (s *AccountStore) GetByID(_ context.Context, id uuid.UUID) (model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.byID[id]
	if !ok {
		return model.Account{}, model.ErrNotFound
	}
	return account, nil
}

func (s *AccountStore) Create(_ context.Context, account model.Account) (model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(account.Email)
	if _, ok := s.byEmail[key]; ok {
		return model.Account{}, model.ErrAlreadyExists
	}
	if _, ok := s.byID[account.ID]; ok {
		return model.Account{}, model.ErrAlreadyExists
	}

	s.byID[account.ID] = account
	s.byEmail[key] = account.ID
	return account, nil
}

func (s *AccountStore) SetRole(_ context.Context, id uuid.UUID, role model.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.byID[id]
	if !ok {
		return model.ErrNotFound
	}
	account.Role = role
	account.UpdatedAt = time.Now()
	s.byID[id] = account
	return nil
}
