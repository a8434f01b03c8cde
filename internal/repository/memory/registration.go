// Package memory provides in-process store implementations used when no
// external backend is configured and in tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/membership-server/internal/model"
)

var _ model.RegistrationStore = (*RegistrationStore)(nil)

// RegistrationStore keeps registrations in memory and pushes a fresh snapshot
// to every subscriber after each insert.
type RegistrationStore struct {
	mu        sync.Mutex
	records   []model.Registration
	subs      map[*subscription]struct{}
	accounts  model.AccountStore
	createErr error
	now       func() time.Time
}

// NewRegistrationStore creates an empty store. Subscription access is granted
// to identities whose account in accounts can read registrations.
func NewRegistrationStore(accounts model.AccountStore) *RegistrationStore {
	return &RegistrationStore{
		subs:     make(map[*subscription]struct{}),
		accounts: accounts,
		now:      time.Now,
	}
}

func (s *RegistrationStore) Create(ctx context.Context, registration model.Registration) (model.Registration, error) {
	if err := ctx.Err(); err != nil {
		return model.Registration{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.createErr != nil {
		return model.Registration{}, fmt.Errorf("failed to create registration: %w", s.createErr)
	}

	if registration.ID == uuid.Nil {
		registration.ID = uuid.New()
	}
	registration.CreatedAt = s.now()
	s.records = append(s.records, registration)

	for sub := range s.subs {
		sub.publish(s.snapshot(sub.limit))
	}

	return registration, nil
}

func (s *RegistrationStore) Subscribe(ctx context.Context, identity model.Identity, query model.Query) (model.Subscription, error) {
	if err := model.AuthorizeRegistrations(ctx, s.accounts, identity); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sub := &subscription{
		store:     s,
		limit:     query.Limit,
		snapshots: make(chan []model.Registration, 1),
		errs:      make(chan error, 1),
	}
	s.subs[sub] = struct{}{}
	sub.publish(s.snapshot(sub.limit))

	return sub, nil
}

// Len returns the number of stored registrations.
func (s *RegistrationStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// FailCreates makes every following Create fail with err. A nil err restores normal behavior.
func (s *RegistrationStore) FailCreates(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createErr = err
}

// FailSubscriptions ends every open subscription with err.
func (s *RegistrationStore) FailSubscriptions(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for sub := range s.subs {
		select {
		case sub.errs <- err:
		default:
		}
		delete(s.subs, sub)
	}
}

// Subscribers returns the number of open subscriptions.
func (s *RegistrationStore) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// snapshot must be called with mu held.
func (s *RegistrationStore) snapshot(limit int) []model.Registration {
	out := make([]model.Registration, len(s.records))
	copy(out, s.records)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() > out[j].ID.String()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *RegistrationStore) remove(sub *subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, sub)
}

type subscription struct {
	store     *RegistrationStore
	limit     int
	snapshots chan []model.Registration
	errs      chan error
}

func (s *subscription) Snapshots() <-chan []model.Registration { return s.snapshots }

func (s *subscription) Errors() <-chan error { return s.errs }

func (s *subscription) Close() error {
	s.store.remove(s)
	return nil
}

// publish replaces an unread snapshot. Callers hold the store lock, so there is
// a single writer and the send never blocks.
func (s *subscription) publish(records []model.Registration) {
	select {
	case <-s.snapshots:
	default:
	}
	s.snapshots <- records
}
