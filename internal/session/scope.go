package session

import (
	"context"
	"sync"
	"time"

	"github.com/dtroode/membership-server/internal/model"
)

// Snapshot is the dashboard data held by a scope.
type Snapshot struct {
	Records []model.Registration
	// Ready is false until the first snapshot of the subscription arrived.
	Ready   bool
	Version uint64
}

// Scope is a live registration subscription owned by one dashboard session.
// Records are replaced whenever the store pushes a snapshot; listeners are
// woken through Changed.
type Scope struct {
	identity model.Identity
	sub      model.Subscription
	cancel   context.CancelFunc
	done     chan struct{}
	now      func() time.Time

	mu        sync.RWMutex
	snapshot  Snapshot
	err       error
	failedAt  time.Time
	changed   chan struct{}
	released  bool
	listeners int
	lastSeen  time.Time

	releaseOnce sync.Once
}

// acquireScope subscribes on behalf of identity. seed is shown until the first
// snapshot arrives. onError runs on the scope goroutine when the subscription ends
// with an error and must not block on Release.
func acquireScope(
	ctx context.Context,
	store model.RegistrationStore,
	identity model.Identity,
	query model.Query,
	seed []model.Registration,
	now func() time.Time,
	onError func(*Scope, error),
) (*Scope, error) {
	sub, err := store.Subscribe(ctx, identity, query)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s := &Scope{
		identity: identity,
		sub:      sub,
		cancel:   cancel,
		done:     make(chan struct{}),
		snapshot: Snapshot{Records: seed},
		changed:  make(chan struct{}),
		now:      now,
		lastSeen: now(),
	}
	go s.run(runCtx, onError)

	return s, nil
}

func (s *Scope) run(ctx context.Context, onError func(*Scope, error)) {
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			return
		case records := <-s.sub.Snapshots():
			s.update(records)
		case err := <-s.sub.Errors():
			s.fail(err)
			if ctx.Err() == nil {
				onError(s, err)
			}
			return
		}
	}
}

func (s *Scope) update(records []model.Registration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot = Snapshot{
		Records: records,
		Ready:   true,
		Version: s.snapshot.Version + 1,
	}
	s.notifyLocked()
}

func (s *Scope) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.err = err
	s.failedAt = s.now()
	s.notifyLocked()
}

func (s *Scope) notifyLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// Snapshot returns the latest records.
func (s *Scope) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Err returns the error that ended the subscription, if any.
func (s *Scope) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Changed returns a channel closed on the next update. After Release it
// returns an already closed channel.
func (s *Scope) Changed() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.changed
}

// Released reports whether the scope was released.
func (s *Scope) Released() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.released
}

// Attach registers a streaming listener. Scopes with listeners are not reaped.
func (s *Scope) Attach() (detach func()) {
	s.mu.Lock()
	s.listeners++
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.listeners--
			s.lastSeen = s.now()
			s.mu.Unlock()
		})
	}
}

func (s *Scope) touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = now
}

// idle reports whether nobody used the scope for longer than ttl.
func (s *Scope) idle(now time.Time, ttl time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listeners == 0 && now.Sub(s.lastSeen) > ttl
}

// retryDue reports whether a failed scope has waited long enough to resubscribe.
func (s *Scope) retryDue(now time.Time, backoff time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err != nil && now.Sub(s.failedAt) >= backoff
}

func (s *Scope) belongsTo(identity *model.Identity) bool {
	return s.identity.SameAs(identity)
}

// Release stops the subscription goroutine and closes the subscription.
// It is safe to call more than once.
func (s *Scope) Release() error {
	var err error
	s.releaseOnce.Do(func() {
		s.cancel()
		<-s.done
		err = s.sub.Close()

		s.mu.Lock()
		s.released = true
		close(s.changed)
		s.mu.Unlock()
	})
	return err
}
