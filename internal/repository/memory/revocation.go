package memory

import (
	"context"
	"sync"
	"time"

	"github.com/dtroode/membership-server/internal/model"
)

var _ model.RevocationList = (*RevocationList)(nil)

// RevocationList remembers revoked token IDs until their TTL passes.
type RevocationList struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	now     func() time.Time
}

func NewRevocationList() *RevocationList {
	return &RevocationList{
		revoked: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (l *RevocationList) Revoke(_ context.Context, tokenID string, ttl time.Duration) error {
	if tokenID == "" {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.revoked[tokenID] = l.now().Add(ttl)
	return nil
}

func (l *RevocationList) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	if tokenID == "" {
		return false, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	until, ok := l.revoked[tokenID]
	if !ok {
		return false, nil
	}
	if !l.now().Before(until) {
		delete(l.revoked, tokenID)
		return false, nil
	}
	return true, nil
}
