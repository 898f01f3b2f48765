// Package revocation remembers revoked token ids until the tokens would have
// expired anyway.
package revocation

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const memoryCapacity = 100_000

// MemoryRevoker keeps revocations in process; they do not survive a restart.
type MemoryRevoker struct {
	entries *expirable.LRU[string, time.Time]
	now     func() time.Time
}

// NewMemoryRevoker bounds every entry by maxTTL on top of its own deadline.
func NewMemoryRevoker(maxTTL time.Duration) *MemoryRevoker {
	return &MemoryRevoker{
		entries: expirable.NewLRU[string, time.Time](memoryCapacity, nil, maxTTL),
		now:     time.Now,
	}
}

func (r *MemoryRevoker) Revoke(_ context.Context, tokenID string, until time.Time) error {
	if tokenID == "" || !until.After(r.now()) {
		return nil
	}
	r.entries.Add(tokenID, until)
	return nil
}

func (r *MemoryRevoker) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	until, ok := r.entries.Get(tokenID)
	if !ok {
		return false, nil
	}
	if !until.After(r.now()) {
		r.entries.Remove(tokenID)
		return false, nil
	}
	return true, nil
}
