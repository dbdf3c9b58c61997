package reputation

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"casguard/internal/model"
)

type pairKey struct {
	chatID    int64
	accountID int64
}

// MemCache keeps reputation answers in process. Entries are evicted by
// capacity or after ttl, whichever comes first.
type MemCache struct {
	data *expirable.LRU[pairKey, model.ReputationEntry]
}

var _ Cache = (*MemCache)(nil)

// NewMemCache creates a MemCache.
func NewMemCache(capacity int, ttl time.Duration) *MemCache {
	return &MemCache{
		data: expirable.NewLRU[pairKey, model.ReputationEntry](capacity, nil, ttl),
	}
}

func (c *MemCache) LookupReputation(_ context.Context, chatID, accountID int64) (model.ReputationEntry, bool, error) {
	e, ok := c.data.Get(pairKey{chatID, accountID})
	return e, ok, nil
}

func (c *MemCache) StoreReputation(_ context.Context, chatID, accountID int64, banned bool, at time.Time) error {
	c.data.Add(pairKey{chatID, accountID}, model.ReputationEntry{CheckedAt: at, Banned: banned})
	return nil
}
