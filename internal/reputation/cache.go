package reputation

import (
	"context"
	"time"

	"casguard/internal/model"
)

// Cache stores the last reputation answer per (chat, account). Entries are
// overwritten unconditionally; freshness is decided by the reader.
type Cache interface {
	LookupReputation(ctx context.Context, chatID, accountID int64) (model.ReputationEntry, bool, error)
	StoreReputation(ctx context.Context, chatID, accountID int64, banned bool, at time.Time) error
}
