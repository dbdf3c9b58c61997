// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"time"

	"casguard/internal/model"
)

// Storage is the interface for all persistence operations.
type Storage interface {
	GetPolicy(ctx context.Context, chatID int64) (model.ChatPolicy, error)
	SetMode(ctx context.Context, chatID int64, mode model.Mode) error
	SetSilent(ctx context.Context, chatID int64, silent bool) error

	IsWhitelisted(ctx context.Context, chatID, accountID int64) (bool, error)
	AddWhitelist(ctx context.Context, chatID, accountID int64) error
	RemoveWhitelist(ctx context.Context, chatID, accountID int64) error

	TouchSeen(ctx context.Context, chatID, accountID int64, at time.Time) error
	ListSeen(ctx context.Context, since time.Time) ([]model.SeenRecord, error)
	Prune(ctx context.Context, before time.Time) error

	AddMessage(ctx context.Context, chatID, accountID, messageID int64, at time.Time, limit int) error
	ListMessages(ctx context.Context, chatID, accountID int64) ([]int64, error)
	ClearMessages(ctx context.Context, chatID, accountID int64) error

	IsActed(ctx context.Context, chatID, accountID int64) (bool, error)
	TryMarkActed(ctx context.Context, chatID, accountID int64, at time.Time) (bool, error)

	AddActionLog(ctx context.Context, e model.ActionLogEntry) error
	ListActionLog(ctx context.Context, chatID int64, limit int) ([]model.ActionLogEntry, error)
	ActionStats(ctx context.Context, chatID int64, since time.Time) (model.ActionStats, error)

	LookupReputation(ctx context.Context, chatID, accountID int64) (model.ReputationEntry, bool, error)
	StoreReputation(ctx context.Context, chatID, accountID int64, banned bool, at time.Time) error

	UpsertSourceUpdate(ctx context.Context, u model.SourceUpdate) error
	ListSourceUpdates(ctx context.Context) ([]model.SourceUpdate, error)

	AddErrorLog(ctx context.Context, e model.ErrorLogEntry) error
	ListErrorLog(ctx context.Context, limit int) ([]model.ErrorLogEntry, error)

	Close() error
}
