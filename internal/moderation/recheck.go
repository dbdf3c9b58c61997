package moderation

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"casguard/internal/storage"
)

// NameResolver looks up the display name of a chat member.
type NameResolver interface {
	DisplayName(ctx context.Context, chatID, accountID int64) (string, error)
}

// SweepStats summarises one recheck pass.
type SweepStats struct {
	Scanned int
	Skipped int
	Acted   int
	Failed  int
}

// Rechecker periodically re-evaluates recently seen accounts, so that
// accounts added to the denylist after they joined are still caught.
type Rechecker struct {
	store      storage.Storage
	classifier Classifier
	executor   *Executor
	names      NameResolver
	log        *slog.Logger
	now        func() time.Time
}

// NewRechecker creates a Rechecker. names may be nil, in which case the
// numeric id is used as display name.
func NewRechecker(store storage.Storage, classifier Classifier, executor *Executor, names NameResolver, log *slog.Logger) *Rechecker {
	return &Rechecker{
		store:      store,
		classifier: classifier,
		executor:   executor,
		names:      names,
		log:        log,
		now:        time.Now,
	}
}

// Sweep drops state older than horizon, then re-evaluates every account
// seen within it. A failure on one account does not stop the sweep.
func (r *Rechecker) Sweep(ctx context.Context, horizon time.Duration) (SweepStats, error) {
	var stats SweepStats
	cutoff := r.now().Add(-horizon)

	if err := r.store.Prune(ctx, cutoff); err != nil {
		return stats, fmt.Errorf("prune: %w", err)
	}
	seen, err := r.store.ListSeen(ctx, cutoff)
	if err != nil {
		return stats, fmt.Errorf("list seen: %w", err)
	}

	// A pair that has started is finished even if ctx is cancelled mid-way.
	pairCtx := context.WithoutCancel(ctx)
	for _, rec := range seen {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Scanned++

		t := Target{ChatID: rec.ChatID, AccountID: rec.AccountID}
		resolve := func(ctx context.Context) string {
			return r.displayName(ctx, rec.ChatID, rec.AccountID)
		}

		outcome, err := evaluate(pairCtx, r.store, r.classifier, r.executor, t, resolve)
		if err != nil {
			stats.Failed++
			r.log.Warn("recheck failed", "chat_id", rec.ChatID, "account_id", rec.AccountID, "error", err)
			continue
		}
		switch outcome {
		case OutcomeNotified, OutcomeBanned:
			stats.Acted++
		case OutcomeSkippedWhitelisted, OutcomeSkippedActed:
			stats.Skipped++
		}
	}

	sweepCount.Inc()
	r.log.Info("recheck finished",
		"scanned", stats.Scanned,
		"skipped", stats.Skipped,
		"acted", stats.Acted,
		"failed", stats.Failed,
	)
	return stats, nil
}

func (r *Rechecker) displayName(ctx context.Context, chatID, accountID int64) string {
	fallback := strconv.FormatInt(accountID, 10)
	if r.names == nil {
		return fallback
	}
	name, err := r.names.DisplayName(ctx, chatID, accountID)
	if err != nil || name == "" {
		return fallback
	}
	return name
}
