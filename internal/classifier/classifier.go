// Package classifier decides whether an account in a chat should be treated
// as a spammer.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"casguard/internal/model"
	"casguard/internal/reputation"
)

// ReasonLocal is the verdict reason for a denylist match.
const ReasonLocal = "local blacklist"

// ReasonRemote is the verdict reason for a positive reputation answer.
const ReasonRemote = "CAS API (record found)"

// Denylist reports membership in the local set of known spammers.
type Denylist interface {
	Contains(id int64) bool
}

// Checker asks the remote reputation service about an account.
type Checker interface {
	Check(ctx context.Context, accountID int64) (bool, error)
}

// Store is the persistence the classifier needs.
type Store interface {
	IsWhitelisted(ctx context.Context, chatID, accountID int64) (bool, error)
	AddErrorLog(ctx context.Context, e model.ErrorLogEntry) error
}

// Classifier combines the denylist, the reputation cache and the live
// reputation service, in that order.
type Classifier struct {
	store    Store
	denylist Denylist
	cache    reputation.Cache
	checker  Checker
	ttl      time.Duration
	log      *slog.Logger
	now      func() time.Time
}

// New creates a Classifier. Cached answers older than ttl are ignored.
func New(store Store, denylist Denylist, cache reputation.Cache, checker Checker, ttl time.Duration, log *slog.Logger) *Classifier {
	return &Classifier{
		store:    store,
		denylist: denylist,
		cache:    cache,
		checker:  checker,
		ttl:      ttl,
		log:      log,
		now:      time.Now,
	}
}

// Classify returns the verdict for accountID in chatID. Remote failures
// never flag an account; only a whitelist lookup failure is returned as an
// error.
func (c *Classifier) Classify(ctx context.Context, chatID, accountID int64) (model.Verdict, error) {
	whitelisted, err := c.store.IsWhitelisted(ctx, chatID, accountID)
	if err != nil {
		return model.Clean, fmt.Errorf("check whitelist: %w", err)
	}
	if whitelisted {
		verdictCount.WithLabelValues("whitelisted").Inc()
		return model.Clean, nil
	}

	if c.denylist.Contains(accountID) {
		verdictCount.WithLabelValues("local").Inc()
		return model.Verdict{Flagged: true, Reason: ReasonLocal, Provenance: model.ProvenanceLocal}, nil
	}

	now := c.now()

	entry, ok, err := c.cache.LookupReputation(ctx, chatID, accountID)
	if err != nil {
		c.log.Warn("reputation cache lookup failed", "chat_id", chatID, "account_id", accountID, "error", err)
	} else if ok && now.Sub(entry.CheckedAt) < c.ttl {
		verdictCount.WithLabelValues("cached").Inc()
		return remoteVerdict(entry.Banned), nil
	}

	banned, err := c.checker.Check(ctx, accountID)
	switch {
	case errors.Is(err, reputation.ErrCircuitOpen):
		verdictCount.WithLabelValues("circuit_open").Inc()
		return model.Clean, nil
	case err != nil && ctx.Err() != nil:
		return model.Clean, nil
	case err != nil:
		verdictCount.WithLabelValues("unavailable").Inc()
		c.recordFailure(ctx, chatID, accountID, err)
		return model.Clean, nil
	}

	if err := c.cache.StoreReputation(ctx, chatID, accountID, banned, now); err != nil {
		c.log.Warn("reputation cache store failed", "chat_id", chatID, "account_id", accountID, "error", err)
	}
	verdictCount.WithLabelValues("remote").Inc()
	return remoteVerdict(banned), nil
}

func remoteVerdict(banned bool) model.Verdict {
	if !banned {
		return model.Clean
	}
	return model.Verdict{Flagged: true, Reason: ReasonRemote, Provenance: model.ProvenanceRemote}
}

func (c *Classifier) recordFailure(ctx context.Context, chatID, accountID int64, cause error) {
	err := c.store.AddErrorLog(ctx, model.ErrorLogEntry{
		Source:    "cas",
		ChatID:    chatID,
		AccountID: accountID,
		Message:   cause.Error(),
		At:        c.now(),
	})
	if err != nil {
		c.log.Error("failed to write error log", "chat_id", chatID, "account_id", accountID, "error", err)
	}
}
