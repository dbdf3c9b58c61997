package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"casguard/internal/model"
	"casguard/internal/storage"
)

// ErrSideEffect wraps a failed platform call made after an action was
// committed. Such failures are logged and never undo the action.
var ErrSideEffect = errors.New("moderation side effect failed")

// Auditor records committed actions outside the database.
type Auditor interface {
	Append(at time.Time, t Target, mode model.Mode, action model.ActionKind, reason string) error
}

// Executor applies at most one moderation action per (chat, account).
type Executor struct {
	store    storage.Storage
	platform Platform
	audit    Auditor
	log      *slog.Logger
	now      func() time.Time
}

// NewExecutor creates an Executor. audit may be nil.
func NewExecutor(store storage.Storage, platform Platform, audit Auditor, log *slog.Logger) *Executor {
	return &Executor{
		store:    store,
		platform: platform,
		audit:    audit,
		log:      log,
		now:      time.Now,
	}
}

// Apply acts on a flagged verdict according to the chat policy.
//
// The acted record is inserted before anything else happens, so concurrent
// calls for the same pair perform the action exactly once. Failed platform
// calls are logged and the remaining steps still run.
func (e *Executor) Apply(ctx context.Context, t Target, policy model.ChatPolicy, v model.Verdict) (Outcome, error) {
	if !v.Flagged {
		return OutcomeClean, nil
	}

	whitelisted, err := e.store.IsWhitelisted(ctx, t.ChatID, t.AccountID)
	if err != nil {
		return "", fmt.Errorf("check whitelist: %w", err)
	}
	if whitelisted {
		return OutcomeSkippedWhitelisted, nil
	}

	acted, err := e.store.IsActed(ctx, t.ChatID, t.AccountID)
	if err != nil {
		return "", fmt.Errorf("check acted: %w", err)
	}
	if acted {
		return OutcomeSkippedActed, nil
	}

	now := e.now()
	won, err := e.store.TryMarkActed(ctx, t.ChatID, t.AccountID, now)
	if err != nil {
		return "", fmt.Errorf("mark acted: %w", err)
	}
	if !won {
		return OutcomeSkippedActed, nil
	}

	action := model.ActionQuickban
	if policy.Mode == model.ModeNotify {
		action = model.ActionNotify
	}

	log := e.log.With("chat_id", t.ChatID, "account_id", t.AccountID)
	log.Info("moderating account",
		"action", action,
		"reason", v.Reason,
		"source", v.Provenance,
	)
	actionCount.WithLabelValues(string(action), string(v.Provenance)).Inc()

	err = e.store.AddActionLog(ctx, model.ActionLogEntry{
		ChatID:    t.ChatID,
		AccountID: t.AccountID,
		Action:    action,
		Mode:      policy.Mode,
		Reason:    v.Reason,
		Source:    v.Provenance,
		At:        now,
	})
	if err != nil {
		log.Error("failed to write action log", "error", err)
	}
	if e.audit != nil {
		if err := e.audit.Append(now, t, policy.Mode, action, v.Reason); err != nil {
			log.Warn("failed to write audit line", "error", err)
		}
	}

	if action == model.ActionNotify {
		e.sideEffect(ctx, t, "send_notice", e.platform.SendMessage(ctx, t.ChatID, NotifyText(t.DisplayName, t.AccountID, v.Reason)))
		return OutcomeNotified, nil
	}

	e.sideEffect(ctx, t, "ban", e.platform.BanMember(ctx, t.ChatID, t.AccountID))

	ids, err := e.store.ListMessages(ctx, t.ChatID, t.AccountID)
	if err != nil {
		log.Error("failed to list cached messages", "error", err)
	}
	for _, id := range ids {
		e.sideEffect(ctx, t, "delete_message", e.platform.DeleteMessage(ctx, t.ChatID, id))
	}
	if err := e.store.ClearMessages(ctx, t.ChatID, t.AccountID); err != nil {
		log.Error("failed to clear cached messages", "error", err)
	}

	if !policy.Silent {
		e.sideEffect(ctx, t, "send_notice", e.platform.SendMessage(ctx, t.ChatID, BannedText(t.DisplayName, t.AccountID, v.Reason)))
	}
	return OutcomeBanned, nil
}

// Unban whitelists the account in the chat and lifts a platform ban if
// there is one.
func (e *Executor) Unban(ctx context.Context, chatID, accountID int64) error {
	if err := e.store.AddWhitelist(ctx, chatID, accountID); err != nil {
		return fmt.Errorf("add whitelist: %w", err)
	}
	t := Target{ChatID: chatID, AccountID: accountID}
	e.sideEffect(ctx, t, "unban", e.platform.UnbanMember(ctx, chatID, accountID))
	return nil
}

func (e *Executor) sideEffect(ctx context.Context, t Target, call string, err error) {
	if err == nil {
		return
	}
	err = fmt.Errorf("%w: %s: %w", ErrSideEffect, call, err)
	sideEffectFailures.WithLabelValues(call).Inc()
	e.log.Warn("platform call failed", "chat_id", t.ChatID, "account_id", t.AccountID, "call", call, "error", err)

	logErr := e.store.AddErrorLog(ctx, model.ErrorLogEntry{
		Source:    "telegram",
		ChatID:    t.ChatID,
		AccountID: t.AccountID,
		Message:   err.Error(),
		At:        e.now(),
	})
	if logErr != nil {
		e.log.Error("failed to write error log", "error", logErr)
	}
}
