package moderation

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"casguard/internal/storage"
)

// Member statuses that count as joining a chat.
const (
	StatusMember     = "member"
	StatusRestricted = "restricted"
)

// MessageEvent is a message posted by an account in a chat.
type MessageEvent struct {
	ChatID      int64
	AccountID   int64
	MessageID   int64
	DisplayName string
}

// MemberEvent is a change of an account's membership status in a chat.
type MemberEvent struct {
	ChatID      int64
	AccountID   int64
	DisplayName string
	NewStatus   string
}

// Guard classifies accounts as they show up in chats and acts on them.
type Guard struct {
	store        storage.Storage
	classifier   Classifier
	executor     *Executor
	messageLimit int
	log          *slog.Logger
	now          func() time.Time
}

// NewGuard creates a Guard. messageLimit bounds the message ids cached per
// account for later deletion.
func NewGuard(store storage.Storage, classifier Classifier, executor *Executor, messageLimit int, log *slog.Logger) *Guard {
	return &Guard{
		store:        store,
		classifier:   classifier,
		executor:     executor,
		messageLimit: messageLimit,
		log:          log,
		now:          time.Now,
	}
}

// HandleMessage records the message and checks its author.
func (g *Guard) HandleMessage(ctx context.Context, ev MessageEvent) (Outcome, error) {
	eventCount.WithLabelValues("message").Inc()
	now := g.now()
	if err := g.store.TouchSeen(ctx, ev.ChatID, ev.AccountID, now); err != nil {
		g.log.Warn("failed to touch seen", "chat_id", ev.ChatID, "account_id", ev.AccountID, "error", err)
	}
	if err := g.store.AddMessage(ctx, ev.ChatID, ev.AccountID, ev.MessageID, now, g.messageLimit); err != nil {
		g.log.Warn("failed to cache message", "chat_id", ev.ChatID, "account_id", ev.AccountID, "error", err)
	}
	return g.check(ctx, Target{ChatID: ev.ChatID, AccountID: ev.AccountID, DisplayName: ev.DisplayName})
}

// HandleMember checks an account that joined or was restricted. Other
// status changes are ignored.
func (g *Guard) HandleMember(ctx context.Context, ev MemberEvent) (Outcome, error) {
	if ev.NewStatus != StatusMember && ev.NewStatus != StatusRestricted {
		return OutcomeIgnored, nil
	}
	eventCount.WithLabelValues("member").Inc()
	if err := g.store.TouchSeen(ctx, ev.ChatID, ev.AccountID, g.now()); err != nil {
		g.log.Warn("failed to touch seen", "chat_id", ev.ChatID, "account_id", ev.AccountID, "error", err)
	}
	return g.check(ctx, Target{ChatID: ev.ChatID, AccountID: ev.AccountID, DisplayName: ev.DisplayName})
}

func (g *Guard) check(ctx context.Context, t Target) (Outcome, error) {
	if t.DisplayName == "" {
		t.DisplayName = strconv.FormatInt(t.AccountID, 10)
	}
	return evaluate(ctx, g.store, g.classifier, g.executor, t, nil)
}

// evaluate is shared by inline events and rechecks. If resolve is set it is
// called to fill in the display name once the account is flagged.
func evaluate(ctx context.Context, store storage.Storage, classifier Classifier, executor *Executor, t Target, resolve func(context.Context) string) (Outcome, error) {
	whitelisted, err := store.IsWhitelisted(ctx, t.ChatID, t.AccountID)
	if err != nil {
		return "", fmt.Errorf("check whitelist: %w", err)
	}
	if whitelisted {
		return OutcomeSkippedWhitelisted, nil
	}
	acted, err := store.IsActed(ctx, t.ChatID, t.AccountID)
	if err != nil {
		return "", fmt.Errorf("check acted: %w", err)
	}
	if acted {
		return OutcomeSkippedActed, nil
	}

	v, err := classifier.Classify(ctx, t.ChatID, t.AccountID)
	if err != nil {
		return "", fmt.Errorf("classify: %w", err)
	}
	if !v.Flagged {
		return OutcomeClean, nil
	}

	if resolve != nil {
		t.DisplayName = resolve(ctx)
	}
	policy, err := store.GetPolicy(ctx, t.ChatID)
	if err != nil {
		return "", fmt.Errorf("get policy: %w", err)
	}
	return executor.Apply(ctx, t, policy, v)
}
