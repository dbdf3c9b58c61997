// Package moderation applies moderation actions to flagged accounts and
// drives classification for chat events and periodic rechecks.
package moderation

import (
	"context"

	"casguard/internal/model"
)

// Platform is the outbound side of the chat platform.
type Platform interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	BanMember(ctx context.Context, chatID, accountID int64) error
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
	UnbanMember(ctx context.Context, chatID, accountID int64) error
}

// Classifier produces a verdict for an account in a chat.
type Classifier interface {
	Classify(ctx context.Context, chatID, accountID int64) (model.Verdict, error)
}

// Target identifies the account an action is applied to.
type Target struct {
	ChatID      int64
	AccountID   int64
	DisplayName string
}

// Outcome describes what handling an event or applying a verdict did.
type Outcome string

const (
	OutcomeIgnored            Outcome = "ignored"
	OutcomeClean              Outcome = "clean"
	OutcomeSkippedWhitelisted Outcome = "skipped_whitelisted"
	OutcomeSkippedActed       Outcome = "skipped_acted"
	OutcomeNotified           Outcome = "notified"
	OutcomeBanned             Outcome = "banned"
)
