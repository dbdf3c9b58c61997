// Package model defines the domain types used across the application.
package model

import "time"

// Mode is the per-chat moderation policy.
type Mode string

// Supported chat modes.
const (
	ModeNotify   Mode = "notify"
	ModeQuickban Mode = "quickban"
)

// DefaultMode applies to chats that never configured a mode.
const DefaultMode = ModeQuickban

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModeNotify, ModeQuickban:
		return Mode(s), true
	}
	return "", false
}

// ChatPolicy is the moderation configuration of a single chat.
// Silent suppresses the public removal notice and only applies in quickban mode.
type ChatPolicy struct {
	ChatID int64
	Mode   Mode
	Silent bool
}

// SeenRecord tracks when an account was first and last active in a chat.
type SeenRecord struct {
	ChatID    int64
	AccountID int64
	FirstSeen time.Time
	LastSeen  time.Time
}

// Provenance names the signal that produced a flagged verdict.
type Provenance string

// Verdict provenances. ProvenanceRemote is stored as "cas" in the action log.
const (
	ProvenanceNone   Provenance = "none"
	ProvenanceLocal  Provenance = "local"
	ProvenanceRemote Provenance = "cas"
)

// Verdict is the result of classifying one account in one chat.
type Verdict struct {
	Flagged    bool
	Reason     string
	Provenance Provenance
}

// Clean is the verdict for an account that is not flagged.
var Clean = Verdict{Provenance: ProvenanceNone}

// ActionKind is the kind of moderation action that was taken.
type ActionKind string

// Supported action kinds.
const (
	ActionNotify   ActionKind = "notify"
	ActionQuickban ActionKind = "quickban"
)

// ActionLogEntry is an append-only record of an action taken against an account.
type ActionLogEntry struct {
	ChatID    int64
	AccountID int64
	Action    ActionKind
	Mode      Mode
	Reason    string
	Source    Provenance
	At        time.Time
}

// ReputationEntry is the last remote verdict cached for a (chat, account) pair.
type ReputationEntry struct {
	CheckedAt time.Time
	Banned    bool
}

// ErrorLogEntry records a non-fatal failure for later inspection.
// ChatID and AccountID are zero when the failure is not tied to a pair.
type ErrorLogEntry struct {
	ID        int64
	Source    string
	ChatID    int64
	AccountID int64
	Message   string
	At        time.Time
}

// SourceUpdate is the metadata of the last successful denylist refresh of one feed.
type SourceUpdate struct {
	Name  string
	Count int
	At    time.Time
}

// ActionStats aggregates the action log of a chat over a time window.
type ActionStats struct {
	Total          int
	Notify         int
	Quickban       int
	Local          int
	Remote         int
	UniqueAccounts int
}
