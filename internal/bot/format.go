package bot

import (
	"fmt"
	"html"
	"strings"
	"time"

	"casguard/internal/model"
)

const helpText = `Spam guard for group chats.

Admin commands:
/notify - only warn about suspicious accounts
/quickban - ban suspicious accounts and delete their messages
/silent [on|off] - hide the removal notice in quickban mode
/unban &lt;userid&gt; - unban an account and never flag it in this chat
/unwhitelist &lt;userid&gt; - check an unbanned account again
/status - bot settings and denylist state
/stats - moderation actions over the last 24h, 7d and 30d`

const textNotAdmin = "⛔ This command is available only for chat administrators."

// FormatModeSet confirms a mode change.
func FormatModeSet(mode model.Mode) string {
	return fmt.Sprintf("✅ Mode set to: <b>%s</b>", mode)
}

// FormatUnbanned confirms an unban.
func FormatUnbanned(accountID int64) string {
	return fmt.Sprintf("✅ User <code>%d</code> added to whitelist for this chat (bot will ignore).", accountID)
}

// FormatUnwhitelisted confirms a whitelist removal.
func FormatUnwhitelisted(accountID int64) string {
	return fmt.Sprintf("✅ User <code>%d</code> removed from whitelist for this chat.", accountID)
}

// FormatError renders err for an HTML reply.
func FormatError(err error) string {
	return "Error: " + html.EscapeString(err.Error())
}

// FormatSilent reports the silent setting of a chat.
func FormatSilent(p model.ChatPolicy) string {
	state := "off"
	if p.Silent {
		state = "on"
	}
	text := fmt.Sprintf("Silent mode: <b>%s</b>", state)
	if p.Mode != model.ModeQuickban {
		text += "\nIt only applies in quickban mode."
	}
	return text
}

// StatusInfo is everything shown by /status.
type StatusInfo struct {
	Policy          model.ChatPolicy
	DenylistSize    int
	RecheckInterval time.Duration
	ExportInterval  time.Duration
	LolsInterval    time.Duration
	SeenTTL         time.Duration
	Sources         []model.SourceUpdate
	LastError       *model.ErrorLogEntry
	Now             time.Time
}

// FormatStatus formats the /status reply.
func FormatStatus(s StatusInfo) string {
	var b strings.Builder
	b.WriteString("🟢 Bot status: online\n")
	fmt.Fprintf(&b, "Mode: <b>%s</b>", s.Policy.Mode)
	if s.Policy.Mode == model.ModeQuickban && s.Policy.Silent {
		b.WriteString(" (silent)")
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Local blacklist size: <b>%d</b>\n", s.DenylistSize)
	fmt.Fprintf(&b, "Recheck interval: <b>%s</b>\n", FormatDuration(s.RecheckInterval))
	fmt.Fprintf(&b, "Source update: export=%s, lols=%s\n", FormatDuration(s.ExportInterval), FormatDuration(s.LolsInterval))
	fmt.Fprintf(&b, "Seen TTL: <b>%s</b>", FormatDuration(s.SeenTTL))
	for _, u := range s.Sources {
		fmt.Fprintf(&b, "\n%s: %d ids, updated %s ago", u.Name, u.Count, FormatDuration(s.Now.Sub(u.At)))
	}
	if e := s.LastError; e != nil {
		fmt.Fprintf(&b, "\nLast error (%s, %s ago): %s", e.Source, FormatDuration(s.Now.Sub(e.At)), html.EscapeString(e.Message))
	}
	return b.String()
}

// StatsRow is one window of /stats.
type StatsRow struct {
	Label string
	Stats model.ActionStats
}

// FormatStats formats the /stats reply, followed by the most recent actions.
func FormatStats(rows []StatsRow, recent []model.ActionLogEntry) string {
	var b strings.Builder
	b.WriteString("📊 Actions stats")
	for _, r := range rows {
		st := r.Stats
		fmt.Fprintf(&b, "\nLast %s: <b>total=%d, notify=%d, quickban=%d, local=%d, cas=%d, unique_users=%d</b>",
			r.Label, st.Total, st.Notify, st.Quickban, st.Local, st.Remote, st.UniqueAccounts)
	}
	if len(recent) > 0 {
		b.WriteString("\n\nRecent:")
	}
	for _, e := range recent {
		fmt.Fprintf(&b, "\n%s %s <code>%d</code> (%s)", e.At.UTC().Format("2006-01-02 15:04"), e.Action, e.AccountID, e.Source)
	}
	return b.String()
}

// FormatDuration renders d in its largest whole unit: s, m, h or d.
func FormatDuration(d time.Duration) string {
	secs := int64(d / time.Second)
	switch {
	case secs < 60:
		return fmt.Sprintf("%ds", secs)
	case secs < 3600:
		return fmt.Sprintf("%dm", secs/60)
	case secs < 86400:
		return fmt.Sprintf("%dh", secs/3600)
	default:
		return fmt.Sprintf("%dd", secs/86400)
	}
}
