package bot

import (
	"context"
	"time"

	"casguard/internal/model"
)

func (b *Bot) handleSetMode(ctx context.Context, chatID int64, mode model.Mode) {
	if err := b.store.SetMode(ctx, chatID, mode); err != nil {
		b.log.Error("set mode", "chat_id", chatID, "error", err)
		b.reply(ctx, chatID, FormatError(err))
		return
	}
	b.log.Info("mode changed", "chat_id", chatID, "mode", mode)
	b.reply(ctx, chatID, FormatModeSet(mode))
}

func (b *Bot) handleSilent(ctx context.Context, chatID int64, args string) {
	policy, err := b.store.GetPolicy(ctx, chatID)
	if err != nil {
		b.reply(ctx, chatID, FormatError(err))
		return
	}
	if args == "" {
		b.reply(ctx, chatID, FormatSilent(policy))
		return
	}

	silent, err := ParseOnOff(args)
	if err != nil {
		b.reply(ctx, chatID, "Usage: /silent [on|off]")
		return
	}
	if err := b.store.SetSilent(ctx, chatID, silent); err != nil {
		b.log.Error("set silent", "chat_id", chatID, "error", err)
		b.reply(ctx, chatID, FormatError(err))
		return
	}
	policy.Silent = silent
	b.reply(ctx, chatID, FormatSilent(policy))
}

func (b *Bot) handleUnban(ctx context.Context, chatID int64, args string) {
	id, err := ParseAccountID(args)
	if err != nil {
		b.reply(ctx, chatID, "Usage: /unban &lt;userid&gt;")
		return
	}
	if err := b.unbanner.Unban(ctx, chatID, id); err != nil {
		b.log.Error("unban", "chat_id", chatID, "account_id", id, "error", err)
		b.reply(ctx, chatID, FormatError(err))
		return
	}
	b.reply(ctx, chatID, FormatUnbanned(id))
}

func (b *Bot) handleUnwhitelist(ctx context.Context, chatID int64, args string) {
	id, err := ParseAccountID(args)
	if err != nil {
		b.reply(ctx, chatID, "Usage: /unwhitelist &lt;userid&gt;")
		return
	}
	if err := b.store.RemoveWhitelist(ctx, chatID, id); err != nil {
		b.log.Error("remove whitelist", "chat_id", chatID, "account_id", id, "error", err)
		b.reply(ctx, chatID, FormatError(err))
		return
	}
	b.log.Info("whitelist entry removed", "chat_id", chatID, "account_id", id)
	b.reply(ctx, chatID, FormatUnwhitelisted(id))
}

func (b *Bot) handleStatus(ctx context.Context, chatID int64) {
	policy, err := b.store.GetPolicy(ctx, chatID)
	if err != nil {
		b.reply(ctx, chatID, FormatError(err))
		return
	}
	sources, err := b.store.ListSourceUpdates(ctx)
	if err != nil {
		b.log.Warn("list source updates", "error", err)
	}
	var lastErr *model.ErrorLogEntry
	if errs, err := b.store.ListErrorLog(ctx, 1); err != nil {
		b.log.Warn("list error log", "error", err)
	} else if len(errs) > 0 {
		lastErr = &errs[0]
	}
	size := 0
	if b.denylist != nil {
		size = b.denylist.Size()
	}
	b.reply(ctx, chatID, FormatStatus(StatusInfo{
		Policy:          policy,
		DenylistSize:    size,
		RecheckInterval: b.cfg.RecheckInterval,
		ExportInterval:  b.cfg.UpdateExportInterval,
		LolsInterval:    b.cfg.UpdateLolsInterval,
		SeenTTL:         b.cfg.SeenTTL,
		Sources:         sources,
		LastError:       lastErr,
		Now:             b.now(),
	}))
}

const recentActions = 5

// statsWindows are the periods reported by /stats.
var statsWindows = []struct {
	label string
	span  time.Duration
}{
	{"24h", 24 * time.Hour},
	{"7d", 7 * 24 * time.Hour},
	{"30d", 30 * 24 * time.Hour},
}

func (b *Bot) handleStats(ctx context.Context, chatID int64) {
	now := b.now()
	rows := make([]StatsRow, 0, len(statsWindows))
	for _, w := range statsWindows {
		st, err := b.store.ActionStats(ctx, chatID, now.Add(-w.span))
		if err != nil {
			b.reply(ctx, chatID, FormatError(err))
			return
		}
		rows = append(rows, StatsRow{Label: w.label, Stats: st})
	}
	recent, err := b.store.ListActionLog(ctx, chatID, recentActions)
	if err != nil {
		b.log.Warn("list action log", "chat_id", chatID, "error", err)
	}
	b.reply(ctx, chatID, FormatStats(rows, recent))
}
