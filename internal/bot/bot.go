package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"casguard/internal/config"
	"casguard/internal/model"
	"casguard/internal/moderation"
	"casguard/internal/storage"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// EventHandler reacts to chat activity.
type EventHandler interface {
	HandleMessage(ctx context.Context, ev moderation.MessageEvent) (moderation.Outcome, error)
	HandleMember(ctx context.Context, ev moderation.MemberEvent) (moderation.Outcome, error)
}

// Unbanner lifts a ban and whitelists the account.
type Unbanner interface {
	Unban(ctx context.Context, chatID, accountID int64) error
}

// Sizer reports the size of the local denylist.
type Sizer interface {
	Size() int
}

// maxConcurrentUpdates bounds the number of updates handled at once.
const maxConcurrentUpdates = 16

// Bot connects the moderation engine to Telegram. It turns updates into
// events, serves admin commands and performs outbound calls.
type Bot struct {
	api      telegramAPI
	store    storage.Storage
	cfg      *config.Config
	events   EventHandler
	unbanner Unbanner
	denylist Sizer
	limiter  *rate.Limiter
	sem      *semaphore.Weighted
	log      *slog.Logger
	now      func() time.Time
}

// New creates a Bot with the given Telegram token, storage, and config.
// Call Attach before Run.
func New(token string, store storage.Storage, cfg *config.Config, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	log.Info("authorized on telegram", "username", api.Self.UserName)
	return newBot(api, store, cfg, log), nil
}

func newBot(api telegramAPI, store storage.Storage, cfg *config.Config, log *slog.Logger) *Bot {
	return &Bot{
		api:   api,
		store: store,
		cfg:   cfg,
		// Telegram allows about 30 messages per second across chats.
		limiter: rate.NewLimiter(rate.Limit(25), 5),
		sem:     semaphore.NewWeighted(maxConcurrentUpdates),
		log:     log,
		now:     time.Now,
	}
}

// Attach wires the moderation components the bot dispatches to.
func (b *Bot) Attach(events EventHandler, unbanner Unbanner, denylist Sizer) {
	b.events = events
	b.unbanner = unbanner
	b.denylist = denylist
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled
// and in-flight updates are handled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	u.AllowedUpdates = []string{"message", "chat_member"}

	updates := b.api.GetUpdatesChan(u)

	var wg sync.WaitGroup
	defer wg.Wait()

	// Started updates run to completion after shutdown begins.
	handleCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if err := b.sem.Acquire(ctx, 1); err != nil {
				b.api.StopReceivingUpdates()
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer b.sem.Release(1)
				b.handleUpdate(handleCtx, update)
			}()
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.ChatMember != nil:
		b.handleMember(ctx, update.ChatMember)
	case update.Message != nil:
		msg := update.Message
		if msg.From == nil || msg.Chat == nil {
			return
		}
		if msg.IsCommand() {
			b.handleCommand(ctx, msg)
			return
		}
		if !msg.Chat.IsGroup() && !msg.Chat.IsSuperGroup() {
			return
		}
		b.handleMessage(ctx, msg)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	ev := moderation.MessageEvent{
		ChatID:      msg.Chat.ID,
		AccountID:   msg.From.ID,
		MessageID:   int64(msg.MessageID),
		DisplayName: fullName(msg.From),
	}
	outcome, err := b.events.HandleMessage(ctx, ev)
	if err != nil {
		b.log.Error("handle message", "chat_id", ev.ChatID, "account_id", ev.AccountID, "error", err)
		return
	}
	b.log.Debug("message handled", "chat_id", ev.ChatID, "account_id", ev.AccountID, "outcome", outcome)
}

func (b *Bot) handleMember(ctx context.Context, upd *tgbotapi.ChatMemberUpdated) {
	user := upd.NewChatMember.User
	if user == nil {
		return
	}
	ev := moderation.MemberEvent{
		ChatID:      upd.Chat.ID,
		AccountID:   user.ID,
		DisplayName: fullName(user),
		NewStatus:   upd.NewChatMember.Status,
	}
	outcome, err := b.events.HandleMember(ctx, ev)
	if err != nil {
		b.log.Error("handle member", "chat_id", ev.ChatID, "account_id", ev.AccountID, "error", err)
		return
	}
	b.log.Debug("member update handled", "chat_id", ev.ChatID, "account_id", ev.AccountID, "outcome", outcome)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID, "account_id", msg.From.ID)

	switch cmd {
	case "start", "help":
		b.reply(ctx, chatID, helpText)
		return
	case "notify", "quickban", "silent", "unban", "unwhitelist", "status", "stats":
	default:
		return
	}

	if !b.isAdmin(chatID, msg.From.ID) {
		b.reply(ctx, chatID, textNotAdmin)
		return
	}

	switch cmd {
	case "notify":
		b.handleSetMode(ctx, chatID, model.ModeNotify)
	case "quickban":
		b.handleSetMode(ctx, chatID, model.ModeQuickban)
	case "silent":
		b.handleSilent(ctx, chatID, args)
	case "unban":
		b.handleUnban(ctx, chatID, args)
	case "unwhitelist":
		b.handleUnwhitelist(ctx, chatID, args)
	case "status":
		b.handleStatus(ctx, chatID)
	case "stats":
		b.handleStats(ctx, chatID)
	}
}

func (b *Bot) isAdmin(chatID, userID int64) bool {
	m, err := b.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: chatID, UserID: userID},
	})
	if err != nil {
		b.log.Warn("get chat member", "chat_id", chatID, "account_id", userID, "error", err)
		return false
	}
	return m.IsAdministrator() || m.IsCreator()
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if err := b.SendMessage(ctx, chatID, text); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func fullName(u *tgbotapi.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.UserName
	}
	if name == "" {
		name = fmt.Sprint(u.ID)
	}
	return name
}
