package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/go-cmp/cmp"
	"golang.org/x/time/rate"

	"casguard/internal/config"
	"casguard/internal/model"
	"casguard/internal/moderation"
	"casguard/internal/storage"
)

// --- mocks ---

type sentMsg struct {
	ChatID int64
	Text   string
}

type mockAPI struct {
	mu       sync.Mutex
	sent     []sentMsg
	requests []tgbotapi.Chattable
	admins   map[int64]bool
	names    map[int64]string
	updates  chan tgbotapi.Update
	reqErr   error
}

func newMockAPI() *mockAPI {
	return &mockAPI{
		admins:  map[int64]bool{},
		names:   map[int64]string{},
		updates: make(chan tgbotapi.Update),
	}
}

func (m *mockAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		m.mu.Lock()
		m.sent = append(m.sent, sentMsg{ChatID: msg.ChatID, Text: msg.Text})
		m.mu.Unlock()
	}
	return tgbotapi.Message{}, nil
}

func (m *mockAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, c)
	if m.reqErr != nil {
		return nil, m.reqErr
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (m *mockAPI) GetChatMember(cfg tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := cfg.ChatConfigWithUser.UserID
	status := "member"
	if m.admins[id] {
		status = "administrator"
	}
	name, ok := m.names[id]
	if !ok {
		name = "User"
	}
	return tgbotapi.ChatMember{User: &tgbotapi.User{ID: id, FirstName: name}, Status: status}, nil
}

func (m *mockAPI) GetUpdatesChan(_ tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return m.updates
}

func (m *mockAPI) StopReceivingUpdates() {}

func (m *mockAPI) lastText() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return ""
	}
	return m.sent[len(m.sent)-1].Text
}

func (m *mockAPI) getRequests() []tgbotapi.Chattable {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]tgbotapi.Chattable(nil), m.requests...)
}

type recordingHandler struct {
	mu       sync.Mutex
	messages []moderation.MessageEvent
	members  []moderation.MemberEvent
}

func (h *recordingHandler) HandleMessage(_ context.Context, ev moderation.MessageEvent) (moderation.Outcome, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, ev)
	return moderation.OutcomeClean, nil
}

func (h *recordingHandler) HandleMember(_ context.Context, ev moderation.MemberEvent) (moderation.Outcome, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.members = append(h.members, ev)
	return moderation.OutcomeClean, nil
}

// cancelingHandler stops the bot while a message is being handled and
// records whether the handler's own context was cancelled with it.
type cancelingHandler struct {
	recordingHandler
	stop    context.CancelFunc
	ctxErrs chan error
}

func (h *cancelingHandler) HandleMessage(ctx context.Context, ev moderation.MessageEvent) (moderation.Outcome, error) {
	h.stop()
	time.Sleep(20 * time.Millisecond)
	h.ctxErrs <- ctx.Err()
	return h.recordingHandler.HandleMessage(ctx, ev)
}

type fixedSize int

func (s fixedSize) Size() int { return int(s) }

// --- helpers ---

const (
	testChat  int64 = -1001
	testAdmin int64 = 10
	testUser  int64 = 20
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestBot(t *testing.T) (*Bot, *mockAPI, *storage.SQLite) {
	t.Helper()
	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	api := newMockAPI()
	api.admins[testAdmin] = true

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{
		RecheckInterval:      15 * time.Minute,
		UpdateExportInterval: 30 * time.Minute,
		UpdateLolsInterval:   30 * time.Minute,
		SeenTTL:              7 * 24 * time.Hour,
	}
	b := newBot(api, store, cfg, log)
	b.limiter = rate.NewLimiter(rate.Inf, 1)
	b.now = func() time.Time { return t0 }

	exec := moderation.NewExecutor(store, b, nil, log)
	b.Attach(&recordingHandler{}, exec, fixedSize(3))
	return b, api, store
}

func command(chatID, from int64, text string) *tgbotapi.Message {
	cmd := strings.Fields(text)[0]
	return &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: from, FirstName: "Admin"},
		Chat:      &tgbotapi.Chat{ID: chatID, Type: "supergroup"},
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}
}

func requireContains(t *testing.T, got, want string) {
	t.Helper()
	if !strings.Contains(got, want) {
		t.Errorf("reply missing %q, got:\n%s", want, got)
	}
}

// --- command tests ---

func TestHelp(t *testing.T) {
	b, api, _ := newTestBot(t)
	b.handleCommand(context.Background(), command(testChat, testUser, "/help"))
	requireContains(t, api.lastText(), "/quickban")
	requireContains(t, api.lastText(), "/unban")
}

func TestCommandsRequireAdmin(t *testing.T) {
	for _, text := range []string{"/notify", "/quickban", "/silent on", "/unban 5", "/unwhitelist 5", "/status", "/stats"} {
		t.Run(text, func(t *testing.T) {
			ctx := context.Background()
			b, api, store := newTestBot(t)
			b.handleCommand(ctx, command(testChat, testUser, text))
			requireContains(t, api.lastText(), "only for chat administrators")

			policy, _ := store.GetPolicy(ctx, testChat)
			if diff := cmp.Diff(model.ChatPolicy{ChatID: testChat, Mode: model.ModeQuickban}, policy); diff != "" {
				t.Errorf("policy changed by non-admin (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSetMode(t *testing.T) {
	ctx := context.Background()
	b, api, store := newTestBot(t)

	b.handleCommand(ctx, command(testChat, testAdmin, "/notify"))
	requireContains(t, api.lastText(), "Mode set to: <b>notify</b>")
	policy, _ := store.GetPolicy(ctx, testChat)
	if policy.Mode != model.ModeNotify {
		t.Errorf("mode = %s, want notify", policy.Mode)
	}

	b.handleCommand(ctx, command(testChat, testAdmin, "/quickban"))
	requireContains(t, api.lastText(), "Mode set to: <b>quickban</b>")
	policy, _ = store.GetPolicy(ctx, testChat)
	if policy.Mode != model.ModeQuickban {
		t.Errorf("mode = %s, want quickban", policy.Mode)
	}
}

func TestSilent(t *testing.T) {
	ctx := context.Background()
	b, api, store := newTestBot(t)

	b.handleCommand(ctx, command(testChat, testAdmin, "/silent on"))
	requireContains(t, api.lastText(), "Silent mode: <b>on</b>")
	policy, _ := store.GetPolicy(ctx, testChat)
	if !policy.Silent {
		t.Error("silent not stored")
	}

	b.handleCommand(ctx, command(testChat, testAdmin, "/silent"))
	requireContains(t, api.lastText(), "Silent mode: <b>on</b>")

	b.handleCommand(ctx, command(testChat, testAdmin, "/silent sometimes"))
	requireContains(t, api.lastText(), "Usage: /silent")

	b.handleCommand(ctx, command(testChat, testAdmin, "/silent off"))
	policy, _ = store.GetPolicy(ctx, testChat)
	if policy.Silent {
		t.Error("silent still on")
	}
}

func TestUnban(t *testing.T) {
	ctx := context.Background()
	b, api, store := newTestBot(t)

	b.handleCommand(ctx, command(testChat, testAdmin, "/unban"))
	requireContains(t, api.lastText(), "Usage: /unban &lt;userid&gt;")

	b.handleCommand(ctx, command(testChat, testAdmin, "/unban 777"))
	requireContains(t, api.lastText(), "<code>777</code> added to whitelist")

	ok, _ := store.IsWhitelisted(ctx, testChat, 777)
	if !ok {
		t.Error("account not whitelisted")
	}
	reqs := api.getRequests()
	if len(reqs) != 1 {
		t.Fatalf("got %d requests, want 1", len(reqs))
	}
	want := tgbotapi.UnbanChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: testChat, UserID: 777},
		OnlyIfBanned:     true,
	}
	if diff := cmp.Diff(want, reqs[0]); diff != "" {
		t.Errorf("unban request mismatch (-want +got):\n%s", diff)
	}
}

func TestUnbanPlatformFailureStillWhitelists(t *testing.T) {
	ctx := context.Background()
	b, api, store := newTestBot(t)
	api.reqErr = errors.New("Bad Request: not enough rights")

	b.handleCommand(ctx, command(testChat, testAdmin, "/unban 777"))
	requireContains(t, api.lastText(), "added to whitelist")
	ok, _ := store.IsWhitelisted(ctx, testChat, 777)
	if !ok {
		t.Error("account not whitelisted")
	}
}

func TestUnwhitelist(t *testing.T) {
	ctx := context.Background()
	b, api, store := newTestBot(t)
	_ = store.AddWhitelist(ctx, testChat, 777)

	b.handleCommand(ctx, command(testChat, testAdmin, "/unwhitelist x"))
	requireContains(t, api.lastText(), "Usage: /unwhitelist &lt;userid&gt;")

	b.handleCommand(ctx, command(testChat, testAdmin, "/unwhitelist 777"))
	requireContains(t, api.lastText(), "<code>777</code> removed from whitelist")
	ok, _ := store.IsWhitelisted(ctx, testChat, 777)
	if ok {
		t.Error("account still whitelisted")
	}
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	b, api, store := newTestBot(t)
	_ = store.UpsertSourceUpdate(ctx, model.SourceUpdate{Name: "total", Count: 3, At: t0.Add(-2 * time.Hour)})
	_ = store.AddErrorLog(ctx, model.ErrorLogEntry{Source: "cas", Message: "timeout", At: t0.Add(-time.Minute)})

	b.handleCommand(ctx, command(testChat, testAdmin, "/status"))
	got := api.lastText()
	requireContains(t, got, "Mode: <b>quickban</b>")
	requireContains(t, got, "Local blacklist size: <b>3</b>")
	requireContains(t, got, "Recheck interval: <b>15m</b>")
	requireContains(t, got, "total: 3 ids, updated 2h ago")
	requireContains(t, got, "Last error (cas, 1m ago): timeout")
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	b, api, store := newTestBot(t)
	entries := []model.ActionLogEntry{
		{ChatID: testChat, AccountID: 1, Action: model.ActionQuickban, Mode: model.ModeQuickban, Source: model.ProvenanceLocal, At: t0.Add(-time.Hour)},
		{ChatID: testChat, AccountID: 2, Action: model.ActionNotify, Mode: model.ModeNotify, Source: model.ProvenanceRemote, At: t0.Add(-3 * 24 * time.Hour)},
		{ChatID: testChat, AccountID: 3, Action: model.ActionQuickban, Mode: model.ModeQuickban, Source: model.ProvenanceLocal, At: t0.Add(-20 * 24 * time.Hour)},
	}
	for _, e := range entries {
		if err := store.AddActionLog(ctx, e); err != nil {
			t.Fatalf("AddActionLog: %v", err)
		}
	}

	b.handleCommand(ctx, command(testChat, testAdmin, "/stats"))
	got := api.lastText()
	requireContains(t, got, "Last 24h: <b>total=1, notify=0, quickban=1, local=1, cas=0, unique_users=1</b>")
	requireContains(t, got, "Last 7d: <b>total=2, notify=1, quickban=1, local=1, cas=1, unique_users=2</b>")
	requireContains(t, got, "Last 30d: <b>total=3, notify=1, quickban=2, local=2, cas=1, unique_users=3</b>")
	requireContains(t, got, "quickban <code>1</code> (local)")
}

func TestUnknownCommandIsIgnored(t *testing.T) {
	b, api, _ := newTestBot(t)
	b.handleCommand(context.Background(), command(testChat, testAdmin, "/add https://example.com"))
	if got := api.lastText(); got != "" {
		t.Errorf("unexpected reply %q", got)
	}
}

// --- update routing ---

func TestRunRoutesUpdates(t *testing.T) {
	b, api, _ := newTestBot(t)
	h := &recordingHandler{}
	b.events = h

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()

	api.updates <- tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 55,
		From:      &tgbotapi.User{ID: testUser, FirstName: "Ann", LastName: "Lee"},
		Chat:      &tgbotapi.Chat{ID: testChat, Type: "supergroup"},
		Text:      "buy crypto",
	}}
	api.updates <- tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 56,
		From:      &tgbotapi.User{ID: testUser, FirstName: "Ann"},
		Chat:      &tgbotapi.Chat{ID: testUser, Type: "private"},
		Text:      "hi bot",
	}}
	api.updates <- tgbotapi.Update{ChatMember: &tgbotapi.ChatMemberUpdated{
		Chat:          tgbotapi.Chat{ID: testChat, Type: "supergroup"},
		NewChatMember: tgbotapi.ChatMember{User: &tgbotapi.User{ID: 30, UserName: "newbie"}, Status: "member"},
	}}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	wantMessages := []moderation.MessageEvent{{ChatID: testChat, AccountID: testUser, MessageID: 55, DisplayName: "Ann Lee"}}
	if diff := cmp.Diff(wantMessages, h.messages); diff != "" {
		t.Errorf("message events mismatch (-want +got):\n%s", diff)
	}
	wantMembers := []moderation.MemberEvent{{ChatID: testChat, AccountID: 30, DisplayName: "newbie", NewStatus: "member"}}
	if diff := cmp.Diff(wantMembers, h.members); diff != "" {
		t.Errorf("member events mismatch (-want +got):\n%s", diff)
	}
}

// --- platform ---

func TestPlatformCalls(t *testing.T) {
	ctx := context.Background()
	b, api, _ := newTestBot(t)

	if err := b.BanMember(ctx, testChat, 5); err != nil {
		t.Fatalf("BanMember: %v", err)
	}
	if err := b.DeleteMessage(ctx, testChat, 99); err != nil {
		t.Fatalf("DeleteMessage: %v", err)
	}
	want := []tgbotapi.Chattable{
		tgbotapi.BanChatMemberConfig{ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: testChat, UserID: 5}},
		tgbotapi.NewDeleteMessage(testChat, 99),
	}
	if diff := cmp.Diff(want, api.getRequests()); diff != "" {
		t.Errorf("requests mismatch (-want +got):\n%s", diff)
	}

	api.reqErr = errors.New("Bad Request: message can't be deleted")
	if err := b.DeleteMessage(ctx, testChat, 100); err == nil {
		t.Error("expected error from DeleteMessage")
	}
}

func TestDisplayName(t *testing.T) {
	b, api, _ := newTestBot(t)
	api.names[5] = "Mallory"

	got, err := b.DisplayName(context.Background(), testChat, 5)
	if err != nil {
		t.Fatalf("DisplayName: %v", err)
	}
	if diff := cmp.Diff("Mallory", got); diff != "" {
		t.Errorf("name mismatch (-want +got):\n%s", diff)
	}
}

func TestQuickbanThroughBot(t *testing.T) {
	ctx := context.Background()
	b, api, store := newTestBot(t)
	exec := moderation.NewExecutor(store, b, nil, b.log)

	v := model.Verdict{Flagged: true, Reason: "local blacklist", Provenance: model.ProvenanceLocal}
	target := moderation.Target{ChatID: testChat, AccountID: 5, DisplayName: "Spammer"}
	out, err := exec.Apply(ctx, target, model.ChatPolicy{ChatID: testChat, Mode: model.ModeQuickban}, v)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out != moderation.OutcomeBanned {
		t.Errorf("outcome = %s, want banned", out)
	}
	requireContains(t, api.lastText(), "Removed <b>Spammer</b>")
}

func TestRunFinishesStartedUpdateOnShutdown(t *testing.T) {
	b, api, _ := newTestBot(t)
	ctx, cancel := context.WithCancel(context.Background())
	h := &cancelingHandler{stop: cancel, ctxErrs: make(chan error, 1)}
	b.events = h

	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()

	api.updates <- tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 55,
		From:      &tgbotapi.User{ID: testUser, FirstName: "Ann"},
		Chat:      &tgbotapi.Chat{ID: testChat, Type: "supergroup"},
		Text:      "buy crypto",
	}}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	if err := <-h.ctxErrs; err != nil {
		t.Errorf("handler context err = %v, want nil", err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.messages) != 1 {
		t.Errorf("handled %d messages, want 1", len(h.messages))
	}
}
