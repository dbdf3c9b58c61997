package moderation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"casguard/internal/model"
)

type mapNames map[int64]string

func (m mapNames) DisplayName(_ context.Context, _, accountID int64) (string, error) {
	name, ok := m[accountID]
	if !ok {
		return "", errors.New("user not found")
	}
	return name, nil
}

func TestSweep(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	// 1: clean, 2: flagged, 3: flagged but whitelisted, 4: already acted,
	// 5: flagged but last seen outside the horizon, 6: flagged without a name
	for _, id := range []int64{1, 2, 3, 4, 6} {
		_ = e.store.TouchSeen(ctx, -100, id, t0.Add(-time.Hour))
	}
	_ = e.store.TouchSeen(ctx, -100, 5, t0.Add(-10*24*time.Hour))
	_ = e.store.AddWhitelist(ctx, -100, 3)
	_, _ = e.store.TryMarkActed(ctx, -100, 4, t0.Add(-2*time.Hour))
	_ = e.store.SetMode(ctx, -100, model.ModeNotify)

	cls := &fakeClassifier{verdicts: map[int64]model.Verdict{
		2: localFlag, 3: localFlag, 4: localFlag, 5: localFlag, 6: localFlag,
	}}
	r := NewRechecker(e.store, cls, e.exec, mapNames{2: "Mallory"}, testLogger())
	r.now = func() time.Time { return t0 }

	stats, err := r.Sweep(ctx, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if diff := cmp.Diff(SweepStats{Scanned: 5, Skipped: 2, Acted: 2}, stats); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}

	wantCalls := []call{
		{Method: "SendMessage", ChatID: -100, Text: NotifyText("Mallory", 2, "local blacklist")},
		{Method: "SendMessage", ChatID: -100, Text: NotifyText("6", 6, "local blacklist")},
	}
	if diff := cmp.Diff(wantCalls, e.platform.getCalls()); diff != "" {
		t.Errorf("platform calls mismatch (-want +got):\n%s", diff)
	}

	seen, _ := e.store.ListSeen(ctx, time.Time{})
	for _, s := range seen {
		if s.AccountID == 5 {
			t.Error("stale seen record was not pruned")
		}
	}

	// a second sweep finds nothing new to do
	stats, err = r.Sweep(ctx, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("second Sweep: %v", err)
	}
	if stats.Acted != 0 {
		t.Errorf("second sweep acted %d times, want 0", stats.Acted)
	}
}

func TestSweepIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	for _, id := range []int64{1, 2} {
		_ = e.store.TouchSeen(ctx, -100, id, t0)
	}
	r := NewRechecker(e.store, &fakeClassifier{err: errors.New("boom")}, e.exec, nil, testLogger())
	r.now = func() time.Time { return t0 }

	stats, err := r.Sweep(ctx, time.Hour)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if diff := cmp.Diff(SweepStats{Scanned: 2, Failed: 2}, stats); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
}

func TestSweepStopsOnCancel(t *testing.T) {
	e := newEnv(t)
	_ = e.store.TouchSeen(context.Background(), -100, 1, t0)
	r := NewRechecker(e.store, &fakeClassifier{}, e.exec, nil, testLogger())
	r.now = func() time.Time { return t0 }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Sweep(ctx, time.Hour); err == nil {
		t.Fatal("expected error on cancelled context")
	}
}

func TestSweepFinishesStartedPairAfterCancel(t *testing.T) {
	e := newEnv(t)
	bg := context.Background()
	_ = e.store.TouchSeen(bg, -100, 7, t0.Add(-time.Hour))
	_ = e.store.AddMessage(bg, -100, 7, 70, t0.Add(-time.Hour), 50)

	ctx, cancel := context.WithCancel(bg)
	defer cancel()
	e.platform.afterBan = cancel

	cls := &fakeClassifier{verdicts: map[int64]model.Verdict{7: localFlag}}
	r := NewRechecker(e.store, cls, e.exec, mapNames{7: "Spam"}, testLogger())
	r.now = func() time.Time { return t0 }

	if _, err := r.Sweep(ctx, 7*24*time.Hour); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	wantCalls := []call{
		{Method: "BanMember", ChatID: -100, AccountID: 7},
		{Method: "DeleteMessage", ChatID: -100, MessageID: 70},
		{Method: "SendMessage", ChatID: -100, Text: BannedText("Spam", 7, "local blacklist")},
	}
	if diff := cmp.Diff(wantCalls, e.platform.getCalls()); diff != "" {
		t.Errorf("platform calls mismatch (-want +got):\n%s", diff)
	}
	if ids, _ := e.store.ListMessages(bg, -100, 7); len(ids) != 0 {
		t.Errorf("message cache still holds %v", ids)
	}
}
