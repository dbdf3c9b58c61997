package classifier

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"casguard/internal/model"
	"casguard/internal/reputation"
	"casguard/internal/storage"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type setDenylist map[int64]bool

func (d setDenylist) Contains(id int64) bool { return d[id] }

type mockChecker struct {
	mu     sync.Mutex
	banned map[int64]bool
	err    error
	calls  int
	onCall func()
}

func (m *mockChecker) Check(_ context.Context, accountID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.onCall != nil {
		m.onCall()
	}
	if m.err != nil {
		return false, m.err
	}
	return m.banned[accountID], nil
}

func (m *mockChecker) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type fixture struct {
	store   *storage.SQLite
	deny    setDenylist
	checker *mockChecker
	cache   *reputation.MemCache
	c       *Classifier
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	f := &fixture{
		store:   s,
		deny:    setDenylist{},
		checker: &mockChecker{banned: map[int64]bool{}},
		cache:   reputation.NewMemCache(100, 24*time.Hour),
		now:     t0,
	}
	f.c = New(s, f.deny, f.cache, f.checker, time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))
	f.c.now = func() time.Time { return f.now }
	return f
}

var (
	localVerdict  = model.Verdict{Flagged: true, Reason: ReasonLocal, Provenance: model.ProvenanceLocal}
	remoteFlagged = model.Verdict{Flagged: true, Reason: ReasonRemote, Provenance: model.ProvenanceRemote}
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(f *fixture)
		want      model.Verdict
		wantCalls int
	}{
		{
			name:      "unknown account is clean",
			setup:     func(f *fixture) {},
			want:      model.Clean,
			wantCalls: 1,
		},
		{
			name:      "denylisted account is flagged locally",
			setup:     func(f *fixture) { f.deny[42] = true },
			want:      localVerdict,
			wantCalls: 0,
		},
		{
			name: "denylist wins over an unavailable service",
			setup: func(f *fixture) {
				f.deny[42] = true
				f.checker.err = reputation.ErrUnavailable
			},
			want:      localVerdict,
			wantCalls: 0,
		},
		{
			name:      "remote ban is flagged",
			setup:     func(f *fixture) { f.checker.banned[42] = true },
			want:      remoteFlagged,
			wantCalls: 1,
		},
		{
			name: "fresh cached ban skips the service",
			setup: func(f *fixture) {
				_ = f.cache.StoreReputation(context.Background(), 1, 42, true, t0.Add(-30*time.Minute))
			},
			want:      remoteFlagged,
			wantCalls: 0,
		},
		{
			name: "fresh cached clean skips the service",
			setup: func(f *fixture) {
				f.checker.banned[42] = true
				_ = f.cache.StoreReputation(context.Background(), 1, 42, false, t0.Add(-30*time.Minute))
			},
			want:      model.Clean,
			wantCalls: 0,
		},
		{
			name: "stale cache entry is rechecked",
			setup: func(f *fixture) {
				f.checker.banned[42] = true
				_ = f.cache.StoreReputation(context.Background(), 1, 42, false, t0.Add(-2*time.Hour))
			},
			want:      remoteFlagged,
			wantCalls: 1,
		},
		{
			name:      "open circuit is clean",
			setup:     func(f *fixture) { f.checker.err = reputation.ErrCircuitOpen },
			want:      model.Clean,
			wantCalls: 1,
		},
		{
			name: "whitelist beats denylist",
			setup: func(f *fixture) {
				f.deny[42] = true
				f.checker.banned[42] = true
				_ = f.store.AddWhitelist(context.Background(), 1, 42)
			},
			want:      model.Clean,
			wantCalls: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(f)

			got, err := f.c.Classify(context.Background(), 1, 42)
			if err != nil {
				t.Fatalf("Classify: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("verdict mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantCalls, f.checker.callCount()); diff != "" {
				t.Errorf("checker calls mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestClassifyCachesBothAnswers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.checker.banned[7] = true

	for _, id := range []int64{7, 8} {
		if _, err := f.c.Classify(ctx, 1, id); err != nil {
			t.Fatalf("Classify(%d): %v", id, err)
		}
	}
	f.now = t0.Add(59 * time.Minute)
	v7, _ := f.c.Classify(ctx, 1, 7)
	v8, _ := f.c.Classify(ctx, 1, 8)

	if diff := cmp.Diff(2, f.checker.callCount()); diff != "" {
		t.Errorf("checker calls mismatch (-want +got):\n%s", diff)
	}
	if !v7.Flagged || v8.Flagged {
		t.Errorf("cached verdicts = %+v, %+v, want flagged then clean", v7, v8)
	}

	entry, ok, _ := f.cache.LookupReputation(ctx, 1, 8)
	if !ok || entry.Banned || !entry.CheckedAt.Equal(t0) {
		t.Errorf("cache entry = %+v (found %v), want clean at %v", entry, ok, t0)
	}
}

func TestClassifyUnavailableWritesErrorLog(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.checker.err = errors.Join(reputation.ErrUnavailable, errors.New("timeout"))

	got, err := f.c.Classify(ctx, 1, 42)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if diff := cmp.Diff(model.Clean, got); diff != "" {
		t.Errorf("verdict mismatch (-want +got):\n%s", diff)
	}

	logs, err := f.store.ListErrorLog(ctx, 10)
	if err != nil {
		t.Fatalf("ListErrorLog: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("error log has %d rows, want 1", len(logs))
	}
	if logs[0].Source != "cas" || logs[0].ChatID != 1 || logs[0].AccountID != 42 {
		t.Errorf("error log row = %+v", logs[0])
	}
	if _, ok, _ := f.cache.LookupReputation(ctx, 1, 42); ok {
		t.Error("failed check was cached")
	}
}

func TestClassifyOpenCircuitWritesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.checker.err = reputation.ErrCircuitOpen

	if _, err := f.c.Classify(ctx, 1, 42); err != nil {
		t.Fatalf("Classify: %v", err)
	}
	logs, _ := f.store.ListErrorLog(ctx, 10)
	if len(logs) != 0 {
		t.Errorf("error log has %d rows, want 0", len(logs))
	}
}

func TestClassifyCallerCancelWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.checker.onCall = cancel
	f.checker.err = context.Canceled

	got, err := f.c.Classify(ctx, 1, 42)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if diff := cmp.Diff(model.Clean, got); diff != "" {
		t.Errorf("verdict mismatch (-want +got):\n%s", diff)
	}
	logs, _ := f.store.ListErrorLog(context.Background(), 10)
	if len(logs) != 0 {
		t.Errorf("error log has %d rows, want 0", len(logs))
	}
}
