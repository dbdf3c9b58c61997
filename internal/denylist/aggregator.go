package denylist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"casguard/internal/model"
)

// ErrFeedFetch is returned when one of the feeds could not be downloaded.
var ErrFeedFetch = errors.New("feed fetch failed")

// Source names recorded after a refresh.
const (
	SourceExport = "export"
	SourceLols   = "lols"
	SourceTotal  = "total"
)

// Downloader fetches a feed body.
type Downloader interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// SourceRecorder persists refresh metadata.
type SourceRecorder interface {
	UpsertSourceUpdate(ctx context.Context, u model.SourceUpdate) error
}

// Result summarises a successful refresh.
type Result struct {
	Total int
	FeedA int
	FeedB int
}

// Aggregator downloads both feeds and swaps their union into a Store.
type Aggregator struct {
	store     *Store
	fetcher   Downloader
	recorder  SourceRecorder
	exportURL string
	lolsURL   string
	log       *slog.Logger
	now       func() time.Time
}

// NewAggregator creates an Aggregator. recorder may be nil.
func NewAggregator(store *Store, fetcher Downloader, recorder SourceRecorder, exportURL, lolsURL string, log *slog.Logger) *Aggregator {
	return &Aggregator{
		store:     store,
		fetcher:   fetcher,
		recorder:  recorder,
		exportURL: exportURL,
		lolsURL:   lolsURL,
		log:       log,
		now:       time.Now,
	}
}

// Refresh downloads both feeds concurrently. If either download fails the
// store is left untouched and the error wraps ErrFeedFetch.
func (a *Aggregator) Refresh(ctx context.Context) (Result, error) {
	var exportBody, lolsBody string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		body, err := a.fetcher.Fetch(gctx, a.exportURL)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrFeedFetch, SourceExport, err)
		}
		exportBody = body
		return nil
	})
	g.Go(func() error {
		body, err := a.fetcher.Fetch(gctx, a.lolsURL)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrFeedFetch, SourceLols, err)
		}
		lolsBody = body
		return nil
	})
	if err := g.Wait(); err != nil {
		refreshCount.WithLabelValues("error").Inc()
		return Result{}, err
	}

	feedA := ParseExport(exportBody)
	feedB := ParseList(lolsBody)

	union := make(map[int64]struct{}, len(feedA)+len(feedB))
	for id := range feedA {
		union[id] = struct{}{}
	}
	for id := range feedB {
		union[id] = struct{}{}
	}
	a.store.Replace(union)
	refreshCount.WithLabelValues("ok").Inc()

	res := Result{Total: len(union), FeedA: len(feedA), FeedB: len(feedB)}
	a.log.Info("denylist refreshed",
		"total", res.Total,
		"export", res.FeedA,
		"lols", res.FeedB,
	)
	a.record(ctx, res)
	return res, nil
}

func (a *Aggregator) record(ctx context.Context, res Result) {
	if a.recorder == nil {
		return
	}
	at := a.now()
	for _, u := range []model.SourceUpdate{
		{Name: SourceExport, Count: res.FeedA, At: at},
		{Name: SourceLols, Count: res.FeedB, At: at},
		{Name: SourceTotal, Count: res.Total, At: at},
	} {
		if err := a.recorder.UpsertSourceUpdate(ctx, u); err != nil {
			a.log.Warn("failed to record source update", "source", u.Name, "error", err)
		}
	}
}
