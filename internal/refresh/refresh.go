// Package refresh runs one full multi-source scrape into the snapshot store.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"novelrank/internal/scraper"
	"novelrank/pkg/logger"
	"novelrank/pkg/models"
)

// ErrBusy is returned when a refresh is already in flight.
var ErrBusy = errors.New("refresh already running")

// Store is the part of the snapshot store a refresh needs.
type Store interface {
	Today() string
	Count(ctx context.Context, source, date string) (int, error)
	SaveSnapshot(ctx context.Context, source, date string, records []models.NovelRank) error
}

// Notifier receives every finished summary. Failures are logged only.
type Notifier interface {
	Notify(ctx context.Context, s models.RefreshSummary) error
}

type Options struct {
	Sources []string // empty means every adapter
	Force   bool     // scrape even when today's snapshot exists
	Trigger string   // "schedule", "api", "cli" ...
	Wait    bool     // queue behind an in-flight run instead of failing with ErrBusy
}

type Runner struct {
	Store     Store
	Adapters  []scraper.Adapter
	Notifiers []Notifier
	Now       func() time.Time

	log  *zap.Logger
	once sync.Once
	slot chan struct{}
}

func NewRunner(store Store, adapters []scraper.Adapter, log *zap.Logger, notifiers ...Notifier) *Runner {
	return &Runner{
		Store:     store,
		Adapters:  adapters,
		Notifiers: notifiers,
		Now:       time.Now,
		log:       logger.OrNop(log).Named("refresh"),
	}
}

// Run scrapes the requested sources one after another. Every source gets an
// outcome in the summary; storage failures are additionally joined into the
// returned error.
func (r *Runner) Run(ctx context.Context, opts Options) (models.RefreshSummary, error) {
	if err := r.acquire(ctx, opts.Wait); err != nil {
		return models.RefreshSummary{}, err
	}
	defer r.release()

	sum := models.RefreshSummary{
		RunID:     uuid.NewString(),
		Date:      r.Store.Today(),
		Trigger:   opts.Trigger,
		StartedAt: r.Now(),
		Results:   []models.SourceResult{},
	}
	log := r.log.With(zap.String("run_id", sum.RunID), zap.String("date", sum.Date))
	log.Info("refresh started", zap.Bool("force", opts.Force), zap.Strings("sources", opts.Sources))

	var errs []error
	for _, target := range r.targets(opts.Sources) {
		var (
			res models.SourceResult
			err error
		)
		if cerr := ctx.Err(); cerr != nil {
			res, err = skipped(target, cerr)
		} else {
			res, err = r.runOne(ctx, target, sum.Date, opts.Force, log)
		}
		sum.Results = append(sum.Results, res)
		sum.Total += res.Count
		if err != nil {
			errs = append(errs, err)
			sum.Errors = append(sum.Errors, res.Error)
		}
	}

	sum.Status = status(sum.Results)
	sum.FinishedAt = r.Now()
	log.Info("refresh finished",
		zap.String("status", sum.Status),
		zap.Int("total", sum.Total),
		zap.Duration("took", sum.FinishedAt.Sub(sum.StartedAt)))

	r.notify(ctx, sum, log)
	return sum, errors.Join(errs...)
}

// acquire takes the single run slot. With wait it blocks until the slot
// frees or ctx ends; otherwise a held slot is ErrBusy.
func (r *Runner) acquire(ctx context.Context, wait bool) error {
	r.once.Do(func() { r.slot = make(chan struct{}, 1) })
	if !wait {
		select {
		case r.slot <- struct{}{}:
			return nil
		default:
			return ErrBusy
		}
	}
	select {
	case r.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) release() { <-r.slot }

// skipped is the outcome of a source never started because ctx ended.
func skipped(t target, cause error) (models.SourceResult, error) {
	name := scraper.DisplayName(t.key)
	if t.adapter != nil {
		name = t.adapter.Name()
	}
	res := models.SourceResult{
		Source:  t.key,
		Name:    name,
		Outcome: models.OutcomeError,
		Error:   fmt.Sprintf("%s: skipped: %v", t.key, cause),
	}
	return res, fmt.Errorf("%s: skipped: %w", t.key, cause)
}

type target struct {
	key     string
	adapter scraper.Adapter
}

// targets resolves requested keys against the adapters, keeping adapter
// order. Unknown keys come back with a nil adapter.
func (r *Runner) targets(keys []string) []target {
	if len(keys) == 0 {
		out := make([]target, 0, len(r.Adapters))
		for _, a := range r.Adapters {
			out = append(out, target{key: a.Key(), adapter: a})
		}
		return out
	}

	want := map[string]bool{}
	for _, k := range keys {
		want[k] = true
	}
	var out []target
	for _, a := range r.Adapters {
		if want[a.Key()] {
			out = append(out, target{key: a.Key(), adapter: a})
			delete(want, a.Key())
		}
	}
	for _, k := range keys {
		if want[k] {
			out = append(out, target{key: k})
			delete(want, k)
		}
	}
	return out
}

func (r *Runner) runOne(ctx context.Context, t target, date string, force bool, log *zap.Logger) (models.SourceResult, error) {
	res := models.SourceResult{Source: t.key, Name: scraper.DisplayName(t.key)}
	if t.adapter == nil {
		res.Outcome = models.OutcomeError
		res.Error = fmt.Sprintf("%s: %v", t.key, scraper.ErrUnknownSource)
		return res, fmt.Errorf("%s: %w", t.key, scraper.ErrUnknownSource)
	}
	res.Name = t.adapter.Name()
	log = log.With(zap.String("source", t.key))

	if !force {
		n, err := r.Store.Count(ctx, t.key, date)
		if err != nil {
			res.Outcome = models.OutcomeError
			res.Error = err.Error()
			log.Error("check snapshot", zap.Error(err))
			return res, err
		}
		if n > 0 {
			res.Outcome = models.OutcomeCached
			res.Count = n
			log.Info("snapshot cached", zap.Int("records", n))
			return res, nil
		}
	}

	recs, err := t.adapter.ScrapeAll(ctx, scraper.Filter{})
	if err != nil {
		res.Outcome = models.OutcomeError
		res.Error = err.Error()
		log.Warn("scrape aborted", zap.Error(err))
		return res, err
	}
	if len(recs) == 0 {
		// keep whatever history exists for this key
		res.Outcome = models.OutcomeEmpty
		log.Warn("scrape returned no records")
		return res, nil
	}

	if err := r.Store.SaveSnapshot(ctx, t.key, date, recs); err != nil {
		res.Outcome = models.OutcomeError
		res.Error = err.Error()
		log.Error("save snapshot", zap.Error(err))
		return res, fmt.Errorf("%s: %w", t.key, err)
	}
	res.Outcome = models.OutcomeSuccess
	res.Count = len(recs)
	return res, nil
}

func status(results []models.SourceResult) string {
	failed := 0
	for _, r := range results {
		if r.Outcome == models.OutcomeError {
			failed++
		}
	}
	switch {
	case len(results) == 0 || failed == len(results):
		return models.StatusFailed
	case failed > 0:
		return models.StatusPartial
	}
	return models.StatusSuccess
}

func (r *Runner) notify(ctx context.Context, sum models.RefreshSummary, log *zap.Logger) {
	for _, n := range r.Notifiers {
		if err := n.Notify(ctx, sum); err != nil {
			log.Warn("notify failed", zap.Error(err))
		}
	}
}
