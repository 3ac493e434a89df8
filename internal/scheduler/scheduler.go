// Package scheduler triggers a refresh once a day at a configured wall-clock
// time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"novelrank/pkg/logger"
	"novelrank/pkg/models"
)

var ErrInvalidTimeOfDay = errors.New("invalid time of day, want HH:MM")

var timeOfDayRe = regexp.MustCompile(`^([01]?\d|2[0-3]):([0-5]\d)$`)

// ParseTimeOfDay parses "HH:MM" (24h).
func ParseTimeOfDay(s string) (hour, minute int, err error) {
	m := timeOfDayRe.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}
	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	return hour, minute, nil
}

// NextRun returns the first hour:minute in loc strictly after now.
func NextRun(now time.Time, hour, minute int, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !next.After(now) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hour, minute, 0, 0, loc)
	}
	return next
}

// Job is one full refresh.
type Job func(ctx context.Context) (models.RefreshSummary, error)

// Timer is the subset of *time.Timer the scheduler uses.
type Timer interface {
	Stop() bool
}

// AfterFunc matches time.AfterFunc.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Status is a point-in-time view of the scheduler.
type Status struct {
	Enabled bool                   `json:"enabled"`
	Time    string                 `json:"time"`
	Armed   bool                   `json:"armed"`
	NextRun *time.Time             `json:"next_run,omitempty"`
	Running bool                   `json:"running"`
	LastRun *models.RefreshSummary `json:"last_run,omitempty"`
	LastErr string                 `json:"last_error,omitempty"`
}

// Scheduler is idle until configured with an enabled time of day; then it
// holds exactly one pending timer. A firing runs the job to completion and
// only then arms the timer for the following day, so runs never overlap.
type Scheduler struct {
	job       Job
	loc       *time.Location
	now       func() time.Time
	afterFunc AfterFunc
	ctx       context.Context
	cancel    context.CancelFunc
	log       *zap.Logger

	mu        sync.Mutex
	enabled   bool
	timeOfDay string
	hour      int
	minute    int
	timer     Timer
	next      time.Time
	gen       uint64
	running   bool
	last      *models.RefreshSummary
	lastErr   error
	runDone   chan struct{}
}

type Option func(*Scheduler)

// WithClock replaces time.Now and time.AfterFunc, for tests.
func WithClock(now func() time.Time, after AfterFunc) Option {
	return func(s *Scheduler) {
		s.now = now
		s.afterFunc = after
	}
}

func New(job Job, loc *time.Location, log *zap.Logger, opts ...Option) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		job:       job,
		loc:       loc,
		now:       time.Now,
		afterFunc: realAfterFunc,
		ctx:       ctx,
		cancel:    cancel,
		log:       logger.OrNop(log).Named("scheduler"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Configure cancels any pending trigger and, when enabled, arms one for the
// next occurrence of timeOfDay. An invalid time is rejected and the previous
// schedule stays in place. An empty timeOfDay keeps the current time.
func (s *Scheduler) Configure(timeOfDay string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	hour, minute := s.hour, s.minute
	if timeOfDay == "" {
		timeOfDay = s.timeOfDay
	}
	if timeOfDay != "" {
		h, m, err := ParseTimeOfDay(timeOfDay)
		if err != nil {
			return err
		}
		hour, minute = h, m
	}
	if enabled && timeOfDay == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTimeOfDay)
	}

	s.disarm()
	s.enabled = enabled
	s.timeOfDay = timeOfDay
	s.hour, s.minute = hour, minute

	if enabled && !s.running {
		s.arm()
	}
	s.log.Info("schedule configured", zap.Bool("enabled", enabled), zap.String("time", timeOfDay))
	return nil
}

// disarm stops the pending timer. Callers hold mu.
func (s *Scheduler) disarm() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.next = time.Time{}
}

// arm schedules the next firing. Callers hold mu.
func (s *Scheduler) arm() {
	now := s.now()
	s.next = NextRun(now, s.hour, s.minute, s.loc)
	gen := s.gen
	s.timer = s.afterFunc(s.next.Sub(now), func() { s.fire(gen) })
	s.log.Info("next run armed", zap.Time("at", s.next))
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || !s.enabled || s.running || s.ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.next = time.Time{}
	s.running = true
	done := make(chan struct{})
	s.runDone = done
	s.mu.Unlock()

	defer close(done)
	s.log.Info("scheduled refresh starting")
	sum, err := s.job(s.ctx)
	if err != nil {
		s.log.Error("scheduled refresh failed", zap.Error(err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	// a job that never started a run leaves the previous summary standing
	if sum.RunID != "" {
		s.last = &sum
	}
	s.lastErr = err
	if s.enabled && s.ctx.Err() == nil {
		s.gen++
		s.arm()
	}
}

// Status reports the current schedule.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Enabled: s.enabled,
		Time:    s.timeOfDay,
		Armed:   s.timer != nil,
		Running: s.running,
		LastRun: s.last,
	}
	if !s.next.IsZero() {
		next := s.next
		st.NextRun = &next
	}
	if s.lastErr != nil {
		st.LastErr = s.lastErr.Error()
	}
	return st
}

// Stop disarms the scheduler, cancels a running job's context and waits for
// it to return or for ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.disarm()
	s.enabled = false
	done := s.runDone
	running := s.running
	s.mu.Unlock()
	s.cancel()

	if !running || done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
