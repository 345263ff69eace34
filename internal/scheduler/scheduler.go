package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/atomic"

	"github.com/i474232898/forecast-display/internal/clock"
	"github.com/i474232898/forecast-display/internal/forecast"
)

// FetchRunner performs one fetch cycle.
type FetchRunner interface {
	RunCycle(ctx context.Context) forecast.Outcome
}

// Resyncer recomputes the local clock offset.
type Resyncer interface {
	Resync(ctx context.Context, now time.Time) (clock.State, error)
}

// Redrawer refreshes the display once.
type Redrawer interface {
	Redraw(ctx context.Context, now time.Time, tick uint64)
}

// Config holds the cadence intervals.
type Config struct {
	FetchInterval  time.Duration
	ResyncInterval time.Duration
	RedrawInterval time.Duration
	// PollInterval is how often the fetch worker checks its cadence.
	PollInterval time.Duration
}

// DefaultConfig matches the display's nominal timing.
func DefaultConfig() Config {
	return Config{
		FetchInterval:  300_000 * time.Millisecond,
		ResyncInterval: 86_400_000 * time.Millisecond,
		RedrawInterval: 250 * time.Millisecond,
		PollInterval:   time.Second,
	}
}

// Scheduler drives three cadences. Fetch runs on a gocron worker so a slow
// request never blocks the redraw loop; resync and redraw share the redraw
// loop. The two sides touch disjoint cadence state.
type Scheduler struct {
	cron   *gocron.Scheduler
	cfg    Config
	fetch  FetchRunner
	resync Resyncer
	redraw Redrawer
	logger *slog.Logger

	mono Monotonic
	wall func() time.Time

	fetchCadence  *Cadence
	resyncCadence *Cadence
	ticks         atomic.Uint64
	fetches       atomic.Uint64
	lastOutcome   atomic.Pointer[forecast.Outcome]
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithMonotonic replaces the elapsed-time source.
func WithMonotonic(m Monotonic) Option {
	return func(s *Scheduler) { s.mono = m }
}

// WithWallClock replaces the UTC-now provider handed to resync and redraw.
func WithWallClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.wall = now }
}

// New creates a new Scheduler.
func New(cfg Config, fetch FetchRunner, resync Resyncer, redraw Redrawer, logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	cron := gocron.NewScheduler(time.UTC)
	cron.SingletonModeAll()

	s := &Scheduler{
		cron:          cron,
		cfg:           cfg,
		fetch:         fetch,
		resync:        resync,
		redraw:        redraw,
		logger:        logger.With("component", "scheduler"),
		mono:          NewMonotonic(),
		wall:          func() time.Time { return time.Now().UTC() },
		fetchCadence:  NewCadence("fetch", cfg.FetchInterval),
		resyncCadence: NewCadence("resync", cfg.ResyncInterval),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start resyncs the clock and runs the first fetch cycle inline, then
// schedules the fetch worker.
func (s *Scheduler) Start(ctx context.Context) error {
	s.resyncTick(ctx)
	s.FetchTick(ctx)

	poll := s.cfg.PollInterval
	if poll <= 0 {
		poll = time.Second
	}

	_, err := s.cron.Every(poll).Do(s.FetchTick, ctx)
	if err != nil {
		return err
	}

	s.cron.StartAsync()
	s.logger.Info("scheduler started",
		"fetch_interval", s.cfg.FetchInterval,
		"resync_interval", s.cfg.ResyncInterval,
		"redraw_interval", s.cfg.RedrawInterval,
	)
	return nil
}

// Run drives the redraw loop until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	interval := s.cfg.RedrawInterval
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			s.RedrawTick(ctx)
		}
	}
}

// Stop stops the fetch worker. A cycle already in flight runs to completion.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

// FetchTick runs a fetch cycle if the fetch cadence is due. It is only ever
// called from the fetch worker (and once from Start before the worker runs).
func (s *Scheduler) FetchTick(ctx context.Context) {
	s.fetchCadence.TryRun(s.mono(), func() {
		out := s.fetch.RunCycle(ctx)
		s.fetches.Inc()
		s.lastOutcome.Store(&out)
		s.logger.Debug("fetch cycle finished", "cycle_id", out.CycleID, "outcome", out.Kind)
	})
}

// RedrawTick resyncs the clock if due and then redraws.
func (s *Scheduler) RedrawTick(ctx context.Context) {
	s.resyncTick(ctx)
	tick := s.ticks.Inc()
	s.redraw.Redraw(ctx, s.wall(), tick)
}

func (s *Scheduler) resyncTick(ctx context.Context) {
	s.resyncCadence.TryRun(s.mono(), func() {
		if _, err := s.resync.Resync(ctx, s.wall()); err != nil {
			s.logger.Warn("clock resync failed", "error", err)
		}
	})
}

// Ticks returns the number of redraws so far.
func (s *Scheduler) Ticks() uint64 {
	return s.ticks.Load()
}

// Fetches returns the number of fetch cycles run so far.
func (s *Scheduler) Fetches() uint64 {
	return s.fetches.Load()
}

// LastOutcome returns the most recent fetch outcome, if any.
func (s *Scheduler) LastOutcome() (forecast.Outcome, bool) {
	p := s.lastOutcome.Load()
	if p == nil {
		return forecast.Outcome{}, false
	}
	return *p, true
}
