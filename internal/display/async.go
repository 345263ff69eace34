package display

import (
	"context"
	"log/slog"
	"time"

	"go.uber.org/atomic"
)

// AsyncSink moves a slow sink off the redraw loop. Render only queues the
// frame; a worker started with Run delivers it. The queue holds one frame
// and a newer frame replaces an undelivered one, so the worker always sees
// the latest state.
type AsyncSink struct {
	name       string
	inner      Sink
	queue      chan Frame
	timeout    time.Duration
	retryAfter time.Duration
	logger     *slog.Logger

	attempts atomic.Uint64
	failing  bool
}

// AsyncOption customises an AsyncSink.
type AsyncOption func(*AsyncSink)

// WithDeliveryTimeout bounds a single delivery to the inner sink.
func WithDeliveryTimeout(d time.Duration) AsyncOption {
	return func(s *AsyncSink) { s.timeout = d }
}

// WithRetryAfter sets how long the worker waits after a failed delivery
// before trying again.
func WithRetryAfter(d time.Duration) AsyncOption {
	return func(s *AsyncSink) { s.retryAfter = d }
}

func NewAsyncSink(name string, inner Sink, logger *slog.Logger, opts ...AsyncOption) *AsyncSink {
	if logger == nil {
		logger = slog.Default()
	}
	s := &AsyncSink{
		name:       name,
		inner:      inner,
		queue:      make(chan Frame, 1),
		timeout:    time.Second,
		retryAfter: 5 * time.Second,
		logger:     logger.With("sink", name),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Render never blocks. Delivery errors are reported by the worker.
func (s *AsyncSink) Render(_ context.Context, f Frame) error {
	for {
		select {
		case s.queue <- f:
			return nil
		default:
		}
		select {
		case <-s.queue:
		default:
		}
	}
}

// Attempts is the number of deliveries tried so far.
func (s *AsyncSink) Attempts() uint64 {
	return s.attempts.Load()
}

// Run delivers queued frames until ctx is cancelled. After a failure the
// newest frame is held and retried once retryAfter has passed.
func (s *AsyncSink) Run(ctx context.Context) {
	s.logger.Debug("sink worker started")
	defer s.logger.Debug("sink worker stopped")

	var (
		pending   Frame
		have      bool
		delivered uint64
		retry     <-chan time.Time
	)

	for {
		select {
		case <-ctx.Done():
			return
		case f := <-s.queue:
			pending, have = f, true
		case <-retry:
			retry = nil
		}

		if !have || retry != nil {
			continue
		}
		if !s.failing && delivered != 0 && pending.SeriesVersion == delivered {
			have = false
			continue
		}

		if err := s.deliver(ctx, pending); err != nil {
			retry = time.After(s.retryAfter)
			continue
		}
		delivered = pending.SeriesVersion
		have = false
	}
}

func (s *AsyncSink) deliver(ctx context.Context, f Frame) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	s.attempts.Inc()
	err := s.inner.Render(ctx, f)
	switch {
	case err != nil && !s.failing:
		s.logger.Warn("display sink failed", "version", f.SeriesVersion, "error", err)
	case err == nil && s.failing:
		s.logger.Info("display sink recovered", "version", f.SeriesVersion)
	}
	s.failing = err != nil
	return err
}
