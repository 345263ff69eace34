package display

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/i474232898/forecast-display/internal/clock"
	"github.com/i474232898/forecast-display/internal/forecast"
	"github.com/i474232898/forecast-display/internal/store"
)

// countingHandler counts log records by message.
type countingHandler struct {
	mu     sync.Mutex
	counts map[string]int
}

func newCountingLogger() (*slog.Logger, *countingHandler) {
	h := &countingHandler{counts: map[string]int{}}
	return slog.New(h), h
}

func (h *countingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *countingHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	h.counts[r.Message]++
	h.mu.Unlock()
	return nil
}

func (h *countingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }

func (h *countingHandler) WithGroup(string) slog.Handler { return h }

func (h *countingHandler) count(msg string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.counts[msg]
}

type flakySink struct {
	fail      atomic.Bool
	delivered atomic.Uint64
}

func (s *flakySink) Render(_ context.Context, f Frame) error {
	if s.fail.Load() {
		return errors.New("panel offline")
	}
	s.delivered.Store(f.SeriesVersion)
	return nil
}

type blockingSink struct {
	release chan struct{}
}

func (s *blockingSink) Render(ctx context.Context, _ Frame) error {
	select {
	case <-s.release:
	case <-ctx.Done():
	}
	return nil
}

func runWorker(t *testing.T, s *AsyncSink) (context.CancelFunc, <-chan struct{}) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel, done
}

func TestRendererWarnsOncePerFailingStretch(t *testing.T) {
	logger, logs := newCountingLogger()
	pub := &fakePublisher{err: errors.New("not connected")}
	buf := store.NewSeriesBuffer()
	buf.Replace(forecast.Series{3, 4})
	clk := clock.NewModel(clock.DefaultRule(), nil, nil, quiet)
	r := NewRenderer(buf, clk, NewMQTTSink(pub, "t", quiet), nil, logger)

	for tick := uint64(1); tick <= 40; tick++ {
		r.Redraw(context.Background(), time.Now(), tick)
	}
	assert.Equal(t, 1, logs.count("display sink failed"))
	assert.Equal(t, 0, logs.count("display sink recovered"))

	pub.err = nil
	r.Redraw(context.Background(), time.Now(), 41)
	r.Redraw(context.Background(), time.Now(), 42)
	assert.Equal(t, 1, logs.count("display sink recovered"))
	assert.Len(t, pub.payloads, 1)
}

func TestAsyncSinkBacksOffFailingSink(t *testing.T) {
	logger, logs := newCountingLogger()
	pub := &fakePublisher{err: errors.New("not connected")}
	s := NewAsyncSink("mqtt", NewMQTTSink(pub, "t", quiet), logger, WithRetryAfter(time.Hour))
	cancel, done := runWorker(t, s)

	require.NoError(t, s.Render(context.Background(), Frame{Series: forecast.Series{1}, SeriesVersion: 1}))
	require.Eventually(t, func() bool { return s.Attempts() == 1 }, time.Second, 5*time.Millisecond)

	for v := uint64(2); v <= 40; v++ {
		require.NoError(t, s.Render(context.Background(), Frame{Series: forecast.Series{1}, SeriesVersion: v}))
	}
	cancel()
	<-done

	assert.Equal(t, uint64(1), s.Attempts())
	assert.Equal(t, 1, pub.attempts)
	assert.Equal(t, 1, logs.count("display sink failed"))
}

func TestAsyncSinkRetriesLatestFrameAndRecovers(t *testing.T) {
	logger, logs := newCountingLogger()
	inner := &flakySink{}
	inner.fail.Store(true)
	s := NewAsyncSink("chart", inner, logger, WithRetryAfter(10*time.Millisecond))
	runWorker(t, s)

	require.NoError(t, s.Render(context.Background(), Frame{SeriesVersion: 1}))
	require.Eventually(t, func() bool { return s.Attempts() >= 1 }, time.Second, time.Millisecond)
	require.NoError(t, s.Render(context.Background(), Frame{SeriesVersion: 2}))
	inner.fail.Store(false)

	require.Eventually(t, func() bool { return inner.delivered.Load() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, 1, logs.count("display sink failed"))
	require.Eventually(t, func() bool { return logs.count("display sink recovered") == 1 }, time.Second, time.Millisecond)
}

func TestAsyncSinkRenderDoesNotBlock(t *testing.T) {
	inner := &blockingSink{release: make(chan struct{})}
	defer close(inner.release)
	s := NewAsyncSink("slow", inner, quiet, WithDeliveryTimeout(time.Hour))

	// No worker yet: the queue must still accept every frame.
	for v := uint64(1); v <= 10; v++ {
		require.NoError(t, s.Render(context.Background(), Frame{SeriesVersion: v}))
	}

	runWorker(t, s)
	require.Eventually(t, func() bool { return s.Attempts() == 1 }, time.Second, time.Millisecond)

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for v := uint64(11); v <= 200; v++ {
			_ = s.Render(context.Background(), Frame{SeriesVersion: v})
		}
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Render blocked behind a slow sink")
	}
}

type alternatingFetcher struct {
	n int
}

func (f *alternatingFetcher) Name() string { return "alternating" }

// Fetch returns a series of n readings that all equal n, for n cycling 1..6.
func (f *alternatingFetcher) Fetch(context.Context) (string, error) {
	f.n = f.n%6 + 1
	vals := make([]string, f.n)
	for i := range vals {
		vals[i] = strconv.Itoa(f.n) + ".0"
	}
	return forecast.BlockStart + strings.Join(vals, " ") + forecast.BlockEnd, nil
}

func TestComposeNeverPairsSeriesWithStaleHeadline(t *testing.T) {
	buf := store.NewSeriesBuffer()
	svc := forecast.NewService(&alternatingFetcher{}, buf, nil, quiet)
	clk := clock.NewModel(clock.DefaultRule(), nil, nil, quiet)
	r := NewRenderer(buf, clk, nil, nil, quiet)

	done := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(done)
		for i := 0; i < 2000; i++ {
			if out := svc.RunCycle(context.Background()); out.Kind != forecast.OutcomeSuccess {
				t.Errorf("cycle %d: %s", i, out.Kind)
				return
			}
		}
	}()

	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				f := r.Compose(time.Now(), 1)
				if len(f.Series) == 0 {
					if f.Headline != HeadlinePlaceholder {
						t.Errorf("headline %q without a series", f.Headline)
						return
					}
					continue
				}
				if f.Capacity != len(f.Series) {
					t.Errorf("capacity %d does not match length %d", f.Capacity, len(f.Series))
					return
				}
				if want := f.Series[0].Headline(); f.Headline != want {
					t.Errorf("headline %q paired with series starting %q", f.Headline, want)
					return
				}
			}
		}()
	}

	wg.Wait()
}
