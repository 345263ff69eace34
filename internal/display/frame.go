package display

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/i474232898/forecast-display/internal/clock"
	"github.com/i474232898/forecast-display/internal/diag"
	"github.com/i474232898/forecast-display/internal/forecast"
	"github.com/i474232898/forecast-display/internal/store"
)

// Placeholders shown before data is available.
const (
	TimePlaceholder     = "--:--.--"
	DatePlaceholder     = "--.--.----"
	HeadlinePlaceholder = "--.-°C"
)

// Frame is everything a display needs for one redraw.
type Frame struct {
	Tick          uint64          `json:"tick"`
	Time          string          `json:"time"`
	Date          string          `json:"date"`
	TimeAvailable bool            `json:"timeAvailable"`
	Headline      string          `json:"headline"`
	Series        forecast.Series `json:"series"`
	Capacity      int             `json:"capacity"`
	SeriesVersion uint64          `json:"seriesVersion"`
	RenderedAt    time.Time       `json:"renderedAt"`
}

// Sink consumes frames. Sinks must accept an empty series and an
// unavailable time.
type Sink interface {
	Render(ctx context.Context, f Frame) error
}

// FanOut renders each frame to every sink, joining their errors.
type FanOut []Sink

func (fo FanOut) Render(ctx context.Context, f Frame) error {
	var errs []error
	for _, s := range fo {
		if err := s.Render(ctx, f); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Formatter is the clock side of a frame.
type Formatter interface {
	Format(now time.Time) (clock.View, error)
}

// Renderer composes frames from the series buffer and the clock, then hands
// them to a sink.
type Renderer struct {
	series *store.SeriesBuffer
	clock  Formatter
	sink   Sink
	diag   diag.Recorder
	logger *slog.Logger

	timeWasUnavailable bool
	sinkFailing        bool
}

// NewRenderer creates a Renderer.
func NewRenderer(series *store.SeriesBuffer, clk Formatter, sink Sink, rec diag.Recorder, logger *slog.Logger) *Renderer {
	if rec == nil {
		rec = diag.Discard{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{
		series: series,
		clock:  clk,
		sink:   sink,
		diag:   rec,
		logger: logger.With("component", "display"),
	}
}

// Compose builds the frame for now without rendering it.
func (r *Renderer) Compose(now time.Time, tick uint64) Frame {
	snap := r.series.Snapshot()
	f := Frame{
		Tick:          tick,
		Time:          TimePlaceholder,
		Date:          DatePlaceholder,
		Headline:      HeadlinePlaceholder,
		Series:        snap.Readings,
		Capacity:      snap.Capacity,
		SeriesVersion: snap.Version,
		RenderedAt:    now,
	}

	if v, err := r.clock.Format(now); err == nil {
		f.Time = v.TimeText
		f.Date = v.DateText
		f.TimeAvailable = true
	}

	if snap.HasLatest() {
		f.Headline = snap.Latest.Headline()
	}
	return f
}

// Redraw composes and renders one frame. Sink errors are never returned so a
// failing sink cannot stop the redraw loop; they are logged once when the
// sink starts failing and once when it recovers.
func (r *Renderer) Redraw(ctx context.Context, now time.Time, tick uint64) {
	f := r.Compose(now, tick)

	if !f.TimeAvailable && !r.timeWasUnavailable {
		r.logger.Warn("local time unavailable", "error", clock.ErrTimeUnset)
		r.diag.Append(diag.Event{
			Kind:    diag.KindTimeUnavailable,
			Message: clock.ErrTimeUnset.Error(),
			Fields:  map[string]any{"tick": tick},
		})
	}
	r.timeWasUnavailable = !f.TimeAvailable

	if r.sink == nil {
		return
	}
	err := r.sink.Render(ctx, f)
	switch {
	case err != nil && !r.sinkFailing:
		r.logger.Warn("display sink failed", "tick", tick, "error", err)
	case err == nil && r.sinkFailing:
		r.logger.Info("display sink recovered", "tick", tick)
	}
	r.sinkFailing = err != nil
}
