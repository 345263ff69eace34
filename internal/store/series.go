package store

import (
	"time"

	"go.uber.org/atomic"

	"github.com/i474232898/forecast-display/internal/forecast"
)

// Snapshot is an immutable view of the series buffer. Readings must not be
// modified by readers. Latest is the headline reading published with the
// series; it is only meaningful when Readings is non-empty.
type Snapshot struct {
	Readings  forecast.Series
	Latest    forecast.Reading
	Capacity  int
	Version   uint64
	UpdatedAt time.Time
}

// HasLatest reports whether the snapshot carries a headline reading.
func (s Snapshot) HasLatest() bool {
	return len(s.Readings) > 0
}

// SeriesBuffer holds the current forecast series. It has a single writer
// (the fetch cycle) and any number of readers; every update swaps in a
// whole new snapshot, so readers see either the previous or the next
// series, never a mix.
type SeriesBuffer struct {
	snap    atomic.Pointer[Snapshot]
	version atomic.Uint64
	now     func() time.Time
}

// NewSeriesBuffer creates an empty buffer with zero capacity.
func NewSeriesBuffer() *SeriesBuffer {
	b := &SeriesBuffer{now: time.Now}
	b.snap.Store(&Snapshot{Readings: forecast.Series{}})
	return b
}

// Replace swaps in s, together with its first reading as the headline, and
// resizes the buffer to len(s). An empty series is ignored so the last good
// data stays visible.
func (b *SeriesBuffer) Replace(s forecast.Series) bool {
	if len(s) == 0 {
		return false
	}

	readings := s.Clone()
	b.snap.Store(&Snapshot{
		Readings:  readings,
		Latest:    readings[0],
		Capacity:  len(readings),
		Version:   b.version.Inc(),
		UpdatedAt: b.now().UTC(),
	})
	return true
}

// Snapshot returns the current snapshot.
func (b *SeriesBuffer) Snapshot() Snapshot {
	return *b.snap.Load()
}

// Current returns a copy of the current series.
func (b *SeriesBuffer) Current() forecast.Series {
	return b.snap.Load().Readings.Clone()
}

// First returns the headline reading, if any. It is the first reading of
// the current series.
func (b *SeriesBuffer) First() (forecast.Reading, bool) {
	snap := b.snap.Load()
	return snap.Latest, snap.HasLatest()
}

// Capacity is the number of points the display surface must be sized to.
func (b *SeriesBuffer) Capacity() int {
	return b.snap.Load().Capacity
}
