package display

import (
	"context"
	"log/slog"
)

// LogSink writes a frame to the logger whenever the visible text or the
// series changes.
type LogSink struct {
	logger *slog.Logger

	lastTime    string
	lastVersion uint64
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Render(_ context.Context, f Frame) error {
	if f.SeriesVersion != s.lastVersion {
		s.logger.Info("series redrawn",
			"points", f.Capacity,
			"headline", f.Headline,
			"series", f.Series.String(),
		)
		s.lastVersion = f.SeriesVersion
	}
	if f.Time != s.lastTime {
		s.logger.Debug("clock", "time", f.Time, "date", f.Date, "tick", f.Tick)
		s.lastTime = f.Time
	}
	return nil
}
