package display

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/i474232898/forecast-display/internal/forecast"
)

// Vertical range of the forecast chart in °C.
const (
	ChartMin       = -30
	ChartMax       = 30
	ChartDivisions = 7
)

// NewChart builds a line chart with one point per reading.
func NewChart(series forecast.Series) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Temperature forecast",
			Width:     "450px",
			Height:    "300px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title: "Temperature forecast",
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Name:        "°C",
			Min:         ChartMin,
			Max:         ChartMax,
			SplitNumber: ChartDivisions - 1,
		}),
	)

	xs := make([]string, len(series))
	points := make([]opts.LineData, len(series))
	for i, r := range series {
		xs[i] = strconv.Itoa(i)
		points[i] = opts.LineData{Value: float64(r)}
	}

	line.SetXAxis(xs).AddSeries("Temperature", points)
	return line
}

// RenderChart writes the chart for series as an HTML page.
func RenderChart(w io.Writer, series forecast.Series) error {
	if err := NewChart(series).Render(w); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}

// ChartSink rewrites an HTML chart file whenever a new series arrives.
// Frames with an empty series are ignored.
type ChartSink struct {
	path   string
	logger *slog.Logger

	lastVersion uint64
}

func NewChartSink(path string, logger *slog.Logger) *ChartSink {
	return &ChartSink{path: path, logger: logger}
}

func (s *ChartSink) Render(_ context.Context, f Frame) error {
	if len(f.Series) == 0 || f.SeriesVersion == s.lastVersion {
		return nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".chart-*.html")
	if err != nil {
		return fmt.Errorf("chart sink: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := RenderChart(tmp, f.Series); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("chart sink: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("chart sink: %w", err)
	}

	s.lastVersion = f.SeriesVersion
	s.logger.Debug("chart written", "path", s.path, "points", len(f.Series))
	return nil
}
