package forecast

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/forecast-display/internal/diag"
)

// OutcomeKind classifies the result of one fetch cycle.
type OutcomeKind string

const (
	OutcomeSuccess      OutcomeKind = "success"
	OutcomeEmpty        OutcomeKind = "empty"
	OutcomeNetworkError OutcomeKind = "network_error"
)

// Outcome is what a fetch cycle reports upward.
type Outcome struct {
	CycleID  string
	Kind     OutcomeKind
	Series   Series
	Code     int
	Err      error
	Duration time.Duration
}

// Service runs fetch cycles: fetch a document, extract its readings and
// swap them into the store.
type Service struct {
	fetcher Fetcher
	series  SeriesStore
	diag    diag.Recorder
	logger  *slog.Logger
}

// NewService creates a new Service. A nil recorder discards diagnostics.
func NewService(fetcher Fetcher, series SeriesStore, rec diag.Recorder, logger *slog.Logger) *Service {
	if rec == nil {
		rec = diag.Discard{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		fetcher: fetcher,
		series:  series,
		diag:    rec,
		logger:  logger.With("component", "fetch"),
	}
}

// RunCycle performs exactly one request. The store is touched only when
// the document produced at least one reading.
func (s *Service) RunCycle(ctx context.Context) Outcome {
	started := time.Now()
	out := Outcome{CycleID: uuid.NewString()}
	log := s.logger.With("cycle_id", out.CycleID, "source", s.fetcher.Name())

	doc, err := s.fetcher.Fetch(ctx)
	out.Duration = time.Since(started)
	if err != nil {
		out.Kind = OutcomeNetworkError
		out.Err = err
		out.Code = -1
		var te *TransportError
		if errors.As(err, &te) {
			out.Code = te.Code
		}
		log.Warn("forecast fetch failed", "code", out.Code, "error", err)
		s.diag.Append(diag.Event{
			Kind:    diag.KindFetchError,
			CycleID: out.CycleID,
			Message: "forecast fetch failed",
			Fields:  map[string]any{"code": out.Code, "error": err.Error()},
		})
		return out
	}

	series, rep := ExtractWithReport(doc)
	for _, tok := range rep.Dropped {
		log.Debug("dropped forecast token", "token", tok)
		s.diag.Append(diag.Event{
			Kind:    diag.KindTokenDropped,
			CycleID: out.CycleID,
			Message: "dropped unparseable token",
			Fields:  map[string]any{"token": tok},
		})
	}

	if rep.Err != nil {
		out.Kind = OutcomeEmpty
		out.Err = rep.Err
		s.reportEmpty(log, out.CycleID, doc, rep)
		return out
	}

	s.series.Replace(series)

	out.Kind = OutcomeSuccess
	out.Series = series
	log.Info("forecast updated", "readings", len(series), "dropped", len(rep.Dropped), "duration", out.Duration)
	s.diag.Append(diag.Event{
		Kind:    diag.KindFetchSuccess,
		CycleID: out.CycleID,
		Message: series.String(),
		Fields:  map[string]any{"readings": len(series), "dropped": len(rep.Dropped)},
	})
	return out
}

func (s *Service) reportEmpty(log *slog.Logger, cycleID, doc string, rep Report) {
	kind := diag.KindNoValidTokens
	fields := map[string]any{"tokens": rep.Tokens, "dropped": len(rep.Dropped)}
	if errors.Is(rep.Err, ErrMarkerNotFound) {
		kind = diag.KindMarkerMissing
		fields = map[string]any{"bytes": len(doc)}
		if isExceptionReport(doc) {
			fields["upstream_exception"] = true
		}
	}

	log.Warn("no forecast readings found; keeping last good series", "reason", rep.Err)
	s.diag.Append(diag.Event{
		Kind:    kind,
		CycleID: cycleID,
		Message: rep.Err.Error(),
		Fields:  fields,
	})
	s.diag.Append(diag.Event{
		Kind:    diag.KindFetchEmpty,
		CycleID: cycleID,
		Message: "no forecast readings found",
	})
}

// isExceptionReport reports whether doc is an OWS exception document, which
// the WFS service returns instead of data for bad queries.
func isExceptionReport(doc string) bool {
	for _, marker := range []string{"<ExceptionReport", "<ows:ExceptionReport", "ows:Exception"} {
		if strings.Contains(doc, marker) {
			return true
		}
	}
	return false
}
