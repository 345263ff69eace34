package clock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.uber.org/atomic"

	"github.com/i474232898/forecast-display/internal/diag"
)

// ErrTimeUnset is returned by Format before the first successful resync.
var ErrTimeUnset = errors.New("local time unavailable: clock never synced")

// State is the active local-time offset. A zero SyncedAt means unset.
type State struct {
	UTCOffsetSeconds int       `json:"utcOffsetSeconds"`
	IsDaylightSaving bool      `json:"isDaylightSaving"`
	SyncedAt         time.Time `json:"syncedAt"`
}

// IsSet reports whether the state came from a resync.
func (s State) IsSet() bool {
	return !s.SyncedAt.IsZero()
}

// View is the text shown on the display.
type View struct {
	TimeText string `json:"time"`
	DateText string `json:"date"`
}

// TimeSyncer synchronizes the underlying time source, e.g. against NTP.
type TimeSyncer interface {
	Sync(ctx context.Context) error
}

// SyncFunc adapts a function to TimeSyncer.
type SyncFunc func(ctx context.Context) error

func (f SyncFunc) Sync(ctx context.Context) error { return f(ctx) }

// Resolve computes the state the rule gives for the UTC instant now. The
// calendar date is taken in the region's standard time.
func Resolve(now time.Time, rule Rule) State {
	local := now.UTC().Add(time.Duration(rule.StandardOffset) * time.Second)
	offset, dst := rule.Offset(local.Month(), local.Day(), local.Weekday())
	return State{
		UTCOffsetSeconds: offset,
		IsDaylightSaving: dst,
		SyncedAt:         now.UTC(),
	}
}

// Format renders now in the offset held by st. Hours below ten have no
// leading zero: "9:05.03", "14:05.03". The date is DD.MM.YYYY.
func Format(now time.Time, st State) (View, error) {
	if !st.IsSet() {
		return View{}, ErrTimeUnset
	}

	t := now.UTC().Add(time.Duration(st.UTCOffsetSeconds) * time.Second)

	var timeText string
	if t.Hour() < 10 {
		timeText = fmt.Sprintf("%d:%02d.%02d", t.Hour(), t.Minute(), t.Second())
	} else {
		timeText = fmt.Sprintf("%02d:%02d.%02d", t.Hour(), t.Minute(), t.Second())
	}

	return View{
		TimeText: timeText,
		DateText: fmt.Sprintf("%02d.%02d.%04d", t.Day(), int(t.Month()), t.Year()),
	}, nil
}

// Model owns the clock state. Resync is the only writer; Format and State
// may be called from any goroutine.
type Model struct {
	rule   Rule
	syncer TimeSyncer
	state  atomic.Pointer[State]
	diag   diag.Recorder
	logger *slog.Logger
}

// NewModel creates a Model with no state. syncer and rec may be nil.
func NewModel(rule Rule, syncer TimeSyncer, rec diag.Recorder, logger *slog.Logger) *Model {
	if rec == nil {
		rec = diag.Discard{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Model{
		rule:   rule,
		syncer: syncer,
		diag:   rec,
		logger: logger.With("component", "clock"),
	}
}

// Rule returns the model's region rule.
func (m *Model) Rule() Rule {
	return m.rule
}

// Resync runs the time syncer, if any, and recomputes the active offset
// for now. On syncer failure the previous state is kept.
func (m *Model) Resync(ctx context.Context, now time.Time) (State, error) {
	if m.syncer != nil {
		if err := m.syncer.Sync(ctx); err != nil {
			m.logger.Warn("time sync failed", "error", err)
			m.diag.Append(diag.Event{
				Kind:    diag.KindResyncFailed,
				Message: "time sync failed",
				Fields:  map[string]any{"error": err.Error()},
			})
			st, _ := m.State()
			return st, fmt.Errorf("resync: %w", err)
		}
	}

	st := Resolve(now, m.rule)
	prev, _ := m.State()
	m.state.Store(&st)

	if prev.UTCOffsetSeconds != st.UTCOffsetSeconds || !prev.IsSet() {
		m.logger.Info("clock offset set", "utc_offset_s", st.UTCOffsetSeconds, "dst", st.IsDaylightSaving)
	} else {
		m.logger.Debug("clock resynced", "utc_offset_s", st.UTCOffsetSeconds, "dst", st.IsDaylightSaving)
	}
	m.diag.Append(diag.Event{
		Kind:    diag.KindResync,
		Message: "clock resynced",
		Fields:  map[string]any{"utcOffsetSeconds": st.UTCOffsetSeconds, "isDaylightSaving": st.IsDaylightSaving},
	})
	return st, nil
}

// State returns the current state and whether it has been set.
func (m *Model) State() (State, bool) {
	p := m.state.Load()
	if p == nil {
		return State{}, false
	}
	return *p, true
}

// Format renders now using the current state.
func (m *Model) Format(now time.Time) (View, error) {
	st, _ := m.State()
	return Format(now, st)
}
