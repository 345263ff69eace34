package diag

import (
	"sync"
	"time"
)

// Kind classifies a diagnostic event.
type Kind string

const (
	KindFetchSuccess    Kind = "fetch_success"
	KindFetchEmpty      Kind = "fetch_empty"
	KindFetchError      Kind = "fetch_error"
	KindMarkerMissing   Kind = "marker_missing"
	KindNoValidTokens   Kind = "no_valid_tokens"
	KindTokenDropped    Kind = "token_dropped"
	KindResync          Kind = "resync"
	KindResyncFailed    Kind = "resync_failed"
	KindTimeUnavailable Kind = "time_unavailable"
)

// Event is one entry of the diagnostic stream.
type Event struct {
	Seq     uint64         `json:"seq"`
	Time    time.Time      `json:"time"`
	Kind    Kind           `json:"kind"`
	CycleID string         `json:"cycleId,omitempty"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// Recorder accepts diagnostic events.
type Recorder interface {
	Append(ev Event)
}

// Stream is an append-only, in-memory diagnostic log. Once capacity is
// reached the oldest events are forgotten; sequence numbers keep growing.
type Stream struct {
	mu sync.RWMutex

	events   []Event
	capacity int
	next     uint64
	now      func() time.Time
}

// NewStream creates a Stream retaining at most capacity events.
// If capacity is <= 0, it is treated as unlimited.
func NewStream(capacity int) *Stream {
	return &Stream{
		capacity: capacity,
		next:     1,
		now:      time.Now,
	}
}

// Append stamps ev with a sequence number (and a time, if unset) and stores it.
func (s *Stream) Append(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev.Seq = s.next
	s.next++
	if ev.Time.IsZero() {
		ev.Time = s.now().UTC()
	}

	s.events = append(s.events, ev)

	if s.capacity > 0 && len(s.events) > s.capacity {
		over := len(s.events) - s.capacity
		s.events = append(s.events[:0:0], s.events[over:]...)
	}
}

// Events returns a copy of all retained events, oldest first.
func (s *Stream) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Since returns retained events with a sequence number greater than seq.
func (s *Stream) Since(seq uint64) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Event
	for _, ev := range s.events {
		if ev.Seq > seq {
			out = append(out, ev)
		}
	}
	return out
}

// Last returns up to n of the most recent events, oldest first.
func (s *Stream) Last(n int) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 || n > len(s.events) {
		n = len(s.events)
	}
	out := make([]Event, n)
	copy(out, s.events[len(s.events)-n:])
	return out
}

// Count returns how many retained events have the given kind.
func (s *Stream) Count(kind Kind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, ev := range s.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

// Discard is a Recorder that drops everything.
type Discard struct{}

func (Discard) Append(Event) {}
