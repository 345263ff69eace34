package scheduler

import "time"

// Monotonic returns the time elapsed since some fixed origin. It must never
// go backwards, so wall-clock jumps cannot disturb interval checks.
type Monotonic func() time.Duration

// NewMonotonic returns a Monotonic anchored at the current instant. It uses
// the monotonic reading carried by time.Time.
func NewMonotonic() Monotonic {
	origin := time.Now()
	return func() time.Duration { return time.Since(origin) }
}

// Cadence gates a periodic job: it is due when it has never run or when at
// least interval has elapsed since its last mark. A Cadence belongs to the
// goroutine that runs its job.
type Cadence struct {
	name     string
	interval time.Duration
	last     time.Duration
	ran      bool
	runs     uint64
}

func NewCadence(name string, interval time.Duration) *Cadence {
	return &Cadence{name: name, interval: interval}
}

func (c *Cadence) Name() string {
	return c.name
}

func (c *Cadence) Interval() time.Duration {
	return c.interval
}

// Runs returns how many times the cadence has been marked.
func (c *Cadence) Runs() uint64 {
	return c.runs
}

// Due reports whether the job should run at now.
func (c *Cadence) Due(now time.Duration) bool {
	return !c.ran || now-c.last >= c.interval
}

// Mark records a run starting at now.
func (c *Cadence) Mark(now time.Duration) {
	c.last = now
	c.ran = true
	c.runs++
}

// TryRun runs fn and marks the cadence if it is due at now.
func (c *Cadence) TryRun(now time.Duration, fn func()) bool {
	if !c.Due(now) {
		return false
	}
	c.Mark(now)
	fn()
	return true
}
