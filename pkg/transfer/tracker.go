// Package transfer tracks the progress of a single file transfer.
package transfer

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Progress is a point-in-time view of a transfer.
type Progress struct {
	Total    int64
	Received int64

	// Percent is Received as a percentage of Total, clamped to [0, 100]. An
	// empty transfer is always at 100.
	Percent float64

	Elapsed time.Duration
}

// Done returns whether every announced byte has been received.
func (p Progress) Done() bool {
	return p.Received >= p.Total
}

// Rate returns the average transfer rate in bytes per second.
func (p Progress) Rate() float64 {
	if p.Elapsed <= 0 {
		return 0
	}
	return float64(p.Received) / p.Elapsed.Seconds()
}

// Tracker accumulates the bytes received for one transfer. It isn't safe for
// concurrent use.
type Tracker struct {
	clock    clockwork.Clock
	start    time.Time
	total    int64
	received int64
}

// NewTracker returns a Tracker that measures elapsed time with `clock`.
func NewTracker(clock clockwork.Clock) *Tracker {
	return &Tracker{clock: clock}
}

// Start resets the tracker for a transfer of `total` bytes.
func (t *Tracker) Start(total int64) Progress {
	if total < 0 {
		total = 0
	}
	t.total = total
	t.received = 0
	t.start = t.clock.Now()
	return t.Progress()
}

// Add records that `n` more bytes arrived. Negative values are ignored so
// that Received never decreases.
func (t *Tracker) Add(n int) Progress {
	if n > 0 {
		t.received += int64(n)
	}
	return t.Progress()
}

// Progress returns the current state of the transfer.
func (t *Tracker) Progress() Progress {
	return Progress{
		Total:    t.total,
		Received: t.received,
		Percent:  Percent(t.received, t.total),
		Elapsed:  t.clock.Now().Sub(t.start),
	}
}

// Percent returns `received` as a percentage of `total`, clamped to
// [0, 100].
func Percent(received, total int64) float64 {
	if total <= 0 {
		return 100
	}

	percent := float64(received) / float64(total) * 100
	switch {
	case percent < 0:
		return 0
	case percent > 100:
		return 100
	default:
		return percent
	}
}
