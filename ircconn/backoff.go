package ircconn

import "time"

// backoffSchedule is the reconnect delay sequence from §4.4: after the
// sequence is exhausted, the delay stays at its final value.
var backoffSchedule = []time.Duration{
	0 * time.Second,
	10 * time.Second,
	20 * time.Second,
	40 * time.Second,
	80 * time.Second,
	160 * time.Second,
	320 * time.Second,
	600 * time.Second,
}

// Backoff tracks the current position in the reconnect backoff
// schedule. The zero value starts at the schedule's first entry.
type Backoff struct {
	step int
}

// Next returns the delay to wait before the next reconnect attempt, and
// advances the schedule.
func (b *Backoff) Next() time.Duration {
	d := backoffSchedule[b.step]
	if b.step < len(backoffSchedule)-1 {
		b.step++
	}
	return d
}

// Reset returns the schedule to its first entry, for use after a
// successful connection.
func (b *Backoff) Reset() {
	b.step = 0
}
