// Package clock abstracts wall-clock reads so billing arithmetic can be
// driven deterministically in tests. Every ledger operation reads the
// clock exactly once and reuses that instant for all timestamps it sets.
package clock

import "time"

// Clock supplies the current instant. Implementations return UTC.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the system wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
