// Package clock provides wall-clock implementations of catalog.Clock.
package clock

import "time"

// System reads the real clock in UTC.
type System struct{}

// Now returns the current UTC time.
func (System) Now() time.Time { return time.Now().UTC() }

// Fixed always reports the same instant; tests use it to pin run
// tokens to a known date.
type Fixed struct {
	T time.Time
}

// Now returns the fixed instant.
func (f Fixed) Now() time.Time { return f.T }
