// Package system provides the wall clock used to stamp prerendered responses.
package system

import "time"

// Clock implements prerender.Clock with UTC wall time.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time truncated to whole seconds, the
// precision of the X-Prerendered-On header.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}
