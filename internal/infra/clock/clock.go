// Package clock provides the wall-clock implementation of port.Clock.
package clock

import "time"

// System reads time.Now in a fixed location.
type System struct {
	loc *time.Location
}

// NewSystem returns a clock reporting times in loc (time.Local when nil).
func NewSystem(loc *time.Location) *System {
	if loc == nil {
		loc = time.Local
	}
	return &System{loc: loc}
}

// Now returns the current time in the clock's location.
func (c *System) Now() time.Time {
	return time.Now().In(c.loc)
}

// Location is the zone month boundaries are computed in.
func (c *System) Location() *time.Location {
	return c.loc
}
