package clock

import "time"

// Clock provides time to the application.
type Clock interface {
	Now() time.Time
}

// System is the wall clock, normalised to UTC
type System struct{}

// Now returns the current UTC time
func (System) Now() time.Time {
	return time.Now().UTC()
}
