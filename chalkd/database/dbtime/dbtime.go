package dbtime

import "time"

// Now returns the standardized timestamp used for database resources.
func Now() time.Time {
	return Time(time.Now().UTC())
}

// Time truncates to microsecond precision so in-memory rows compare
// equal to rows that round-tripped through a SQL store.
func Time(t time.Time) time.Time {
	return t.Round(time.Microsecond)
}
