package testutil

import "time"

// Constants for timing out operations in tests. Busy CI runners are
// slow, so these are generous.
const (
	WaitShort  = 10 * time.Second
	WaitMedium = 15 * time.Second
	WaitLong   = 25 * time.Second

	IntervalFast = 25 * time.Millisecond
	IntervalSlow = time.Second
)
