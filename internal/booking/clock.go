package booking

import "time"

// Clock supplies the current instant.
type Clock func() time.Time

func SystemClock() time.Time {
	return time.Now()
}

// FixedClock always returns t.
func FixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}
