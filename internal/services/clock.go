package services

import "time"

// Clock returns the current time; services take one so expiry can be tested
type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}
