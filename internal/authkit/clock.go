package authkit

import "github.com/tyemirov/tasktrack/pkg/sessiontoken"

// Clock provides the current time.
type Clock = sessiontoken.Clock

// NewSystemClock returns a Clock backed by the wall clock in UTC.
func NewSystemClock() Clock {
	return sessiontoken.SystemClock()
}
