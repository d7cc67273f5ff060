package service

import "time"

// LogFilter supports history filtering by time range and write reason.
type LogFilter struct {
	From   time.Time // inclusive; zero means no lower bound
	To     time.Time // inclusive; zero means no upper bound
	Reason string    // "", "ZERO_CROSSING", "LOGOUT_FLUSH", "MANUAL"
}
