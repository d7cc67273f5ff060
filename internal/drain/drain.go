// Package drain simulates continuous consumption against a user's meters.
//
// A Session owns two views of the meter list fetched from the directory: a
// canonical copy that only changes on explicit refreshes and is handed to
// mutating flows such as purchases, and a draining copy that loses Rate units
// on every tick and is used for live display. All state lives in a single
// goroutine; callers interact with it through method calls that are turned
// into messages.
package drain

import (
	"context"
	"time"

	"smart_cash_power/internal/models"
)

// Simulation defaults.
const (
	DefaultRate             = 0.002 // units removed per tick
	DefaultInterval         = 1 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
	DefaultFlushConcurrency = 4
)

// MeterDirectory supplies the canonical meter list for the session's user.
type MeterDirectory interface {
	FetchMeters(ctx context.Context) ([]models.Meter, error)
}

// UnitLedger accepts point-in-time unit writes for a meter.
type UnitLedger interface {
	WriteMeterUnits(ctx context.Context, meterID int64, u models.Units) error
}

// Config tunes the simulation.
type Config struct {
	Rate             float64       // units drained per tick
	Interval         time.Duration // wall-clock time between ticks
	WriteTimeout     time.Duration // per ledger write
	FlushConcurrency int           // parallel writes during logout flush
}

func (c Config) withDefaults() Config {
	if c.Rate <= 0 {
		c.Rate = DefaultRate
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.FlushConcurrency <= 0 {
		c.FlushConcurrency = DefaultFlushConcurrency
	}
	return c
}

// FlushResult summarizes a logout flush. Err aggregates every failed write.
type FlushResult struct {
	Attempted int
	Failed    int
	Err       error
}

type reasonKey struct{}

// WithReason tags ctx with the reason a ledger write is being made.
func WithReason(ctx context.Context, reason string) context.Context {
	return context.WithValue(ctx, reasonKey{}, reason)
}

// ReasonFrom returns the write reason carried by ctx, or models.ReasonManual.
func ReasonFrom(ctx context.Context) string {
	if r, ok := ctx.Value(reasonKey{}).(string); ok && r != "" {
		return r
	}
	return models.ReasonManual
}
