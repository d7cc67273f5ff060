package models

import "time"

// Meter is a registered electricity account with a prepaid balance.
type Meter struct {
	ID           int64     `json:"id"`
	UserID       int       `json:"userId,omitempty"`
	MeterNumber  string    `json:"meterNumber"`
	CurrentUnits float64   `json:"currentUnits"` // remaining purchased units, never negative
	UsedUnits    float64   `json:"usedUnits"`    // lifetime consumption, never decreases
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"createdAt,omitzero"`
	UpdatedAt    time.Time `json:"updatedAt,omitzero"`
}

// Units is a point-in-time ledger write for a single meter.
type Units struct {
	CurrentUnits float64 `json:"currentUnits"`
	UsedUnits    float64 `json:"usedUnits"`
}

// CloneMeters returns a copy of ms that shares no backing array with it.
func CloneMeters(ms []Meter) []Meter {
	if ms == nil {
		return nil
	}
	out := make([]Meter, len(ms))
	copy(out, ms)
	return out
}
