package models

import "time"

// Ledger write reasons.
const (
	ReasonZeroCrossing = "ZERO_CROSSING"
	ReasonLogoutFlush  = "LOGOUT_FLUSH"
	ReasonManual       = "MANUAL"
	ReasonPurchase     = "PURCHASE"
)

// LedgerEvent records one accepted unit write.
type LedgerEvent struct {
	EventID      string    `json:"event_id"`
	MeterID      int64     `json:"meter_id"`
	UserID       int       `json:"user_id"`
	OccurredAt   time.Time `json:"occurred_at"`
	Reason       string    `json:"reason"` // ZERO_CROSSING | LOGOUT_FLUSH | MANUAL | PURCHASE
	CurrentUnits float64   `json:"current_units"`
	UsedUnits    float64   `json:"used_units"`
}
