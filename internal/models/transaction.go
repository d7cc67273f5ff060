package models

import "time"

// Purchase transaction statuses.
const (
	TransactionPending = "PENDING"
	TransactionSuccess = "SUCCESS"
	TransactionFailed  = "FAILED"
)

// Transaction records a unit purchase for a meter.
type Transaction struct {
	ID             int64     `json:"transactionId"`
	UserID         int       `json:"-"`
	MeterID        int64     `json:"meterId"`
	MeterNumber    string    `json:"meterNumber"`
	Amount         float64   `json:"amountPaid"`
	UnitsPurchased float64   `json:"unitsPurchased"`
	Status         string    `json:"currentStatus"`
	Reference      string    `json:"referenceNumber"`
	CreatedAt      time.Time `json:"transactionDate"`
}
