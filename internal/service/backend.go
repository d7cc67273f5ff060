package service

import (
	"context"

	"smart_cash_power/internal/drain"
	"smart_cash_power/internal/models"
)

// Backend binds the meter directory and unit ledger to one user, in the
// shape a drain session consumes.
type Backend interface {
	// Bind captures the user's credential from ctx; every later call made
	// through the returned pair carries it, including background writes.
	Bind(ctx context.Context, userID int) (drain.MeterDirectory, drain.UnitLedger)
}

type backend struct {
	meters Meters
	ledger Ledger
}

// NewBackend adapts Meters and Ledger, local or remote, for drain sessions.
func NewBackend(meters Meters, ledger Ledger) Backend {
	return backend{meters: meters, ledger: ledger}
}

func (b backend) Bind(ctx context.Context, userID int) (drain.MeterDirectory, drain.UnitLedger) {
	who := binding{userID: userID, credential: CredentialFrom(ctx)}
	return userDirectory{meters: b.meters, binding: who}, userLedger{ledger: b.ledger, binding: who}
}

type binding struct {
	userID     int
	credential string
}

func (b binding) context(ctx context.Context) context.Context {
	if b.credential == "" {
		return ctx
	}
	return WithCredential(ctx, b.credential)
}

type userDirectory struct {
	meters Meters
	binding
}

func (d userDirectory) FetchMeters(ctx context.Context) ([]models.Meter, error) {
	return d.meters.List(d.context(ctx), d.userID)
}

type userLedger struct {
	ledger Ledger
	binding
}

func (l userLedger) WriteMeterUnits(ctx context.Context, meterID int64, u models.Units) error {
	return l.ledger.WriteUnits(l.context(ctx), l.userID, meterID, u)
}
