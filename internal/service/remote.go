package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"smart_cash_power/internal/client/meterapi"
	"smart_cash_power/internal/models"
)

// RemoteMeters serves the meter directory from a remote backend. The remote
// side resolves the user from the caller's forwarded bearer token (see
// WithCredential), so userID is not sent.
type RemoteMeters struct {
	client *meterapi.Client
}

func NewRemoteMeters(c *meterapi.Client) *RemoteMeters {
	return &RemoteMeters{client: c}
}

func (r *RemoteMeters) List(ctx context.Context, _ int) ([]models.Meter, error) {
	rctx, err := remoteContext(ctx)
	if err != nil {
		return nil, err
	}
	return r.client.FetchMeters(rctx)
}

func (r *RemoteMeters) Add(ctx context.Context, _ int, meterNumber string) (models.Meter, error) {
	n, err := normalizeMeterNumber(meterNumber)
	if err != nil {
		return models.Meter{}, err
	}
	rctx, err := remoteContext(ctx)
	if err != nil {
		return models.Meter{}, err
	}
	m, err := r.client.AddMeter(rctx, n)
	return m, remoteErr(err)
}

func (r *RemoteMeters) Delete(ctx context.Context, _ int, meterID int64) error {
	rctx, err := remoteContext(ctx)
	if err != nil {
		return err
	}
	return remoteErr(r.client.DeleteMeter(rctx, meterID))
}

// RemoteLedger forwards unit writes to a remote backend.
type RemoteLedger struct {
	client *meterapi.Client
}

func NewRemoteLedger(c *meterapi.Client) *RemoteLedger {
	return &RemoteLedger{client: c}
}

func (r *RemoteLedger) WriteUnits(ctx context.Context, _ int, meterID int64, u models.Units) error {
	if u.CurrentUnits < 0 || u.UsedUnits < 0 {
		return ErrNegativeUnits
	}
	rctx, err := remoteContext(ctx)
	if err != nil {
		return err
	}
	return remoteErr(r.client.WriteMeterUnits(rctx, meterID, u))
}

// Credit reads the meter's remote balance and writes it back raised by
// amount. The remote contract has no increment route.
func (r *RemoteLedger) Credit(ctx context.Context, _ int, meterID int64, amount float64) (models.Units, error) {
	if amount <= 0 {
		return models.Units{}, ErrInvalidCredit
	}
	rctx, err := remoteContext(ctx)
	if err != nil {
		return models.Units{}, err
	}
	meters, err := r.client.FetchMeters(rctx)
	if err != nil {
		return models.Units{}, remoteErr(err)
	}
	for _, m := range meters {
		if m.ID != meterID {
			continue
		}
		u := models.Units{
			CurrentUnits: units(m.CurrentUnits).Add(units(amount)).InexactFloat64(),
			UsedUnits:    m.UsedUnits,
		}
		if err := r.client.WriteMeterUnits(rctx, meterID, u); err != nil {
			return models.Units{}, remoteErr(err)
		}
		return u, nil
	}
	return models.Units{}, fmt.Errorf("%w: %d", ErrMeterNotFound, meterID)
}

// remoteErr maps remote status codes onto the local sentinel errors.
func remoteErr(err error) error {
	var se *meterapi.StatusError
	if !errors.As(err, &se) {
		return err
	}
	switch se.Code {
	case http.StatusNotFound:
		return errors.Join(ErrMeterNotFound, err)
	case http.StatusConflict:
		return errors.Join(ErrMeterExists, err)
	case http.StatusUnauthorized, http.StatusForbidden:
		return errors.Join(ErrRemoteCredential, err)
	}
	return err
}
