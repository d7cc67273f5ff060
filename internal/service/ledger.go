package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"smart_cash_power/internal/drain"
	"smart_cash_power/internal/logger"
	"smart_cash_power/internal/models"
	"smart_cash_power/internal/repository"
)

// Validation errors for unit writes.
var (
	ErrNegativeUnits     = errors.New("units must be >= 0")
	ErrUsedUnitsDecrease = errors.New("used units cannot decrease")
	ErrInvalidCredit     = errors.New("credited units must be positive")
)

// unitsScale matches the precision the repository stores.
const unitsScale = 6

type LedgerService struct {
	meters repository.MeterRepo
	events repository.LedgerRepo
	log    *logger.Logger
}

func NewLedgerService(meters repository.MeterRepo, events repository.LedgerRepo, log *logger.Logger) *LedgerService {
	if log == nil {
		log = logger.Nop()
	}
	return &LedgerService{meters: meters, events: events, log: log}
}

// WriteUnits overwrites a meter's units and records the write in the ledger.
// Used units only ever grow; a write that would shrink them is rejected.
func (s *LedgerService) WriteUnits(ctx context.Context, userID int, meterID int64, u models.Units) error {
	if u.CurrentUnits < 0 || u.UsedUnits < 0 {
		return ErrNegativeUnits
	}

	cur, err := s.meters.Get(ctx, userID, meterID)
	if err != nil {
		return err
	}
	if units(u.UsedUnits).LessThan(units(cur.UsedUnits)) {
		return fmt.Errorf("%w: meter %d has %.6f, got %.6f", ErrUsedUnitsDecrease, meterID, cur.UsedUnits, u.UsedUnits)
	}

	if err := s.meters.UpdateUnits(ctx, userID, meterID, u); err != nil {
		return err
	}
	s.record(ctx, userID, meterID, u)
	return nil
}

// Credit adds units to the stored balance of a meter and records the write.
// Used units are left as stored.
func (s *LedgerService) Credit(ctx context.Context, userID int, meterID int64, amount float64) (models.Units, error) {
	if amount <= 0 {
		return models.Units{}, ErrInvalidCredit
	}
	cur, err := s.meters.Get(ctx, userID, meterID)
	if err != nil {
		return models.Units{}, err
	}
	u := models.Units{
		CurrentUnits: units(cur.CurrentUnits).Add(units(amount)).InexactFloat64(),
		UsedUnits:    cur.UsedUnits,
	}
	if err := s.meters.UpdateUnits(ctx, userID, meterID, u); err != nil {
		return models.Units{}, err
	}
	s.record(ctx, userID, meterID, u)
	return u, nil
}

// record appends a ledger event. Units are stored at this point; history is
// best-effort.
func (s *LedgerService) record(ctx context.Context, userID int, meterID int64, u models.Units) {
	reason := drain.ReasonFrom(ctx)
	ev := models.LedgerEvent{
		MeterID:      meterID,
		UserID:       userID,
		OccurredAt:   time.Now().UTC(),
		Reason:       reason,
		CurrentUnits: u.CurrentUnits,
		UsedUnits:    u.UsedUnits,
	}
	if err := s.events.Append(ctx, ev); err != nil {
		s.log.Warnw("ledger_event_append_failed", "meter_id", meterID, "reason", reason, "err", err)
	}
}

func units(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(unitsScale)
}
