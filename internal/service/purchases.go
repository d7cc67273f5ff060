package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"smart_cash_power/internal/drain"
	"smart_cash_power/internal/logger"
	"smart_cash_power/internal/models"
	"smart_cash_power/internal/repository"
)

// Purchase defaults: price of one unit and the smallest accepted amount,
// both in the payment currency.
const (
	DefaultUnitPrice   = 100.0
	DefaultMinPurchase = 100.0
)

var ErrInvalidAmount = errors.New("invalid purchase amount")

type PurchaseConfig struct {
	UnitPrice float64
	MinAmount float64
}

// PurchaseService credits bought units to a meter. The meter is taken from
// the canonical view of the user's dashboard session, the units go through
// the unit ledger, and the session is refreshed so the drain continues from
// the new balance.
type PurchaseService struct {
	txs    repository.TransactionRepo
	meters Meters
	ledger Ledger
	dash   Dashboard
	cfg    PurchaseConfig
	log    *logger.Logger
}

func NewPurchaseService(txs repository.TransactionRepo, meters Meters, ledger Ledger, dash Dashboard, cfg PurchaseConfig, log *logger.Logger) *PurchaseService {
	if cfg.UnitPrice <= 0 {
		cfg.UnitPrice = DefaultUnitPrice
	}
	if cfg.MinAmount <= 0 {
		cfg.MinAmount = DefaultMinPurchase
	}
	if log == nil {
		log = logger.Nop()
	}
	return &PurchaseService{txs: txs, meters: meters, ledger: ledger, dash: dash, cfg: cfg, log: log}
}

// Purchase converts amount into units and credits them to the meter. The
// transaction is stored as PENDING first and ends as SUCCESS or FAILED; a
// failed credit returns the FAILED transaction together with the error.
func (s *PurchaseService) Purchase(ctx context.Context, userID int, meterID int64, amount float64) (models.Transaction, error) {
	if amount < s.cfg.MinAmount {
		return models.Transaction{}, fmt.Errorf("%w: minimum is %v", ErrInvalidAmount, s.cfg.MinAmount)
	}
	meter, err := s.snapshot(ctx, userID, meterID)
	if err != nil {
		return models.Transaction{}, err
	}

	bought := decimal.NewFromFloat(amount).Div(decimal.NewFromFloat(s.cfg.UnitPrice)).Round(unitsScale)
	tx, err := s.txs.Create(ctx, models.Transaction{
		UserID:         userID,
		MeterID:        meter.ID,
		MeterNumber:    meter.MeterNumber,
		Amount:         amount,
		UnitsPurchased: bought.InexactFloat64(),
		Status:         models.TransactionPending,
	})
	if err != nil {
		return models.Transaction{}, fmt.Errorf("record purchase: %w", err)
	}

	// recorded; finish even if the caller goes away
	ctx = context.WithoutCancel(ctx)
	_, cerr := s.ledger.Credit(drain.WithReason(ctx, models.ReasonPurchase), userID, meter.ID, tx.UnitsPurchased)
	tx.Status = models.TransactionSuccess
	if cerr != nil {
		tx.Status = models.TransactionFailed
	}
	if err := s.txs.UpdateStatus(ctx, tx.ID, tx.Status); err != nil {
		s.log.Warnw("purchase_status_update_failed", "transaction_id", tx.ID, "status", tx.Status, "err", err)
	}
	if cerr != nil {
		s.log.Errorw("purchase_credit_failed", "user_id", userID, "meter_id", meter.ID, "reference", tx.Reference, "err", cerr)
		return tx, fmt.Errorf("credit meter %d: %w", meter.ID, cerr)
	}

	if err := s.dash.Refresh(ctx, userID); err != nil && !errors.Is(err, ErrNoSession) {
		s.log.Warnw("purchase_refresh_failed", "user_id", userID, "err", err)
	}
	s.log.Infow("purchase_completed", "user_id", userID, "meter_id", meter.ID, "units", tx.UnitsPurchased, "reference", tx.Reference)
	return tx, nil
}

// Transactions lists the user's purchases, newest first.
func (s *PurchaseService) Transactions(ctx context.Context, userID int) ([]models.Transaction, error) {
	return s.txs.ListByUser(ctx, userID)
}

// snapshot takes the meter from the canonical view. Without a session the
// directory is asked directly.
func (s *PurchaseService) snapshot(ctx context.Context, userID int, meterID int64) (models.Meter, error) {
	m, err := s.dash.PurchaseSnapshot(userID, meterID)
	if err == nil || !errors.Is(err, ErrNoSession) {
		return m, err
	}
	list, err := s.meters.List(ctx, userID)
	if err != nil {
		return models.Meter{}, err
	}
	for _, m := range list {
		if m.ID == meterID {
			return m, nil
		}
	}
	return models.Meter{}, fmt.Errorf("%w: %d", ErrMeterNotFound, meterID)
}
