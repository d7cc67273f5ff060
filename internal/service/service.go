package service

import (
	"context"
	"time"

	"smart_cash_power/internal/client/meterapi"
	"smart_cash_power/internal/drain"
	"smart_cash_power/internal/logger"
	"smart_cash_power/internal/models"
	"smart_cash_power/internal/repository"
)

type Authorization interface {
	SignUp(username, password, role string) (int, error)
	GenerateToken(username, password string) (string, error)
	ParseToken(accessToken string) (models.Identity, error)
}

// Meters is the meter directory: the server-confirmed meter list of a user.
type Meters interface {
	List(ctx context.Context, userID int) ([]models.Meter, error)
	Add(ctx context.Context, userID int, meterNumber string) (models.Meter, error)
	Delete(ctx context.Context, userID int, meterID int64) error
}

// Ledger persists point-in-time unit values. The write reason is read from
// ctx (see drain.WithReason).
type Ledger interface {
	WriteUnits(ctx context.Context, userID int, meterID int64, u models.Units) error
	// Credit raises the stored balance by amount and returns the new values.
	Credit(ctx context.Context, userID int, meterID int64, amount float64) (models.Units, error)
}

// LedgerLog exposes the append-only history of ledger writes.
type LedgerLog interface {
	History(ctx context.Context, userID int, f LogFilter) ([]models.LedgerEvent, error)
}

// Dashboard keeps one drain session per signed-in user.
type Dashboard interface {
	Open(ctx context.Context, id models.Identity)
	Close(ctx context.Context, userID int) drain.FlushResult
	Live(userID int) (LiveView, error)
	Canonical(userID int) ([]models.Meter, error)
	PurchaseSnapshot(userID int, meterID int64) (models.Meter, error)
	Refresh(ctx context.Context, userID int) error
	Shutdown(ctx context.Context) error
}

// Purchases buys units for a meter and keeps the transaction history.
type Purchases interface {
	Purchase(ctx context.Context, userID int, meterID int64, amount float64) (models.Transaction, error)
	Transactions(ctx context.Context, userID int) ([]models.Transaction, error)
}

type Service struct {
	Authorization
	Meters
	Ledger
	LedgerLog
	Dashboard
	Purchases
}

// Config carries the knobs NewService needs from the application config.
type Config struct {
	Auth         AuthConfig
	Drain        drain.Config
	FetchTimeout time.Duration
	Purchase     PurchaseConfig
}

// Deps are optional collaborators. Zero values fall back to a no-op logger,
// no metrics, the system clock and the local backend.
type Deps struct {
	Log     *logger.Logger
	Metrics *drain.Metrics
	Clock   drain.Clock
	Remote  *meterapi.Client
}

// NewService wires the repository layer into concrete services. With a
// remote client, meters and unit writes go to the remote backend instead of
// the local database.
func NewService(repos *repository.Repository, cfg Config, deps Deps) *Service {
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}

	var (
		meters Meters
		ledger Ledger
	)
	if deps.Remote != nil {
		meters = NewRemoteMeters(deps.Remote)
		ledger = NewRemoteLedger(deps.Remote)
	} else {
		meters = NewMeterService(repos.Meters)
		ledger = NewLedgerService(repos.Meters, repos.Ledger, log)
	}

	dashboard := NewDashboardService(NewBackend(meters, ledger), DashboardOptions{
		Drain:        cfg.Drain,
		FetchTimeout: cfg.FetchTimeout,
		Log:          log,
		Metrics:      deps.Metrics,
		Clock:        deps.Clock,
	})

	return &Service{
		Authorization: NewAuthService(repos.Auth, cfg.Auth),
		Meters:        meters,
		Ledger:        ledger,
		LedgerLog:     NewLedgerLogService(repos.Ledger),
		Dashboard:     dashboard,
		Purchases:     NewPurchaseService(repos.Transactions, meters, ledger, dashboard, cfg.Purchase, log),
	}
}
