package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"smart_cash_power/internal/models"
)

// Lookup errors shared by the meter repository implementations.
var (
	ErrMeterNotFound = errors.New("meter not found")
	ErrMeterExists   = errors.New("meter number already registered")
)

type Authorization interface {
	Create(username, hash, role string) (int, error)
	GetByUsername(username string) (*models.User, error)
}

type MeterRepo interface {
	List(ctx context.Context, userID int) ([]models.Meter, error)
	Get(ctx context.Context, userID int, meterID int64) (models.Meter, error)
	Create(ctx context.Context, userID int, meterNumber string) (models.Meter, error)
	Delete(ctx context.Context, userID int, meterID int64) error
	UpdateUnits(ctx context.Context, userID int, meterID int64, u models.Units) error
}

type LedgerRepo interface {
	Append(ctx context.Context, e models.LedgerEvent) error
	List(ctx context.Context, userID int, from, to time.Time, reason string) ([]models.LedgerEvent, error)
}

type TransactionRepo interface {
	Create(ctx context.Context, t models.Transaction) (models.Transaction, error)
	UpdateStatus(ctx context.Context, id int64, status string) error
	ListByUser(ctx context.Context, userID int) ([]models.Transaction, error)
}

type Repository struct {
	Meters       MeterRepo
	Ledger       LedgerRepo
	Transactions TransactionRepo
	Auth         Authorization
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		Meters:       NewMeterSQLite(db),
		Ledger:       NewLedgerSQLite(db),
		Transactions: NewTransactionSQLite(db),
		Auth:         NewUserRepository(db),
	}
}
