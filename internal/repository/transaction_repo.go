package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"smart_cash_power/internal/models"
)

// ErrTransactionNotFound is returned when a status update matches no row.
var ErrTransactionNotFound = errors.New("transaction not found")

type TransactionSQLite struct {
	db *sql.DB
}

func NewTransactionSQLite(db *sql.DB) *TransactionSQLite { return &TransactionSQLite{db: db} }

var _ TransactionRepo = (*TransactionSQLite)(nil)

const (
	insertTransactionSQL = `
		INSERT INTO transactions (user_id, meter_id, meter_number, amount, units_purchased, status, reference, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	updateTransactionStatusSQL = `UPDATE transactions SET status = ? WHERE id = ?`

	selectTransactionsByUserSQL = `
		SELECT id, user_id, meter_id, meter_number, amount, units_purchased, status, reference, created_at
		FROM transactions WHERE user_id = ? ORDER BY created_at DESC, id DESC
	`
)

// Create stores a transaction. Reference and CreatedAt are filled when empty;
// a missing status becomes PENDING.
func (r *TransactionSQLite) Create(ctx context.Context, t models.Transaction) (models.Transaction, error) {
	if t.Reference == "" {
		t.Reference = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	} else {
		t.CreatedAt = t.CreatedAt.UTC()
	}
	if t.Status == "" {
		t.Status = models.TransactionPending
	}
	t.UnitsPurchased = roundUnits(t.UnitsPurchased)

	res, err := r.db.ExecContext(ctx, insertTransactionSQL,
		t.UserID,
		t.MeterID,
		t.MeterNumber,
		t.Amount,
		t.UnitsPurchased,
		t.Status,
		t.Reference,
		t.CreatedAt,
	)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("insert transaction for meter %d: %w", t.MeterID, err)
	}
	if t.ID, err = res.LastInsertId(); err != nil {
		return models.Transaction{}, fmt.Errorf("get last insert id for transaction %s: %w", t.Reference, err)
	}
	return t, nil
}

// UpdateStatus moves a transaction to its final status.
func (r *TransactionSQLite) UpdateStatus(ctx context.Context, id int64, status string) error {
	res, err := r.db.ExecContext(ctx, updateTransactionStatusSQL, status, id)
	if err != nil {
		return fmt.Errorf("update transaction %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for transaction %d: %w", id, err)
	}
	if n == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// ListByUser returns the user's transactions, newest first.
func (r *TransactionSQLite) ListByUser(ctx context.Context, userID int) ([]models.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, selectTransactionsByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("list transactions for user %d: %w", userID, err)
	}
	defer rows.Close()

	out := make([]models.Transaction, 0, 16)
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.MeterID, &t.MeterNumber, &t.Amount, &t.UnitsPurchased, &t.Status, &t.Reference, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.CreatedAt = t.CreatedAt.UTC()
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
