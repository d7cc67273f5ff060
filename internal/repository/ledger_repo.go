package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"smart_cash_power/internal/models"
)

type LedgerSQLite struct {
	db *sql.DB
}

func NewLedgerSQLite(db *sql.DB) *LedgerSQLite { return &LedgerSQLite{db: db} }

var _ LedgerRepo = (*LedgerSQLite)(nil)

const (
	insertLedgerEventSQL = `
		INSERT INTO ledger_events (id, meter_id, user_id, occurred_at, reason, current_units, used_units)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	selectLedgerEventsSQL = `SELECT id, meter_id, user_id, occurred_at, reason, current_units, used_units FROM ledger_events`
)

// Append inserts a ledger event. If EventID or OccurredAt are empty, they’re set.
func (r *LedgerSQLite) Append(ctx context.Context, e models.LedgerEvent) error {
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	} else {
		e.OccurredAt = e.OccurredAt.UTC()
	}

	_, err := r.db.ExecContext(ctx, insertLedgerEventSQL,
		e.EventID,
		e.MeterID,
		e.UserID,
		e.OccurredAt,
		strings.ToUpper(strings.TrimSpace(e.Reason)),
		roundUnits(e.CurrentUnits),
		roundUnits(e.UsedUnits),
	)
	return err
}

// List returns the user's events filtered by [from, to] (inclusive) and/or reason, ordered ASC.
func (r *LedgerSQLite) List(ctx context.Context, userID int, from, to time.Time, reason string) ([]models.LedgerEvent, error) {
	conds := []string{"user_id = ?"}
	args := []any{userID}

	if !from.IsZero() {
		conds = append(conds, "occurred_at >= ?")
		args = append(args, from.UTC())
	}
	if !to.IsZero() {
		conds = append(conds, "occurred_at <= ?")
		args = append(args, to.UTC())
	}
	if reason = strings.ToUpper(strings.TrimSpace(reason)); reason != "" {
		conds = append(conds, "reason = ?")
		args = append(args, reason)
	}

	q := selectLedgerEventsSQL + " WHERE " + strings.Join(conds, " AND ") + " ORDER BY occurred_at ASC"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.LedgerEvent, 0, 64)
	for rows.Next() {
		var ev models.LedgerEvent
		if err := rows.Scan(&ev.EventID, &ev.MeterID, &ev.UserID, &ev.OccurredAt, &ev.Reason, &ev.CurrentUnits, &ev.UsedUnits); err != nil {
			return nil, err
		}
		ev.OccurredAt = ev.OccurredAt.UTC()
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
