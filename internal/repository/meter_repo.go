package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"smart_cash_power/internal/models"
)

// unitsScale is the number of decimal places kept for stored units.
const unitsScale = 6

type MeterSQLite struct {
	db *sql.DB
}

func NewMeterSQLite(db *sql.DB) *MeterSQLite {
	return &MeterSQLite{db: db}
}

var _ MeterRepo = (*MeterSQLite)(nil)

const (
	meterColumns = `id, user_id, meter_number, current_units, used_units, active, created_at, updated_at`

	selectMetersByUserSQL = `SELECT ` + meterColumns + ` FROM meters WHERE user_id = ? ORDER BY id ASC`
	selectMeterSQL        = `SELECT ` + meterColumns + ` FROM meters WHERE id = ? AND user_id = ?`
	selectMeterNumberSQL  = `SELECT id FROM meters WHERE meter_number = ?`

	insertMeterSQL = `
		INSERT INTO meters (user_id, meter_number, current_units, used_units, active, created_at, updated_at)
		VALUES (?, ?, 0, 0, 1, ?, ?)
	`
	deleteMeterSQL = `DELETE FROM meters WHERE id = ? AND user_id = ?`

	updateUnitsSQL = `
		UPDATE meters SET current_units = ?, used_units = ?, updated_at = ?
		WHERE id = ? AND user_id = ?
	`
)

// roundUnits trims float noise before storage.
func roundUnits(v float64) float64 {
	return decimal.NewFromFloat(v).Round(unitsScale).InexactFloat64()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMeter(row rowScanner) (models.Meter, error) {
	var m models.Meter
	err := row.Scan(&m.ID, &m.UserID, &m.MeterNumber, &m.CurrentUnits, &m.UsedUnits, &m.Active, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return models.Meter{}, err
	}
	m.CreatedAt = m.CreatedAt.UTC()
	m.UpdatedAt = m.UpdatedAt.UTC()
	return m, nil
}

// List returns the user's meters ordered by id. A user without meters gets an empty, non-nil slice.
func (r *MeterSQLite) List(ctx context.Context, userID int) ([]models.Meter, error) {
	rows, err := r.db.QueryContext(ctx, selectMetersByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("list meters for user %d: %w", userID, err)
	}
	defer rows.Close()

	out := make([]models.Meter, 0, 8)
	for rows.Next() {
		m, err := scanMeter(rows)
		if err != nil {
			return nil, fmt.Errorf("scan meter: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Get fetches a single meter owned by userID.
func (r *MeterSQLite) Get(ctx context.Context, userID int, meterID int64) (models.Meter, error) {
	m, err := scanMeter(r.db.QueryRowContext(ctx, selectMeterSQL, meterID, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Meter{}, ErrMeterNotFound
		}
		return models.Meter{}, fmt.Errorf("select meter %d: %w", meterID, err)
	}
	return m, nil
}

// Create registers a new, empty meter. Meter numbers are unique across all users.
func (r *MeterSQLite) Create(ctx context.Context, userID int, meterNumber string) (models.Meter, error) {
	var existing int64
	err := r.db.QueryRowContext(ctx, selectMeterNumberSQL, meterNumber).Scan(&existing)
	switch {
	case err == nil:
		return models.Meter{}, fmt.Errorf("%w: %s", ErrMeterExists, meterNumber)
	case !errors.Is(err, sql.ErrNoRows):
		return models.Meter{}, fmt.Errorf("check meter number %q: %w", meterNumber, err)
	}

	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, insertMeterSQL, userID, meterNumber, now, now)
	if err != nil {
		return models.Meter{}, fmt.Errorf("insert meter %q: %w", meterNumber, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Meter{}, fmt.Errorf("get last insert id for meter %q: %w", meterNumber, err)
	}
	return models.Meter{
		ID:          id,
		UserID:      userID,
		MeterNumber: meterNumber,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Delete removes a meter owned by userID.
func (r *MeterSQLite) Delete(ctx context.Context, userID int, meterID int64) error {
	res, err := r.db.ExecContext(ctx, deleteMeterSQL, meterID, userID)
	if err != nil {
		return fmt.Errorf("delete meter %d: %w", meterID, err)
	}
	return expectOneRow(res, meterID)
}

// UpdateUnits overwrites the meter's current and used units.
func (r *MeterSQLite) UpdateUnits(ctx context.Context, userID int, meterID int64, u models.Units) error {
	res, err := r.db.ExecContext(ctx, updateUnitsSQL,
		roundUnits(u.CurrentUnits),
		roundUnits(u.UsedUnits),
		time.Now().UTC(),
		meterID,
		userID,
	)
	if err != nil {
		return fmt.Errorf("update units for meter %d: %w", meterID, err)
	}
	return expectOneRow(res, meterID)
}

func expectOneRow(res sql.Result, meterID int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for meter %d: %w", meterID, err)
	}
	if n == 0 {
		return ErrMeterNotFound
	}
	return nil
}
