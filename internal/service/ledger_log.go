package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"smart_cash_power/internal/models"
	"smart_cash_power/internal/repository"
)

type LedgerLogService struct {
	eventRepo repository.LedgerRepo
}

func NewLedgerLogService(eventRepo repository.LedgerRepo) *LedgerLogService {
	return &LedgerLogService{eventRepo: eventRepo}
}

var (
	errInvalidTimeRange = errors.New("invalid time range: From must be <= To")
	errInvalidReason    = errors.New("invalid reason: must be ZERO_CROSSING, LOGOUT_FLUSH, MANUAL or PURCHASE")
)

// ErrInvalidFilter is returned for any malformed history filter.
var ErrInvalidFilter = errors.New("invalid ledger filter")

// normalizeToUTC returns t in UTC, preserving zero time values.
func normalizeToUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

// normalizeReason trims spaces and uppercases the reason filter.
func normalizeReason(s string) (string, error) {
	r := strings.TrimSpace(strings.ToUpper(s))
	switch r {
	case "", models.ReasonZeroCrossing, models.ReasonLogoutFlush, models.ReasonManual, models.ReasonPurchase:
		return r, nil
	}
	return "", errInvalidReason
}

// normalizeAndValidateFilter prepares query parameters and validates them.
func normalizeAndValidateFilter(f LogFilter) (time.Time, time.Time, string, error) {
	from := normalizeToUTC(f.From)
	to := normalizeToUTC(f.To)

	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return time.Time{}, time.Time{}, "", errors.Join(ErrInvalidFilter, errInvalidTimeRange)
	}

	reason, err := normalizeReason(f.Reason)
	if err != nil {
		return time.Time{}, time.Time{}, "", errors.Join(ErrInvalidFilter, err)
	}
	return from, to, reason, nil
}

// History lists the user's ledger events, oldest first.
func (s *LedgerLogService) History(ctx context.Context, userID int, f LogFilter) ([]models.LedgerEvent, error) {
	from, to, reason, err := normalizeAndValidateFilter(f)
	if err != nil {
		return nil, err
	}
	return s.eventRepo.List(ctx, userID, from, to, reason)
}
