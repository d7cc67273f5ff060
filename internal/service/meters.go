package service

import (
	"context"
	"errors"
	"strings"

	"smart_cash_power/internal/models"
	"smart_cash_power/internal/repository"
)

const maxMeterNumberLen = 32

var errInvalidMeterNumber = errors.New("invalid meter number: must be 1-32 characters without spaces")

// Exposed so handlers can map them to status codes.
var (
	ErrMeterNotFound      = repository.ErrMeterNotFound
	ErrMeterExists        = repository.ErrMeterExists
	ErrInvalidMeterNumber = errInvalidMeterNumber
)

type MeterService struct {
	repo repository.MeterRepo
}

func NewMeterService(repo repository.MeterRepo) *MeterService {
	return &MeterService{repo: repo}
}

// List returns the user's meters. It never returns a nil slice on success.
func (s *MeterService) List(ctx context.Context, userID int) ([]models.Meter, error) {
	meters, err := s.repo.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	if meters == nil {
		meters = []models.Meter{}
	}
	return meters, nil
}

// Add registers a meter for the user. New meters start with no units.
func (s *MeterService) Add(ctx context.Context, userID int, meterNumber string) (models.Meter, error) {
	n, err := normalizeMeterNumber(meterNumber)
	if err != nil {
		return models.Meter{}, err
	}
	return s.repo.Create(ctx, userID, n)
}

// Delete removes one of the user's meters.
func (s *MeterService) Delete(ctx context.Context, userID int, meterID int64) error {
	if meterID <= 0 {
		return ErrMeterNotFound
	}
	return s.repo.Delete(ctx, userID, meterID)
}

func normalizeMeterNumber(s string) (string, error) {
	n := strings.TrimSpace(s)
	if n == "" || len(n) > maxMeterNumberLen || strings.ContainsAny(n, " \t\n") {
		return "", errInvalidMeterNumber
	}
	return n, nil
}
