package drain

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"smart_cash_power/internal/models"
)

// flush writes every meter's units with all-settled semantics. The caller's
// cancellation is detached so a closed HTTP request cannot cut it short;
// each write is still bounded by WriteTimeout. Unsaved meters (ID 0) are
// skipped and not counted.
func (s *Session) flush(ctx context.Context, snapshot []models.Meter) FlushResult {
	meters := make([]models.Meter, 0, len(snapshot))
	for _, m := range snapshot {
		if m.ID != 0 {
			meters = append(meters, m)
		}
	}
	res := FlushResult{Attempted: len(meters)}
	if len(meters) == 0 {
		return res
	}
	ctx = WithReason(context.WithoutCancel(ctx), models.ReasonLogoutFlush)

	var (
		mu   sync.Mutex
		errs error
		g    errgroup.Group
	)
	g.SetLimit(s.cfg.FlushConcurrency)
	for _, m := range meters {
		m := m
		g.Go(func() error {
			wctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
			defer cancel()
			err := s.ledger.WriteMeterUnits(wctx, m.ID, models.Units{
				CurrentUnits: m.CurrentUnits,
				UsedUnits:    m.UsedUnits,
			})
			s.metrics.ledgerWrite(models.ReasonLogoutFlush, err)
			if err != nil {
				mu.Lock()
				res.Failed++
				errs = multierr.Append(errs, fmt.Errorf("meter %d: %w", m.ID, err))
				mu.Unlock()
			}
			// never fail the group: one write must not stop the others
			return nil
		})
	}
	_ = g.Wait()
	res.Err = errs

	if errs != nil {
		s.log.Warnw("drain_logout_flush_partial", "attempted", res.Attempted, "failed", res.Failed, "err", errs)
	} else {
		s.log.Infow("drain_logout_flush", "attempted", res.Attempted)
	}
	return res
}
