package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"smart_cash_power/internal/drain"
	"smart_cash_power/internal/logger"
	"smart_cash_power/internal/models"
)

const defaultFetchTimeout = 10 * time.Second

var (
	ErrNoSession      = errors.New("no active dashboard session")
	ErrMeterNotInView = errors.New("meter not in the canonical list")
)

// LiveView is the draining meter list as shown on the dashboard.
type LiveView struct {
	Meters  []models.Meter `json:"meters"`
	Loading bool           `json:"loading"`
	Active  bool           `json:"active"`
}

type DashboardOptions struct {
	Drain        drain.Config
	FetchTimeout time.Duration
	Log          *logger.Logger
	Metrics      *drain.Metrics
	Clock        drain.Clock
}

// DashboardService owns one drain session per signed-in, non-admin user.
type DashboardService struct {
	backend Backend
	opts    DashboardOptions
	log     *logger.Logger

	mu       sync.Mutex
	sessions map[int]*drain.Session
	closed   bool
}

func NewDashboardService(backend Backend, opts DashboardOptions) *DashboardService {
	if opts.Log == nil {
		opts.Log = logger.Nop()
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = defaultFetchTimeout
	}
	return &DashboardService{
		backend:  backend,
		opts:     opts,
		log:      opts.Log,
		sessions: make(map[int]*drain.Session),
	}
}

// Open starts the user's drain session from a fresh fetch, replacing any
// previous one without a flush. The session keeps the credential carried by
// ctx (see WithCredential) for all of its backend calls. Administrators never
// drain; an existing session of theirs is dropped.
func (d *DashboardService) Open(ctx context.Context, id models.Identity) {
	if id.IsAdmin() {
		d.drop(id.UserID)
		return
	}
	sess := d.replace(ctx, id.UserID)
	if sess == nil {
		return
	}
	fctx, cancel := d.fetchContext(ctx)
	defer cancel()
	sess.OnSessionChange(fctx, &id)
}

// Close ends the user's session and flushes its last computed units.
func (d *DashboardService) Close(ctx context.Context, userID int) drain.FlushResult {
	d.mu.Lock()
	sess := d.sessions[userID]
	delete(d.sessions, userID)
	d.mu.Unlock()
	if sess == nil {
		return drain.FlushResult{}
	}
	return d.finish(ctx, userID, sess)
}

func (d *DashboardService) Live(userID int) (LiveView, error) {
	sess := d.get(userID)
	if sess == nil {
		return LiveView{}, ErrNoSession
	}
	v := LiveView{Meters: sess.Draining(), Loading: sess.Loading(), Active: sess.Active()}
	if v.Meters == nil {
		v.Meters = []models.Meter{}
	}
	return v, nil
}

func (d *DashboardService) Canonical(userID int) ([]models.Meter, error) {
	sess := d.get(userID)
	if sess == nil {
		return nil, ErrNoSession
	}
	out := sess.Canonical()
	if out == nil {
		out = []models.Meter{}
	}
	return out, nil
}

// PurchaseSnapshot hands a point-in-time canonical copy of a meter to a
// purchase flow.
func (d *DashboardService) PurchaseSnapshot(userID int, meterID int64) (models.Meter, error) {
	sess := d.get(userID)
	if sess == nil {
		return models.Meter{}, ErrNoSession
	}
	m, ok := sess.PurchaseSnapshot(meterID)
	if !ok {
		return models.Meter{}, fmt.Errorf("%w: %d", ErrMeterNotInView, meterID)
	}
	return m, nil
}

// Refresh re-fetches the user's meters into both views.
func (d *DashboardService) Refresh(ctx context.Context, userID int) error {
	sess := d.get(userID)
	if sess == nil {
		return ErrNoSession
	}
	fctx, cancel := d.fetchContext(ctx)
	defer cancel()
	sess.Refresh(fctx)
	return nil
}

// Shutdown flushes and closes every session. Later Opens are ignored.
func (d *DashboardService) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	sessions := d.sessions
	d.sessions = make(map[int]*drain.Session)
	d.closed = true
	d.mu.Unlock()

	var (
		mu   sync.Mutex
		errs error
		g    errgroup.Group
	)
	for uid, sess := range sessions {
		uid, sess := uid, sess
		g.Go(func() error {
			res := d.finish(ctx, uid, sess)
			if res.Err != nil {
				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("user %d: %w", uid, res.Err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	d.log.Infow("dashboard_shutdown", "sessions", len(sessions), "err", errs)
	return errs
}

func (d *DashboardService) finish(ctx context.Context, userID int, sess *drain.Session) drain.FlushResult {
	res := sess.Logout(ctx)
	sess.Close()
	d.opts.Metrics.SessionClosed()
	d.log.Infow("dashboard_session_closed", "user_id", userID, "flushed", res.Attempted, "failed", res.Failed)
	return res
}

func (d *DashboardService) drop(userID int) {
	d.mu.Lock()
	sess := d.sessions[userID]
	delete(d.sessions, userID)
	d.mu.Unlock()
	if sess == nil {
		return
	}
	sess.Close()
	d.opts.Metrics.SessionClosed()
	d.log.Infow("dashboard_session_dropped", "user_id", userID)
}

func (d *DashboardService) get(userID int) *drain.Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessions[userID]
}

func (d *DashboardService) replace(ctx context.Context, userID int) *drain.Session {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	old := d.sessions[userID]
	dir, ledger := d.backend.Bind(ctx, userID)
	opts := []drain.Option{
		drain.WithConfig(d.opts.Drain),
		drain.WithLogger(d.log.With("user_id", userID)),
		drain.WithMetrics(d.opts.Metrics),
	}
	if d.opts.Clock != nil {
		opts = append(opts, drain.WithClock(d.opts.Clock))
	}
	sess := drain.NewSession(dir, ledger, opts...)
	d.sessions[userID] = sess
	d.mu.Unlock()

	d.opts.Metrics.SessionOpened()
	if old != nil {
		old.Close()
		d.opts.Metrics.SessionClosed()
	}
	d.log.Infow("dashboard_session_opened", "user_id", userID, "replaced", old != nil)
	return sess
}

func (d *DashboardService) fetchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), d.opts.FetchTimeout)
}
