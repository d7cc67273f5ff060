package drain

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"smart_cash_power/internal/logger"
	"smart_cash_power/internal/models"
)

// Session drains one user's meters. The zero value is not usable; call NewSession.
type Session struct {
	dir     MeterDirectory
	ledger  UnitLedger
	cfg     Config
	rate    decimal.Decimal
	clock   Clock
	log     *logger.Logger
	metrics *Metrics

	cmds      chan func(*state)
	quit      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	inflight  sync.WaitGroup
}

// state is owned by the run goroutine.
type state struct {
	identity  *models.Identity
	gen       uint64 // bumped on every session change; stale fetches are dropped
	loading   bool
	canonical []models.Meter
	draining  []models.Meter
	zeroed    map[int64]struct{}
	ticker    Ticker
}

// Option configures a Session.
type Option func(*Session)

func WithConfig(cfg Config) Option       { return func(s *Session) { s.cfg = cfg } }
func WithClock(c Clock) Option           { return func(s *Session) { s.clock = c } }
func WithLogger(l *logger.Logger) Option { return func(s *Session) { s.log = l } }
func WithMetrics(m *Metrics) Option      { return func(s *Session) { s.metrics = m } }

// NewSession starts an idle session. It does nothing until OnSessionChange
// is called with a non-administrative identity.
func NewSession(dir MeterDirectory, ledger UnitLedger, opts ...Option) *Session {
	s := &Session{
		dir:     dir,
		ledger:  ledger,
		clock:   SystemClock{},
		log:     logger.Nop(),
		cmds:    make(chan func(*state)),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	s.cfg = s.cfg.withDefaults()
	s.rate = decimal.NewFromFloat(s.cfg.Rate)
	go s.run()
	return s
}

func (s *Session) run() {
	defer close(s.stopped)
	st := &state{zeroed: make(map[int64]struct{})}
	defer st.stopTicker()
	for {
		var tickC <-chan time.Time
		if st.ticker != nil {
			tickC = st.ticker.C()
		}
		select {
		case <-s.quit:
			return
		case fn := <-s.cmds:
			fn(st)
		case <-tickC:
			s.tick(st)
		}
	}
}

// exec runs fn on the session goroutine and waits for it to finish.
// It reports false if the session has been closed.
func (s *Session) exec(fn func(*state)) bool {
	done := make(chan struct{})
	select {
	case s.cmds <- func(st *state) { fn(st); close(done) }:
	case <-s.stopped:
		return false
	}
	<-done
	return true
}

// OnSessionChange tears down any running drain and, for a non-administrative
// identity, fetches the meter list and starts draining it. A nil identity
// leaves the session idle.
func (s *Session) OnSessionChange(ctx context.Context, id *models.Identity) {
	var (
		gen   uint64
		fetch bool
	)
	s.exec(func(st *state) {
		st.reset()
		st.gen++
		gen = st.gen
		if id == nil || id.IsAdmin() {
			return
		}
		who := *id
		st.identity = &who
		st.loading = true
		fetch = true
	})
	if fetch {
		s.install(ctx, gen, false)
	}
}

// Refresh re-fetches the meter list and resets both views to it. Local drain
// progress that was not written to the ledger is discarded.
func (s *Session) Refresh(ctx context.Context) {
	var (
		gen   uint64
		fetch bool
	)
	s.exec(func(st *state) {
		if st.identity == nil {
			return
		}
		st.loading = true
		gen = st.gen
		fetch = true
	})
	if fetch {
		s.install(ctx, gen, true)
	}
}

// install fetches outside the session goroutine so ticks are never blocked
// by the directory.
func (s *Session) install(ctx context.Context, gen uint64, refresh bool) {
	meters := s.fetch(ctx)
	s.exec(func(st *state) {
		if st.gen != gen {
			return
		}
		st.loading = false
		st.canonical = models.CloneMeters(meters)
		st.draining = models.CloneMeters(meters)
		if refresh {
			st.pruneZeroed()
		} else {
			st.zeroed = make(map[int64]struct{})
		}
		s.syncTicker(st)
	})
}

func (s *Session) fetch(ctx context.Context) []models.Meter {
	meters, err := s.dir.FetchMeters(ctx)
	if err != nil {
		s.log.Warnw("drain_fetch_meters_failed", "err", err)
		return nil
	}
	return meters
}

// Tick applies one drain step immediately, independent of the ticker.
func (s *Session) Tick() {
	s.exec(s.tick)
}

func (s *Session) tick(st *state) {
	if st.identity == nil || st.identity.IsAdmin() || len(st.draining) == 0 {
		return
	}
	next, writes := step(st.draining, s.rate, st.zeroed)
	st.draining = next
	s.metrics.tick()
	for _, w := range writes {
		s.writeZeroCrossing(w)
	}
}

// writeZeroCrossing is fire-and-forget: the tick does not wait for it and a
// failure leaves the local state untouched.
func (s *Session) writeZeroCrossing(w pendingWrite) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(WithReason(context.Background(), models.ReasonZeroCrossing), s.cfg.WriteTimeout)
		defer cancel()
		err := s.ledger.WriteMeterUnits(ctx, w.meterID, w.units)
		s.metrics.ledgerWrite(models.ReasonZeroCrossing, err)
		if err != nil {
			s.log.Errorw("drain_zero_crossing_write_failed", "meter_id", w.meterID, "err", err)
			return
		}
		s.log.Infow("drain_zero_crossing", "meter_id", w.meterID, "used_units", w.units.UsedUnits)
	}()
}

// Logout stops draining, clears the session and writes the last computed
// units of every tracked meter to the ledger. Individual failures are
// collected in the result; they never abort the flush.
func (s *Session) Logout(ctx context.Context) FlushResult {
	var snapshot []models.Meter
	s.exec(func(st *state) {
		snapshot = models.CloneMeters(st.draining)
		st.reset()
		st.gen++
	})
	return s.flush(ctx, snapshot)
}

// Draining returns a copy of the live, simulated meter list.
func (s *Session) Draining() []models.Meter {
	var out []models.Meter
	s.exec(func(st *state) { out = models.CloneMeters(st.draining) })
	return out
}

// Canonical returns a copy of the last fetched meter list.
func (s *Session) Canonical() []models.Meter {
	var out []models.Meter
	s.exec(func(st *state) { out = models.CloneMeters(st.canonical) })
	return out
}

// PurchaseSnapshot returns the canonical copy of a meter for hand-off to a
// purchase flow.
func (s *Session) PurchaseSnapshot(meterID int64) (models.Meter, bool) {
	var (
		m     models.Meter
		found bool
	)
	s.exec(func(st *state) {
		for _, c := range st.canonical {
			if c.ID == meterID {
				m, found = c, true
				return
			}
		}
	})
	return m, found
}

// Loading reports whether a fetch is outstanding.
func (s *Session) Loading() bool {
	var v bool
	s.exec(func(st *state) { v = st.loading })
	return v
}

// Active reports whether the drain loop is running.
func (s *Session) Active() bool {
	var v bool
	s.exec(func(st *state) { v = st.ticker != nil })
	return v
}

// Close stops the session goroutine and waits for in-flight ledger writes.
// It does not flush; call Logout first for that.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.quit)
		<-s.stopped
		s.inflight.Wait()
	})
}

func (s *Session) syncTicker(st *state) {
	run := st.identity != nil && !st.identity.IsAdmin() && len(st.draining) > 0
	switch {
	case run && st.ticker == nil:
		st.ticker = s.clock.NewTicker(s.cfg.Interval)
	case !run:
		st.stopTicker()
	}
}

func (st *state) stopTicker() {
	if st.ticker != nil {
		st.ticker.Stop()
		st.ticker = nil
	}
}

func (st *state) reset() {
	st.stopTicker()
	st.identity = nil
	st.loading = false
	st.canonical = nil
	st.draining = nil
	st.zeroed = make(map[int64]struct{})
}

// pruneZeroed forgets meters that have a positive balance again, so a
// topped-up meter can record a new zero-crossing.
func (st *state) pruneZeroed() {
	for id := range st.zeroed {
		keep := false
		for _, m := range st.draining {
			if m.ID == id && m.CurrentUnits <= 0 {
				keep = true
				break
			}
		}
		if !keep {
			delete(st.zeroed, id)
		}
	}
}
