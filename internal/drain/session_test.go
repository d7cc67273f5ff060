package drain

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"smart_cash_power/internal/logger"
	"smart_cash_power/internal/models"
)

// ---- Test doubles ----

type stubDirectory struct {
	mu     sync.Mutex
	meters []models.Meter
	err    error
	calls  int
	gate   chan struct{} // when set, FetchMeters blocks until it is closed
}

func (d *stubDirectory) FetchMeters(ctx context.Context) ([]models.Meter, error) {
	d.mu.Lock()
	gate := d.gate
	d.mu.Unlock()
	if gate != nil {
		<-gate
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	return models.CloneMeters(d.meters), d.err
}

func (d *stubDirectory) set(ms []models.Meter) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.meters = ms
}

type ledgerCall struct {
	meterID int64
	units   models.Units
	reason  string
}

type stubLedger struct {
	mu    sync.Mutex
	calls []ledgerCall
	fail  map[int64]error
}

func (l *stubLedger) WriteMeterUnits(ctx context.Context, meterID int64, u models.Units) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, ledgerCall{meterID: meterID, units: u, reason: ReasonFrom(ctx)})
	return l.fail[meterID]
}

func (l *stubLedger) snapshot() []ledgerCall {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ledgerCall, len(l.calls))
	copy(out, l.calls)
	return out
}

// manualClock hands out tickers that only fire when the test says so.
type manualClock struct {
	mu      sync.Mutex
	tickers []*manualTicker
}

type manualTicker struct {
	c       chan time.Time
	mu      sync.Mutex
	stopped bool
}

func (c *manualClock) NewTicker(time.Duration) Ticker {
	t := &manualTicker{c: make(chan time.Time)}
	c.mu.Lock()
	c.tickers = append(c.tickers, t)
	c.mu.Unlock()
	return t
}

func (t *manualTicker) C() <-chan time.Time { return t.c }
func (t *manualTicker) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *manualTicker) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func (c *manualClock) last() *manualTicker {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.tickers) == 0 {
		return nil
	}
	return c.tickers[len(c.tickers)-1]
}

// fire delivers one tick and reports whether the session accepted it.
func (t *manualTicker) fire() bool {
	select {
	case t.c <- time.Now():
		return true
	case <-time.After(50 * time.Millisecond):
		return false
	}
}

var (
	customer = &models.Identity{UserID: 1, Role: models.RoleUser}
	admin    = &models.Identity{UserID: 2, Role: models.RoleAdmin}
)

func newTestSession(t *testing.T, dir *stubDirectory, ledger *stubLedger, opts ...Option) (*Session, *manualClock) {
	t.Helper()
	clk := &manualClock{}
	s := NewSession(dir, ledger, append([]Option{WithClock(clk)}, opts...)...)
	t.Cleanup(s.Close)
	return s, clk
}

func ledgerCalls(t *testing.T, l *stubLedger, n int) []ledgerCall {
	t.Helper()
	require.Eventually(t, func() bool { return len(l.snapshot()) >= n }, time.Second, 5*time.Millisecond)
	return l.snapshot()
}

// ---- Tests ----

func TestSession_DrainsOnTicksAndWritesCrossingOnce(t *testing.T) {
	dir := &stubDirectory{meters: []models.Meter{{ID: 9, MeterNumber: "A", CurrentUnits: 0.003, UsedUnits: 10}}}
	ledger := &stubLedger{}
	s, clk := newTestSession(t, dir, ledger)

	s.OnSessionChange(context.Background(), customer)
	require.True(t, s.Active())
	tk := clk.last()
	require.NotNil(t, tk)

	require.True(t, tk.fire())
	live := s.Draining()
	assert.InDelta(t, 0.001, live[0].CurrentUnits, 1e-12)
	assert.InDelta(t, 10.002, live[0].UsedUnits, 1e-12)

	require.True(t, tk.fire())
	calls := ledgerCalls(t, ledger, 1)
	assert.Equal(t, int64(9), calls[0].meterID)
	assert.Equal(t, 0.0, calls[0].units.CurrentUnits)
	assert.InDelta(t, 10.003, calls[0].units.UsedUnits, 1e-12)
	assert.Equal(t, models.ReasonZeroCrossing, calls[0].reason)

	for i := 0; i < 20; i++ {
		require.True(t, tk.fire())
	}
	live = s.Draining()
	assert.Equal(t, 0.0, live[0].CurrentUnits)
	assert.InDelta(t, 10.0+22*DefaultRate, live[0].UsedUnits, 1e-9)

	s.Close()
	assert.Len(t, ledger.snapshot(), 1)
}

func TestSession_CanonicalViewIgnoresTicks(t *testing.T) {
	dir := &stubDirectory{meters: []models.Meter{{ID: 1, MeterNumber: "A", CurrentUnits: 5, UsedUnits: 1}}}
	s, _ := newTestSession(t, dir, &stubLedger{})

	s.OnSessionChange(context.Background(), customer)
	for i := 0; i < 3; i++ {
		s.Tick()
	}

	assert.InDelta(t, 4.994, s.Draining()[0].CurrentUnits, 1e-12)
	assert.Equal(t, 5.0, s.Canonical()[0].CurrentUnits)

	snap, ok := s.PurchaseSnapshot(1)
	require.True(t, ok)
	assert.Equal(t, 5.0, snap.CurrentUnits)
	_, ok = s.PurchaseSnapshot(42)
	assert.False(t, ok)
}

func TestSession_SnapshotsAreCopies(t *testing.T) {
	dir := &stubDirectory{meters: []models.Meter{{ID: 1, CurrentUnits: 5}}}
	s, _ := newTestSession(t, dir, &stubLedger{})
	s.OnSessionChange(context.Background(), customer)

	live := s.Draining()
	live[0].CurrentUnits = 1000
	assert.Equal(t, 5.0, s.Draining()[0].CurrentUnits)
}

func TestSession_AdminNeverDrains(t *testing.T) {
	dir := &stubDirectory{meters: []models.Meter{{ID: 1, CurrentUnits: 5}}}
	s, clk := newTestSession(t, dir, &stubLedger{})

	s.OnSessionChange(context.Background(), admin)
	s.Tick()

	assert.Equal(t, 0, dir.calls)
	assert.False(t, s.Active())
	assert.Nil(t, clk.last())
	assert.Empty(t, s.Draining())
}

func TestSession_RoleSwitchStopsTicks(t *testing.T) {
	dir := &stubDirectory{meters: []models.Meter{{ID: 1, CurrentUnits: 5}}}
	ledger := &stubLedger{}
	s, clk := newTestSession(t, dir, ledger)

	s.OnSessionChange(context.Background(), customer)
	tk := clk.last()
	require.True(t, tk.fire())

	s.OnSessionChange(context.Background(), admin)
	assert.True(t, tk.isStopped())
	assert.False(t, tk.fire(), "a stopped ticker must not be consumed")
	s.Tick()
	assert.Empty(t, s.Draining())
	assert.Empty(t, s.Canonical())

	s.OnSessionChange(context.Background(), nil)
	assert.False(t, s.Active())
	assert.Empty(t, ledger.snapshot())
}

func TestSession_EmptyListDoesNotStartLoop(t *testing.T) {
	s, clk := newTestSession(t, &stubDirectory{}, &stubLedger{})
	s.OnSessionChange(context.Background(), customer)
	assert.False(t, s.Active())
	assert.Nil(t, clk.last())
	assert.False(t, s.Loading())
}

func TestSession_FetchFailureClearsViews(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	dir := &stubDirectory{meters: []models.Meter{{ID: 1, CurrentUnits: 5}}}
	s, _ := newTestSession(t, dir, &stubLedger{}, WithLogger(logger.New(core)))

	s.OnSessionChange(context.Background(), customer)
	require.Len(t, s.Draining(), 1)

	dir.mu.Lock()
	dir.err = errors.New("connection refused")
	dir.mu.Unlock()
	s.Refresh(context.Background())

	assert.Empty(t, s.Draining())
	assert.Empty(t, s.Canonical())
	assert.False(t, s.Active())
	assert.False(t, s.Loading())
	assert.Equal(t, 1, logs.FilterMessage("drain_fetch_meters_failed").Len())
}

func TestSession_RefreshDiscardsLocalProgress(t *testing.T) {
	dir := &stubDirectory{meters: []models.Meter{{ID: 1, MeterNumber: "A", CurrentUnits: 5, UsedUnits: 0}}}
	s, _ := newTestSession(t, dir, &stubLedger{})
	s.OnSessionChange(context.Background(), customer)
	s.Tick()
	s.Tick()

	dir.set([]models.Meter{
		{ID: 1, MeterNumber: "A", CurrentUnits: 5, UsedUnits: 0},
		{ID: 2, MeterNumber: "B", CurrentUnits: 0, UsedUnits: 0},
	})
	s.Refresh(context.Background())

	live := s.Draining()
	require.Len(t, live, 2)
	assert.Equal(t, 5.0, live[0].CurrentUnits)
	assert.Equal(t, 0.0, live[0].UsedUnits)
	assert.Equal(t, live, s.Canonical())
}

func TestSession_RefreshAllowsNewCrossingAfterTopUp(t *testing.T) {
	dir := &stubDirectory{meters: []models.Meter{{ID: 3, CurrentUnits: 0.002, UsedUnits: 0}}}
	ledger := &stubLedger{}
	s, _ := newTestSession(t, dir, ledger)
	s.OnSessionChange(context.Background(), customer)
	s.Tick()
	ledgerCalls(t, ledger, 1)

	// still empty on the server: no new crossing
	dir.set([]models.Meter{{ID: 3, CurrentUnits: 0, UsedUnits: 0.002}})
	s.Refresh(context.Background())
	s.Tick()

	// topped up by a purchase
	dir.set([]models.Meter{{ID: 3, CurrentUnits: 0.002, UsedUnits: 0.002}})
	s.Refresh(context.Background())
	s.Tick()

	calls := ledgerCalls(t, ledger, 2)
	s.Close()
	assert.Len(t, ledger.snapshot(), 2)
	assert.InDelta(t, 0.004, calls[1].units.UsedUnits, 1e-12)
}

func TestSession_LogoutFlushesEveryMeterDespiteFailures(t *testing.T) {
	dir := &stubDirectory{meters: []models.Meter{
		{ID: 1, CurrentUnits: 2, UsedUnits: 1},
		{ID: 2, CurrentUnits: 3, UsedUnits: 4},
	}}
	ledger := &stubLedger{fail: map[int64]error{1: errors.New("503")}}
	core, logs := observer.New(zapcore.InfoLevel)
	s, _ := newTestSession(t, dir, ledger, WithLogger(logger.New(core)))

	s.OnSessionChange(context.Background(), customer)
	s.Tick()
	s.Tick()

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // an aborted request must not cut the flush short
	res := s.Logout(ctx)

	assert.Equal(t, 2, res.Attempted)
	assert.Equal(t, 1, res.Failed)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "meter 1")

	calls := ledger.snapshot()
	require.Len(t, calls, 2)
	byID := map[int64]ledgerCall{}
	for _, c := range calls {
		byID[c.meterID] = c
		assert.Equal(t, models.ReasonLogoutFlush, c.reason)
	}
	assert.InDelta(t, 1.996, byID[1].units.CurrentUnits, 1e-12)
	assert.InDelta(t, 1.004, byID[1].units.UsedUnits, 1e-12)
	assert.InDelta(t, 2.996, byID[2].units.CurrentUnits, 1e-12)
	assert.InDelta(t, 4.004, byID[2].units.UsedUnits, 1e-12)

	assert.Empty(t, s.Draining())
	assert.False(t, s.Active())
	assert.Equal(t, 1, logs.FilterMessage("drain_logout_flush_partial").Len())
}

func TestSession_LogoutWithoutMetersWritesNothing(t *testing.T) {
	ledger := &stubLedger{}
	s, _ := newTestSession(t, &stubDirectory{}, ledger)
	res := s.Logout(context.Background())
	assert.Equal(t, FlushResult{}, res)
	assert.Empty(t, ledger.snapshot())
}

func TestSession_LogoutSkipsUnsavedMeters(t *testing.T) {
	dir := &stubDirectory{meters: []models.Meter{
		{ID: 0, CurrentUnits: 1},
		{ID: 4, CurrentUnits: 1},
	}}
	ledger := &stubLedger{}
	s, _ := newTestSession(t, dir, ledger)

	s.OnSessionChange(context.Background(), customer)
	s.Tick()
	res := s.Logout(context.Background())

	assert.Equal(t, FlushResult{Attempted: 1}, res)
	calls := ledger.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, int64(4), calls[0].meterID)
}

func TestSession_ZeroCrossingFailureIsLoggedNotRetried(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	dir := &stubDirectory{meters: []models.Meter{{ID: 5, CurrentUnits: 0.002}}}
	ledger := &stubLedger{fail: map[int64]error{5: errors.New("timeout")}}
	s, _ := newTestSession(t, dir, ledger, WithLogger(logger.New(core)))

	s.OnSessionChange(context.Background(), customer)
	s.Tick()
	s.Tick()
	s.Tick()
	s.Close()

	assert.Len(t, ledger.snapshot(), 1)
	assert.Equal(t, 1, logs.FilterMessage("drain_zero_crossing_write_failed").Len())
}

func TestSession_StaleFetchIsDropped(t *testing.T) {
	gate := make(chan struct{})
	dir := &stubDirectory{meters: []models.Meter{{ID: 1, CurrentUnits: 5}}, gate: gate}
	s, _ := newTestSession(t, dir, &stubLedger{})

	done := make(chan struct{})
	go func() {
		s.OnSessionChange(context.Background(), customer)
		close(done)
	}()
	require.Eventually(t, s.Loading, time.Second, time.Millisecond)

	s.OnSessionChange(context.Background(), nil) // logout while the fetch is pending
	close(gate)
	<-done

	assert.Empty(t, s.Draining())
	assert.False(t, s.Active())
}

func TestSession_MetricsCountTicksAndWrites(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	dir := &stubDirectory{meters: []models.Meter{{ID: 1, CurrentUnits: 0.002}}}
	ledger := &stubLedger{}
	s, _ := newTestSession(t, dir, ledger, WithMetrics(m))

	s.OnSessionChange(context.Background(), customer)
	s.Tick()
	s.Tick()
	s.Logout(context.Background())
	s.Close()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ticks))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ledgerWrites.WithLabelValues(models.ReasonZeroCrossing, "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ledgerWrites.WithLabelValues(models.ReasonLogoutFlush, "ok")))
}

func TestSession_ClosedSessionIsInert(t *testing.T) {
	dir := &stubDirectory{meters: []models.Meter{{ID: 1, CurrentUnits: 5}}}
	s, _ := newTestSession(t, dir, &stubLedger{})
	s.OnSessionChange(context.Background(), customer)
	s.Close()

	assert.Nil(t, s.Draining())
	s.Tick()
	s.Close()
}

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, DefaultRate, cfg.Rate)
	assert.Equal(t, DefaultInterval, cfg.Interval)
	assert.Equal(t, DefaultWriteTimeout, cfg.WriteTimeout)
	assert.Equal(t, DefaultFlushConcurrency, cfg.FlushConcurrency)

	cfg = Config{Rate: 0.01, Interval: time.Minute}.withDefaults()
	assert.Equal(t, 0.01, cfg.Rate)
	assert.Equal(t, time.Minute, cfg.Interval)
}
