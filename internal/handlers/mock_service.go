package handlers

import (
	"context"
	"net/http"
	"sync"

	"smart_cash_power/internal/drain"
	"smart_cash_power/internal/models"
	"smart_cash_power/internal/service"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockAuth struct {
	signUpID      int
	signUpErr     error
	genTokenToken string
	genTokenErr   error
	parseID       int
	parseRole     string
	parseErr      error

	lastSignUpUsername string
	lastSignUpPassword string
	lastSignUpRole     string
	lastGenUsername    string
	lastGenPassword    string
	lastParseToken     string
}

func (m *mockAuth) SignUp(username, password, role string) (int, error) {
	m.lastSignUpUsername = username
	m.lastSignUpPassword = password
	m.lastSignUpRole = role
	return m.signUpID, m.signUpErr
}
func (m *mockAuth) GenerateToken(username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (models.Identity, error) {
	m.lastParseToken = token
	role := m.parseRole
	if role == "" {
		role = models.RoleUser
	}
	return models.Identity{UserID: m.parseID, Role: role}, m.parseErr
}

type mockMeters struct {
	list      []models.Meter
	listErr   error
	added     models.Meter
	addErr    error
	deleteErr error

	lastUserID int
	lastNumber string
	lastDelete int64
}

func (m *mockMeters) List(ctx context.Context, userID int) ([]models.Meter, error) {
	m.lastUserID = userID
	return m.list, m.listErr
}
func (m *mockMeters) Add(ctx context.Context, userID int, number string) (models.Meter, error) {
	m.lastUserID = userID
	m.lastNumber = number
	return m.added, m.addErr
}
func (m *mockMeters) Delete(ctx context.Context, userID int, meterID int64) error {
	m.lastUserID = userID
	m.lastDelete = meterID
	return m.deleteErr
}

type mockLedger struct {
	err        error
	calls      int
	lastMeter  int64
	lastUnits  models.Units
	lastReason string
	lastCred   string
}

func (m *mockLedger) WriteUnits(ctx context.Context, userID int, meterID int64, u models.Units) error {
	m.calls++
	m.lastMeter = meterID
	m.lastUnits = u
	m.lastReason = drain.ReasonFrom(ctx)
	m.lastCred = service.CredentialFrom(ctx)
	return m.err
}

func (m *mockLedger) Credit(ctx context.Context, userID int, meterID int64, amount float64) (models.Units, error) {
	m.calls++
	m.lastMeter = meterID
	m.lastUnits = models.Units{CurrentUnits: amount}
	m.lastReason = drain.ReasonFrom(ctx)
	return m.lastUnits, m.err
}

type mockPurchases struct {
	tx      models.Transaction
	err     error
	history []models.Transaction
	histErr error

	lastUserID int
	lastMeter  int64
	lastAmount float64
	lastCred   string
}

func (m *mockPurchases) Purchase(ctx context.Context, userID int, meterID int64, amount float64) (models.Transaction, error) {
	m.lastUserID = userID
	m.lastMeter = meterID
	m.lastAmount = amount
	m.lastCred = service.CredentialFrom(ctx)
	return m.tx, m.err
}
func (m *mockPurchases) Transactions(ctx context.Context, userID int) ([]models.Transaction, error) {
	m.lastUserID = userID
	return m.history, m.histErr
}

type mockLedgerLog struct {
	resp       []models.LedgerEvent
	err        error
	lastUserID int
	lastFilter service.LogFilter
}

func (m *mockLedgerLog) History(ctx context.Context, userID int, f service.LogFilter) ([]models.LedgerEvent, error) {
	m.lastUserID = userID
	m.lastFilter = f
	return m.resp, m.err
}

type mockDashboard struct {
	mu sync.Mutex

	live       service.LiveView
	liveErr    error
	canonical  []models.Meter
	snapshot   models.Meter
	snapErr    error
	refreshErr error
	flush      drain.FlushResult

	opened    []models.Identity
	openCreds []string
	closed    []int
	refreshes int
}

func (m *mockDashboard) Open(ctx context.Context, id models.Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opened = append(m.opened, id)
	m.openCreds = append(m.openCreds, service.CredentialFrom(ctx))
}
func (m *mockDashboard) Close(ctx context.Context, userID int) drain.FlushResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = append(m.closed, userID)
	return m.flush
}
func (m *mockDashboard) Live(userID int) (service.LiveView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live, m.liveErr
}
func (m *mockDashboard) Canonical(userID int) ([]models.Meter, error) {
	return m.canonical, m.liveErr
}
func (m *mockDashboard) PurchaseSnapshot(userID int, meterID int64) (models.Meter, error) {
	return m.snapshot, m.snapErr
}
func (m *mockDashboard) Refresh(ctx context.Context, userID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshes++
	return m.refreshErr
}
func (m *mockDashboard) Shutdown(ctx context.Context) error { return nil }

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
