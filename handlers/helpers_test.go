package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"step-challenge-system/middleware"
	"step-challenge-system/models"
	"step-challenge-system/services"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testServiceToken = "gateway-secret"

var t0 = time.Date(2024, time.March, 14, 9, 0, 0, 0, time.UTC)

type testServer struct {
	app *fiber.App
	db  *gorm.DB

	mu  sync.Mutex
	now time.Time
}

func (s *testServer) clockNow() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *testServer) advance(d time.Duration) {
	s.mu.Lock()
	s.now = s.now.Add(d)
	s.mu.Unlock()
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))

	srv := &testServer{db: db, now: t0}
	log := zap.NewNop()
	clock := services.Clock{Location: time.UTC, Now: srv.clockNow}
	locks := services.NewUserLocks()

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(log)})
	app.Use(middleware.GatewayAuthMiddleware(testServiceToken, log))
	SetupRoutes(app, Services{
		Accounts:    services.NewAccountService(db, log),
		Plans:       services.NewPlanService(db, log),
		Challenges:  services.NewChallengeService(db, locks, clock, log),
		Withdrawals: services.NewWithdrawalService(db, locks, clock, log),
		Reports:     services.NewReportService(db, clock, nil, log),
	}, log)
	srv.app = app
	return srv
}

type call struct {
	method string
	path   string
	body   interface{}
	user   string
	roles  string
	token  string
}

// do sends the call through the app and decodes a JSON response body.
func (s *testServer) do(t *testing.T, c call) (int, interface{}) {
	t.Helper()
	var reader io.Reader
	if c.body != nil {
		raw, ok := c.body.(string)
		if !ok {
			b, err := json.Marshal(c.body)
			require.NoError(t, err)
			raw = string(b)
		}
		reader = bytes.NewBufferString(raw)
	}

	req := httptest.NewRequest(c.method, c.path, reader)
	req.Header.Set("Content-Type", "application/json")
	token := c.token
	if token == "" {
		token = testServiceToken
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if c.user != "" {
		req.Header.Set("X-User-ID", c.user)
	}
	if c.roles != "" {
		req.Header.Set("X-User-Roles", c.roles)
	}

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out interface{}
	if len(payload) > 0 {
		require.NoError(t, json.Unmarshal(payload, &out), string(payload))
	}
	return resp.StatusCode, out
}

func obj(t *testing.T, v interface{}) map[string]interface{} {
	t.Helper()
	m, ok := v.(map[string]interface{})
	require.True(t, ok, "expected object, got %T", v)
	return m
}

func arr(t *testing.T, v interface{}) []interface{} {
	t.Helper()
	a, ok := v.([]interface{})
	require.True(t, ok, "expected array, got %T", v)
	return a
}

// createPlan creates a plan through the admin API and returns its id.
func (s *testServer) createPlan(t *testing.T, name string, target, reward int64, hours int) string {
	t.Helper()
	status, body := s.do(t, call{
		method: fiber.MethodPost, path: "/s/admin/plans", user: "admin-1", roles: "admin",
		body: map[string]interface{}{
			"name": name, "targetSteps": target, "rewardCoins": reward,
			"difficulty": "easy", "timeLimitHours": hours,
		},
	})
	require.Equal(t, fiber.StatusCreated, status, body)
	return obj(t, body)["id"].(string)
}
