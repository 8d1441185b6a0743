package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"step-challenge-system/models"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// T0 is a fixed instant well inside a UTC day.
var T0 = time.Date(2024, time.March, 14, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	return openTestDB(t, "file:"+uuid.NewString()+"?mode=memory&cache=shared", 1)
}

// newPooledTestDB opens a WAL-mode file database with several connections,
// so concurrent transactions really overlap and a missing application lock
// surfaces as busy errors or lost updates.
func newPooledTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "steps.db")
	return openTestDB(t, "file:"+path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", 8)
}

func openTestDB(t *testing.T, dsn string, conns int) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(conns)
	sqlDB.SetMaxIdleConns(conns)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

type fixture struct {
	DB          *gorm.DB
	Clock       *fakeClock
	Accounts    *AccountService
	Plans       *PlanService
	Challenges  *ChallengeService
	Withdrawals *WithdrawalService
	Reports     *ReportService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithDB(t, newTestDB(t))
}

func newFixtureWithDB(t *testing.T, db *gorm.DB) *fixture {
	t.Helper()
	fc := &fakeClock{now: T0}
	clock := Clock{Location: time.UTC, Now: fc.Now}
	locks := NewUserLocks()
	log := zap.NewNop()

	return &fixture{
		DB:          db,
		Clock:       fc,
		Accounts:    NewAccountService(db, log),
		Plans:       NewPlanService(db, log),
		Challenges:  NewChallengeService(db, locks, clock, log),
		Withdrawals: NewWithdrawalService(db, locks, clock, log),
		Reports:     NewReportService(db, clock, nil, log),
	}
}

func (f *fixture) plan(t *testing.T, name string, target, reward int64, hours, minutes int) *models.Plan {
	t.Helper()
	p, err := f.Plans.Create(context.Background(), PlanInput{
		Name:             name,
		TargetSteps:      target,
		RewardCoins:      reward,
		Difficulty:       "Easy",
		TimeLimitHours:   hours,
		TimeLimitMinutes: minutes,
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) account(t *testing.T, userID string) *models.Account {
	t.Helper()
	acct, err := f.Accounts.Get(context.Background(), userID)
	require.NoError(t, err)
	return acct
}

func (f *fixture) setBalance(t *testing.T, userID string, coins int64) {
	t.Helper()
	require.NoError(t, f.Accounts.Ensure(context.Background(), userID, "user"))
	require.NoError(t, f.DB.Model(&models.Account{}).Where("id = ?", userID).Update("coin_balance", coins).Error)
}

func (f *fixture) submit(t *testing.T, userID, date string, steps int64) *StepOutcome {
	t.Helper()
	out, err := f.Challenges.SubmitSteps(context.Background(), userID, SubmitStepsInput{Date: date, StepCount: &steps})
	require.NoError(t, err)
	return out
}

func (f *fixture) completions(t *testing.T, userID string) []models.ChallengeCompletion {
	t.Helper()
	var rows []models.ChallengeCompletion
	require.NoError(t, f.DB.Where("user_id = ?", userID).Find(&rows).Error)
	return rows
}

func int64p(v int64) *int64 { return &v }
