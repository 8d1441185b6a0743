package workers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"step-challenge-system/models"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func TestProfileSyncMirrorsDisplayFields(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&models.Account{ID: "u1", Role: "admin", CoinBalance: 40, CompletedChallenges: 2}).Error)

	var (
		mu     sync.Mutex
		sinces []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Service-Token") != "svc" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "/api/v1/public/profiles", r.URL.Path)
		mu.Lock()
		sinces = append(sinces, r.URL.Query().Get("since"))
		first := len(sinces) == 1
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if !first {
			_, _ = w.Write([]byte(`{"users":[]}`))
			return
		}
		_, _ = w.Write([]byte(`{"users":[
			{"external_id":"u1","email":"ada@example.com","first_name":"Ada","last_name":"Lovelace","profile_picture_url":"https://cdn/ada.png","updated_at":"2024-03-10T08:00:00Z"},
			{"external_id":"u2","email":"bob@example.com","first_name":"Bob","updated_at":"2024-03-12T08:00:00Z"},
			{"external_id":"","email":"nobody@example.com","updated_at":"2024-03-13T08:00:00Z"}
		]}`))
	}))
	defer srv.Close()

	w := NewProfileSyncWorker(db, zap.NewNop(), srv.URL, "/api/v1/public/profiles", "svc")

	n, err := w.SyncOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var u1 models.Account
	require.NoError(t, db.Where("id = ?", "u1").First(&u1).Error)
	assert.Equal(t, "Ada", u1.FirstName)
	assert.Equal(t, "https://cdn/ada.png", u1.AvatarURL)
	assert.Equal(t, int64(40), u1.CoinBalance)
	assert.Equal(t, int64(2), u1.CompletedChallenges)
	assert.Equal(t, "admin", u1.Role)

	var u2 models.Account
	require.NoError(t, db.Where("id = ?", "u2").First(&u2).Error)
	assert.Equal(t, "Bob", u2.FirstName)
	assert.Equal(t, "user", u2.Role)
	assert.Zero(t, u2.CoinBalance)

	n, err = w.SyncOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	require.Len(t, sinces, 2)
	assert.Equal(t, "1970-01-01T00:00:00Z", sinces[0])
	assert.Equal(t, "2024-03-12T08:00:00Z", sinces[1])
}

func TestProfileSyncReportsServiceErrors(t *testing.T) {
	db := newTestDB(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer srv.Close()

	w := NewProfileSyncWorker(db, zap.NewNop(), srv.URL, "/profiles", "svc")
	_, err := w.SyncOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestProfileSyncRetriesFromFailedProfile(t *testing.T) {
	db := newTestDB(t)
	all := []RemoteProfile{
		{ExternalID: "u3", Email: "c@example.com", UpdatedAt: time.Date(2024, 3, 12, 8, 0, 0, 0, time.UTC)},
		{ExternalID: "u1", Email: "a@example.com", UpdatedAt: time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)},
		{ExternalID: "u2", Email: "b@example.com", UpdatedAt: time.Date(2024, 3, 11, 8, 0, 0, 0, time.UTC)},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		since, err := time.Parse(time.RFC3339Nano, r.URL.Query().Get("since"))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var out profileChangesResponse
		for _, p := range all {
			if p.UpdatedAt.After(since) {
				out.Users = append(out.Users, p)
			}
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	const hook = "test:fail_u2"
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register(hook, func(tx *gorm.DB) {
		if acct, ok := tx.Statement.Dest.(*models.Account); ok && acct.ID == "u2" {
			_ = tx.AddError(errors.New("disk full"))
		}
	}))

	w := NewProfileSyncWorker(db, zap.NewNop(), srv.URL, "/profiles", "svc")
	n, err := w.SyncOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "u2")
	assert.Equal(t, 1, n)

	var count int64
	require.NoError(t, db.Model(&models.Account{}).Where("id = ?", "u3").Count(&count).Error)
	assert.Zero(t, count, "profiles after the failure wait for the next run")

	require.NoError(t, db.Callback().Create().Remove(hook))
	n, err = w.SyncOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, db.Model(&models.Account{}).Count(&count).Error)
	assert.Equal(t, int64(3), count)
}
