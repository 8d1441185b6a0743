// workers/profile_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"step-challenge-system/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RemoteProfile is one entry of the profile service's change feed.
type RemoteProfile struct {
	ExternalID        string    `json:"external_id"`
	Email             string    `json:"email"`
	FirstName         *string   `json:"first_name,omitempty"`
	LastName          *string   `json:"last_name,omitempty"`
	ProfilePictureURL *string   `json:"profile_picture_url,omitempty"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type profileChangesResponse struct {
	Users []RemoteProfile `json:"users"`
}

// ProfileSyncWorker mirrors display fields from the profile service into
// accounts. It never touches balances or challenge state.
type ProfileSyncWorker struct {
	db           *gorm.DB
	logger       *zap.Logger
	interval     time.Duration
	baseURL      string
	endpointPath string
	serviceToken string
	httpClient   *http.Client
}

func NewProfileSyncWorker(db *gorm.DB, logger *zap.Logger, baseURL, endpointPath, serviceToken string) *ProfileSyncWorker {
	return &ProfileSyncWorker{
		db:           db,
		logger:       logger,
		interval:     time.Minute,
		baseURL:      baseURL,
		endpointPath: endpointPath,
		serviceToken: serviceToken,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (w *ProfileSyncWorker) Start(ctx context.Context) {
	w.logger.Info("profile_sync_started", zap.String("base_url", w.baseURL), zap.Duration("interval", w.interval))
	go w.run(ctx)
}

func (w *ProfileSyncWorker) run(ctx context.Context) {
	if _, err := w.SyncOnce(ctx); err != nil {
		w.logger.Warn("profile_sync_initial_failed", zap.Error(err))
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := w.SyncOnce(ctx); err != nil {
				w.logger.Error("profile_sync_failed", zap.Error(err))
			}
		case <-ctx.Done():
			w.logger.Info("profile_sync_stopped")
			return
		}
	}
}

// SyncOnce pulls changes newer than the last synced profile and returns
// how many accounts were upserted. Profiles are applied oldest first and a
// failed upsert stops the batch, so the cursor never moves past it and the
// rest is fetched again next run.
func (w *ProfileSyncWorker) SyncOnce(ctx context.Context) (int, error) {
	since, err := w.lastSyncTime(ctx)
	if err != nil {
		return 0, err
	}
	profiles, err := w.fetch(ctx, since)
	if err != nil {
		return 0, err
	}
	if len(profiles) == 0 {
		return 0, nil
	}
	sort.SliceStable(profiles, func(i, j int) bool {
		return profiles[i].UpdatedAt.Before(profiles[j].UpdatedAt)
	})

	upserted := 0
	for _, p := range profiles {
		if p.ExternalID == "" {
			w.logger.Error("profile_sync_skipped", zap.String("reason", "missing external_id"), zap.String("email", p.Email))
			continue
		}
		if err := w.upsert(ctx, p); err != nil {
			w.logger.Info("profile_sync_batch", zap.Int("received", len(profiles)), zap.Int("upserted", upserted))
			return upserted, fmt.Errorf("upsert profile %s: %w", p.ExternalID, err)
		}
		upserted++
	}

	w.logger.Info("profile_sync_batch", zap.Int("received", len(profiles)), zap.Int("upserted", upserted))
	return upserted, nil
}

// lastSyncTime is the newest remote updated_at we have applied, or the epoch.
func (w *ProfileSyncWorker) lastSyncTime(ctx context.Context) (time.Time, error) {
	var acct models.Account
	err := w.db.WithContext(ctx).
		Select("id", "profile_synced_at").
		Where("profile_synced_at IS NOT NULL").
		Order("profile_synced_at DESC").
		First(&acct).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && acct.ProfileSyncedAt == nil) {
		return time.Unix(0, 0).UTC(), nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("read sync cursor: %w", err)
	}
	return acct.ProfileSyncedAt.UTC(), nil
}

func (w *ProfileSyncWorker) fetch(ctx context.Context, since time.Time) ([]RemoteProfile, error) {
	base, err := url.Parse(w.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid profile service URL %q: %w", w.baseURL, err)
	}
	endpoint := base.JoinPath(w.endpointPath)
	q := endpoint.Query()
	q.Set("since", since.UTC().Format(time.RFC3339Nano))
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build profile request: %w", err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("profile service request: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("profile service returned %d: %s", resp.StatusCode, string(body))
	}

	var out profileChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode profile changes: %w", err)
	}
	return out.Users, nil
}

func (w *ProfileSyncWorker) upsert(ctx context.Context, p RemoteProfile) error {
	synced := p.UpdatedAt.UTC()
	acct := models.Account{
		ID:              p.ExternalID,
		Email:           p.Email,
		FirstName:       deref(p.FirstName),
		LastName:        deref(p.LastName),
		AvatarURL:       deref(p.ProfilePictureURL),
		Role:            "user",
		ProfileSyncedAt: &synced,
	}
	return w.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"email", "first_name", "last_name", "avatar_url", "profile_synced_at",
		}),
	}).Create(&acct).Error
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
