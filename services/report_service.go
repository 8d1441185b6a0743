package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"step-challenge-system/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	caloriesPerStep      = 0.04
	stepsPerActiveMinute = 100

	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 20
	DefaultPeriod           = "7d"
)

// ResultCache stores computed read models. cache.Store implements it.
type ResultCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}) error
}

type DaySummary struct {
	Steps       int64 `json:"steps"`
	CoinsEarned int64 `json:"coinsEarned"`
	Calories    int64 `json:"calories"`
}

type Summary struct {
	Today     DaySummary `json:"today"`
	Yesterday DaySummary `json:"yesterday"`
}

type DayCount struct {
	Date      string `json:"date"`
	StepCount int64  `json:"stepCount"`
}

type StepHistory struct {
	ThisWeek []DayCount `json:"thisWeek"`
	LastWeek []DayCount `json:"lastWeek"`
}

type WeeklySummary struct {
	Steps       int64 `json:"steps"`
	CoinsEarned int64 `json:"coinsEarned"`
	TimeMinutes int64 `json:"timeMinutes"`
}

type LeaderboardEntry struct {
	UserID     string `json:"userId"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	AvatarURL  string `json:"avatarUrl"`
	Role       string `json:"role"`
	TotalSteps int64  `json:"totalSteps"`
}

// ReportService computes read-only rollups over the step ledger and completions.
type ReportService struct {
	DB     *gorm.DB
	Clock  Clock
	Cache  ResultCache
	Logger *zap.Logger
}

func NewReportService(db *gorm.DB, clock Clock, cache ResultCache, logger *zap.Logger) *ReportService {
	return &ReportService{DB: db, Clock: clock, Cache: cache, Logger: logger}
}

func (s *ReportService) Summary(ctx context.Context, userID string) (*Summary, error) {
	today := s.Clock.Today()
	yesterday := s.Clock.AddDays(today, -1)

	t, err := s.daySummary(ctx, userID, today)
	if err != nil {
		return nil, err
	}
	y, err := s.daySummary(ctx, userID, yesterday)
	if err != nil {
		return nil, err
	}
	return &Summary{Today: t, Yesterday: y}, nil
}

func (s *ReportService) daySummary(ctx context.Context, userID string, day time.Time) (DaySummary, error) {
	var steps int64
	err := s.DB.WithContext(ctx).Model(&models.StepRecord{}).
		Select("COALESCE(SUM(step_count), 0)").
		Where("user_id = ? AND date = ?", userID, day).
		Scan(&steps).Error
	if err != nil {
		return DaySummary{}, fmt.Errorf("sum steps: %w", err)
	}

	coins, err := s.coinsSince(ctx, userID, day, s.Clock.AddDays(day, 1))
	if err != nil {
		return DaySummary{}, err
	}

	return DaySummary{
		Steps:       steps,
		CoinsEarned: coins,
		Calories:    int64(math.Round(float64(steps) * caloriesPerStep)),
	}, nil
}

// coinsSince sums completion rewards dated in [from, to).
func (s *ReportService) coinsSince(ctx context.Context, userID string, from, to time.Time) (int64, error) {
	var coins int64
	err := s.DB.WithContext(ctx).Model(&models.ChallengeCompletion{}).
		Select("COALESCE(SUM(reward_coins), 0)").
		Where("user_id = ? AND date >= ? AND date < ?", userID, from, to).
		Scan(&coins).Error
	if err != nil {
		return 0, fmt.Errorf("sum rewards: %w", err)
	}
	return coins, nil
}

// History returns this week (today-6..today) and last week (today-13..today-7),
// oldest day first, with missing days as zero.
func (s *ReportService) History(ctx context.Context, userID string) (*StepHistory, error) {
	today := s.Clock.Today()
	start := s.Clock.AddDays(today, -13)

	var rows []models.StepRecord
	err := s.DB.WithContext(ctx).
		Where("user_id = ? AND date >= ? AND date <= ?", userID, start, today).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load step history: %w", err)
	}

	byDay := make(map[string]int64, len(rows))
	for _, r := range rows {
		byDay[s.Clock.FormatDay(r.Date)] = r.StepCount
	}

	series := func(from time.Time) []DayCount {
		out := make([]DayCount, 7)
		for i := range out {
			key := s.Clock.FormatDay(s.Clock.AddDays(from, i))
			out[i] = DayCount{Date: key, StepCount: byDay[key]}
		}
		return out
	}

	return &StepHistory{
		ThisWeek: series(s.Clock.AddDays(today, -6)),
		LastWeek: series(start),
	}, nil
}

// WeeklySummary sums the last seven days including today.
func (s *ReportService) WeeklySummary(ctx context.Context, userID string) (*WeeklySummary, error) {
	today := s.Clock.Today()
	start := s.Clock.AddDays(today, -6)
	end := s.Clock.AddDays(today, 1)

	var steps int64
	err := s.DB.WithContext(ctx).Model(&models.StepRecord{}).
		Select("COALESCE(SUM(step_count), 0)").
		Where("user_id = ? AND date >= ? AND date < ?", userID, start, end).
		Scan(&steps).Error
	if err != nil {
		return nil, fmt.Errorf("sum weekly steps: %w", err)
	}

	coins, err := s.coinsSince(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}

	return &WeeklySummary{
		Steps:       steps,
		CoinsEarned: coins,
		TimeMinutes: int64(math.Round(float64(steps) / stepsPerActiveMinute)),
	}, nil
}

// periodStart maps a leaderboard period to the earliest day it covers.
func (s *ReportService) periodStart(period string) (time.Time, error) {
	now := s.Clock.now()
	switch period {
	case "24h":
		return now.Add(-24 * time.Hour), nil
	case "7d":
		return now.AddDate(0, 0, -7), nil
	case "1m":
		return now.AddDate(0, -1, 0), nil
	case "1y":
		return now.AddDate(-1, 0, 0), nil
	default:
		return time.Time{}, ErrInvalidPeriod
	}
}

// ClampLimit applies the leaderboard size rules: 0 means the default,
// anything else is clamped to [1, 20].
func ClampLimit(limit int) int {
	if limit == 0 {
		return defaultLeaderboardLimit
	}
	if limit < 1 {
		return 1
	}
	if limit > maxLeaderboardLimit {
		return maxLeaderboardLimit
	}
	return limit
}

// TopSteppers ranks users by summed steps over the period, descending,
// ties by user id.
func (s *ReportService) TopSteppers(ctx context.Context, period string, limit int) ([]LeaderboardEntry, error) {
	if period == "" {
		period = DefaultPeriod
	}
	since, err := s.periodStart(period)
	if err != nil {
		return nil, err
	}
	limit = ClampLimit(limit)

	key := fmt.Sprintf("leaderboard:%s:%d", period, limit)
	if s.Cache != nil {
		var cached []LeaderboardEntry
		hit, err := s.Cache.Get(ctx, key, &cached)
		if err != nil {
			s.Logger.Warn("leaderboard_cache_get_failed", zap.String("key", key), zap.Error(err))
		} else if hit {
			return cached, nil
		}
	}

	entries, err := s.computeTopSteppers(ctx, since, limit)
	if err != nil {
		return nil, err
	}

	if s.Cache != nil {
		if err := s.Cache.Set(ctx, key, entries); err != nil {
			s.Logger.Warn("leaderboard_cache_set_failed", zap.String("key", key), zap.Error(err))
		}
	}
	return entries, nil
}

// RefreshLeaderboards recomputes the cached leaderboards for every period at the default size.
func (s *ReportService) RefreshLeaderboards(ctx context.Context) error {
	if s.Cache == nil {
		return nil
	}
	for _, period := range []string{"24h", "7d", "1m", "1y"} {
		since, _ := s.periodStart(period)
		entries, err := s.computeTopSteppers(ctx, since, defaultLeaderboardLimit)
		if err != nil {
			return err
		}
		key := fmt.Sprintf("leaderboard:%s:%d", period, defaultLeaderboardLimit)
		if err := s.Cache.Set(ctx, key, entries); err != nil {
			return fmt.Errorf("cache %s: %w", key, err)
		}
	}
	return nil
}

func (s *ReportService) computeTopSteppers(ctx context.Context, since time.Time, limit int) ([]LeaderboardEntry, error) {
	type total struct {
		UserID     string
		TotalSteps int64
	}
	var totals []total
	err := s.DB.WithContext(ctx).Model(&models.StepRecord{}).
		Select("user_id, SUM(step_count) AS total_steps").
		Where("date >= ?", since).
		Group("user_id").
		Order("total_steps DESC").
		Order("user_id ASC").
		Limit(limit).
		Scan(&totals).Error
	if err != nil {
		return nil, fmt.Errorf("rank steppers: %w", err)
	}

	ids := make([]string, len(totals))
	for i, t := range totals {
		ids[i] = t.UserID
	}
	accounts := make(map[string]models.Account, len(ids))
	if len(ids) > 0 {
		var rows []models.Account
		if err := s.DB.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("load leaderboard accounts: %w", err)
		}
		for _, a := range rows {
			accounts[a.ID] = a
		}
	}

	entries := make([]LeaderboardEntry, len(totals))
	for i, t := range totals {
		e := LeaderboardEntry{
			UserID:     t.UserID,
			FirstName:  "Unknown",
			LastName:   "",
			Role:       defaultRole,
			TotalSteps: t.TotalSteps,
		}
		if a, ok := accounts[t.UserID]; ok {
			e.FirstName = a.FirstName
			e.LastName = a.LastName
			e.AvatarURL = a.AvatarURL
			e.Role = a.Role
		}
		entries[i] = e
	}
	return entries, nil
}
