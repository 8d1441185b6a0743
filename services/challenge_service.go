package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"step-challenge-system/models"
	"step-challenge-system/utils"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MaxDailySelections caps how many plans a user may select per calendar day.
const MaxDailySelections = 10

const historyLimit = 100

type OutcomeKind string

const (
	OutcomeRecorded  OutcomeKind = "recorded"
	OutcomeCompleted OutcomeKind = "completed"
	OutcomeExpired   OutcomeKind = "expired"
)

// StepOutcome is the result of one step submission.
type StepOutcome struct {
	Kind        OutcomeKind
	Record      models.StepRecord
	RewardCoins int64
	CoinBalance int64
	Completion  *models.ChallengeCompletion
}

type SubmitStepsInput struct {
	Date      string `json:"date" validate:"required"`
	StepCount *int64 `json:"stepCount" validate:"required,min=0"`
}

// Selection describes a freshly started challenge.
type Selection struct {
	PlanID    string    `json:"currentChallengeId"`
	Progress  int64     `json:"currentChallengeProgress"`
	StartedAt time.Time `json:"currentChallengeStartedAt"`
	ExpiresAt time.Time `json:"currentChallengeExpiresAt"`
}

// ActiveChallenge is the dashboard view of a running challenge. ExpiresAt
// may already be in the past until the next read or submission clears it.
type ActiveChallenge struct {
	PlanID           string    `json:"planId"`
	Name             string    `json:"name"`
	TargetSteps      int64     `json:"targetSteps"`
	RewardCoins      int64     `json:"rewardCoins"`
	TimeLimitHours   int       `json:"timeLimitHours"`
	TimeLimitMinutes int       `json:"timeLimitMinutes"`
	Progress         int64     `json:"progress"`
	StartedAt        time.Time `json:"startedAt"`
	ExpiresAt        time.Time `json:"expiresAt"`
}

type Dashboard struct {
	CoinBalance         int64            `json:"coinBalance"`
	CompletedChallenges int64            `json:"completedChallenges"`
	TodaySteps          int64            `json:"todaySteps"`
	CurrentChallenge    *ActiveChallenge `json:"currentChallenge"`
	ChallengeExpired    bool             `json:"challengeExpired"`
}

type ChallengeStatus struct {
	ActivePlanID    *string `json:"activePlanId"`
	SelectionsToday int     `json:"selectionsToday"`
}

type HistoryEntry struct {
	ID          string    `json:"id"`
	PlanID      string    `json:"planId"`
	PlanName    string    `json:"planName"`
	TargetSteps int64     `json:"targetSteps"`
	RewardCoins int64     `json:"rewardCoins"`
	Date        time.Time `json:"date"`
	Status      string    `json:"status"`
}

// ChallengeService owns each user's challenge state. Every mutation goes
// through withAccountLock.
type ChallengeService struct {
	DB     *gorm.DB
	Locks  *UserLocks
	Clock  Clock
	Logger *zap.Logger

	StreamInterval time.Duration
}

func NewChallengeService(db *gorm.DB, locks *UserLocks, clock Clock, logger *zap.Logger) *ChallengeService {
	return &ChallengeService{
		DB:             db,
		Locks:          locks,
		Clock:          clock,
		Logger:         logger,
		StreamInterval: 2 * time.Second,
	}
}

// SelectPlan starts a challenge on an active plan, given its id or slug.
func (s *ChallengeService) SelectPlan(ctx context.Context, userID, planKey string) (*Selection, error) {
	now := s.Clock.now()
	today := s.Clock.DayStart(now)

	var sel Selection
	err := withAccountLock(ctx, s.DB, s.Locks, userID, func(tx *gorm.DB, acct *models.Account) error {
		var plan models.Plan
		if err := wherePlanKey(tx, planKey).Where("is_active = ?", true).First(&plan).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPlanNotFound
			}
			return err
		}

		if acct.Challenge.PlanID != nil {
			return ErrActiveChallenge
		}

		if acct.SelectionsCountDate != nil && s.Clock.DayStart(*acct.SelectionsCountDate).Equal(today) {
			if acct.SelectionsCount >= MaxDailySelections {
				return ErrSelectionLimit
			}
			acct.SelectionsCount++
		} else {
			acct.SelectionsCountDate = &today
			acct.SelectionsCount = 1
		}

		started := now
		acct.Challenge = models.ChallengeState{
			PlanID:           &plan.ID,
			PlanName:         plan.Name,
			Progress:         0,
			StartedAt:        &started,
			TargetSteps:      plan.TargetSteps,
			RewardCoins:      plan.RewardCoins,
			TimeLimitHours:   plan.TimeLimitHours,
			TimeLimitMinutes: plan.TimeLimitMinutes,
		}
		if err := tx.Save(acct).Error; err != nil {
			return fmt.Errorf("save selection: %w", err)
		}

		sel = Selection{
			PlanID:    plan.ID,
			Progress:  0,
			StartedAt: started,
			ExpiresAt: acct.Challenge.ExpiresAt(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	utils.ChallengeSelections.Inc()
	s.Logger.Info("challenge_selected",
		zap.String("user_id", userID),
		zap.String("plan_id", sel.PlanID),
		zap.Time("expires_at", sel.ExpiresAt),
	)
	return &sel, nil
}

// SubmitSteps records a day's step total and evaluates the running
// challenge against it. Retrying the same submission is harmless: the
// ledger keeps the maximum and completion only fires on the rising edge.
func (s *ChallengeService) SubmitSteps(ctx context.Context, userID string, in SubmitStepsInput) (*StepOutcome, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	day, err := s.Clock.ParseDay(in.Date)
	if err != nil {
		return nil, err
	}
	count := *in.StepCount
	now := s.Clock.now()

	var out StepOutcome
	err = withAccountLock(ctx, s.DB, s.Locks, userID, func(tx *gorm.DB, acct *models.Account) error {
		rec, err := upsertMaxSteps(tx, userID, day, count, now)
		if err != nil {
			return err
		}
		out.Record = *rec
		out.CoinBalance = acct.CoinBalance

		ch := acct.Challenge
		if !ch.Active() {
			out.Kind = OutcomeRecorded
			return nil
		}

		if ch.ExpiredAt(now) {
			acct.Challenge = models.ChallengeState{}
			if err := tx.Save(acct).Error; err != nil {
				return fmt.Errorf("clear expired challenge: %w", err)
			}
			out.Kind = OutcomeExpired
			return nil
		}

		newTotal := rec.StepCount
		if ch.Progress < ch.TargetSteps && ch.TargetSteps <= newTotal {
			completion := models.ChallengeCompletion{
				UserID:      userID,
				PlanID:      *ch.PlanID,
				PlanName:    ch.PlanName,
				TargetSteps: ch.TargetSteps,
				RewardCoins: ch.RewardCoins,
				Date:        day,
				CreatedAt:   now,
			}
			if err := tx.Create(&completion).Error; err != nil {
				return fmt.Errorf("record completion: %w", err)
			}

			acct.CoinBalance += ch.RewardCoins
			acct.CompletedChallenges++
			acct.Challenge = models.ChallengeState{}
			if err := tx.Save(acct).Error; err != nil {
				return fmt.Errorf("settle completion: %w", err)
			}

			out.Kind = OutcomeCompleted
			out.RewardCoins = ch.RewardCoins
			out.CoinBalance = acct.CoinBalance
			out.Completion = &completion
			return nil
		}

		acct.Challenge.Progress = newTotal
		if err := tx.Save(acct).Error; err != nil {
			return fmt.Errorf("save progress: %w", err)
		}
		out.Kind = OutcomeRecorded
		return nil
	})
	if err != nil {
		return nil, err
	}

	switch out.Kind {
	case OutcomeCompleted:
		utils.ChallengeCompletions.Inc()
		utils.CoinsAwarded.Add(float64(out.RewardCoins))
		s.Logger.Info("challenge_completed",
			zap.String("user_id", userID),
			zap.String("plan_id", out.Completion.PlanID),
			zap.Int64("reward_coins", out.RewardCoins),
			zap.Int64("coin_balance", out.CoinBalance),
		)
	case OutcomeExpired:
		utils.ChallengeExpirations.WithLabelValues("submission").Inc()
		s.Logger.Info("challenge_expired", zap.String("user_id", userID), zap.String("source", "submission"))
	}
	return &out, nil
}

// upsertMaxSteps stores max(existing, count) for (user, day) in a single
// statement and returns the stored row.
func upsertMaxSteps(tx *gorm.DB, userID string, day time.Time, count int64, now time.Time) (*models.StepRecord, error) {
	rec := models.StepRecord{UserID: userID, Date: day, StepCount: count, CreatedAt: now, UpdatedAt: now}
	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "date"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"step_count": gorm.Expr("CASE WHEN step_records.step_count > excluded.step_count THEN step_records.step_count ELSE excluded.step_count END"),
			"updated_at": now,
		}),
	}).Create(&rec).Error
	if err != nil {
		return nil, fmt.Errorf("upsert step record: %w", err)
	}

	var stored models.StepRecord
	if err := tx.Where("user_id = ? AND date = ?", userID, day).First(&stored).Error; err != nil {
		return nil, fmt.Errorf("reload step record: %w", err)
	}
	return &stored, nil
}

// Dashboard returns balance, today's steps and the running challenge,
// clearing the challenge first if its deadline has passed.
func (s *ChallengeService) Dashboard(ctx context.Context, userID string) (*Dashboard, error) {
	now := s.Clock.now()
	today := s.Clock.DayStart(now)

	var d Dashboard
	err := withAccountLock(ctx, s.DB, s.Locks, userID, func(tx *gorm.DB, acct *models.Account) error {
		if acct.Challenge.ExpiredAt(now) {
			acct.Challenge = models.ChallengeState{}
			if err := tx.Save(acct).Error; err != nil {
				return fmt.Errorf("clear expired challenge: %w", err)
			}
			d.ChallengeExpired = true
		}

		var rec models.StepRecord
		err := tx.Where("user_id = ? AND date = ?", userID, today).First(&rec).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("load today's steps: %w", err)
		}

		d.CoinBalance = acct.CoinBalance
		d.CompletedChallenges = acct.CompletedChallenges
		d.TodaySteps = rec.StepCount
		if ch := acct.Challenge; ch.Active() {
			d.CurrentChallenge = &ActiveChallenge{
				PlanID:           *ch.PlanID,
				Name:             ch.PlanName,
				TargetSteps:      ch.TargetSteps,
				RewardCoins:      ch.RewardCoins,
				TimeLimitHours:   ch.TimeLimitHours,
				TimeLimitMinutes: ch.TimeLimitMinutes,
				Progress:         ch.Progress,
				StartedAt:        *ch.StartedAt,
				ExpiresAt:        ch.ExpiresAt(),
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if d.ChallengeExpired {
		utils.ChallengeExpirations.WithLabelValues("dashboard").Inc()
		s.Logger.Info("challenge_expired", zap.String("user_id", userID), zap.String("source", "dashboard"))
	}
	return &d, nil
}

// Status is a read-only view; it does not expire anything.
func (s *ChallengeService) Status(ctx context.Context, userID string) (*ChallengeStatus, error) {
	var acct models.Account
	err := s.DB.WithContext(ctx).Where("id = ?", userID).First(&acct).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &ChallengeStatus{}, nil
	}
	if err != nil {
		return nil, err
	}

	st := &ChallengeStatus{ActivePlanID: acct.Challenge.PlanID}
	if acct.SelectionsCountDate != nil && s.Clock.DayStart(*acct.SelectionsCountDate).Equal(s.Clock.Today()) {
		st.SelectionsToday = acct.SelectionsCount
	}
	return st, nil
}

// Clear abandons the running challenge without reward.
func (s *ChallengeService) Clear(ctx context.Context, userID string) error {
	var planID string
	err := withAccountLock(ctx, s.DB, s.Locks, userID, func(tx *gorm.DB, acct *models.Account) error {
		if acct.Challenge.PlanID == nil {
			return ErrNoActiveChallenge
		}
		planID = *acct.Challenge.PlanID
		acct.Challenge = models.ChallengeState{}
		return tx.Save(acct).Error
	})
	if err != nil {
		return err
	}
	s.Logger.Info("challenge_cleared", zap.String("user_id", userID), zap.String("plan_id", planID))
	return nil
}

// History lists the user's most recent completions.
func (s *ChallengeService) History(ctx context.Context, userID string) ([]HistoryEntry, error) {
	var rows []models.ChallengeCompletion
	err := s.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(historyLimit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load completions: %w", err)
	}

	out := make([]HistoryEntry, len(rows))
	for i, r := range rows {
		status := "Incomplete"
		if r.RewardCoins > 0 {
			status = "Success"
		}
		out[i] = HistoryEntry{
			ID:          r.ID,
			PlanID:      r.PlanID,
			PlanName:    r.PlanName,
			TargetSteps: r.TargetSteps,
			RewardCoins: r.RewardCoins,
			Date:        r.Date,
			Status:      status,
		}
	}
	return out, nil
}

// ExpireOverdue clears every challenge whose deadline has passed and
// returns how many were cleared. Each user goes through the same lock as
// submissions, so a racing completion wins or loses cleanly.
func (s *ChallengeService) ExpireOverdue(ctx context.Context) (int, error) {
	var ids []string
	err := s.DB.WithContext(ctx).Model(&models.Account{}).
		Where("current_challenge_plan_id IS NOT NULL").
		Pluck("id", &ids).Error
	if err != nil {
		return 0, fmt.Errorf("list active challenges: %w", err)
	}

	expired := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}
		now := s.Clock.now()
		cleared := false
		err := withAccountLock(ctx, s.DB, s.Locks, id, func(tx *gorm.DB, acct *models.Account) error {
			if !acct.Challenge.ExpiredAt(now) {
				return nil
			}
			acct.Challenge = models.ChallengeState{}
			cleared = true
			return tx.Save(acct).Error
		})
		if err != nil {
			s.Logger.Warn("expiry_sweep_failed", zap.String("user_id", id), zap.Error(err))
			continue
		}
		if cleared {
			expired++
			utils.ChallengeExpirations.WithLabelValues("sweep").Inc()
		}
	}
	return expired, nil
}
