package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"step-challenge-system/models"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"
)

// PlanInput is the administrator-supplied body for creating or replacing a plan.
type PlanInput struct {
	Name             string `json:"name" validate:"required,max=120"`
	Description      string `json:"description" validate:"max=1000"`
	TargetSteps      int64  `json:"targetSteps" validate:"min=1"`
	RewardCoins      int64  `json:"rewardCoins" validate:"min=0"`
	Difficulty       string `json:"difficulty" validate:"required,oneof=Easy Medium Hard"`
	TimeLimitHours   int    `json:"timeLimitHours" validate:"min=1"`
	TimeLimitMinutes int    `json:"timeLimitMinutes" validate:"min=0,max=59"`
	IsActive         *bool  `json:"isActive"`
}

var difficultyCaser = cases.Title(language.English)

func (in *PlanInput) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.Difficulty = difficultyCaser.String(strings.ToLower(strings.TrimSpace(in.Difficulty)))
}

type PlanService struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

func NewPlanService(db *gorm.DB, logger *zap.Logger) *PlanService {
	return &PlanService{DB: db, Logger: logger}
}

// List returns plans ordered by ascending target steps.
func (s *PlanService) List(ctx context.Context, activeOnly bool) ([]models.Plan, error) {
	q := s.DB.WithContext(ctx).Order("target_steps ASC").Order("name ASC")
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var plans []models.Plan
	if err := q.Find(&plans).Error; err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	return plans, nil
}

// Get looks a plan up by id or slug.
func (s *PlanService) Get(ctx context.Context, idOrSlug string, activeOnly bool) (*models.Plan, error) {
	q := wherePlanKey(s.DB.WithContext(ctx), idOrSlug)
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var plan models.Plan
	if err := q.First(&plan).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	return &plan, nil
}

// wherePlanKey matches a plan by uuid, or by slug for anything else.
func wherePlanKey(q *gorm.DB, idOrSlug string) *gorm.DB {
	if _, err := uuid.Parse(idOrSlug); err == nil {
		return q.Where("id = ?", idOrSlug)
	}
	return q.Where("slug = ?", idOrSlug)
}

func (s *PlanService) Create(ctx context.Context, in PlanInput) (*models.Plan, error) {
	in.normalize()
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	plan := models.Plan{IsActive: true}
	applyPlanInput(&plan, in)

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if plan.Slug, err = uniqueSlug(tx, plan.Name, ""); err != nil {
			return err
		}
		return tx.Create(&plan).Error
	})
	if err != nil {
		return nil, fmt.Errorf("create plan: %w", err)
	}

	s.Logger.Info("plan_created", zap.String("plan_id", plan.ID), zap.String("slug", plan.Slug))
	return &plan, nil
}

// Update replaces a plan's fields. Challenges already running keep the
// values captured when they were selected.
func (s *PlanService) Update(ctx context.Context, id string, in PlanInput) (*models.Plan, error) {
	in.normalize()
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	var plan models.Plan
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&plan).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPlanNotFound
			}
			return err
		}

		renamed := plan.Name != in.Name
		applyPlanInput(&plan, in)
		if renamed {
			var err error
			if plan.Slug, err = uniqueSlug(tx, plan.Name, plan.ID); err != nil {
				return err
			}
		}
		return tx.Save(&plan).Error
	})
	if err != nil {
		if errors.Is(err, ErrPlanNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update plan %s: %w", id, err)
	}

	s.Logger.Info("plan_updated", zap.String("plan_id", plan.ID))
	return &plan, nil
}

func (s *PlanService) Delete(ctx context.Context, id string) error {
	res := s.DB.WithContext(ctx).Where("id = ?", id).Delete(&models.Plan{})
	if res.Error != nil {
		return fmt.Errorf("delete plan %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrPlanNotFound
	}
	s.Logger.Info("plan_deleted", zap.String("plan_id", id))
	return nil
}

// DefaultPlans is the starter catalog.
var DefaultPlans = []PlanInput{
	{Name: "Easy Walk", Description: "Warm-up", TargetSteps: 1000, RewardCoins: 5, Difficulty: "Easy", TimeLimitHours: 1},
	{Name: "Power Stroll", Description: "Medium", TargetSteps: 5000, RewardCoins: 20, Difficulty: "Medium", TimeLimitHours: 2},
	{Name: "Marathon", Description: "Hardcore", TargetSteps: 10000, RewardCoins: 50, Difficulty: "Hard", TimeLimitHours: 4},
}

// SeedDefaults fills an empty catalog with DefaultPlans and returns how many were created.
func (s *PlanService) SeedDefaults(ctx context.Context) (int, error) {
	var count int64
	if err := s.DB.WithContext(ctx).Unscoped().Model(&models.Plan{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count plans: %w", err)
	}
	if count > 0 {
		return 0, nil
	}
	for _, in := range DefaultPlans {
		if _, err := s.Create(ctx, in); err != nil {
			return 0, err
		}
	}
	return len(DefaultPlans), nil
}

func applyPlanInput(p *models.Plan, in PlanInput) {
	p.Name = in.Name
	p.Description = in.Description
	p.TargetSteps = in.TargetSteps
	p.RewardCoins = in.RewardCoins
	p.Difficulty = models.Difficulty(in.Difficulty)
	p.TimeLimitHours = in.TimeLimitHours
	p.TimeLimitMinutes = in.TimeLimitMinutes
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
}

// uniqueSlug derives a slug from name, suffixing -2, -3… while taken.
// Soft-deleted plans still hold their slugs.
func uniqueSlug(tx *gorm.DB, name, excludeID string) (string, error) {
	base := slug.Make(name)
	if base == "" {
		base = "plan"
	}
	candidate := base
	for i := 2; ; i++ {
		q := tx.Unscoped().Model(&models.Plan{}).Where("slug = ?", candidate)
		if excludeID != "" {
			q = q.Where("id <> ?", excludeID)
		}
		var count int64
		if err := q.Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
}
