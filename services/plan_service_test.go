package services

import (
	"context"
	"testing"

	"step-challenge-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatePlanValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	valid := PlanInput{Name: "Walk", TargetSteps: 1000, RewardCoins: 0, Difficulty: "Easy", TimeLimitHours: 1, TimeLimitMinutes: 59}
	cases := map[string]func(in *PlanInput){
		"missing name":       func(in *PlanInput) { in.Name = "  " },
		"zero target":        func(in *PlanInput) { in.TargetSteps = 0 },
		"negative reward":    func(in *PlanInput) { in.RewardCoins = -1 },
		"unknown difficulty": func(in *PlanInput) { in.Difficulty = "Extreme" },
		"zero hours":         func(in *PlanInput) { in.TimeLimitHours = 0 },
		"minutes overflow":   func(in *PlanInput) { in.TimeLimitMinutes = 60 },
		"negative minutes":   func(in *PlanInput) { in.TimeLimitMinutes = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := valid
			mutate(&in)
			_, err := f.Plans.Create(ctx, in)
			var verr *ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}

	p, err := f.Plans.Create(ctx, valid)
	require.NoError(t, err)
	assert.True(t, p.IsActive)
	assert.NotEmpty(t, p.ID)
}

func TestCreatePlanNormalizesDifficultyAndSlug(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := PlanInput{Name: "Power Stroll", TargetSteps: 5000, RewardCoins: 20, Difficulty: "mEDIUM", TimeLimitHours: 2}
	first, err := f.Plans.Create(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, models.DifficultyMedium, first.Difficulty)
	assert.Equal(t, "power-stroll", first.Slug)

	second, err := f.Plans.Create(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "power-stroll-2", second.Slug)

	got, err := f.Plans.Get(ctx, "power-stroll-2", true)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)
}

func TestListPlansOrdersByTarget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.plan(t, "Marathon", 10000, 50, 4, 0)
	f.plan(t, "Easy Walk", 1000, 5, 1, 0)
	hidden := false
	_, err := f.Plans.Create(ctx, PlanInput{Name: "Hidden", TargetSteps: 3000, Difficulty: "Hard", TimeLimitHours: 1, IsActive: &hidden})
	require.NoError(t, err)

	active, err := f.Plans.List(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "Easy Walk", active[0].Name)
	assert.Equal(t, "Marathon", active[1].Name)

	all, err := f.Plans.List(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Hidden", all[1].Name)

	_, err = f.Plans.Get(ctx, "hidden", true)
	assert.ErrorIs(t, err, ErrPlanNotFound)
	_, err = f.Plans.Get(ctx, "hidden", false)
	assert.NoError(t, err)
}

func TestUpdateAndDeletePlan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.plan(t, "Easy Walk", 1000, 5, 1, 0)

	off := false
	updated, err := f.Plans.Update(ctx, p.ID, PlanInput{
		Name: "Gentle Walk", TargetSteps: 1500, RewardCoins: 6, Difficulty: "easy", TimeLimitHours: 1, TimeLimitMinutes: 30, IsActive: &off,
	})
	require.NoError(t, err)
	assert.Equal(t, "gentle-walk", updated.Slug)
	assert.Equal(t, int64(1500), updated.TargetSteps)
	assert.False(t, updated.IsActive)

	_, err = f.Plans.Update(ctx, "2f1c0e44-0000-4000-8000-000000000000", PlanInput{
		Name: "X", TargetSteps: 1, Difficulty: "Easy", TimeLimitHours: 1,
	})
	assert.ErrorIs(t, err, ErrPlanNotFound)

	require.NoError(t, f.Plans.Delete(ctx, p.ID))
	assert.ErrorIs(t, f.Plans.Delete(ctx, p.ID), ErrPlanNotFound)
	_, err = f.Plans.Get(ctx, p.ID, false)
	assert.ErrorIs(t, err, ErrPlanNotFound)

	// The deleted plan keeps its slug.
	again := f.plan(t, "Gentle Walk", 1000, 5, 1, 0)
	assert.Equal(t, "gentle-walk-2", again.Slug)
}

func TestSeedDefaultsOnlyOnEmptyCatalog(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	n, err := f.Plans.SeedDefaults(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(DefaultPlans), n)

	n, err = f.Plans.SeedDefaults(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	plans, err := f.Plans.List(ctx, true)
	require.NoError(t, err)
	require.Len(t, plans, 3)
	assert.Equal(t, "easy-walk", plans[0].Slug)
	assert.Equal(t, models.DifficultyHard, plans[2].Difficulty)
}
