package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

// Plan is a challenge template from the catalog.
type Plan struct {
	ID               string     `gorm:"primaryKey;size:64" json:"id"`
	Name             string     `gorm:"not null" json:"name"`
	Slug             string     `gorm:"uniqueIndex;size:160;not null" json:"slug"`
	Description      string     `json:"description,omitempty"`
	TargetSteps      int64      `gorm:"not null" json:"targetSteps"`
	RewardCoins      int64      `gorm:"not null" json:"rewardCoins"`
	Difficulty       Difficulty `gorm:"size:16;not null" json:"difficulty"`
	TimeLimitHours   int        `gorm:"not null" json:"timeLimitHours"`
	TimeLimitMinutes int        `gorm:"not null" json:"timeLimitMinutes"`
	IsActive         bool       `gorm:"not null;index" json:"isActive"`

	Timestamps
}

func (p *Plan) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}
