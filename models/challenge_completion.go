package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ChallengeCompletion is written once when a challenge completes and never
// updated afterwards.
type ChallengeCompletion struct {
	ID          string    `gorm:"primaryKey;size:64" json:"id"`
	UserID      string    `gorm:"size:64;not null;index" json:"userId"`
	PlanID      string    `gorm:"size:64;not null;index" json:"planId"`
	PlanName    string    `json:"planName"`
	TargetSteps int64     `gorm:"not null" json:"targetSteps"`
	RewardCoins int64     `gorm:"not null" json:"rewardCoins"`
	Date        time.Time `gorm:"not null;index" json:"date"` // submission day
	CreatedAt   time.Time `json:"createdAt" gorm:"autoCreateTime"`
}

func (c *ChallengeCompletion) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}
