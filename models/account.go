package models

import (
	"time"

	"gorm.io/gorm"
)

// Account is the local record of a user known to the challenge service.
// ID is the identity provider's user id; display fields are mirrored
// from the profile service by the sync worker.
type Account struct {
	ID        string `gorm:"primaryKey;size:64" json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	Role      string `gorm:"size:32;not null" json:"role"`

	CoinBalance         int64 `gorm:"not null" json:"coinBalance"`
	CompletedChallenges int64 `gorm:"not null" json:"completedChallenges"`

	Challenge ChallengeState `gorm:"embedded;embeddedPrefix:current_challenge_" json:"-"`

	// Daily selection quota
	SelectionsCountDate *time.Time `json:"-"`
	SelectionsCount     int        `gorm:"not null" json:"-"`

	ProfileSyncedAt *time.Time `json:"-"`

	Timestamps
}

// ChallengeState is the user's at-most-one running challenge. The plan's
// numeric parameters are copied at selection so later catalog edits do not
// affect a challenge already in flight.
type ChallengeState struct {
	PlanID           *string    `gorm:"size:64"`
	PlanName         string
	Progress         int64 `gorm:"not null"`
	StartedAt        *time.Time
	TargetSteps      int64 `gorm:"not null"`
	RewardCoins      int64 `gorm:"not null"`
	TimeLimitHours   int   `gorm:"not null"`
	TimeLimitMinutes int   `gorm:"not null"`
}

func (c ChallengeState) Active() bool {
	return c.PlanID != nil && c.StartedAt != nil
}

// ExpiresAt is derived, never stored.
func (c ChallengeState) ExpiresAt() time.Time {
	if c.StartedAt == nil {
		return time.Time{}
	}
	limit := time.Duration(c.TimeLimitHours)*time.Hour + time.Duration(c.TimeLimitMinutes)*time.Minute
	return c.StartedAt.Add(limit)
}

func (c ChallengeState) ExpiredAt(now time.Time) bool {
	return c.Active() && now.After(c.ExpiresAt())
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updatedAt" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}
