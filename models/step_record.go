package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StepRecord holds one user's step total for one calendar day. Date is the
// day's midnight in the service timezone, stored as UTC.
type StepRecord struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	UserID    string    `gorm:"size:64;not null;uniqueIndex:idx_step_records_user_date" json:"userId"`
	Date      time.Time `gorm:"not null;uniqueIndex:idx_step_records_user_date;index" json:"date"`
	StepCount int64     `gorm:"not null" json:"stepCount"`
	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"autoUpdateTime"`
}

func (r *StepRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
