package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type WithdrawalStatus string

const (
	WithdrawalPending  WithdrawalStatus = "Pending"
	WithdrawalApproved WithdrawalStatus = "Approved"
	WithdrawalRejected WithdrawalStatus = "Rejected"
	WithdrawalPaid     WithdrawalStatus = "Paid"
)

// WithdrawalRequest asks to pay out coins. The balance is only debited when
// an administrator marks the request Paid.
type WithdrawalRequest struct {
	ID          string           `gorm:"primaryKey;size:64" json:"id"`
	UserID      string           `gorm:"size:64;not null;index" json:"userId"`
	Amount      int64            `gorm:"not null" json:"amount"`
	Address     string           `gorm:"not null" json:"address"`
	Status      WithdrawalStatus `gorm:"size:16;not null;index" json:"status"`
	Remarks     string           `json:"remarks,omitempty"`
	TxID        string           `json:"txId,omitempty"`
	ProcessedAt *time.Time       `json:"processedAt,omitempty"`
	CreatedAt   time.Time        `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt   time.Time        `json:"updatedAt" gorm:"autoUpdateTime"`
}

func (w *WithdrawalRequest) BeforeCreate(tx *gorm.DB) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	return nil
}
