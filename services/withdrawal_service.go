package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"step-challenge-system/models"
	"step-challenge-system/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type WithdrawalInput struct {
	Amount  int64  `json:"amount"`
	Address string `json:"address" validate:"required,max=255"`
}

type SettleInput struct {
	Status  models.WithdrawalStatus `json:"status" validate:"required,oneof=Approved Rejected Paid"`
	Remarks *string                 `json:"remarks" validate:"omitempty,max=500"`
	TxID    *string                 `json:"txId" validate:"omitempty,max=255"`
}

// WithdrawalView is a request joined with its owner's display name.
type WithdrawalView struct {
	models.WithdrawalRequest
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type WithdrawalService struct {
	DB     *gorm.DB
	Locks  *UserLocks
	Clock  Clock
	Logger *zap.Logger
}

func NewWithdrawalService(db *gorm.DB, locks *UserLocks, clock Clock, logger *zap.Logger) *WithdrawalService {
	return &WithdrawalService{DB: db, Locks: locks, Clock: clock, Logger: logger}
}

// Create files a Pending request. Nothing is debited until it is paid.
func (s *WithdrawalService) Create(ctx context.Context, userID string, in WithdrawalInput) (*models.WithdrawalRequest, error) {
	if in.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	in.Address = strings.TrimSpace(in.Address)
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	var req models.WithdrawalRequest
	err := withAccountLock(ctx, s.DB, s.Locks, userID, func(tx *gorm.DB, acct *models.Account) error {
		if in.Amount > acct.CoinBalance {
			return ErrInsufficientBalance
		}

		var pending int64
		if err := tx.Model(&models.WithdrawalRequest{}).
			Where("user_id = ? AND status = ?", userID, models.WithdrawalPending).
			Count(&pending).Error; err != nil {
			return err
		}
		if pending > 0 {
			return ErrPendingWithdrawal
		}

		req = models.WithdrawalRequest{
			UserID:  userID,
			Amount:  in.Amount,
			Address: in.Address,
			Status:  models.WithdrawalPending,
		}
		return tx.Create(&req).Error
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("withdrawal_requested",
		zap.String("user_id", userID),
		zap.String("withdrawal_id", req.ID),
		zap.Int64("amount", req.Amount),
	)
	return &req, nil
}

// ListForUser returns the user's requests, newest first.
func (s *WithdrawalService) ListForUser(ctx context.Context, userID string) ([]models.WithdrawalRequest, error) {
	var rows []models.WithdrawalRequest
	if err := s.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list withdrawals: %w", err)
	}
	return rows, nil
}

// ListAll returns every request, optionally filtered by status, newest first.
func (s *WithdrawalService) ListAll(ctx context.Context, status string) ([]WithdrawalView, error) {
	q := s.DB.WithContext(ctx).
		Table("withdrawal_requests AS w").
		Select("w.*, a.first_name, a.last_name").
		Joins("LEFT JOIN accounts AS a ON a.id = w.user_id").
		Order("w.created_at DESC")
	if status != "" {
		switch models.WithdrawalStatus(status) {
		case models.WithdrawalPending, models.WithdrawalApproved, models.WithdrawalRejected, models.WithdrawalPaid:
			q = q.Where("w.status = ?", status)
		default:
			return nil, &ValidationError{Fields: []string{"status"}}
		}
	}

	var rows []WithdrawalView
	if err := q.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("list all withdrawals: %w", err)
	}
	return rows, nil
}

// Settle moves a request to Approved, Rejected or Paid. Paid debits the
// owner's balance, re-checked at this moment.
func (s *WithdrawalService) Settle(ctx context.Context, id string, in SettleInput) (*models.WithdrawalRequest, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrWithdrawalNotFound
	}

	var owner models.WithdrawalRequest
	if err := s.DB.WithContext(ctx).Select("id", "user_id").Where("id = ?", id).First(&owner).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWithdrawalNotFound
		}
		return nil, err
	}

	now := s.Clock.now()
	var req models.WithdrawalRequest
	err := withAccountLock(ctx, s.DB, s.Locks, owner.UserID, func(tx *gorm.DB, acct *models.Account) error {
		if err := lockForUpdate(tx).Where("id = ?", id).First(&req).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrWithdrawalNotFound
			}
			return err
		}
		if req.Status == models.WithdrawalPaid {
			return ErrAlreadyProcessed
		}

		if in.Status == models.WithdrawalPaid {
			if acct.CoinBalance < req.Amount {
				return ErrInsufficientBalance
			}
			acct.CoinBalance -= req.Amount
			if err := tx.Save(acct).Error; err != nil {
				return fmt.Errorf("debit balance: %w", err)
			}
			processed := now
			req.ProcessedAt = &processed
		}

		req.Status = in.Status
		if in.Remarks != nil {
			req.Remarks = *in.Remarks
		}
		if in.TxID != nil {
			req.TxID = *in.TxID
		}
		req.UpdatedAt = now
		return tx.Save(&req).Error
	})
	if err != nil {
		return nil, err
	}

	utils.WithdrawalsSettled.WithLabelValues(string(req.Status)).Inc()
	s.Logger.Info("withdrawal_settled",
		zap.String("withdrawal_id", req.ID),
		zap.String("user_id", req.UserID),
		zap.String("status", string(req.Status)),
		zap.Int64("amount", req.Amount),
	)
	return &req, nil
}

// paidWithdrawalsBetween lists requests paid in [from, to).
func paidWithdrawalsBetween(ctx context.Context, db *gorm.DB, from, to time.Time) ([]models.WithdrawalRequest, error) {
	var rows []models.WithdrawalRequest
	err := db.WithContext(ctx).
		Where("status = ? AND processed_at >= ? AND processed_at < ?", models.WithdrawalPaid, from, to).
		Order("processed_at ASC").
		Find(&rows).Error
	return rows, err
}
