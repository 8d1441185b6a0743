package services

import (
	"context"
	"errors"
	"fmt"

	"step-challenge-system/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultRole = "user"

type AccountService struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

func NewAccountService(db *gorm.DB, logger *zap.Logger) *AccountService {
	return &AccountService{DB: db, Logger: logger}
}

// Ensure creates the account on first contact and keeps its role in step
// with the identity provider. Safe under concurrent first requests.
func (s *AccountService) Ensure(ctx context.Context, userID, role string) error {
	if role == "" {
		role = defaultRole
	}
	acct := models.Account{ID: userID, Role: role}
	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"role"}),
	}).Create(&acct).Error
	if err != nil {
		return fmt.Errorf("ensure account %s: %w", userID, err)
	}
	return nil
}

func (s *AccountService) Get(ctx context.Context, userID string) (*models.Account, error) {
	var acct models.Account
	if err := s.DB.WithContext(ctx).Where("id = ?", userID).First(&acct).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &acct, nil
}

// lockForUpdate adds FOR UPDATE where the dialect supports row locks.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// withAccountLock serializes fn against every other mutation of the same
// user: an in-process lock plus a transaction holding the account row lock.
// The account row is created if missing. fn must only use tx.
func withAccountLock(ctx context.Context, db *gorm.DB, locks *UserLocks, userID string, fn func(tx *gorm.DB, acct *models.Account) error) error {
	unlock, err := locks.Lock(ctx, userID)
	if err != nil {
		return fmt.Errorf("wait for account %s: %w", userID, err)
	}
	defer unlock()

	seed := models.Account{ID: userID, Role: defaultRole}
	if err := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return fmt.Errorf("seed account: %w", err)
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var acct models.Account
		if err := lockForUpdate(tx).Where("id = ?", userID).First(&acct).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAccountNotFound
			}
			return fmt.Errorf("lock account: %w", err)
		}
		return fn(tx, &acct)
	})
}
