package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"step-challenge-system/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ObjectUploader stores archive objects. utils.R2Client implements it.
type ObjectUploader interface {
	PutObject(ctx context.Context, key string, body []byte, contentType string) error
}

// ArchiveService exports each day's completions and paid withdrawals as
// JSON lines to object storage.
type ArchiveService struct {
	DB       *gorm.DB
	Uploader ObjectUploader
	Clock    Clock
	Logger   *zap.Logger
}

func NewArchiveService(db *gorm.DB, uploader ObjectUploader, clock Clock, logger *zap.Logger) *ArchiveService {
	return &ArchiveService{DB: db, Uploader: uploader, Clock: clock, Logger: logger}
}

type ExportResult struct {
	Completions int
	Withdrawals int
	Keys        []string
}

// ExportDay uploads completions/<day>.jsonl and withdrawals/<day>.jsonl.
// Empty sets are skipped.
func (s *ArchiveService) ExportDay(ctx context.Context, day time.Time) (*ExportResult, error) {
	day = s.Clock.DayStart(day)
	next := s.Clock.AddDays(day, 1)
	label := s.Clock.FormatDay(day)

	var completions []models.ChallengeCompletion
	if err := s.DB.WithContext(ctx).
		Where("date >= ? AND date < ?", day, next).
		Order("created_at ASC").
		Find(&completions).Error; err != nil {
		return nil, fmt.Errorf("load completions for %s: %w", label, err)
	}

	paid, err := paidWithdrawalsBetween(ctx, s.DB, day, next)
	if err != nil {
		return nil, fmt.Errorf("load paid withdrawals for %s: %w", label, err)
	}

	res := &ExportResult{Completions: len(completions), Withdrawals: len(paid)}
	if len(completions) > 0 {
		key := "completions/" + label + ".jsonl"
		if err := s.upload(ctx, key, completions); err != nil {
			return res, err
		}
		res.Keys = append(res.Keys, key)
	}
	if len(paid) > 0 {
		key := "withdrawals/" + label + ".jsonl"
		if err := s.upload(ctx, key, paid); err != nil {
			return res, err
		}
		res.Keys = append(res.Keys, key)
	}

	s.Logger.Info("archive_exported",
		zap.String("day", label),
		zap.Int("completions", res.Completions),
		zap.Int("withdrawals", res.Withdrawals),
	)
	return res, nil
}

func (s *ArchiveService) upload(ctx context.Context, key string, rows interface{}) error {
	body, err := encodeJSONLines(rows)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Uploader.PutObject(ctx, key, body, "application/x-ndjson")
}

func encodeJSONLines(rows interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	switch v := rows.(type) {
	case []models.ChallengeCompletion:
		for _, r := range v {
			if err := enc.Encode(r); err != nil {
				return nil, err
			}
		}
	case []models.WithdrawalRequest:
		for _, r := range v {
			if err := enc.Encode(r); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("unsupported archive rows %T", rows)
	}
	return buf.Bytes(), nil
}
