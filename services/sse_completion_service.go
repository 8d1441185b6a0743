package services

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"step-challenge-system/models"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// StreamCompletionsSSE pushes the authenticated user's new challenge
// completions as server-sent events.
func (s *ChallengeService) StreamCompletionsSSE(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "Unauthorized"})
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	done := c.Context().Done()
	interval := s.StreamInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		cursor, err := s.latestCompletionTime(userID)
		if err != nil {
			s.Logger.Warn("sse_init_failed", zap.String("user_id", userID), zap.Error(err))
		}

		// keepalive comment
		w.WriteString(":\n\n")
		if err := w.Flush(); err != nil {
			return
		}

		for {
			select {
			case <-ticker.C:
				var rows []models.ChallengeCompletion
				err := s.DB.
					Where("user_id = ? AND created_at > ?", userID, cursor).
					Order("created_at ASC").
					Find(&rows).Error
				if err != nil {
					s.Logger.Warn("sse_query_failed", zap.String("user_id", userID), zap.Error(err))
					continue
				}
				if len(rows) == 0 {
					w.WriteString(":\n\n")
				}
				for _, r := range rows {
					if err := writeCompletionEvent(w, r); err != nil {
						s.Logger.Warn("sse_encode_failed", zap.String("completion_id", r.ID), zap.Error(err))
					}
					cursor = r.CreatedAt
				}
				if err := w.Flush(); err != nil {
					// client went away
					return
				}
			case <-done:
				return
			}
		}
	})

	return nil
}

func (s *ChallengeService) latestCompletionTime(userID string) (time.Time, error) {
	var latest models.ChallengeCompletion
	err := s.DB.Where("user_id = ?", userID).Order("created_at DESC").First(&latest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Unix(0, 0).UTC(), nil
	}
	if err != nil {
		return s.Clock.now(), err
	}
	return latest.CreatedAt.UTC(), nil
}

func writeCompletionEvent(w *bufio.Writer, c models.ChallengeCompletion) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: completion\ndata: %s\n\n", c.ID, payload)
	return err
}
