// Package gorm provides GORM-based database operations for spiral.
package gorm

import (
	"context"
	"database/sql"
	"time"

	"gorm.io/gorm"

	"github.com/thebtf/spiral/pkg/models"
)

// StepStore provides append-only step history persistence. A step row is
// inserted when the engine emits the step; the only later write is the
// user's answer with its completion time.
type StepStore struct {
	db *gorm.DB
}

// NewStepStore creates a new step store.
func NewStepStore(store *Store) *StepStore {
	return &StepStore{db: store.DB}
}

// AppendStep records an emitted step against a session.
func (s *StepStore) AppendStep(ctx context.Context, sessionID string, rec models.StepRecord) error {
	row := &StepRecordRow{
		SessionID:   sessionID,
		StepID:      rec.Step.StepID,
		StepType:    string(rec.Step.StepType),
		PhaseNumber: rec.PhaseNumber,
		Payload:     models.JSONStep{Step: rec.Step},
		Answer:      nullString(rec.Answer),
	}
	if rec.CompletedAt != nil {
		row.CompletedAtEpoch = sql.NullInt64{Int64: rec.CompletedAt.UnixMilli(), Valid: true}
	}
	return s.db.WithContext(ctx).Create(row).Error
}

// AttachAnswer stores the user's answer on a previously appended step.
// Only unanswered steps are writable; a second answer for the same step
// returns ErrAlreadySet, a missing step ErrNotFound.
func (s *StepStore) AttachAnswer(ctx context.Context, sessionID, stepID, answer string) error {
	res := s.db.WithContext(ctx).
		Model(&StepRecordRow{}).
		Where("session_id = ? AND step_id = ? AND answer IS NULL", sessionID, stepID).
		Updates(map[string]interface{}{
			"answer":             answer,
			"completed_at_epoch": time.Now().UnixMilli(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := s.db.WithContext(ctx).
		Model(&StepRecordRow{}).
		Where("session_id = ? AND step_id = ?", sessionID, stepID).
		Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrAlreadySet
}

// History returns a session's full step history in emission order.
func (s *StepStore) History(ctx context.Context, sessionID string) ([]models.StepRecord, error) {
	var rows []StepRecordRow
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	history := make([]models.StepRecord, len(rows))
	for i := range rows {
		history[i] = toModelStepRecord(&rows[i])
	}
	return history, nil
}

// GetStep returns one step of a session by its step ID.
func (s *StepStore) GetStep(ctx context.Context, sessionID, stepID string) (models.StepRecord, error) {
	var row StepRecordRow
	err := s.db.WithContext(ctx).
		First(&row, "session_id = ? AND step_id = ?", sessionID, stepID).Error
	if err == gorm.ErrRecordNotFound {
		return models.StepRecord{}, ErrNotFound
	}
	if err != nil {
		return models.StepRecord{}, err
	}
	return toModelStepRecord(&row), nil
}
