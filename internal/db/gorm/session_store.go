// Package gorm provides GORM-based database operations for spiral.
package gorm

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/thebtf/spiral/pkg/models"
)

// SessionStore provides session persistence. Classification and micro-plan
// are write-once columns, enforced with guarded updates so duplicate
// requests cannot overwrite an earlier decision.
type SessionStore struct {
	db *gorm.DB
}

// NewSessionStore creates a new session store.
func NewSessionStore(store *Store) *SessionStore {
	return &SessionStore{db: store.DB}
}

// CreateSession inserts a new session and fills in its generated ID and
// start time on the passed model.
func (s *SessionStore) CreateSession(ctx context.Context, session *models.RescueSession) error {
	row := fromModelSession(session)
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return err
	}
	session.ID = row.ID
	session.StartedAt = time.UnixMilli(row.StartedAtEpoch)
	return nil
}

// GetSession retrieves a session by ID. Returns ErrNotFound when absent.
func (s *SessionStore) GetSession(ctx context.Context, id string) (*models.RescueSession, error) {
	var row RescueSessionRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return toModelSession(&row), nil
}

// GetSessionForUser retrieves a session and checks ownership. Returns
// ErrForbidden when the session belongs to a different user.
func (s *SessionStore) GetSessionForUser(ctx context.Context, id, userID string) (*models.RescueSession, error) {
	session, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if userID != "" && session.UserID != userID {
		return nil, ErrForbidden
	}
	return session, nil
}

// SetClassification stores the classification, once. A second call returns
// ErrAlreadySet and leaves the stored value untouched.
func (s *SessionStore) SetClassification(ctx context.Context, id string, c *models.Classification) error {
	if c == nil {
		return nil
	}
	res := s.db.WithContext(ctx).
		Model(&RescueSessionRow{}).
		Where("id = ? AND classification IS NULL", id).
		Update("classification", models.JSONClassification{Classification: c})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return s.writeOnceMiss(ctx, id)
	}
	return nil
}

// SetMicroPlan stores the micro-plan, once.
func (s *SessionStore) SetMicroPlan(ctx context.Context, id string, plan []models.Method) error {
	if len(plan) == 0 {
		return nil
	}
	res := s.db.WithContext(ctx).
		Model(&RescueSessionRow{}).
		Where("id = ? AND micro_plan IS NULL", id).
		Update("micro_plan", models.JSONMethodArray(plan))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return s.writeOnceMiss(ctx, id)
	}
	return nil
}

// writeOnceMiss distinguishes "row missing" from "column already set" after
// a guarded update touched zero rows.
func (s *SessionStore) writeOnceMiss(ctx context.Context, id string) error {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&RescueSessionRow{}).
		Where("id = ?", id).
		Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrAlreadySet
}

// SaveProgress persists the mutable engine state of a session: method
// counters, phase history, chosen path and terminal flags. Classification
// and plan are deliberately excluded - they go through the write-once setters.
func (s *SessionStore) SaveProgress(ctx context.Context, session *models.RescueSession) error {
	updates := map[string]interface{}{
		"current_method_index": session.CurrentMethodIndex,
		"method_step_count":    session.MethodStepCount,
		"phase_history":        models.JSONPhaseHistory(session.PhaseHistory),
		"chosen_path":          nullString(session.ChosenPath),
		"sleep_related":        session.SleepRelated,
		"completed":            session.Completed,
		"crisis_detected":      session.CrisisDetected,
	}
	if session.CompletedAt != nil {
		updates["completed_at"] = session.CompletedAt.Format(time.RFC3339)
		updates["completed_at_epoch"] = sql.NullInt64{Int64: session.CompletedAt.UnixMilli(), Valid: true}
	}

	res := s.db.WithContext(ctx).
		Model(&RescueSessionRow{}).
		Where("id = ?", session.ID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListUserSessions returns a user's sessions, newest first.
func (s *SessionStore) ListUserSessions(ctx context.Context, userID string, limit int) ([]*models.RescueSession, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []RescueSessionRow
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("started_at_epoch DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	sessions := make([]*models.RescueSession, len(rows))
	for i := range rows {
		sessions[i] = toModelSession(&rows[i])
	}
	return sessions, nil
}
