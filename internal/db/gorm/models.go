// Package gorm provides GORM-based database operations for spiral.
package gorm

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/thebtf/spiral/pkg/models"
)

// GORM models. JSON column types come from pkg/models and implement
// sql.Scanner and driver.Valuer.

// RescueSessionRow is the persisted form of a rescue session.
type RescueSessionRow struct {
	ID                 string `gorm:"primaryKey;type:text"`
	UserID             string `gorm:"index;not null"`
	Mode               string `gorm:"type:text;check:mode IN ('rescue', 'quick_rescue', 'buffer', 'training');default:'rescue';not null"`
	TriggerText        sql.NullString
	Classification     models.JSONClassification `gorm:"type:text"`
	MicroPlan          models.JSONMethodArray    `gorm:"type:text"`
	CurrentMethodIndex int                       `gorm:"default:0;not null"`
	MethodStepCount    int                       `gorm:"default:0;not null"`
	PhaseHistory       models.JSONPhaseHistory   `gorm:"type:text"`
	SleepRelated       bool                      `gorm:"default:false"`
	InitialIntensity   int                       `gorm:"default:0"`
	ChosenPath         sql.NullString            `gorm:"type:text;check:chosen_path IN ('sleep', 'action') OR chosen_path IS NULL"`
	Completed          bool                      `gorm:"default:false;index"`
	CrisisDetected     bool                      `gorm:"default:false"`
	StartedAt          string                    `gorm:"not null"`
	StartedAtEpoch     int64                     `gorm:"index:idx_sessions_started,sort:desc;not null"`
	CompletedAt        sql.NullString
	CompletedAtEpoch   sql.NullInt64
}

func (RescueSessionRow) TableName() string { return "rescue_sessions" }

// BeforeCreate hook to ensure ID and timestamps are set.
func (r *RescueSessionRow) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.StartedAtEpoch == 0 {
		r.StartedAtEpoch = time.Now().UnixMilli()
	}
	if r.StartedAt == "" {
		r.StartedAt = time.Now().Format(time.RFC3339)
	}
	return nil
}

// StepRecordRow is one appended step of a session's history. Rows are
// append-only: after insert, only answer and completed_at are ever written.
type StepRecordRow struct {
	ID               int64           `gorm:"primaryKey;autoIncrement"`
	SessionID        string          `gorm:"index;not null;uniqueIndex:idx_steps_session_step,priority:1"`
	StepID           string          `gorm:"not null;uniqueIndex:idx_steps_session_step,priority:2"`
	StepType         string          `gorm:"index;not null"`
	PhaseNumber      int             `gorm:"default:0;not null"`
	Payload          models.JSONStep `gorm:"type:text;not null"` // full step document
	Answer           sql.NullString  `gorm:"type:text"`
	CreatedAt        string          `gorm:"not null"`
	CreatedAtEpoch   int64           `gorm:"index:idx_steps_created,sort:desc;not null"`
	CompletedAtEpoch sql.NullInt64
}

func (StepRecordRow) TableName() string { return "step_records" }

// BeforeCreate hook to ensure timestamps are set.
func (r *StepRecordRow) BeforeCreate(tx *gorm.DB) error {
	if r.CreatedAtEpoch == 0 {
		r.CreatedAtEpoch = time.Now().UnixMilli()
	}
	if r.CreatedAt == "" {
		r.CreatedAt = time.Now().Format(time.RFC3339)
	}
	return nil
}

// UserProfileRow is the onboarding profile consumed by planning branches.
type UserProfileRow struct {
	UserID             string                 `gorm:"primaryKey;type:text"`
	DislikesBreathing  bool                   `gorm:"default:false"`
	EffortTolerance    string                 `gorm:"type:text;default:'standard';check:effort_tolerance IN ('standard', 'keep_short')"`
	OnboardingPatterns models.JSONStringArray `gorm:"type:text"`
	ArchetypeID        sql.NullString         `gorm:"index"`
	UpdatedAt          string                 `gorm:"not null"`
	UpdatedAtEpoch     int64                  `gorm:"not null"`
}

func (UserProfileRow) TableName() string { return "user_profiles" }

// BeforeCreate hook to ensure timestamps and defaults are set.
func (r *UserProfileRow) BeforeCreate(tx *gorm.DB) error {
	if r.UpdatedAtEpoch == 0 {
		r.UpdatedAtEpoch = time.Now().UnixMilli()
	}
	if r.UpdatedAt == "" {
		r.UpdatedAt = time.Now().Format(time.RFC3339)
	}
	if r.EffortTolerance == "" {
		r.EffortTolerance = string(models.EffortStandard)
	}
	return nil
}

// ArchetypeMethodRow is one proven method for a user archetype, scored by
// observed effectiveness. Written by an offline pipeline; read-only here
// apart from score upserts.
type ArchetypeMethodRow struct {
	ID             int64   `gorm:"primaryKey;autoIncrement"`
	ArchetypeID    string  `gorm:"index;not null;uniqueIndex:idx_archetype_method,priority:1"`
	Method         string  `gorm:"not null;uniqueIndex:idx_archetype_method,priority:2"`
	SuccessScore   float64 `gorm:"type:real;default:0.5;index:idx_archetype_score,sort:desc;not null"`
	SampleCount    int     `gorm:"default:0"`
	UpdatedAt      string  `gorm:"not null"`
	UpdatedAtEpoch int64   `gorm:"not null"`
}

func (ArchetypeMethodRow) TableName() string { return "archetype_methods" }

// BeforeCreate hook to ensure timestamps and defaults are set.
func (r *ArchetypeMethodRow) BeforeCreate(tx *gorm.DB) error {
	if r.UpdatedAtEpoch == 0 {
		r.UpdatedAtEpoch = time.Now().UnixMilli()
	}
	if r.UpdatedAt == "" {
		r.UpdatedAt = time.Now().Format(time.RFC3339)
	}
	if r.SuccessScore == 0 {
		r.SuccessScore = 0.5
	}
	return nil
}

// Conversions between rows and domain models.

func toModelSession(r *RescueSessionRow) *models.RescueSession {
	session := &models.RescueSession{
		ID:                 r.ID,
		UserID:             r.UserID,
		Mode:               models.SessionMode(r.Mode),
		TriggerText:        r.TriggerText.String,
		Classification:     r.Classification.Classification,
		MicroPlan:          []models.Method(r.MicroPlan),
		CurrentMethodIndex: r.CurrentMethodIndex,
		MethodStepCount:    r.MethodStepCount,
		PhaseHistory:       []models.PhaseRecord(r.PhaseHistory),
		SleepRelated:       r.SleepRelated,
		InitialIntensity:   r.InitialIntensity,
		ChosenPath:         r.ChosenPath.String,
		Completed:          r.Completed,
		CrisisDetected:     r.CrisisDetected,
		StartedAt:          time.UnixMilli(r.StartedAtEpoch),
	}
	if r.CompletedAtEpoch.Valid {
		t := time.UnixMilli(r.CompletedAtEpoch.Int64)
		session.CompletedAt = &t
	}
	return session
}

func fromModelSession(s *models.RescueSession) *RescueSessionRow {
	row := &RescueSessionRow{
		ID:                 s.ID,
		UserID:             s.UserID,
		Mode:               string(s.Mode),
		TriggerText:        nullString(s.TriggerText),
		Classification:     models.JSONClassification{Classification: s.Classification},
		MicroPlan:          models.JSONMethodArray(s.MicroPlan),
		CurrentMethodIndex: s.CurrentMethodIndex,
		MethodStepCount:    s.MethodStepCount,
		PhaseHistory:       models.JSONPhaseHistory(s.PhaseHistory),
		SleepRelated:       s.SleepRelated,
		InitialIntensity:   s.InitialIntensity,
		ChosenPath:         nullString(s.ChosenPath),
		Completed:          s.Completed,
		CrisisDetected:     s.CrisisDetected,
	}
	if !s.StartedAt.IsZero() {
		row.StartedAt = s.StartedAt.Format(time.RFC3339)
		row.StartedAtEpoch = s.StartedAt.UnixMilli()
	}
	if s.CompletedAt != nil {
		row.CompletedAt = nullString(s.CompletedAt.Format(time.RFC3339))
		row.CompletedAtEpoch = sql.NullInt64{Int64: s.CompletedAt.UnixMilli(), Valid: true}
	}
	return row
}

func toModelStepRecord(r *StepRecordRow) models.StepRecord {
	rec := models.StepRecord{
		Step:        r.Payload.Step,
		PhaseNumber: r.PhaseNumber,
		Answer:      r.Answer.String,
	}
	if r.CompletedAtEpoch.Valid {
		t := time.UnixMilli(r.CompletedAtEpoch.Int64)
		rec.CompletedAt = &t
	}
	return rec
}

func toModelProfile(r *UserProfileRow) *models.UserProfile {
	return &models.UserProfile{
		UserID:             r.UserID,
		DislikesBreathing:  r.DislikesBreathing,
		EffortTolerance:    models.EffortTolerance(r.EffortTolerance),
		OnboardingPatterns: []string(r.OnboardingPatterns),
		ArchetypeID:        r.ArchetypeID.String,
	}
}
