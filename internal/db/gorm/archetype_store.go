// Package gorm provides GORM-based database operations for spiral.
package gorm

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/thebtf/spiral/pkg/models"
)

// ArchetypeStore reads the proven-method scores an offline pipeline writes
// per user archetype. Ordering by success score makes the best method the
// first plan entry when the archetype override fires.
type ArchetypeStore struct {
	db *gorm.DB
}

// NewArchetypeStore creates a new archetype store.
func NewArchetypeStore(store *Store) *ArchetypeStore {
	return &ArchetypeStore{db: store.DB}
}

// BestMethods returns an archetype's methods ordered by success score,
// highest first. Unknown method labels are dropped. An empty result is a
// normal state for a new archetype.
func (s *ArchetypeStore) BestMethods(ctx context.Context, archetypeID string, limit int) ([]models.Method, error) {
	if limit <= 0 {
		limit = 6
	}
	var rows []ArchetypeMethodRow
	err := s.db.WithContext(ctx).
		Where("archetype_id = ?", archetypeID).
		Order("success_score DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	methods := make([]models.Method, 0, len(rows))
	for _, row := range rows {
		m := models.Method(row.Method)
		if m.IsValid() {
			methods = append(methods, m)
		}
	}
	return methods, nil
}

// UpsertMethodScore records or updates an effectiveness score for an
// archetype/method pair.
func (s *ArchetypeStore) UpsertMethodScore(ctx context.Context, archetypeID string, method models.Method, score float64, samples int) error {
	now := time.Now()
	row := &ArchetypeMethodRow{
		ArchetypeID:    archetypeID,
		Method:         string(method),
		SuccessScore:   score,
		SampleCount:    samples,
		UpdatedAt:      now.Format(time.RFC3339),
		UpdatedAtEpoch: now.UnixMilli(),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "archetype_id"}, {Name: "method"}},
			DoUpdates: clause.AssignmentColumns([]string{"success_score", "sample_count", "updated_at", "updated_at_epoch"}),
		}).
		Create(row).Error
}
