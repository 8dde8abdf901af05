// Package gorm provides GORM-based database operations for spiral.
package gorm

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/thebtf/spiral/pkg/models"
)

// ProfileStore reads and writes onboarding profiles. Profiles are built
// by the onboarding surface; the engine only ever reads them.
type ProfileStore struct {
	db *gorm.DB
}

// NewProfileStore creates a new profile store.
func NewProfileStore(store *Store) *ProfileStore {
	return &ProfileStore{db: store.DB}
}

// GetProfile retrieves a user's profile, or nil when the user has none.
// A missing profile is a normal state, not an error.
func (s *ProfileStore) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	var row UserProfileRow
	err := s.db.WithContext(ctx).First(&row, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toModelProfile(&row), nil
}

// UpsertProfile creates or replaces a user's profile.
func (s *ProfileStore) UpsertProfile(ctx context.Context, profile *models.UserProfile) error {
	now := time.Now()
	row := &UserProfileRow{
		UserID:             profile.UserID,
		DislikesBreathing:  profile.DislikesBreathing,
		EffortTolerance:    string(profile.EffortTolerance),
		OnboardingPatterns: models.JSONStringArray(profile.OnboardingPatterns),
		ArchetypeID:        nullString(profile.ArchetypeID),
		UpdatedAt:          now.Format(time.RFC3339),
		UpdatedAtEpoch:     now.UnixMilli(),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			UpdateAll: true,
		}).
		Create(row).Error
}
