package gorm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/spiral/pkg/models"
)

func TestProfileStoreMissingIsNil(t *testing.T) {
	store, cleanup := testStore(t)
	defer cleanup()
	profiles := NewProfileStore(store)

	got, err := profiles.GetProfile(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestProfileStoreUpsert(t *testing.T) {
	store, cleanup := testStore(t)
	defer cleanup()
	profiles := NewProfileStore(store)
	ctx := context.Background()

	profile := &models.UserProfile{
		UserID:             "user-1",
		DislikesBreathing:  true,
		EffortTolerance:    models.EffortKeepShort,
		OnboardingPatterns: []string{"self_blame", "night_owl"},
		ArchetypeID:        "arch-7",
	}
	require.NoError(t, profiles.UpsertProfile(ctx, profile))

	got, err := profiles.GetProfile(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.DislikesBreathing)
	assert.Equal(t, models.EffortKeepShort, got.EffortTolerance)
	assert.Equal(t, []string{"self_blame", "night_owl"}, got.OnboardingPatterns)
	assert.Equal(t, "arch-7", got.ArchetypeID)

	// Upsert replaces in place.
	profile.DislikesBreathing = false
	profile.EffortTolerance = models.EffortStandard
	require.NoError(t, profiles.UpsertProfile(ctx, profile))

	got, err = profiles.GetProfile(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, got.DislikesBreathing)
	assert.Equal(t, models.EffortStandard, got.EffortTolerance)
}

func TestArchetypeStoreBestMethods(t *testing.T) {
	store, cleanup := testStore(t)
	defer cleanup()
	archetypes := NewArchetypeStore(store)
	ctx := context.Background()

	require.NoError(t, archetypes.UpsertMethodScore(ctx, "arch-1", models.MethodDefusion, 0.81, 40))
	require.NoError(t, archetypes.UpsertMethodScore(ctx, "arch-1", models.MethodBriefCBT, 0.92, 55))
	require.NoError(t, archetypes.UpsertMethodScore(ctx, "arch-1", models.MethodSelfCompassion, 0.67, 12))
	require.NoError(t, archetypes.UpsertMethodScore(ctx, "arch-2", models.MethodBreathing, 0.99, 3))

	methods, err := archetypes.BestMethods(ctx, "arch-1", 0)
	require.NoError(t, err)
	assert.Equal(t, []models.Method{
		models.MethodBriefCBT,
		models.MethodDefusion,
		models.MethodSelfCompassion,
	}, methods)

	// Score upsert updates in place.
	require.NoError(t, archetypes.UpsertMethodScore(ctx, "arch-1", models.MethodDefusion, 0.95, 41))
	methods, err = archetypes.BestMethods(ctx, "arch-1", 2)
	require.NoError(t, err)
	assert.Equal(t, []models.Method{models.MethodDefusion, models.MethodBriefCBT}, methods)
}

func TestArchetypeStoreUnknownArchetype(t *testing.T) {
	store, cleanup := testStore(t)
	defer cleanup()
	archetypes := NewArchetypeStore(store)

	methods, err := archetypes.BestMethods(context.Background(), "never-seen", 0)
	require.NoError(t, err)
	assert.Empty(t, methods)
}
