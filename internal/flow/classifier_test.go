package flow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/spiral/pkg/models"
)

func TestClassifyNilGeneratorFallback(t *testing.T) {
	c := NewClassifier(nil)
	sctx := SessionContext{SessionID: "s-1", TimeOfDay: "late_night", SleepRelated: true, InitialIntensity: 8}

	got := c.Classify(context.Background(), "I can't stop thinking about work", nil, sctx)

	assert.Equal(t, models.ThoughtMixed, got.ThoughtForm)
	assert.Equal(t, 8, got.Intensity)
	assert.Equal(t, models.CapacityLow, got.CognitiveCapacity)
	assert.Equal(t, "late_night", got.Context.TimeOfDay)
	assert.True(t, got.Context.SleepRelated)
	assert.NotEmpty(t, got.Topics)
	assert.NotEmpty(t, got.PrimaryEmotions)
	assert.NotEmpty(t, got.RecommendedStrategies)
	assert.Equal(t, models.MethodSummary, got.RecommendedStrategies[len(got.RecommendedStrategies)-1])
}

func TestClassifyGeneratorErrorFallback(t *testing.T) {
	c := NewClassifier(&fakeGenerator{err: errors.New("deadline exceeded")})
	sctx := SessionContext{SessionID: "s-2", TimeOfDay: "evening"}

	got := c.Classify(context.Background(), "everything is too much", nil, sctx)
	assert.Equal(t, FallbackClassification(sctx), got)
}

func TestClassifyUnparsableFallback(t *testing.T) {
	c := NewClassifier(&fakeGenerator{data: []byte("I refuse to answer in JSON")})
	sctx := SessionContext{SessionID: "s-3", TimeOfDay: "morning", InitialIntensity: 3}

	got := c.Classify(context.Background(), "spiraling again", nil, sctx)
	assert.Equal(t, FallbackClassification(sctx), got)
}

func TestClassifyGeneratorSuccess(t *testing.T) {
	c := NewClassifier(&fakeGenerator{data: []byte(`{
		"topics": {"work": 0.9, "health": 0.2},
		"thoughtForm": "worry",
		"primaryEmotions": ["anxiety", "fear"],
		"intensity": 7,
		"cognitiveCapacity": "medium",
		"context": {"timeOfDay": "hallucinated", "sleepRelated": false},
		"recommendedStrategies": ["breathing", "brief_cbt", "summary"]
	}`)})
	sctx := SessionContext{SessionID: "s-4", TimeOfDay: "evening", SleepRelated: true}

	got := c.Classify(context.Background(), "the deadline is tomorrow and I'm frozen", nil, sctx)

	assert.Equal(t, models.ThoughtWorry, got.ThoughtForm)
	assert.Equal(t, 7, got.Intensity)
	assert.Equal(t, "work", got.DominantTopic())
	// Context comes from the session, never from the model.
	assert.Equal(t, "evening", got.Context.TimeOfDay)
	assert.True(t, got.Context.SleepRelated)
}

func TestClassifyNormalizesGeneratorExcess(t *testing.T) {
	c := NewClassifier(&fakeGenerator{data: []byte(`{
		"topics": {"work": 3.5},
		"thoughtForm": "catastrophizing",
		"primaryEmotions": ["anxiety", "fear", "shame", "guilt", "sadness"],
		"intensity": 42,
		"cognitiveCapacity": "superhuman",
		"recommendedStrategies": ["brief_cbt", "hypnosis"]
	}`)})
	sctx := SessionContext{SessionID: "s-5", TimeOfDay: "evening"}

	got := c.Classify(context.Background(), "it's all falling apart", nil, sctx)

	assert.Equal(t, 1.0, got.Topics["work"])
	assert.Equal(t, models.ThoughtMixed, got.ThoughtForm)
	assert.Len(t, got.PrimaryEmotions, 3)
	assert.Equal(t, 10, got.Intensity)
	assert.Equal(t, models.CapacityMedium, got.CognitiveCapacity)
	assert.Equal(t, []models.Method{models.MethodBriefCBT}, got.RecommendedStrategies)
}

func TestFallbackClassificationAlwaysPopulated(t *testing.T) {
	for _, sctx := range []SessionContext{
		{},
		{TimeOfDay: "morning"},
		{SleepRelated: true, InitialIntensity: -4},
		{InitialIntensity: 99},
	} {
		got := FallbackClassification(sctx)
		require.NotEmpty(t, got.Topics)
		require.NotEmpty(t, got.PrimaryEmotions)
		require.NotEmpty(t, got.RecommendedStrategies)
		assert.GreaterOrEqual(t, got.Intensity, 1)
		assert.LessOrEqual(t, got.Intensity, 10)
		assert.NotEmpty(t, got.Context.TimeOfDay)
		assert.NotEqual(t, models.ThoughtForm(""), got.ThoughtForm)
		assert.NotEqual(t, models.CognitiveCapacity(""), got.CognitiveCapacity)
	}
}
