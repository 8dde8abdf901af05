package flow

import (
	"context"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/thebtf/spiral/internal/genai"
	"github.com/thebtf/spiral/pkg/models"
)

// SessionContext carries the situational inputs to classification.
type SessionContext struct {
	SessionID        string
	TimeOfDay        string
	SleepRelated     bool
	InitialIntensity int // 0 = not self-reported
}

// Classifier wraps the external generator behind a total function:
// Classify never fails its caller. It runs at most once per session;
// concurrent duplicate requests for the same session share one flight.
type Classifier struct {
	gen   genai.Generator
	group singleflight.Group
}

// NewClassifier creates a classifier. A nil generator means every call
// returns the deterministic fallback.
func NewClassifier(gen genai.Generator) *Classifier {
	return &Classifier{gen: gen}
}

// Classify turns raw user text plus context into a fully-populated
// Classification. On any generation failure, timeout, or schema violation
// it returns the fixed fallback - the caller cannot tell the difference
// and must not need to.
func (c *Classifier) Classify(ctx context.Context, userText string, profile *models.UserProfile, sctx SessionContext) models.Classification {
	key := sctx.SessionID
	if key == "" {
		key = userText
	}

	result, _, _ := c.group.Do(key, func() (interface{}, error) {
		return c.classifyOnce(ctx, userText, profile, sctx), nil
	})
	return result.(models.Classification)
}

func (c *Classifier) classifyOnce(ctx context.Context, userText string, profile *models.UserProfile, sctx SessionContext) models.Classification {
	if c.gen == nil {
		return FallbackClassification(sctx)
	}

	req := BuildClassificationPrompt(userText, profile, sctx)
	data, err := c.gen.GenerateJSON(ctx, req)
	if err != nil {
		log.Warn().Err(err).Str("sessionId", sctx.SessionID).Msg("Classification failed, using fallback")
		return FallbackClassification(sctx)
	}

	var parsed models.Classification
	if err := json.Unmarshal(data, &parsed); err != nil {
		log.Warn().Err(err).Str("sessionId", sctx.SessionID).Msg("Classification JSON unparsable, using fallback")
		return FallbackClassification(sctx)
	}

	// Context fields come from the session, not the model's imagination.
	parsed.Context.TimeOfDay = sctx.TimeOfDay
	parsed.Context.SleepRelated = sctx.SleepRelated
	parsed.Normalize()
	return parsed
}

// FallbackClassification is the deterministic classification used when
// the generator cannot be trusted. Every field populated, always.
func FallbackClassification(sctx SessionContext) models.Classification {
	intensity := sctx.InitialIntensity
	if intensity < 1 || intensity > 10 {
		intensity = 5
	}
	capacity := models.CapacityMedium
	if sctx.SleepRelated {
		capacity = models.CapacityLow
	}
	timeOfDay := sctx.TimeOfDay
	if timeOfDay == "" {
		timeOfDay = "unknown"
	}

	return models.Classification{
		Topics:            map[string]float64{"other": 1.0},
		ThoughtForm:       models.ThoughtMixed,
		PrimaryEmotions:   []string{"anxiety"},
		Intensity:         intensity,
		CognitiveCapacity: capacity,
		Context: models.ClassificationContext{
			TimeOfDay:    timeOfDay,
			SleepRelated: sctx.SleepRelated,
		},
		RecommendedStrategies: []models.Method{
			models.MethodBreathing,
			models.MethodExpressiveRelease,
			models.MethodBriefCBT,
			models.MethodSummary,
		},
	}
}
