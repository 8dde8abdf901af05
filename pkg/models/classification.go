package models

// ThoughtForm is the dominant cognitive shape of a spiral.
type ThoughtForm string

const (
	ThoughtWorry         ThoughtForm = "worry"
	ThoughtRumination    ThoughtForm = "rumination"
	ThoughtSelfCriticism ThoughtForm = "self_criticism"
	ThoughtAnger         ThoughtForm = "anger"
	ThoughtGrief         ThoughtForm = "grief"
	ThoughtExistential   ThoughtForm = "existential"
	ThoughtMixed         ThoughtForm = "mixed"
)

// CognitiveCapacity is how much guided thinking the user can do right now.
type CognitiveCapacity string

const (
	CapacityLow    CognitiveCapacity = "low"
	CapacityMedium CognitiveCapacity = "medium"
	CapacityHigh   CognitiveCapacity = "high"
)

// PrimaryEmotions is the fixed emotion vocabulary the classifier may use.
var PrimaryEmotions = []string{
	"anxiety", "fear", "shame", "guilt", "sadness",
	"anger", "loneliness", "overwhelm", "emptiness",
}

// ClassificationContext carries situational signals captured at classify time.
type ClassificationContext struct {
	TimeOfDay    string  `json:"timeOfDay"`
	SleepRelated bool    `json:"sleepRelated"`
	AcuteTrigger *string `json:"acuteTrigger"`
}

// Classification is the structured interpretation of a user's spiral.
// Computed at most once per session and immutable afterwards. Every field
// is always populated - the classifier adapter substitutes deterministic
// defaults on any generation failure.
type Classification struct {
	Topics                map[string]float64    `json:"topics"`
	ThoughtForm           ThoughtForm           `json:"thoughtForm"`
	PrimaryEmotions       []string              `json:"primaryEmotions"`
	Intensity             int                   `json:"intensity"`
	CognitiveCapacity     CognitiveCapacity     `json:"cognitiveCapacity"`
	Context               ClassificationContext `json:"context"`
	RecommendedStrategies []Method              `json:"recommendedStrategies"`
}

// DominantTopic returns the topic with the highest weight, or "other"
// when the map is empty.
func (c *Classification) DominantTopic() string {
	top := "other"
	best := -1.0
	for name, weight := range c.Topics {
		if weight > best || (weight == best && name < top) {
			top = name
			best = weight
		}
	}
	return top
}

// IsLateNight reports whether the session context is a late-night one.
func (c *Classification) IsLateNight() bool {
	return c.Context.TimeOfDay == "late_night" || c.Context.TimeOfDay == "night"
}

// Normalize clamps out-of-range values and fills absent fields so that
// the invariant "always fully populated" holds even for generator output.
func (c *Classification) Normalize() {
	if len(c.Topics) == 0 {
		c.Topics = map[string]float64{"other": 1.0}
	}
	for name, weight := range c.Topics {
		if weight < 0 {
			c.Topics[name] = 0
		} else if weight > 1 {
			c.Topics[name] = 1
		}
	}
	switch c.ThoughtForm {
	case ThoughtWorry, ThoughtRumination, ThoughtSelfCriticism,
		ThoughtAnger, ThoughtGrief, ThoughtExistential, ThoughtMixed:
	default:
		c.ThoughtForm = ThoughtMixed
	}
	if len(c.PrimaryEmotions) == 0 {
		c.PrimaryEmotions = []string{"anxiety"}
	}
	if len(c.PrimaryEmotions) > 3 {
		c.PrimaryEmotions = c.PrimaryEmotions[:3]
	}
	if c.Intensity < 1 {
		c.Intensity = 1
	}
	if c.Intensity > 10 {
		c.Intensity = 10
	}
	switch c.CognitiveCapacity {
	case CapacityLow, CapacityMedium, CapacityHigh:
	default:
		c.CognitiveCapacity = CapacityMedium
	}
	if c.Context.TimeOfDay == "" {
		c.Context.TimeOfDay = "unknown"
	}
	valid := c.RecommendedStrategies[:0]
	for _, m := range c.RecommendedStrategies {
		if m.IsValid() {
			valid = append(valid, m)
		}
	}
	c.RecommendedStrategies = valid
	if len(c.RecommendedStrategies) == 0 {
		c.RecommendedStrategies = []Method{
			MethodBreathing, MethodExpressiveRelease, MethodBriefCBT, MethodSummary,
		}
	}
}
