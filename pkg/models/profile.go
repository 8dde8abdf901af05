package models

// EffortTolerance is the user's onboarding preference for session length.
type EffortTolerance string

const (
	EffortStandard  EffortTolerance = "standard"
	EffortKeepShort EffortTolerance = "keep_short"
)

// UserProfile is the read-only onboarding profile consumed by planning
// and personalization branches. Built during onboarding, outside this
// engine's responsibility.
type UserProfile struct {
	UserID             string          `json:"user_id"`
	DislikesBreathing  bool            `json:"dislikes_breathing"`
	EffortTolerance    EffortTolerance `json:"effort_tolerance"`
	OnboardingPatterns []string        `json:"onboarding_patterns,omitempty"`
	ArchetypeID        string          `json:"archetype_id,omitempty"`
}

// HasPattern reports whether the onboarding patterns include the marker.
func (p *UserProfile) HasPattern(marker string) bool {
	if p == nil {
		return false
	}
	for _, pat := range p.OnboardingPatterns {
		if pat == marker {
			return true
		}
	}
	return false
}

// SelfBlamePatterns are the onboarding markers that indicate self-directed
// blame, used by the anger branch of plan generation.
var SelfBlamePatterns = []string{"self_blame", "self_directed_anger", "harsh_inner_critic"}

// HasSelfBlameMarker reports whether any self-directed-blame marker is present.
func (p *UserProfile) HasSelfBlameMarker() bool {
	for _, marker := range SelfBlamePatterns {
		if p.HasPattern(marker) {
			return true
		}
	}
	return false
}
