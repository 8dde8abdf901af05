// Package models contains domain models for spiral.
package models

// Method names an intervention technique used as a planning unit.
// Methods are plain labels, not entities - a micro-plan is an ordered
// list of them.
type Method string

const (
	MethodBreathing          Method = "breathing"
	MethodGrounding          Method = "grounding"
	MethodExpressiveRelease  Method = "expressive_release"
	MethodBriefCBT           Method = "brief_cbt"
	MethodDeepCBT            Method = "deep_cbt"
	MethodDefusion           Method = "defusion"
	MethodSelfCompassion     Method = "self_compassion"
	MethodBehavioralPlan     Method = "behavioral_micro_plan"
	MethodSleepWindDown      Method = "sleep_wind_down"
	MethodAcceptanceValues   Method = "acceptance_values"
	MethodSummary            Method = "summary"
)

// AllMethods lists every valid method label.
var AllMethods = []Method{
	MethodBreathing, MethodGrounding, MethodExpressiveRelease,
	MethodBriefCBT, MethodDeepCBT, MethodDefusion, MethodSelfCompassion,
	MethodBehavioralPlan, MethodSleepWindDown, MethodAcceptanceValues,
	MethodSummary,
}

// IsValid reports whether m is a known method label.
func (m Method) IsValid() bool {
	for _, known := range AllMethods {
		if m == known {
			return true
		}
	}
	return false
}

// IsAnchor reports whether m is a regulation anchor (kept by the
// short-session trim regardless of plan length).
func (m Method) IsAnchor() bool {
	return m == MethodBreathing || m == MethodGrounding
}

// StageCount returns how many realization stages the method has.
// brief_cbt is the only two-stage method: a Socratic question followed
// by a calming reframe.
func (m Method) StageCount() int {
	if m == MethodBriefCBT {
		return 2
	}
	return 1
}
