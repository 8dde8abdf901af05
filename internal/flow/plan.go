package flow

import (
	"github.com/thebtf/spiral/pkg/models"
)

// PlanOptions carries the per-session inputs for plan generation beyond
// classification and profile. ArchetypeMethods is resolved by the caller
// (the archetype lookup collaborator) so GenerateMicroPlan stays pure.
type PlanOptions struct {
	Mode             models.SessionMode
	ArchetypeID      string
	ArchetypeMethods []models.Method
}

// GenerateMicroPlan maps (classification, profile, options) to an ordered
// method list. Pure: no I/O, no randomness - identical inputs produce
// identical plans, which is what makes the once-per-session plan
// reproducible for testing and auditing.
//
// Guarantees: length >= 2 and the last element is always summary.
func GenerateMicroPlan(c *models.Classification, profile *models.UserProfile, opts PlanOptions) []models.Method {
	// 1. Archetype override: enough proven methods beat the rule table.
	if opts.ArchetypeID != "" && len(opts.ArchetypeMethods) >= 3 {
		plan := ensureEssentialMethods(opts.ArchetypeMethods, c, profile)
		if profile != nil && profile.EffortTolerance == models.EffortKeepShort {
			plan = shortSessionTrim(plan, c.Context.SleepRelated)
		}
		return plan
	}

	// 2-3. Shortened variants keep their fixed treatment shape; the
	// terminal summary is appended to uphold the plan invariant.
	switch opts.Mode {
	case models.ModeQuickRescue:
		return ensureEndsWithSummary(GenerateQuickRescuePlan(c, profile))
	case models.ModeBuffer:
		return ensureEndsWithSummary(generateBufferPlan(profile))
	}

	// 4. Default full-rescue rule table.
	var plan []models.Method

	lateNight := c.Context.SleepRelated && c.IsLateNight()
	switch {
	case lateNight:
		plan = append(plan, openerFor(profile))
	case c.Intensity >= 7 && c.CognitiveCapacity == models.CapacityLow:
		plan = append(plan, models.MethodGrounding)
	}

	plan = append(plan, models.MethodExpressiveRelease)

	switch c.ThoughtForm {
	case models.ThoughtSelfCriticism:
		if c.CognitiveCapacity != models.CapacityLow {
			plan = append(plan, models.MethodBriefCBT)
		}
		plan = append(plan, models.MethodSelfCompassion)
	case models.ThoughtWorry:
		plan = append(plan, models.MethodBriefCBT)
		if !lateNight {
			plan = append(plan, models.MethodBehavioralPlan)
		}
	case models.ThoughtRumination:
		plan = append(plan, models.MethodDefusion)
		if c.CognitiveCapacity != models.CapacityLow && c.Intensity <= 7 {
			plan = append(plan, models.MethodBriefCBT)
		}
	case models.ThoughtAnger:
		plan = append(plan, models.MethodDefusion)
		if profile.HasSelfBlameMarker() {
			plan = append(plan, models.MethodSelfCompassion)
		}
	case models.ThoughtGrief:
		plan = append(plan, models.MethodAcceptanceValues, models.MethodSelfCompassion)
	case models.ThoughtExistential:
		plan = append(plan, models.MethodAcceptanceValues)
	default: // mixed and anything else
		if c.CognitiveCapacity != models.CapacityLow {
			plan = append(plan, models.MethodBriefCBT)
		}
		plan = append(plan, models.MethodSelfCompassion)
	}

	if lateNight {
		plan = append(plan, models.MethodSleepWindDown)
	}
	plan = append(plan, models.MethodSummary)

	// 5. Short-session trim.
	if profile != nil && profile.EffortTolerance == models.EffortKeepShort {
		plan = shortSessionTrim(plan, c.Context.SleepRelated)
	}
	return plan
}

// GenerateQuickRescuePlan returns the fixed 3-step quick-rescue shape:
// grounding, one core method selected by thought form, sleep wind-down.
func GenerateQuickRescuePlan(c *models.Classification, profile *models.UserProfile) []models.Method {
	core := models.MethodBriefCBT
	switch c.ThoughtForm {
	case models.ThoughtSelfCriticism:
		core = models.MethodSelfCompassion
	case models.ThoughtWorry, models.ThoughtRumination:
		core = models.MethodDefusion
	}
	return []models.Method{models.MethodGrounding, core, models.MethodSleepWindDown}
}

// generateBufferPlan returns the fixed 2-step preventive-evening shape.
func generateBufferPlan(profile *models.UserProfile) []models.Method {
	return []models.Method{openerFor(profile), models.MethodSelfCompassion}
}

// openerFor picks the body-regulation opener, honoring a breathing aversion.
func openerFor(profile *models.UserProfile) models.Method {
	if profile != nil && profile.DislikesBreathing {
		return models.MethodGrounding
	}
	return models.MethodBreathing
}

// ensureEssentialMethods wraps an archetype-proven method list with the
// anchors a safe session needs: a regulation opener, a sleep wind-down on
// sleep-related sessions, and a terminal summary.
func ensureEssentialMethods(methods []models.Method, c *models.Classification, profile *models.UserProfile) []models.Method {
	plan := make([]models.Method, 0, len(methods)+3)
	plan = append(plan, methods...)

	if !containsAny(plan, models.MethodBreathing, models.MethodGrounding) {
		plan = append([]models.Method{openerFor(profile)}, plan...)
	}

	plan = stripMethod(plan, models.MethodSummary)

	if c.Context.SleepRelated && !containsAny(plan, models.MethodSleepWindDown) {
		plan = append(plan, models.MethodSleepWindDown)
	}

	return append(plan, models.MethodSummary)
}

// shortSessionTrim keeps regulation anchors, expressive release, the sleep
// wind-down (sleep-related sessions only), the summary, and at most one
// core method - the first non-anchor encountered. Session length scales
// down without dropping safety-relevant anchors.
func shortSessionTrim(plan []models.Method, sleepRelated bool) []models.Method {
	var trimmed []models.Method
	coreKept := false

	for _, m := range plan {
		switch {
		case m.IsAnchor():
			trimmed = append(trimmed, m)
		case m == models.MethodExpressiveRelease:
			trimmed = append(trimmed, m)
		case m == models.MethodSleepWindDown:
			if sleepRelated {
				trimmed = append(trimmed, m)
			}
		case m == models.MethodSummary:
			trimmed = append(trimmed, m)
		default:
			if !coreKept {
				trimmed = append(trimmed, m)
				coreKept = true
			}
		}
	}
	return trimmed
}

func ensureEndsWithSummary(plan []models.Method) []models.Method {
	plan = stripMethod(plan, models.MethodSummary)
	return append(plan, models.MethodSummary)
}

func stripMethod(plan []models.Method, target models.Method) []models.Method {
	out := make([]models.Method, 0, len(plan))
	for _, m := range plan {
		if m != target {
			out = append(out, m)
		}
	}
	return out
}

func containsAny(plan []models.Method, targets ...models.Method) bool {
	for _, m := range plan {
		for _, t := range targets {
			if m == t {
				return true
			}
		}
	}
	return false
}
