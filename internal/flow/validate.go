package flow

import (
	"github.com/thebtf/spiral/pkg/models"
)

// FlowValidation is the result of a post-hoc flow audit. It feeds QA and
// analytics only - a live session is never blocked on it.
type FlowValidation struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// ValidateFlow audits a completed step transcript against the structural
// expectations of a sound rescue session.
func ValidateFlow(steps []models.StepRecord) FlowValidation {
	result := FlowValidation{Errors: []string{}, Warnings: []string{}}

	if len(steps) < 7 {
		result.Errors = append(result.Errors, "Flow has fewer than 7 steps")
	}

	distinct := stepTypeSet(steps)
	if len(distinct) < 3 {
		result.Errors = append(result.Errors, "Flow has fewer than 3 distinct step types")
	}

	if lastNonSummary(steps) == models.StepReframeReview {
		result.Errors = append(result.Errors, "Flow ends on reframe_review without integration")
	}

	var hasBody, hasExternalization, hasCognitive, hasCompassion bool
	for t := range distinct {
		if t.IsBodyRegulation() {
			hasBody = true
		}
		if t.IsExternalization() {
			hasExternalization = true
		}
		if t.IsCognitiveWork() {
			hasCognitive = true
		}
		if t == models.StepSelfCompassion {
			hasCompassion = true
		}
	}

	if !hasBody {
		result.Errors = append(result.Errors, "Missing body regulation step")
	}
	if !hasExternalization {
		result.Errors = append(result.Errors, "Missing externalization step")
	}
	if !hasCognitive {
		result.Errors = append(result.Errors, "Missing cognitive/emotional work step")
	}
	if !hasCompassion {
		result.Warnings = append(result.Warnings, "No self-compassion step in flow")
	}

	result.Valid = len(result.Errors) == 0
	return result
}

// lastNonSummary returns the type of the last step that isn't a summary,
// or "" when there is none.
func lastNonSummary(steps []models.StepRecord) models.StepType {
	for i := len(steps) - 1; i >= 0; i-- {
		if t := steps[i].Step.StepType; t != models.StepSummary {
			return t
		}
	}
	return ""
}
