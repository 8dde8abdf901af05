package flow

import (
	"context"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/spiral/internal/genai"
	"github.com/thebtf/spiral/pkg/models"
)

// Realizer turns a (step type, method, stage) decision into a concrete
// Step: it asks the generator for content and then defensively normalizes
// whatever comes back. Enrichment always runs and never fails the request.
type Realizer struct {
	gen genai.Generator
}

// NewRealizer creates a realizer. A nil generator is valid and means
// every step is built from local templates.
func NewRealizer(gen genai.Generator) *Realizer {
	return &Realizer{gen: gen}
}

// Realize produces the step for the given decision. historyLen is the
// number of steps already in the session, used for progress metadata.
func (r *Realizer) Realize(ctx context.Context, stepType models.StepType, method models.Method, stage int, session *models.RescueSession, historyLen int) models.Step {
	step, ok := r.generate(ctx, stepType, method, stage, session)
	if !ok {
		step = fallbackStep(stepType, session)
	}
	step.StepType = stepType // canonical regardless of what the model claimed
	Enrich(&step, historyLen)
	return step
}

// generate calls the external generator and parses its JSON. Any failure
// - transport, timeout, parse, wrong shape - reports ok=false; the caller
// substitutes the local template. Nothing here ever propagates an error.
func (r *Realizer) generate(ctx context.Context, stepType models.StepType, method models.Method, stage int, session *models.RescueSession) (models.Step, bool) {
	if r.gen == nil {
		return models.Step{}, false
	}

	req := BuildStepPrompt(stepType, method, stage, session)
	data, err := r.gen.GenerateJSON(ctx, req)
	if err != nil {
		log.Debug().Err(err).Str("stepType", string(stepType)).Msg("Step generation failed, using template")
		return models.Step{}, false
	}

	var step models.Step
	if err := json.Unmarshal(data, &step); err != nil {
		log.Debug().Err(err).Str("stepType", string(stepType)).Msg("Step JSON unparsable, using template")
		return models.Step{}, false
	}
	if step.Title == "" && step.Description == "" {
		return models.Step{}, false
	}
	return step, true
}

// Enrich normalizes a step in place, substituting structural defaults for
// anything the generator left out. Independent of generation success.
func Enrich(step *models.Step, historyLen int) {
	if step.StepID == "" {
		step.StepID = newStepID()
	}

	step.Meta.StepIndex = historyLen
	if step.Meta.StepCount == 0 {
		step.Meta.StepCount = maxInt(5, historyLen+3)
	}
	step.Meta.ShowProgress = step.StepType != models.StepCrisisInfo

	if step.PrimaryCTA == nil {
		step.PrimaryCTA = &models.CTA{Label: "Next", Action: "next_step"}
	}

	// Skippability is forced from the step type, not taken from the
	// generator: regulation steps and nothing else. A model marking a dump
	// or crisis step skippable would undermine the flow contract.
	step.Skippable = step.StepType == models.StepBreathing ||
		step.StepType == models.StepGrounding54321

	if step.UI.Component == "" {
		step.UI.Component = string(step.StepType)
	}
	if step.UI.Props == nil {
		step.UI.Props = map[string]interface{}{}
	}

	repairProps(step)
}

// repairProps applies step-type-specific structural repairs to ui.props.
func repairProps(step *models.Step) {
	if step.UI.Component == "choice_buttons" {
		if !hasChoices(step.UI.Props) {
			step.UI.Props["choices"] = []map[string]string{
				{"label": "Continue", "value": "continue"},
				{"label": "Skip this", "value": "skip"},
			}
		}
	}

	if step.StepType == models.StepBreathing {
		if !isNumeric(step.UI.Props["breath_count"]) {
			step.UI.Props["breath_count"] = 4
		}
		if !isNumeric(step.UI.Props["inhale_sec"]) {
			step.UI.Props["inhale_sec"] = 4
		}
		if !isNumeric(step.UI.Props["exhale_sec"]) {
			step.UI.Props["exhale_sec"] = 6
		}
	}
}

func hasChoices(props map[string]interface{}) bool {
	raw, ok := props["choices"]
	if !ok {
		return false
	}
	switch v := raw.(type) {
	case []interface{}:
		return len(v) > 0
	case []map[string]string:
		return len(v) > 0
	default:
		return false
	}
}

func isNumeric(v interface{}) bool {
	switch v.(type) {
	case int, int32, int64, float32, float64, json.Number:
		return true
	default:
		return false
	}
}

func newStepID() string {
	return uuid.NewString()
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
