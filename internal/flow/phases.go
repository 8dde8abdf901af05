package flow

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/thebtf/spiral/pkg/models"
)

//go:embed phases.yaml
var phasesYAML []byte

// Phase numbers.
const (
	PhaseArrival = iota
	PhaseBodyDownshift
	PhaseDumpAndName
	PhaseUnderstandUnhook
	PhaseSelfCompassion
	PhaseChoosePath
	PhaseClosing

	phaseCount = 7
)

// PhaseDef is one row of the static phase table.
type PhaseDef struct {
	Number        int               `yaml:"number"`
	Name          string            `yaml:"name"`
	MinSteps      int               `yaml:"min_steps"`
	MaxSteps      int               `yaml:"max_steps"`
	RequiredTypes []models.StepType `yaml:"required_types"`
	OptionalTypes []models.StepType `yaml:"optional_types"`
	Goal          string            `yaml:"goal"`
}

// PhaseTable holds the 7 ordered phase definitions. Immutable after load;
// shared safely across sessions.
type PhaseTable struct {
	phases [phaseCount]PhaseDef
}

// LoadPhaseTable parses the embedded phase configuration.
func LoadPhaseTable() (*PhaseTable, error) {
	var raw struct {
		Phases []PhaseDef `yaml:"phases"`
	}
	if err := yaml.Unmarshal(phasesYAML, &raw); err != nil {
		return nil, fmt.Errorf("parse phase table: %w", err)
	}
	if len(raw.Phases) != phaseCount {
		return nil, fmt.Errorf("phase table has %d phases, want %d", len(raw.Phases), phaseCount)
	}

	var t PhaseTable
	for _, def := range raw.Phases {
		if def.Number < 0 || def.Number >= phaseCount {
			return nil, fmt.Errorf("phase number %d out of range", def.Number)
		}
		t.phases[def.Number] = def
	}
	return &t, nil
}

// Phase returns the definition for a phase number, clamped into range.
func (t *PhaseTable) Phase(n int) PhaseDef {
	if n < 0 {
		n = 0
	}
	if n >= phaseCount {
		n = phaseCount - 1
	}
	return t.phases[n]
}

// CurrentPhase returns the phase the session is in: one past the highest
// completed phase in history, capped at the closing phase.
func CurrentPhase(session *models.RescueSession) int {
	highest := -1
	for _, rec := range session.PhaseHistory {
		if rec.Completed && rec.PhaseNumber > highest {
			highest = rec.PhaseNumber
		}
	}
	phase := highest + 1
	if phase > PhaseClosing {
		phase = PhaseClosing
	}
	return phase
}

// IsPhaseComplete reports whether the steps taken inside a phase satisfy
// it. Monotonic: appending steps can only flip the result false -> true.
func (t *PhaseTable) IsPhaseComplete(phase int, steps []models.StepRecord) bool {
	types := stepTypeSet(steps)

	switch phase {
	case PhaseBodyDownshift:
		return types[models.StepBreathing] || types[models.StepGrounding54321]
	case PhaseDumpAndName:
		return types[models.StepIntensityScale] &&
			(types[models.StepDumpText] || types[models.StepDumpVoice]) &&
			types[models.StepSpiralTitle]
	case PhaseUnderstandUnhook:
		hasWork := types[models.StepCBTQuestion] || types[models.StepDefusion] || types[models.StepAcceptance]
		return hasWork && types[models.StepReframeReview]
	case PhaseSelfCompassion:
		return types[models.StepSelfCompassion]
	case PhaseChoosePath:
		if !types[models.StepSleepOrActionChoice] {
			return false
		}
		if chosenPath(steps) == "action" {
			return types[models.StepActionPlan]
		}
		return true
	case PhaseClosing:
		return types[models.StepSummary]
	default:
		return len(steps) >= t.Phase(phase).MinSteps
	}
}

// NextStepTypeForPhase returns the next missing required step type for a
// phase, or "" when the phase is satisfied. history is the session's full
// step history; the cascade counts only the steps recorded in the phase,
// but cross-phase reads (the arrival picker answer) see everything.
// Deterministic: repeating the call against the same history yields the
// same decision.
func (t *PhaseTable) NextStepTypeForPhase(phase int, history []models.StepRecord, session *models.RescueSession, profile *models.UserProfile) models.StepType {
	steps := stepsInPhase(history, phase)
	types := stepTypeSet(steps)

	switch phase {
	case PhaseArrival:
		if !types[models.StepIntro] {
			return models.StepIntro
		}
		// Quick rescue and breathing-averse users skip the technique
		// picker and go straight to the implied technique.
		skipPicker := session.Mode == models.ModeQuickRescue ||
			(profile != nil && profile.DislikesBreathing)
		if !skipPicker && !types[models.StepChooseTechnique] {
			return models.StepChooseTechnique
		}
		return ""

	case PhaseBodyDownshift:
		if types[models.StepBreathing] || types[models.StepGrounding54321] {
			return ""
		}
		if wantsGrounding(history, session, profile) {
			return models.StepGrounding54321
		}
		return models.StepBreathing

	case PhaseDumpAndName:
		if !types[models.StepIntensityScale] {
			return models.StepIntensityScale
		}
		if !types[models.StepDumpText] && !types[models.StepDumpVoice] {
			return models.StepDumpText
		}
		if !types[models.StepSpiralTitle] {
			return models.StepSpiralTitle
		}
		return ""

	case PhaseUnderstandUnhook:
		return t.nextUnhookStep(steps, types, session)

	case PhaseSelfCompassion:
		if !types[models.StepSelfCompassion] {
			return models.StepSelfCompassion
		}
		return ""

	case PhaseChoosePath:
		if !types[models.StepSleepOrActionChoice] {
			return models.StepSleepOrActionChoice
		}
		if pathFor(session, steps) == "action" && !types[models.StepActionPlan] {
			return models.StepActionPlan
		}
		return ""

	case PhaseClosing:
		switch pathFor(session, steps) {
		case "sleep":
			if !types[models.StepSleepWindDown] {
				return models.StepSleepWindDown
			}
		case "action":
			if !types[models.StepFutureOrientation] {
				return models.StepFutureOrientation
			}
		}
		if !types[models.StepFinalIntensity] {
			return models.StepFinalIntensity
		}
		if !types[models.StepSummary] {
			return models.StepSummary
		}
		return ""
	}
	return ""
}

// nextUnhookStep drives phase 3: guided questions first (capped), then the
// plan's remaining cognitive techniques, then the mandatory reframe review.
func (t *PhaseTable) nextUnhookStep(steps []models.StepRecord, types map[models.StepType]bool, session *models.RescueSession) models.StepType {
	thoughtForm := models.ThoughtMixed
	if session.Classification != nil {
		thoughtForm = session.Classification.ThoughtForm
	}

	// Cap guided questions: one under quick rescue, two otherwise, never
	// more than the question bank holds for the current thought form.
	questionCap := 2
	if session.Mode == models.ModeQuickRescue {
		questionCap = 1
	}
	if bank := len(QuestionBank(thoughtForm)); questionCap > bank {
		questionCap = bank
	}

	asked := 0
	for _, rec := range steps {
		if rec.Step.StepType == models.StepCBTQuestion {
			asked++
		}
	}

	for _, technique := range planTechniques(session, thoughtForm) {
		switch technique {
		case models.StepCBTQuestion:
			if asked < questionCap {
				return models.StepCBTQuestion
			}
		default:
			if !types[technique] {
				return technique
			}
		}
	}

	if !types[models.StepReframeReview] {
		return models.StepReframeReview
	}
	return ""
}

// planTechniques maps the session's micro-plan onto phase-3 step types,
// in plan order. Sessions whose plan carries no cognitive method fall
// back to the thought-form default.
func planTechniques(session *models.RescueSession, thoughtForm models.ThoughtForm) []models.StepType {
	var techniques []models.StepType
	for _, m := range session.MicroPlan {
		switch m {
		case models.MethodBriefCBT, models.MethodDeepCBT:
			techniques = append(techniques, models.StepCBTQuestion)
		case models.MethodDefusion:
			techniques = append(techniques, models.StepDefusion)
		case models.MethodAcceptanceValues:
			techniques = append(techniques, models.StepAcceptance)
		}
	}
	if len(techniques) > 0 {
		return dedupStepTypes(techniques)
	}

	switch thoughtForm {
	case models.ThoughtWorry, models.ThoughtRumination:
		return []models.StepType{models.StepDefusion}
	case models.ThoughtGrief, models.ThoughtExistential:
		return []models.StepType{models.StepAcceptance}
	default:
		return []models.StepType{models.StepCBTQuestion}
	}
}

// wantsGrounding decides the body-downshift technique: an explicit picker
// answer wins, then a plan that opens with grounding, then the breathing
// aversion. The picker record lives in the arrival phase, so history must
// span phases.
func wantsGrounding(history []models.StepRecord, session *models.RescueSession, profile *models.UserProfile) bool {
	for _, rec := range history {
		if rec.Step.StepType == models.StepChooseTechnique && rec.Answer != "" {
			return strings.Contains(strings.ToLower(rec.Answer), "grounding")
		}
	}
	if containsAny(session.MicroPlan, models.MethodGrounding) &&
		!containsAny(session.MicroPlan, models.MethodBreathing) {
		return true
	}
	return profile != nil && profile.DislikesBreathing
}

// pathFor returns the chosen closing path ("sleep" or "action"), reading
// the session field first and the recorded choice answer as fallback.
func pathFor(session *models.RescueSession, steps []models.StepRecord) string {
	if session.ChosenPath != "" {
		return session.ChosenPath
	}
	return chosenPath(steps)
}

// chosenPath extracts the sleep-or-action decision from step history.
func chosenPath(steps []models.StepRecord) string {
	for _, rec := range steps {
		if rec.Step.StepType != models.StepSleepOrActionChoice || rec.Answer == "" {
			continue
		}
		lower := strings.ToLower(rec.Answer)
		if strings.Contains(lower, "action") {
			return "action"
		}
		if strings.Contains(lower, "sleep") {
			return "sleep"
		}
	}
	return ""
}

// stepsInPhase filters history down to the records a phase produced.
func stepsInPhase(history []models.StepRecord, phase int) []models.StepRecord {
	var out []models.StepRecord
	for _, rec := range history {
		if rec.PhaseNumber == phase {
			out = append(out, rec)
		}
	}
	return out
}

func stepTypeSet(steps []models.StepRecord) map[models.StepType]bool {
	types := make(map[models.StepType]bool, len(steps))
	for _, rec := range steps {
		types[rec.Step.StepType] = true
	}
	return types
}

func dedupStepTypes(in []models.StepType) []models.StepType {
	seen := make(map[models.StepType]bool, len(in))
	out := in[:0]
	for _, t := range in {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
