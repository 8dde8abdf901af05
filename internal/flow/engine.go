package flow

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/spiral/internal/genai"
	"github.com/thebtf/spiral/pkg/models"
)

// ArchetypeSource is the read-only personalization collaborator. ok is
// false when no proven methods exist for the archetype.
type ArchetypeSource interface {
	BestMethods(ctx context.Context, archetypeID string) ([]models.Method, bool)
}

// Engine is the adaptive flow orchestrator. Per session it is
// single-writer, single-outstanding-step: steps are produced only on
// explicit request, and every transition is a pure read of persisted
// history plus static config, so duplicate requests are idempotent.
type Engine struct {
	phases     *PhaseTable
	classifier *Classifier
	realizer   *Realizer
	crisis     *CrisisDetector
	archetypes ArchetypeSource
}

// NewEngine builds an engine. gen may be nil (full local-fallback mode);
// archetypes may be nil (archetype override never fires).
func NewEngine(gen genai.Generator, archetypes ArchetypeSource) (*Engine, error) {
	phases, err := LoadPhaseTable()
	if err != nil {
		return nil, err
	}
	return &Engine{
		phases:     phases,
		classifier: NewClassifier(gen),
		realizer:   NewRealizer(gen),
		crisis:     NewCrisisDetector(),
		archetypes: archetypes,
	}, nil
}

// Phases exposes the static phase table.
func (e *Engine) Phases() *PhaseTable { return e.phases }

// Crisis exposes the crisis detector (for phrase-file hot reload wiring).
func (e *Engine) Crisis() *CrisisDetector { return e.crisis }

// NextStepResult is the outcome of a next-step request. Exactly one of
// Step != nil or FlowComplete holds; CrisisDetected accompanies the
// terminal crisis step.
type NextStepResult struct {
	Step           *models.Step `json:"step,omitempty"`
	Phase          int          `json:"phase"`
	PhaseName      string       `json:"phase_name,omitempty"`
	FlowComplete   bool         `json:"flow_complete"`
	CrisisDetected bool         `json:"crisis_detected"`
}

// NextStep decides and realizes the next unit of work for a session.
// It mutates session (classification, plan, phase history, completion);
// persisting the mutation is the caller's responsibility. The method
// never fails because of the generator - only on broken static config,
// which cannot happen after NewEngine succeeded.
func (e *Engine) NextStep(ctx context.Context, session *models.RescueSession, profile *models.UserProfile, history []models.StepRecord) NextStepResult {
	if session.CrisisDetected {
		return NextStepResult{FlowComplete: true, CrisisDetected: true}
	}
	if session.Completed {
		return NextStepResult{FlowComplete: true}
	}

	// Trigger text is free text too: a crisis in the opening dump
	// short-circuits before any classification work.
	if len(history) == 0 && e.crisis.Detect(session.TriggerText) {
		return e.emitCrisis(session, len(history))
	}

	e.ensureClassification(ctx, session, profile)
	e.ensurePlan(ctx, session, profile)

	phase := CurrentPhase(session)
	for phase <= PhaseClosing {
		stepType := e.phases.NextStepTypeForPhase(phase, history, session, profile)
		if stepType != "" {
			method, stage := e.methodContext(stepType, session)
			step := e.realizer.Realize(ctx, stepType, method, stage, session, len(history))
			if step.Meta.InterventionType == "" && method != "" {
				step.Meta.InterventionType = string(method)
			}
			return NextStepResult{
				Step:      &step,
				Phase:     phase,
				PhaseName: e.phases.Phase(phase).Name,
			}
		}

		// Phase satisfied with no step emitted: record completion and
		// move on. Closing-phase satisfaction terminates the flow.
		markPhaseComplete(session, phase)
		if phase == PhaseClosing {
			finish(session)
			return NextStepResult{Phase: phase, FlowComplete: true}
		}
		phase++
	}

	finish(session)
	return NextStepResult{Phase: PhaseClosing, FlowComplete: true}
}

// AnswerResult is the outcome of recording an answer.
type AnswerResult struct {
	CrisisDetected bool         `json:"crisis_detected"`
	CrisisStep     *models.Step `json:"crisis_step,omitempty"`
	PhaseCompleted bool         `json:"phase_completed"`
	Phase          int          `json:"phase"`
	FlowComplete   bool         `json:"flow_complete"`
}

// SubmitAnswer records the user's answer against the session state.
// The crisis check runs before any other bookkeeping, in every mode.
// history must already include the answered step with its answer attached.
func (e *Engine) SubmitAnswer(ctx context.Context, session *models.RescueSession, profile *models.UserProfile, answered models.StepRecord, history []models.StepRecord) AnswerResult {
	if e.crisis.Detect(answered.Answer) {
		result := e.emitCrisis(session, len(history))
		return AnswerResult{
			CrisisDetected: true,
			CrisisStep:     result.Step,
			Phase:          answered.PhaseNumber,
			FlowComplete:   true,
		}
	}

	if answered.Step.StepType == models.StepSleepOrActionChoice {
		if path := chosenPath([]models.StepRecord{answered}); path != "" {
			session.ChosenPath = path
		}
	}

	e.advanceMethod(session, answered.Step.StepType)

	// The phase advances when its next-step cascade is exhausted, which
	// implies the completion predicate for every phase with required types.
	phase := answered.PhaseNumber
	result := AnswerResult{Phase: phase}
	if e.phases.NextStepTypeForPhase(phase, history, session, profile) == "" {
		markPhaseComplete(session, phase)
		result.PhaseCompleted = true
		if phase == PhaseClosing {
			finish(session)
			result.FlowComplete = true
		}
	}
	return result
}

// advanceMethod applies the plan bookkeeping for an answered step:
// exactly one of advance-to-next-method or increment-method-step, chosen
// by whether the current method is single- or two-stage. Steps that do
// not belong to the current plan entry leave the counters untouched.
func (e *Engine) advanceMethod(session *models.RescueSession, answered models.StepType) {
	current := session.CurrentMethod()
	if current == "" || methodForStepType(answered) != current {
		return
	}
	if session.MethodStepCount+1 >= current.StageCount() {
		// advance to next method
		session.CurrentMethodIndex++
		session.MethodStepCount = 0
	} else {
		// increment stage within the method
		session.MethodStepCount++
	}
}

// ensureClassification runs the classifier adapter at most once.
func (e *Engine) ensureClassification(ctx context.Context, session *models.RescueSession, profile *models.UserProfile) {
	if session.Classification != nil {
		return
	}
	sctx := SessionContext{
		SessionID:        session.ID,
		TimeOfDay:        timeOfDayNow(),
		SleepRelated:     session.SleepRelated,
		InitialIntensity: session.InitialIntensity,
	}
	c := e.classifier.Classify(ctx, session.TriggerText, profile, sctx)
	session.Classification = &c
	if c.Context.SleepRelated {
		session.SleepRelated = true
	}
	log.Info().
		Str("sessionId", session.ID).
		Str("thoughtForm", string(c.ThoughtForm)).
		Int("intensity", c.Intensity).
		Msg("Session classified")
}

// ensurePlan generates the micro-plan exactly once.
func (e *Engine) ensurePlan(ctx context.Context, session *models.RescueSession, profile *models.UserProfile) {
	if len(session.MicroPlan) > 0 {
		return
	}

	opts := PlanOptions{Mode: session.Mode}
	if profile != nil && profile.ArchetypeID != "" && e.archetypes != nil {
		if methods, ok := e.archetypes.BestMethods(ctx, profile.ArchetypeID); ok {
			opts.ArchetypeID = profile.ArchetypeID
			opts.ArchetypeMethods = methods
		}
	}

	session.MicroPlan = GenerateMicroPlan(session.Classification, profile, opts)
	log.Info().
		Str("sessionId", session.ID).
		Interface("plan", session.MicroPlan).
		Msg("Micro-plan generated")
}

func (e *Engine) emitCrisis(session *models.RescueSession, historyLen int) NextStepResult {
	session.CrisisDetected = true
	finish(session)
	step := CrisisStep(historyLen)
	log.Warn().Str("sessionId", session.ID).Msg("Crisis detected, short-circuiting flow")
	return NextStepResult{Step: &step, CrisisDetected: true, FlowComplete: true}
}

// methodContext maps a step type back onto the plan: the current plan
// entry when it matches, otherwise the method the step type implies.
func (e *Engine) methodContext(stepType models.StepType, session *models.RescueSession) (models.Method, int) {
	implied := methodForStepType(stepType)
	if implied != "" && implied == session.CurrentMethod() {
		return implied, session.MethodStepCount
	}
	if stepType == models.StepReframeReview {
		return models.MethodBriefCBT, 1
	}
	return implied, 0
}

// methodForStepType maps a step type to the method that produces it.
// Structural steps (intro, scales, choices) map to no method.
func methodForStepType(t models.StepType) models.Method {
	switch t {
	case models.StepBreathing:
		return models.MethodBreathing
	case models.StepGrounding54321:
		return models.MethodGrounding
	case models.StepDumpText, models.StepDumpVoice, models.StepSpiralTitle:
		return models.MethodExpressiveRelease
	case models.StepCBTQuestion, models.StepReframeReview:
		return models.MethodBriefCBT
	case models.StepDefusion:
		return models.MethodDefusion
	case models.StepAcceptance:
		return models.MethodAcceptanceValues
	case models.StepSelfCompassion:
		return models.MethodSelfCompassion
	case models.StepActionPlan:
		return models.MethodBehavioralPlan
	case models.StepSleepWindDown:
		return models.MethodSleepWindDown
	case models.StepSummary:
		return models.MethodSummary
	default:
		return ""
	}
}

func markPhaseComplete(session *models.RescueSession, phase int) {
	for _, rec := range session.PhaseHistory {
		if rec.PhaseNumber == phase && rec.Completed {
			return
		}
	}
	session.PhaseHistory = append(session.PhaseHistory, models.PhaseRecord{
		PhaseNumber: phase,
		Completed:   true,
	})
}

func finish(session *models.RescueSession) {
	if session.Completed {
		return
	}
	session.Completed = true
	now := time.Now()
	session.CompletedAt = &now
}

// timeOfDayNow buckets the wall clock for classification context.
func timeOfDayNow() string {
	switch h := time.Now().Hour(); {
	case h >= 5 && h < 12:
		return "morning"
	case h >= 12 && h < 18:
		return "afternoon"
	case h >= 18 && h < 23:
		return "evening"
	default:
		return "late_night"
	}
}
