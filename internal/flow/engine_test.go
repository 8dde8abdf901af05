package flow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/spiral/pkg/models"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(nil, nil)
	require.NoError(t, err)
	return engine
}

// answerFor supplies a plausible user answer per step type so a walkthrough
// can drive the state machine end to end.
func answerFor(stepType models.StepType, path string) string {
	switch stepType {
	case models.StepChooseTechnique:
		return "breathing"
	case models.StepIntensityScale:
		return "7"
	case models.StepDumpText:
		return "I keep replaying the meeting and what I should have said"
	case models.StepSpiralTitle:
		return "the meeting loop"
	case models.StepSleepOrActionChoice:
		return path
	case models.StepFinalIntensity:
		return "3"
	default:
		return "okay"
	}
}

// walkFlow drives a session to completion through the public engine API,
// the way the HTTP layer does: request a step, attach the answer, submit.
func walkFlow(t *testing.T, engine *Engine, session *models.RescueSession, profile *models.UserProfile, path string) []models.StepRecord {
	t.Helper()
	ctx := context.Background()

	var history []models.StepRecord
	for i := 0; i < 30; i++ {
		res := engine.NextStep(ctx, session, profile, history)
		if res.Step == nil {
			require.True(t, res.FlowComplete)
			return history
		}

		now := time.Now()
		rec := models.StepRecord{
			Step:        *res.Step,
			PhaseNumber: res.Phase,
			Answer:      answerFor(res.Step.StepType, path),
			CompletedAt: &now,
		}
		history = append(history, rec)

		if res.CrisisDetected {
			return history
		}
		engine.SubmitAnswer(ctx, session, profile, rec, history)
	}
	t.Fatal("flow did not terminate within 30 steps")
	return history
}

func stepTypes(history []models.StepRecord) []models.StepType {
	out := make([]models.StepType, len(history))
	for i, rec := range history {
		out[i] = rec.Step.StepType
	}
	return out
}

func TestFullRescueWalkthrough(t *testing.T) {
	engine := newTestEngine(t)
	session := &models.RescueSession{
		ID:          "sess-1",
		UserID:      "user-1",
		Mode:        models.ModeRescue,
		TriggerText: "I keep replaying the meeting",
		StartedAt:   time.Now(),
	}

	history := walkFlow(t, engine, session, nil, "action")

	assert.Equal(t, []models.StepType{
		models.StepIntro,
		models.StepChooseTechnique,
		models.StepBreathing,
		models.StepIntensityScale,
		models.StepDumpText,
		models.StepSpiralTitle,
		models.StepCBTQuestion,
		models.StepCBTQuestion,
		models.StepReframeReview,
		models.StepSelfCompassion,
		models.StepSleepOrActionChoice,
		models.StepActionPlan,
		models.StepFutureOrientation,
		models.StepFinalIntensity,
		models.StepSummary,
	}, stepTypes(history))

	assert.True(t, session.Completed)
	assert.NotNil(t, session.CompletedAt)
	assert.False(t, session.CrisisDetected)
	assert.Equal(t, "action", session.ChosenPath)
	assert.True(t, session.PlanExhausted())

	audit := ValidateFlow(history)
	assert.True(t, audit.Valid, "errors: %v", audit.Errors)
}

func TestQuickRescueWalkthrough(t *testing.T) {
	engine := newTestEngine(t)
	session := &models.RescueSession{
		ID:               "sess-2",
		UserID:           "user-1",
		Mode:             models.ModeQuickRescue,
		TriggerText:      "can't sleep, head is spinning",
		SleepRelated:     true,
		InitialIntensity: 8,
		StartedAt:        time.Now(),
	}

	history := walkFlow(t, engine, session, nil, "sleep")

	assert.Equal(t, []models.StepType{
		models.StepIntro,
		models.StepGrounding54321,
		models.StepIntensityScale,
		models.StepDumpText,
		models.StepSpiralTitle,
		models.StepCBTQuestion,
		models.StepReframeReview,
		models.StepSelfCompassion,
		models.StepSleepOrActionChoice,
		models.StepSleepWindDown,
		models.StepFinalIntensity,
		models.StepSummary,
	}, stepTypes(history))

	assert.True(t, session.Completed)
	assert.Equal(t, "sleep", session.ChosenPath)
}

func TestNextStepIdempotentPerHistory(t *testing.T) {
	engine := newTestEngine(t)
	session := &models.RescueSession{ID: "sess-3", Mode: models.ModeRescue, TriggerText: "spiraling"}
	ctx := context.Background()

	first := engine.NextStep(ctx, session, nil, nil)
	second := engine.NextStep(ctx, session, nil, nil)

	require.NotNil(t, first.Step)
	require.NotNil(t, second.Step)
	assert.Equal(t, first.Step.StepType, second.Step.StepType)
	assert.Equal(t, first.Phase, second.Phase)
}

func TestClassificationAndPlanComputedOnce(t *testing.T) {
	engine := newTestEngine(t)
	session := &models.RescueSession{ID: "sess-4", Mode: models.ModeRescue, TriggerText: "spiraling"}
	ctx := context.Background()

	engine.NextStep(ctx, session, nil, nil)
	classification := session.Classification
	plan := session.MicroPlan
	require.NotNil(t, classification)
	require.NotEmpty(t, plan)

	engine.NextStep(ctx, session, nil, nil)
	assert.Same(t, classification, session.Classification)
	assert.Equal(t, plan, session.MicroPlan)
}

func TestCrisisInTriggerText(t *testing.T) {
	engine := newTestEngine(t)
	session := &models.RescueSession{
		ID:          "sess-5",
		Mode:        models.ModeRescue,
		TriggerText: "I just want to end it",
	}
	ctx := context.Background()

	res := engine.NextStep(ctx, session, nil, nil)
	require.NotNil(t, res.Step)
	assert.True(t, res.CrisisDetected)
	assert.True(t, res.FlowComplete)
	assert.Equal(t, models.StepCrisisInfo, res.Step.StepType)
	assert.False(t, res.Step.Skippable)
	assert.True(t, session.CrisisDetected)
	assert.True(t, session.Completed)

	// Classification never runs for a crisis trigger.
	assert.Nil(t, session.Classification)

	// The session stays terminal.
	again := engine.NextStep(ctx, session, nil, nil)
	assert.Nil(t, again.Step)
	assert.True(t, again.FlowComplete)
	assert.True(t, again.CrisisDetected)
}

func TestCrisisInAnswerShortCircuits(t *testing.T) {
	engine := newTestEngine(t)
	session := &models.RescueSession{ID: "sess-6", Mode: models.ModeRescue, TriggerText: "everything is too loud"}
	ctx := context.Background()

	var history []models.StepRecord
	for i := 0; i < 6; i++ {
		res := engine.NextStep(ctx, session, nil, history)
		require.NotNil(t, res.Step)
		rec := models.StepRecord{
			Step:        *res.Step,
			PhaseNumber: res.Phase,
			Answer:      answerFor(res.Step.StepType, "sleep"),
		}
		if res.Step.StepType == models.StepDumpText {
			rec.Answer = "honestly I want to kill myself tonight"
		}
		history = append(history, rec)

		result := engine.SubmitAnswer(ctx, session, nil, rec, history)
		if res.Step.StepType == models.StepDumpText {
			assert.True(t, result.CrisisDetected)
			assert.True(t, result.FlowComplete)
			require.NotNil(t, result.CrisisStep)
			assert.Equal(t, models.StepCrisisInfo, result.CrisisStep.StepType)
			assert.True(t, session.CrisisDetected)
			assert.True(t, session.Completed)
			return
		}
		assert.False(t, result.CrisisDetected)
	}
	t.Fatal("dump step never reached")
}

func TestSubmitAnswerPhaseCompletion(t *testing.T) {
	engine := newTestEngine(t)
	session := &models.RescueSession{ID: "sess-7", Mode: models.ModeRescue, TriggerText: "spiraling"}
	ctx := context.Background()

	// intro answered: arrival still waits for the technique picker
	intro := engine.NextStep(ctx, session, nil, nil)
	require.Equal(t, models.StepIntro, intro.Step.StepType)
	history := []models.StepRecord{{Step: *intro.Step, PhaseNumber: intro.Phase}}
	result := engine.SubmitAnswer(ctx, session, nil, history[0], history)
	assert.False(t, result.PhaseCompleted)

	pick := engine.NextStep(ctx, session, nil, history)
	require.Equal(t, models.StepChooseTechnique, pick.Step.StepType)
	rec := models.StepRecord{Step: *pick.Step, PhaseNumber: pick.Phase, Answer: "grounding"}
	history = append(history, rec)
	result = engine.SubmitAnswer(ctx, session, nil, rec, history)
	assert.True(t, result.PhaseCompleted)
	assert.Equal(t, PhaseArrival, result.Phase)

	// The picker answer steers the body-downshift technique.
	next := engine.NextStep(ctx, session, nil, history)
	assert.Equal(t, models.StepGrounding54321, next.Step.StepType)
}

func TestMethodBookkeeping(t *testing.T) {
	engine := newTestEngine(t)
	session := &models.RescueSession{
		ID:             "sess-8",
		Mode:           models.ModeRescue,
		MicroPlan:      []models.Method{models.MethodBriefCBT, models.MethodSummary},
		Classification: testClassification(models.ThoughtWorry, 5, models.CapacityMedium, "evening", false),
	}
	ctx := context.Background()

	// Stage one of the two-stage method increments, it does not advance.
	question := record(models.StepCBTQuestion, PhaseUnderstandUnhook, "probably not")
	engine.SubmitAnswer(ctx, session, nil, question, []models.StepRecord{question})
	assert.Equal(t, 0, session.CurrentMethodIndex)
	assert.Equal(t, 1, session.MethodStepCount)

	// Stage two advances to the next plan entry and resets the counter.
	review := record(models.StepReframeReview, PhaseUnderstandUnhook, "")
	engine.SubmitAnswer(ctx, session, nil, review, []models.StepRecord{question, review})
	assert.Equal(t, 1, session.CurrentMethodIndex)
	assert.Equal(t, 0, session.MethodStepCount)
	assert.Equal(t, models.MethodSummary, session.CurrentMethod())

	// Steps outside the current plan entry leave the counters alone.
	unrelated := record(models.StepIntensityScale, PhaseDumpAndName, "6")
	engine.SubmitAnswer(ctx, session, nil, unrelated, []models.StepRecord{question, review, unrelated})
	assert.Equal(t, 1, session.CurrentMethodIndex)
	assert.Equal(t, 0, session.MethodStepCount)
}

func TestCompletedSessionTerminates(t *testing.T) {
	engine := newTestEngine(t)
	session := &models.RescueSession{ID: "sess-9", Mode: models.ModeRescue, Completed: true}

	res := engine.NextStep(context.Background(), session, nil, nil)
	assert.Nil(t, res.Step)
	assert.True(t, res.FlowComplete)
	assert.False(t, res.CrisisDetected)
}

func TestBreathingAverseProfileWalkthrough(t *testing.T) {
	engine := newTestEngine(t)
	session := &models.RescueSession{
		ID:          "sess-10",
		Mode:        models.ModeRescue,
		TriggerText: "everything went wrong today",
	}
	profile := &models.UserProfile{DislikesBreathing: true}

	history := walkFlow(t, engine, session, profile, "sleep")
	types := stepTypes(history)

	assert.NotContains(t, types, models.StepChooseTechnique)
	assert.NotContains(t, types, models.StepBreathing)
	assert.Contains(t, types, models.StepGrounding54321)
	assert.True(t, session.Completed)
}
