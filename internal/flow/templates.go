package flow

import (
	"github.com/thebtf/spiral/pkg/models"
)

// fallbackStep returns the deterministic local template for a step type.
// Used whenever the generator is unavailable, fails, or returns garbage -
// the engine must make forward progress with zero external connectivity.
func fallbackStep(stepType models.StepType, session *models.RescueSession) models.Step {
	step := models.Step{
		StepType: stepType,
		UI:       models.StepUI{Component: string(stepType), Props: map[string]interface{}{}},
	}

	switch stepType {
	case models.StepIntro:
		step.Title = "You made it here"
		step.Description = "That took something. Let's slow this down together, one small step at a time."
	case models.StepChooseTechnique:
		step.Title = "Pick what helps your body settle"
		step.UI.Component = "choice_buttons"
		step.UI.Props["choices"] = []map[string]string{
			{"label": "Guided breathing", "value": "breathing"},
			{"label": "5-4-3-2-1 grounding", "value": "grounding"},
		}
	case models.StepBreathing:
		step.Title = "Let's breathe"
		step.Description = "Follow the circle. In through the nose, longer out through the mouth."
		step.UI.Props["breath_count"] = 4
		step.UI.Props["inhale_sec"] = 4
		step.UI.Props["exhale_sec"] = 6
	case models.StepGrounding54321:
		step.Title = "Come back to the room"
		step.Description = "Name 5 things you can see, 4 you can touch, 3 you can hear, 2 you can smell, 1 you can taste."
	case models.StepIntensityScale:
		step.Title = "How loud is it right now?"
		step.UI.Props["min"] = 1
		step.UI.Props["max"] = 10
	case models.StepDumpText:
		step.Title = "Get it all out"
		step.Description = "Type everything circling in your head. No order, no filter. Nobody grades this."
	case models.StepDumpVoice:
		step.Title = "Say it out loud"
		step.Description = "Record whatever is circling. Rambling is fine."
	case models.StepSpiralTitle:
		step.Title = "Give this spiral a name"
		step.Description = "A short title makes it a thing you have, not a thing you are."
	case models.StepCBTQuestion:
		step.Title = "One honest question"
		step.Description = firstQuestion(session)
	case models.StepDefusion:
		step.Title = "Watch the thought go by"
		step.Description = "Try saying: \"I'm having the thought that...\" before the sentence in your head. Notice the bit of distance that opens."
	case models.StepAcceptance:
		step.Title = "Let it be here for a moment"
		step.Description = "This feeling is allowed to exist. You don't have to fix it to take your next breath."
	case models.StepReframeReview:
		step.Title = "A softer way to hold it"
		step.Description = "You looked straight at the thought and it didn't swallow you. It's a prediction, not a verdict."
	case models.StepSelfCompassion:
		step.Title = "A kinder voice"
		step.Description = "This is a moment of real struggle. Struggle is part of being human. May you be gentle with yourself tonight."
	case models.StepSleepOrActionChoice:
		step.Title = "What does tonight need?"
		step.UI.Component = "choice_buttons"
		step.UI.Props["choices"] = []map[string]string{
			{"label": "Wind down toward sleep", "value": "sleep"},
			{"label": "One small action", "value": "action"},
		}
	case models.StepActionPlan:
		step.Title = "One tiny step"
		step.Description = "Pick the smallest possible action for tomorrow. Two minutes counts."
	case models.StepFutureOrientation:
		step.Title = "Tomorrow, briefly"
		step.Description = "Picture tomorrow going okay - not perfect, just okay. What's the first small thing that happens?"
	case models.StepSleepWindDown:
		step.Title = "Permission to power down"
		step.Description = "Everything unresolved will still be solvable in the morning. Your only job now is rest."
	case models.StepFinalIntensity:
		step.Title = "Where is it now?"
		step.UI.Component = "intensity_scale"
		step.UI.Props["min"] = 1
		step.UI.Props["max"] = 10
	case models.StepSummary:
		step.Title = "What you just did"
		step.Description = "You noticed the spiral, got it out of your head, and met it with something other than panic. That's the whole skill."
	case models.StepCrisisInfo:
		return CrisisStep(0)
	default:
		step.Title = "Take a breath"
		step.Description = "One small step at a time."
	}
	return step
}

// firstQuestion returns the first unasked bank question for the session's
// thought form. Deterministic: the bank is fixed per thought form.
func firstQuestion(session *models.RescueSession) string {
	form := models.ThoughtMixed
	if session != nil && session.Classification != nil {
		form = session.Classification.ThoughtForm
	}
	bank := QuestionBank(form)
	if len(bank) == 0 {
		return "What single thought is pulling the hardest right now?"
	}
	return bank[0]
}
