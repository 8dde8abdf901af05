package flow

import (
	"fmt"
	"strings"

	"github.com/thebtf/spiral/internal/genai"
	"github.com/thebtf/spiral/pkg/models"
)

// cbtQuestionBanks holds the guided Socratic questions per thought form.
// The phase-3 cascade never schedules more question steps than a bank holds.
var cbtQuestionBanks = map[models.ThoughtForm][]string{
	models.ThoughtWorry: {
		"What is the very worst outcome you are predicting, in one sentence?",
		"How likely is that outcome really, from 0 to 100?",
		"What would you tell a friend who was predicting the same thing?",
	},
	models.ThoughtRumination: {
		"Has replaying this helped you find anything new in the last hour?",
		"What would change if this question stayed unanswered tonight?",
	},
	models.ThoughtSelfCriticism: {
		"What exactly are you accusing yourself of, in plain words?",
		"Would you hold a friend to the standard you are holding yourself to?",
		"What part of this was genuinely within your control?",
	},
	models.ThoughtAnger: {
		"What boundary of yours feels crossed right now?",
		"What outcome do you actually want from this situation?",
	},
	models.ThoughtGrief: {
		"What is the loss underneath this feeling?",
	},
	models.ThoughtExistential: {
		"What small thing still feels meaningful to you today?",
	},
	models.ThoughtMixed: {
		"What single thought is pulling the hardest right now?",
		"Is that thought a fact, or a prediction?",
	},
}

// QuestionBank returns the Socratic questions for a thought form,
// defaulting to the mixed bank.
func QuestionBank(form models.ThoughtForm) []string {
	if bank, ok := cbtQuestionBanks[form]; ok {
		return bank
	}
	return cbtQuestionBanks[models.ThoughtMixed]
}

// stepSchema is the JSON contract every step generation must satisfy.
const stepSchema = `{
  "step_type": "<given>",
  "title": "<short, warm, max 8 words>",
  "subtitle": "<optional, one line>",
  "description": "<the main content, max 3 sentences>",
  "ui": {"component": "<component name>", "props": {}},
  "skippable": <bool>,
  "primary_cta": {"label": "...", "action": "next_step"}
}`

// methodRule returns the stage-specific generation rule for a method.
// brief_cbt is the two-stage method: stage 0 must be exactly one Socratic
// question referencing the dominant topic, stage 1 must be a calming
// reframe and never another question.
func methodRule(method models.Method, stage int, c *models.Classification) string {
	topic := "what is on their mind"
	form := models.ThoughtMixed
	if c != nil {
		topic = c.DominantTopic()
		form = c.ThoughtForm
	}

	switch method {
	case models.MethodBreathing:
		return "Produce a guided breathing step. ui.component must be \"breathing\" and ui.props must include numeric breath_count, inhale_sec and exhale_sec."
	case models.MethodGrounding:
		return "Produce a 5-4-3-2-1 sensory grounding step. ui.component must be \"grounding_5_4_3_2_1\"."
	case models.MethodExpressiveRelease:
		return "Invite the user to dump everything about \"" + topic + "\" into a free-text box, unfiltered. ui.component must be \"dump_text\"."
	case models.MethodBriefCBT, models.MethodDeepCBT:
		if stage == 0 {
			questions := QuestionBank(form)
			return "Ask exactly ONE Socratic question about the topic \"" + topic + "\". " +
				"Do not give advice, do not answer it yourself. Good examples: " + strings.Join(questions, " | ")
		}
		return "Produce a calming reframe of what the user has examined so far. It must be a statement, NOT another question. Keep it grounded, never dismissive."
	case models.MethodDefusion:
		return "Produce a defusion exercise: help the user observe the thought about \"" + topic + "\" as a mental event rather than a fact."
	case models.MethodSelfCompassion:
		return "Produce a short self-compassion script in second person, addressing the feelings " + emotionList(c) + ". ui.component must be \"self_compassion_script\"."
	case models.MethodBehavioralPlan:
		return "Produce one tiny, concrete next action the user could take tomorrow about \"" + topic + "\". Smaller is better."
	case models.MethodSleepWindDown:
		return "Produce a sleep wind-down step: slow pacing, no new topics, explicit permission to let the rest wait until morning."
	case models.MethodAcceptanceValues:
		return "Produce an acceptance step: make room for the feeling without fixing it, and connect to one personal value."
	case models.MethodSummary:
		return "Summarize the session warmly in at most three sentences: what was felt, what shifted, what the user chose."
	default:
		return "Produce a single short supportive step."
	}
}

// BuildStepPrompt builds the generation request for one step.
func BuildStepPrompt(stepType models.StepType, method models.Method, stage int, session *models.RescueSession) genai.Request {
	var sb strings.Builder
	sb.WriteString("You generate one step of a guided mental-health rescue flow.\n")
	sb.WriteString("Respond with a single JSON object, no prose, matching:\n")
	sb.WriteString(stepSchema)
	sb.WriteString("\nThe step_type MUST be \"" + string(stepType) + "\".\n")
	sb.WriteString("Tone: warm, concrete, non-clinical. Never diagnose. Never mention AI.\n")
	sb.WriteString("Rule for this step: ")
	sb.WriteString(methodRule(method, stage, session.Classification))

	var user strings.Builder
	user.WriteString(fmt.Sprintf("Session mode: %s. Step %d of the flow.\n", session.Mode, session.CurrentMethodIndex))
	if c := session.Classification; c != nil {
		user.WriteString(fmt.Sprintf(
			"Classification: thoughtForm=%s intensity=%d capacity=%s topic=%s sleepRelated=%t timeOfDay=%s\n",
			c.ThoughtForm, c.Intensity, c.CognitiveCapacity, c.DominantTopic(),
			c.Context.SleepRelated, c.Context.TimeOfDay,
		))
	}

	return genai.Request{System: sb.String(), User: user.String()}
}

// BuildClassificationPrompt builds the one-shot classification request.
func BuildClassificationPrompt(userText string, profile *models.UserProfile, sctx SessionContext) genai.Request {
	var sb strings.Builder
	sb.WriteString("You classify a distressed user's text for a self-help app.\n")
	sb.WriteString("Respond with a single JSON object, no prose, matching:\n")
	sb.WriteString(`{
  "topics": {"<topic>": <0..1>},
  "thoughtForm": "worry|rumination|self_criticism|anger|grief|existential|mixed",
  "primaryEmotions": ["<1-3 of: ` + strings.Join(models.PrimaryEmotions, ", ") + `>"],
  "intensity": <1..10>,
  "cognitiveCapacity": "low|medium|high",
  "context": {"timeOfDay": "<given>", "sleepRelated": <given>, "acuteTrigger": "<text or null>"},
  "recommendedStrategies": ["<subset of: ` + methodNames() + `>"]
}`)
	sb.WriteString("\nBe conservative with intensity. Use \"mixed\" when no thought form dominates.")

	var user strings.Builder
	user.WriteString("User text:\n")
	user.WriteString(truncate(userText, 3000))
	user.WriteString(fmt.Sprintf("\n\nContext: timeOfDay=%s sleepRelated=%t", sctx.TimeOfDay, sctx.SleepRelated))
	if sctx.InitialIntensity > 0 {
		user.WriteString(fmt.Sprintf(" selfReportedIntensity=%d", sctx.InitialIntensity))
	}
	if profile != nil && len(profile.OnboardingPatterns) > 0 {
		user.WriteString("\nKnown patterns from onboarding: " + strings.Join(profile.OnboardingPatterns, ", "))
	}

	return genai.Request{System: sb.String(), User: user.String()}
}

func methodNames() string {
	names := make([]string, len(models.AllMethods))
	for i, m := range models.AllMethods {
		names[i] = string(m)
	}
	return strings.Join(names, ", ")
}

func emotionList(c *models.Classification) string {
	if c == nil || len(c.PrimaryEmotions) == 0 {
		return "anxiety"
	}
	return strings.Join(c.PrimaryEmotions, ", ")
}

// truncate truncates a string to the specified length.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "... (truncated)"
}
