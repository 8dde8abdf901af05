package models

// StepType identifies the kind of interactive unit a step presents.
type StepType string

const (
	StepIntro              StepType = "intro"
	StepChooseTechnique    StepType = "choose_technique"
	StepBreathing          StepType = "breathing"
	StepGrounding54321     StepType = "grounding_5_4_3_2_1"
	StepIntensityScale     StepType = "intensity_scale"
	StepDumpText           StepType = "dump_text"
	StepDumpVoice          StepType = "dump_voice"
	StepSpiralTitle        StepType = "spiral_title"
	StepCBTQuestion        StepType = "cbt_question"
	StepDefusion           StepType = "defusion"
	StepAcceptance         StepType = "acceptance"
	StepReframeReview      StepType = "reframe_review"
	StepSelfCompassion     StepType = "self_compassion_script"
	StepSleepOrActionChoice StepType = "sleep_or_action_choice"
	StepActionPlan         StepType = "action_plan"
	StepFutureOrientation  StepType = "future_orientation"
	StepSleepWindDown      StepType = "sleep_wind_down"
	StepFinalIntensity     StepType = "final_intensity"
	StepSummary            StepType = "summary"
	StepCrisisInfo         StepType = "crisis_info"
)

// CTA is a call-to-action button attached to a step.
type CTA struct {
	Label  string `json:"label"`
	Action string `json:"action"`
}

// StepUI describes the client component rendering this step. Props vary
// per step type and are validated structurally at the enrichment boundary.
type StepUI struct {
	Component string                 `json:"component"`
	Props     map[string]interface{} `json:"props"`
}

// StepMeta carries progress bookkeeping for the client.
type StepMeta struct {
	InterventionType     string `json:"intervention_type,omitempty"`
	EstimatedDurationSec int    `json:"estimated_duration_sec,omitempty"`
	ShowProgress         bool   `json:"show_progress"`
	StepIndex            int    `json:"step_index"`
	StepCount            int    `json:"step_count"`
}

// Step is one produced unit of interaction. Steps are append-only history:
// once created and answered they are never mutated except to attach the
// user's answer and completion time.
type Step struct {
	StepID       string   `json:"step_id"`
	StepType     StepType `json:"step_type"`
	Title        string   `json:"title"`
	Subtitle     string   `json:"subtitle,omitempty"`
	Description  string   `json:"description,omitempty"`
	UI           StepUI   `json:"ui"`
	Skippable    bool     `json:"skippable"`
	PrimaryCTA   *CTA     `json:"primary_cta"`
	SecondaryCTA *CTA     `json:"secondary_cta,omitempty"`
	Meta         StepMeta `json:"meta"`
}

// IsBodyRegulation reports whether t downshifts the body (breathing or
// grounding work).
func (t StepType) IsBodyRegulation() bool {
	return t == StepBreathing || t == StepGrounding54321
}

// IsExternalization reports whether t gets the spiral out of the user's
// head (dump or naming work).
func (t StepType) IsExternalization() bool {
	return t == StepDumpText || t == StepDumpVoice || t == StepSpiralTitle
}

// IsCognitiveWork reports whether t is a cognitive or emotional-work step.
func (t StepType) IsCognitiveWork() bool {
	return t == StepCBTQuestion || t == StepDefusion || t == StepAcceptance
}
