package models

import "time"

// SessionMode selects the flow variant for a session.
type SessionMode string

const (
	ModeRescue      SessionMode = "rescue"
	ModeQuickRescue SessionMode = "quick_rescue"
	ModeBuffer      SessionMode = "buffer"
	ModeTraining    SessionMode = "training"
)

// PhaseRecord marks a phase the session has passed through.
type PhaseRecord struct {
	PhaseNumber int  `json:"phaseNumber"`
	Completed   bool `json:"completed"`
}

// RescueSession is the engine-visible session state. Classification and
// micro-plan are each set exactly once; method counters only ever increase.
// The session is terminal once the plan is exhausted or a crisis step has
// been emitted.
type RescueSession struct {
	ID                 string          `json:"id"`
	UserID             string          `json:"user_id"`
	Mode               SessionMode     `json:"mode"`
	TriggerText        string          `json:"trigger_text,omitempty"`
	Classification     *Classification `json:"classification,omitempty"`
	MicroPlan          []Method        `json:"micro_plan,omitempty"`
	CurrentMethodIndex int             `json:"current_method_index"`
	MethodStepCount    int             `json:"method_step_count"`
	PhaseHistory       []PhaseRecord   `json:"phase_history,omitempty"`
	SleepRelated       bool            `json:"sleep_related"`
	InitialIntensity   int             `json:"initial_intensity"`
	ChosenPath         string          `json:"chosen_path,omitempty"` // "sleep" or "action"
	Completed          bool            `json:"completed"`
	CrisisDetected     bool            `json:"crisis_detected"`
	StartedAt          time.Time       `json:"started_at"`
	CompletedAt        *time.Time      `json:"completed_at,omitempty"`
}

// PlanExhausted reports whether every plan entry has been consumed.
func (s *RescueSession) PlanExhausted() bool {
	return len(s.MicroPlan) > 0 && s.CurrentMethodIndex >= len(s.MicroPlan)
}

// CurrentMethod returns the plan entry the session is on, or "" when the
// plan is unset or exhausted.
func (s *RescueSession) CurrentMethod() Method {
	if len(s.MicroPlan) == 0 || s.CurrentMethodIndex >= len(s.MicroPlan) {
		return ""
	}
	return s.MicroPlan[s.CurrentMethodIndex]
}

// StepRecord is an answered (or pending) step in session history.
// PhaseNumber records which phase produced the step so that transition
// functions stay pure reads of persisted history.
type StepRecord struct {
	Step        Step       `json:"step"`
	PhaseNumber int        `json:"phase_number"`
	Answer      string     `json:"answer,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
