// Package flow implements the adaptive rescue-flow orchestration engine:
// classification, micro-plan generation, the phase state machine, step
// realization, and the crisis short-circuit.
package flow

import (
	"bufio"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/spiral/pkg/models"
)

// defaultCrisisPhrases is the built-in detection list. Matching is a
// case-insensitive substring check, which can false-positive on benign
// phrases containing a match ("end it all and start fresh"); that is the
// accepted trade-off - missing a real crisis costs far more.
var defaultCrisisPhrases = []string{
	"kill myself",
	"suicide",
	"end it",
	"self harm",
	"self-harm",
	"hurt myself",
	"overdose",
	"want to die",
	"better off dead",
	"no reason to live",
	"end my life",
}

// CrisisDetector matches free-text answers against a phrase list.
// The list can be replaced at runtime (phrase-file hot reload), so all
// access goes through the mutex.
type CrisisDetector struct {
	mu      sync.RWMutex
	phrases []string
}

// NewCrisisDetector creates a detector with the built-in phrase list.
func NewCrisisDetector() *CrisisDetector {
	return &CrisisDetector{phrases: defaultCrisisPhrases}
}

// Detect reports whether the text contains any crisis phrase.
// Case-insensitive; evaluated on every submitted free-text answer before
// any other state-machine logic.
func (d *CrisisDetector) Detect(text string) bool {
	lower := strings.ToLower(text)

	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, phrase := range d.phrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// Phrases returns a copy of the active phrase list.
func (d *CrisisDetector) Phrases() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, len(d.phrases))
	copy(out, d.phrases)
	return out
}

// LoadOverrides replaces the phrase list from a file with one phrase per
// line (blank lines and #-comments ignored). A missing file keeps the
// built-in list. Additional app-specific phrases go here.
func (d *CrisisDetector) LoadOverrides(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	var phrases []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		phrases = append(phrases, line)
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if len(phrases) == 0 {
		return nil
	}

	d.mu.Lock()
	d.phrases = phrases
	d.mu.Unlock()

	log.Info().Int("count", len(phrases)).Str("path", path).Msg("Crisis phrase list reloaded")
	return nil
}

// CrisisStep builds the terminal safety step. It is non-skippable, hides
// the progress bar, and carries a single exit action. Emitting it marks
// the flow complete regardless of plan or phase state.
func CrisisStep(stepIndex int) models.Step {
	return models.Step{
		StepID:   newStepID(),
		StepType: models.StepCrisisInfo,
		Title:    "You deserve support right now",
		Description: "It sounds like you're carrying something very heavy. " +
			"This app isn't the right support for thoughts of harming yourself. " +
			"Please reach out to someone who can be with you in this: a crisis line, " +
			"a trusted person, or emergency services. You don't have to do this alone.",
		UI: models.StepUI{
			Component: "crisis_info",
			Props: map[string]interface{}{
				"hotline_hint": "If you are in immediate danger, contact your local emergency number.",
			},
		},
		Skippable:  false,
		PrimaryCTA: &models.CTA{Label: "Exit", Action: "exit_flow"},
		Meta: models.StepMeta{
			InterventionType: "crisis",
			ShowProgress:     false,
			StepIndex:        stepIndex,
			StepCount:        stepIndex + 1,
		},
	}
}
