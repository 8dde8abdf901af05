package worker

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"github.com/thebtf/spiral/internal/config"
	gormdb "github.com/thebtf/spiral/internal/db/gorm"
	"github.com/thebtf/spiral/internal/flow"
	"github.com/thebtf/spiral/pkg/models"
)

// testService creates a Service with a temp-dir SQLite database and a
// fully local engine (no generator, no archetype source).
func testService(t *testing.T) (*Service, func()) {
	t.Helper()

	store, err := gormdb.NewStore(gormdb.Config{
		Path:     filepath.Join(t.TempDir(), "test.db"),
		MaxConns: 4,
		LogLevel: logger.Silent,
	})
	require.NoError(t, err)

	engine, err := flow.NewEngine(nil, nil)
	require.NoError(t, err)

	svc := NewService("test-version", config.Default(), store, engine)
	svc.ready.Store(true)

	cleanup := func() {
		svc.cancel()
		_ = store.Close()
	}
	return svc, cleanup
}

func doJSON(t *testing.T, svc *Service, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	svc.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

// createSession creates a session over the API and returns its ID.
func createSession(t *testing.T, svc *Service, userID string, mode models.SessionMode, triggerText string) string {
	t.Helper()

	rec := doJSON(t, svc, http.MethodPost, "/api/sessions", map[string]interface{}{
		"user_id":           userID,
		"mode":              string(mode),
		"trigger_text":      triggerText,
		"initial_intensity": 6,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	id, ok := body["id"].(string)
	require.True(t, ok)
	require.NotEmpty(t, id)
	return id
}

// nextStep requests the next step and returns the decoded response.
func nextStep(t *testing.T, svc *Service, sessionID string) map[string]interface{} {
	t.Helper()

	rec := doJSON(t, svc, http.MethodPost, "/api/sessions/"+sessionID+"/next", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeBody(t, rec)
}

func stepField(t *testing.T, resp map[string]interface{}, field string) string {
	t.Helper()

	step, ok := resp["step"].(map[string]interface{})
	require.True(t, ok, "response should contain a step")
	val, _ := step[field].(string)
	return val
}

func TestHandleCreateSession(t *testing.T) {
	svc, cleanup := testService(t)
	defer cleanup()

	rec := doJSON(t, svc, http.MethodPost, "/api/sessions", map[string]interface{}{
		"user_id": "user-1",
		"mode":    "quick_rescue",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	body := decodeBody(t, rec)
	assert.NotEmpty(t, body["id"])
	assert.Equal(t, "quick_rescue", body["mode"])
	assert.Equal(t, "user-1", body["user_id"])
}

func TestHandleCreateSessionDefaultsToRescue(t *testing.T) {
	svc, cleanup := testService(t)
	defer cleanup()

	rec := doJSON(t, svc, http.MethodPost, "/api/sessions", map[string]interface{}{
		"user_id": "user-1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "rescue", decodeBody(t, rec)["mode"])
}

func TestHandleCreateSessionValidation(t *testing.T) {
	svc, cleanup := testService(t)
	defer cleanup()

	rec := doJSON(t, svc, http.MethodPost, "/api/sessions", map[string]interface{}{
		"mode": "rescue",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, svc, http.MethodPost, "/api/sessions", map[string]interface{}{
		"user_id": "user-1",
		"mode":    "deep_dive",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleNextStepFirstStep(t *testing.T) {
	svc, cleanup := testService(t)
	defer cleanup()

	id := createSession(t, svc, "user-1", models.ModeRescue, "everything is going wrong")

	resp := nextStep(t, svc, id)
	assert.Equal(t, "intro", stepField(t, resp, "step_type"))
	assert.Equal(t, float64(0), resp["phase"])
	assert.Equal(t, "arrival", resp["phase_name"])
	assert.Equal(t, false, resp["flow_complete"])
}

func TestHandleNextStepPendingIsIdempotent(t *testing.T) {
	svc, cleanup := testService(t)
	defer cleanup()

	id := createSession(t, svc, "user-1", models.ModeRescue, "spiraling again")

	first := nextStep(t, svc, id)
	second := nextStep(t, svc, id)

	assert.Equal(t, stepField(t, first, "step_id"), stepField(t, second, "step_id"))
	assert.Equal(t, stepField(t, first, "step_type"), stepField(t, second, "step_type"))
}

func TestHandleNextStepAdvancesAfterAnswer(t *testing.T) {
	svc, cleanup := testService(t)
	defer cleanup()

	id := createSession(t, svc, "user-1", models.ModeRescue, "spiraling again")

	first := nextStep(t, svc, id)
	require.Equal(t, "intro", stepField(t, first, "step_type"))

	rec := doJSON(t, svc, http.MethodPost, "/api/sessions/"+id+"/answer", map[string]interface{}{
		"step_id": stepField(t, first, "step_id"),
		"answer":  "",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	second := nextStep(t, svc, id)
	assert.Equal(t, "choose_technique", stepField(t, second, "step_type"))
}

// TestHandleNextStepPickerSteersDownshift drives the arrival picker over
// the API and checks the chosen technique carries into the next phase.
func TestHandleNextStepPickerSteersDownshift(t *testing.T) {
	svc, cleanup := testService(t)
	defer cleanup()

	id := createSession(t, svc, "user-1", models.ModeRescue, "spiraling again")

	intro := nextStep(t, svc, id)
	require.Equal(t, "intro", stepField(t, intro, "step_type"))
	rec := doJSON(t, svc, http.MethodPost, "/api/sessions/"+id+"/answer", map[string]interface{}{
		"step_id": stepField(t, intro, "step_id"),
		"answer":  "",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	picker := nextStep(t, svc, id)
	require.Equal(t, "choose_technique", stepField(t, picker, "step_type"))
	rec = doJSON(t, svc, http.MethodPost, "/api/sessions/"+id+"/answer", map[string]interface{}{
		"step_id": stepField(t, picker, "step_id"),
		"answer":  "grounding",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	downshift := nextStep(t, svc, id)
	assert.Equal(t, "grounding_5_4_3_2_1", stepField(t, downshift, "step_type"))
}

func TestHandleNextStepNotFound(t *testing.T) {
	svc, cleanup := testService(t)
	defer cleanup()

	rec := doJSON(t, svc, http.MethodPost, "/api/sessions/no-such-session/next", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleNextStepOwnership(t *testing.T) {
	svc, cleanup := testService(t)
	defer cleanup()

	id := createSession(t, svc, "user-1", models.ModeRescue, "")

	rec := doJSON(t, svc, http.MethodPost, "/api/sessions/"+id+"/next", map[string]interface{}{
		"user_id": "user-2",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandleSubmitAnswerValidation(t *testing.T) {
	svc, cleanup := testService(t)
	defer cleanup()

	id := createSession(t, svc, "user-1", models.ModeRescue, "")

	rec := doJSON(t, svc, http.MethodPost, "/api/sessions/"+id+"/answer", map[string]interface{}{
		"answer": "hello",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, svc, http.MethodPost, "/api/sessions/"+id+"/answer", map[string]interface{}{
		"step_id": "no-such-step",
		"answer":  "hello",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleSubmitAnswerTwiceConflicts(t *testing.T) {
	svc, cleanup := testService(t)
	defer cleanup()

	id := createSession(t, svc, "user-1", models.ModeRescue, "")
	resp := nextStep(t, svc, id)
	stepID := stepField(t, resp, "step_id")

	rec := doJSON(t, svc, http.MethodPost, "/api/sessions/"+id+"/answer", map[string]interface{}{
		"step_id": stepID,
		"answer":  "first",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, svc, http.MethodPost, "/api/sessions/"+id+"/answer", map[string]interface{}{
		"step_id": stepID,
		"answer":  "second",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleSubmitAnswerCrisisShortCircuits(t *testing.T) {
	svc, cleanup := testService(t)
	defer cleanup()

	id := createSession(t, svc, "user-1", models.ModeRescue, "rough evening")
	resp := nextStep(t, svc, id)

	rec := doJSON(t, svc, http.MethodPost, "/api/sessions/"+id+"/answer", map[string]interface{}{
		"step_id": stepField(t, resp, "step_id"),
		"answer":  "honestly I want to kill myself",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["crisis_detected"])
	assert.Equal(t, true, body["flow_complete"])

	crisisStep, ok := body["crisis_step"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "crisis_info", crisisStep["step_type"])

	// Session is terminal; the crisis step is re-served on retry.
	after := nextStep(t, svc, id)
	assert.Equal(t, "crisis_info", stepField(t, after, "step_type"))
	assert.Equal(t, true, after["crisis_detected"])
}

func TestHandleCrisisInTriggerText(t *testing.T) {
	svc, cleanup := testService(t)
	defer cleanup()

	id := createSession(t, svc, "user-1", models.ModeRescue, "I just want to end it")

	resp := nextStep(t, svc, id)
	assert.Equal(t, "crisis_info", stepField(t, resp, "step_type"))
	assert.Equal(t, true, resp["crisis_detected"])
	assert.Equal(t, true, resp["flow_complete"])
}

func TestHandleGetSession(t *testing.T) {
	svc, cleanup := testService(t)
	defer cleanup()

	id := createSession(t, svc, "user-1", models.ModeRescue, "looping thoughts")
	nextStep(t, svc, id)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/"+id, nil)
	rec := httptest.NewRecorder()
	svc.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	session, ok := body["session"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, id, session["id"])

	steps, ok := body["steps"].([]interface{})
	require.True(t, ok)
	assert.Len(t, steps, 1)
}

func TestHandleGetSessionNotFound(t *testing.T) {
	svc, cleanup := testService(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/nope", nil)
	rec := httptest.NewRecorder()
	svc.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleListSessions(t *testing.T) {
	svc, cleanup := testService(t)
	defer cleanup()

	createSession(t, svc, "user-1", models.ModeRescue, "")
	createSession(t, svc, "user-1", models.ModeQuickRescue, "")
	createSession(t, svc, "user-2", models.ModeRescue, "")

	req := httptest.NewRequest(http.MethodGet, "/api/sessions?user_id=user-1", nil)
	rec := httptest.NewRecorder()
	svc.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(2), body["count"])

	req = httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	rec = httptest.NewRecorder()
	svc.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	svc, cleanup := testService(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	svc.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test-version", body["version"])
	assert.Equal(t, true, body["ready"])
}

// answerText returns a safe canned answer for a step type.
func answerText(stepType string) string {
	switch stepType {
	case "choose_technique":
		return "breathing"
	case "intensity_scale":
		return "6"
	case "final_intensity":
		return "2"
	case "dump_text":
		return "I keep replaying the meeting over and over"
	case "spiral_title":
		return "The replay"
	case "sleep_or_action_choice":
		return "action"
	default:
		return "done"
	}
}

// TestFullRescueFlowOverHTTP drives a complete rescue session through the
// HTTP surface and checks it terminates with a persisted, completed session.
func TestFullRescueFlowOverHTTP(t *testing.T) {
	svc, cleanup := testService(t)
	defer cleanup()

	id := createSession(t, svc, "user-1", models.ModeRescue, "I keep replaying the meeting")

	var emitted []string
	for i := 0; i < 40; i++ {
		resp := nextStep(t, svc, id)
		if resp["flow_complete"] == true && resp["step"] == nil {
			break
		}
		stepType := stepField(t, resp, "step_type")
		emitted = append(emitted, stepType)

		rec := doJSON(t, svc, http.MethodPost, "/api/sessions/"+id+"/answer", map[string]interface{}{
			"step_id": stepField(t, resp, "step_id"),
			"answer":  answerText(stepType),
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	assert.Len(t, emitted, 15)
	assert.Equal(t, "intro", emitted[0])
	assert.Equal(t, "summary", emitted[len(emitted)-1])

	// The completed session round-trips from the store.
	stored, err := svc.sessions.GetSession(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, stored.Completed)
	assert.NotNil(t, stored.Classification)
	assert.NotEmpty(t, stored.MicroPlan)
	assert.Equal(t, "action", stored.ChosenPath)
}
