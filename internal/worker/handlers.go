package worker

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	gormdb "github.com/thebtf/spiral/internal/db/gorm"
	"github.com/thebtf/spiral/internal/flow"
	"github.com/thebtf/spiral/internal/worker/sse"
	"github.com/thebtf/spiral/pkg/models"
)

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// storeStatus maps store sentinel errors to HTTP status codes.
func storeStatus(err error) int {
	switch {
	case errors.Is(err, gormdb.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, gormdb.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, gormdb.ErrAlreadySet):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

var validModes = map[models.SessionMode]bool{
	models.ModeRescue:      true,
	models.ModeQuickRescue: true,
	models.ModeBuffer:      true,
	models.ModeTraining:    true,
}

type createSessionRequest struct {
	UserID           string             `json:"user_id"`
	Mode             models.SessionMode `json:"mode"`
	TriggerText      string             `json:"trigger_text,omitempty"`
	SleepRelated     bool               `json:"sleep_related"`
	InitialIntensity int                `json:"initial_intensity"`
}

// handleCreateSession opens a new rescue session.
func (s *Service) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if req.Mode == "" {
		req.Mode = models.ModeRescue
	}
	if !validModes[req.Mode] {
		writeError(w, http.StatusBadRequest, "unknown mode: "+string(req.Mode))
		return
	}

	session := &models.RescueSession{
		UserID:           req.UserID,
		Mode:             req.Mode,
		TriggerText:      req.TriggerText,
		SleepRelated:     req.SleepRelated,
		InitialIntensity: req.InitialIntensity,
	}
	if err := s.sessions.CreateSession(r.Context(), session); err != nil {
		log.Error().Err(err).Msg("Failed to create session")
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	s.metrics.RecordSessionStarted(r.Context(), string(session.Mode))
	s.sseBroadcaster.Broadcast(sse.NewEvent(sse.EventSessionStarted, session.ID, map[string]interface{}{
		"mode": string(session.Mode),
	}))

	writeJSON(w, http.StatusCreated, session)
}

type nextStepRequest struct {
	UserID string `json:"user_id,omitempty"`
}

// handleNextStep produces (or re-serves) the session's next step.
// While the latest step is still unanswered it is returned again rather
// than generating a new one, so client retries are harmless.
func (s *Service) handleNextStep(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req nextStepRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	session, err := s.sessions.GetSessionForUser(r.Context(), sessionID, req.UserID)
	if err != nil {
		writeError(w, storeStatus(err), "session lookup failed")
		return
	}

	history, err := s.steps.History(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load step history")
		return
	}

	// Single outstanding step: re-serve the pending one.
	if len(history) > 0 {
		last := history[len(history)-1]
		if last.CompletedAt == nil {
			writeJSON(w, http.StatusOK, flow.NextStepResult{
				Step:           &last.Step,
				Phase:          last.PhaseNumber,
				PhaseName:      s.engine.Phases().Phase(last.PhaseNumber).Name,
				FlowComplete:   session.Completed,
				CrisisDetected: session.CrisisDetected,
			})
			return
		}
	}

	profile, err := s.profiles.GetProfile(r.Context(), session.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load profile")
		return
	}

	start := time.Now()
	result := s.engine.NextStep(r.Context(), session, profile, history)

	if err := s.persistSession(r, session); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to persist session")
		return
	}

	if result.Step != nil {
		rec := models.StepRecord{Step: *result.Step, PhaseNumber: result.Phase}
		if err := s.steps.AppendStep(r.Context(), session.ID, rec); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to record step")
			return
		}
		s.metrics.RecordStep(r.Context(), string(result.Step.StepType), result.Phase, time.Since(start))
	}

	switch {
	case result.CrisisDetected:
		s.metrics.RecordCrisis(r.Context())
		s.sseBroadcaster.Broadcast(sse.NewEvent(sse.EventCrisisDetected, session.ID, nil))
	case result.Step != nil:
		s.sseBroadcaster.Broadcast(sse.NewEvent(sse.EventStepEmitted, session.ID, map[string]interface{}{
			"step_type": string(result.Step.StepType),
			"phase":     result.Phase,
		}))
	case result.FlowComplete:
		s.metrics.RecordFlowComplete(r.Context(), string(session.Mode))
		s.sseBroadcaster.Broadcast(sse.NewEvent(sse.EventFlowComplete, session.ID, nil))
	}

	writeJSON(w, http.StatusOK, result)
}

type submitAnswerRequest struct {
	UserID string `json:"user_id,omitempty"`
	StepID string `json:"step_id"`
	Answer string `json:"answer"`
}

// handleSubmitAnswer records an answer against the pending step and runs
// the engine's answer bookkeeping.
func (s *Service) handleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req submitAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.StepID == "" {
		writeError(w, http.StatusBadRequest, "step_id is required")
		return
	}

	session, err := s.sessions.GetSessionForUser(r.Context(), sessionID, req.UserID)
	if err != nil {
		writeError(w, storeStatus(err), "session lookup failed")
		return
	}

	if err := s.steps.AttachAnswer(r.Context(), sessionID, req.StepID, req.Answer); err != nil {
		writeError(w, storeStatus(err), "failed to record answer")
		return
	}

	answered, err := s.steps.GetStep(r.Context(), sessionID, req.StepID)
	if err != nil {
		writeError(w, storeStatus(err), "failed to reload step")
		return
	}
	history, err := s.steps.History(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load step history")
		return
	}
	profile, err := s.profiles.GetProfile(r.Context(), session.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load profile")
		return
	}

	result := s.engine.SubmitAnswer(r.Context(), session, profile, answered, history)

	if result.CrisisDetected && result.CrisisStep != nil {
		rec := models.StepRecord{Step: *result.CrisisStep, PhaseNumber: answered.PhaseNumber}
		if err := s.steps.AppendStep(r.Context(), session.ID, rec); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to record crisis step")
			return
		}
	}

	if err := s.persistSession(r, session); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to persist session")
		return
	}

	s.metrics.RecordAnswer(r.Context(), string(answered.Step.StepType))
	switch {
	case result.CrisisDetected:
		s.metrics.RecordCrisis(r.Context())
		s.sseBroadcaster.Broadcast(sse.NewEvent(sse.EventCrisisDetected, session.ID, nil))
	default:
		s.sseBroadcaster.Broadcast(sse.NewEvent(sse.EventAnswerRecorded, session.ID, map[string]interface{}{
			"step_type": string(answered.Step.StepType),
			"phase":     answered.PhaseNumber,
		}))
		if result.FlowComplete {
			s.metrics.RecordFlowComplete(r.Context(), string(session.Mode))
			s.sseBroadcaster.Broadcast(sse.NewEvent(sse.EventFlowComplete, session.ID, nil))
		}
	}

	writeJSON(w, http.StatusOK, result)
}

// persistSession flushes engine mutations: the write-once columns first
// (duplicates are expected and ignored), then the mutable progress fields.
func (s *Service) persistSession(r *http.Request, session *models.RescueSession) error {
	ctx := r.Context()
	if session.Classification != nil {
		if err := s.sessions.SetClassification(ctx, session.ID, session.Classification); err != nil &&
			!errors.Is(err, gormdb.ErrAlreadySet) {
			return err
		}
	}
	if len(session.MicroPlan) > 0 {
		if err := s.sessions.SetMicroPlan(ctx, session.ID, session.MicroPlan); err != nil &&
			!errors.Is(err, gormdb.ErrAlreadySet) {
			return err
		}
	}
	return s.sessions.SaveProgress(ctx, session)
}

// handleGetSession returns a session with its full step history.
func (s *Service) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	session, err := s.sessions.GetSessionForUser(r.Context(), sessionID, r.URL.Query().Get("user_id"))
	if err != nil {
		writeError(w, storeStatus(err), "session lookup failed")
		return
	}
	history, err := s.steps.History(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load step history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session": session,
		"steps":   history,
	})
}

// handleListSessions lists a user's sessions, newest first.
func (s *Service) handleListSessions(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	limit := gormdb.ParseLimitParam(r, 20)
	sessions, err := s.sessions.ListUserSessions(r.Context(), userID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// handleHealth reports service liveness.
func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := s.store.Ping(); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]interface{}{
		"status":      status,
		"version":     s.version,
		"ready":       s.ready.Load(),
		"uptime_sec":  int(time.Since(s.startTime).Seconds()),
		"sse_clients": s.sseBroadcaster.ClientCount(),
	})
}
