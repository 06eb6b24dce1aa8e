package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/rehearsal-ai/backend/errs"
	"github.com/rehearsal-ai/backend/models"
)

type SessionEndpoints struct {
	sessions    *SessionManager
	interviewer *AIInterviewer
	comms       *CommunicationManager
	evaluator   *EvaluationManager
	tracker     *TokenTracker
}

func NewSessionEndpoints(sessions *SessionManager, interviewer *AIInterviewer, comms *CommunicationManager, evaluator *EvaluationManager, tracker *TokenTracker) *SessionEndpoints {
	return &SessionEndpoints{
		sessions:    sessions,
		interviewer: interviewer,
		comms:       comms,
		evaluator:   evaluator,
		tracker:     tracker,
	}
}

type CreateSessionRequest struct {
	models.SessionConfig
	// ResumeID selects a stored resume instead of inline resume data.
	ResumeID string `json:"resume_id,omitempty"`
}

type CreateSessionResponse struct {
	Session models.Session `json:"session"`
	Message string         `json:"message"`
}

type GetSessionsResponse struct {
	Sessions []models.Session `json:"sessions"`
	Count    int64            `json:"count"`
}

type RespondRequest struct {
	Content string `json:"content"`
}

type SaveMediaRequest struct {
	Data string `json:"data"` // base64-encoded payload
}

func (e *SessionEndpoints) RegisterRoutes(r chi.Router) {
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", e.CreateSessionHandler)
		r.Get("/", e.GetSessionsHandler)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", e.GetSessionHandler)
			r.Delete("/", e.DeleteSessionHandler)

			r.Post("/start", e.StartSessionHandler)
			r.Post("/pause", e.PauseSessionHandler)
			r.Post("/resume", e.ResumeSessionHandler)
			r.Post("/end", e.EndSessionHandler)

			r.Post("/interview/start", e.StartInterviewHandler)
			r.Post("/interview/respond", e.RespondHandler)
			r.Get("/messages", e.GetMessagesHandler)

			r.Get("/modes", e.GetModesHandler)
			r.Post("/modes/{mode}/enable", e.EnableModeHandler)
			r.Post("/modes/{mode}/disable", e.DisableModeHandler)

			r.Get("/media", e.ListMediaHandler)
			r.Post("/media/whiteboard", e.SaveWhiteboardHandler)
			r.Post("/media/screen", e.SaveScreenCaptureHandler)

			r.Get("/evaluation", e.GetEvaluationHandler)
			r.Post("/evaluation", e.GenerateEvaluationHandler)

			r.Get("/usage", e.GetUsageHandler)
			r.Get("/usage/breakdown", e.GetUsageBreakdownHandler)

			r.Get("/audit", e.GetAuditHandler)
		})
	})
}

// writeServiceError maps a service error onto an HTTP status by its kind.
// Validation problems are the caller's fault, provider failures surface as
// a bad gateway, and store failures as service unavailable so clients know
// to retry later.
func writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errs.KindOf(err) {
	case errs.KindConfiguration:
		status = http.StatusBadRequest
	case errs.KindAIProvider:
		status = http.StatusBadGateway
	case errs.KindDataStore:
		status = http.StatusServiceUnavailable
	}
	http.Error(w, err.Error(), status)
}

// ownedSession loads the session named in the route and verifies it belongs
// to the authenticated user. It writes the error response and returns nil
// when the request cannot proceed. Sessions owned by other users read as
// not found so ids cannot be probed.
func (e *SessionEndpoints) ownedSession(w http.ResponseWriter, r *http.Request) *models.Session {
	user := CurrentUser(r)
	if user == nil {
		http.Error(w, "Not authenticated", http.StatusUnauthorized)
		return nil
	}

	sessionID := chi.URLParam(r, "id")
	if sessionID == "" {
		http.Error(w, "Session ID is required", http.StatusBadRequest)
		return nil
	}

	session, err := e.sessions.GetSession(r.Context(), sessionID)
	if err != nil {
		slog.Error("Failed to load session", "error", err, "session_id", sessionID)
		writeServiceError(w, err)
		return nil
	}
	if session == nil || session.UserID != user.ID {
		http.Error(w, "Session not found", http.StatusNotFound)
		return nil
	}
	return session
}

func (e *SessionEndpoints) CreateSessionHandler(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r)
	if user == nil {
		http.Error(w, "Not authenticated", http.StatusUnauthorized)
		return
	}

	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.ResumeID != "" {
		if err := e.sessions.AttachResume(r.Context(), user.ID, req.ResumeID, &req.SessionConfig); err != nil {
			slog.Error("Failed to attach resume", "error", err, "resume_id", req.ResumeID, "user_id", user.ID)
			writeServiceError(w, err)
			return
		}
	}

	session, err := e.sessions.CreateSession(r.Context(), user.ID, req.SessionConfig)
	if err != nil {
		slog.Error("Failed to create session", "error", err, "user_id", user.ID)
		writeServiceError(w, err)
		return
	}

	response := CreateSessionResponse{
		Session: *session,
		Message: "Session created successfully",
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(response)

	slog.Info("Session created", "session_id", session.ID, "user_id", user.ID, "provider", session.Config.AIProvider, "model", session.Config.AIModel)
}

func (e *SessionEndpoints) GetSessionsHandler(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r)
	if user == nil {
		http.Error(w, "Not authenticated", http.StatusUnauthorized)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	sessions, count, err := e.sessions.ListSessions(r.Context(), user.ID, limit, offset)
	if err != nil {
		slog.Error("Failed to list sessions", "error", err, "user_id", user.ID)
		writeServiceError(w, err)
		return
	}

	response := GetSessionsResponse{
		Sessions: sessions,
		Count:    count,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (e *SessionEndpoints) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	session := e.ownedSession(w, r)
	if session == nil {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"session": session,
	})
}

func (e *SessionEndpoints) DeleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	session := e.ownedSession(w, r)
	if session == nil {
		return
	}

	if err := e.sessions.DeleteSession(r.Context(), session.ID); err != nil {
		slog.Error("Failed to delete session", "error", err, "session_id", session.ID)
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
	slog.Info("Session deleted", "session_id", session.ID, "user_id", session.UserID)
}

func (e *SessionEndpoints) StartSessionHandler(w http.ResponseWriter, r *http.Request) {
	e.transitionHandler(w, r, e.sessions.StartSession)
}

func (e *SessionEndpoints) PauseSessionHandler(w http.ResponseWriter, r *http.Request) {
	e.transitionHandler(w, r, e.sessions.PauseSession)
}

func (e *SessionEndpoints) ResumeSessionHandler(w http.ResponseWriter, r *http.Request) {
	e.transitionHandler(w, r, e.sessions.ResumeSession)
}

func (e *SessionEndpoints) transitionHandler(w http.ResponseWriter, r *http.Request, op func(context.Context, string) (*models.Session, error)) {
	session := e.ownedSession(w, r)
	if session == nil {
		return
	}

	updated, err := op(r.Context(), session.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"session": updated,
	})
}

func (e *SessionEndpoints) EndSessionHandler(w http.ResponseWriter, r *http.Request) {
	session := e.ownedSession(w, r)
	if session == nil {
		return
	}

	report, err := e.sessions.EndSession(r.Context(), session.ID)
	if err != nil {
		slog.Error("Failed to end session", "error", err, "session_id", session.ID)
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"report":  report,
		"message": "Session completed",
	})

	slog.Info("Session ended", "session_id", session.ID, "user_id", session.UserID, "overall_score", report.OverallScore)
}

func (e *SessionEndpoints) StartInterviewHandler(w http.ResponseWriter, r *http.Request) {
	session := e.ownedSession(w, r)
	if session == nil {
		return
	}

	opening, err := e.interviewer.StartInterview(r.Context(), session.ID)
	if err != nil {
		slog.Error("Failed to start interview", "error", err, "session_id", session.ID)
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": opening,
	})
}

func (e *SessionEndpoints) RespondHandler(w http.ResponseWriter, r *http.Request) {
	session := e.ownedSession(w, r)
	if session == nil {
		return
	}

	var req RespondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	reply, err := e.interviewer.ProcessResponse(r.Context(), session.ID, req.Content)
	if err != nil {
		slog.Error("Failed to process candidate response", "error", err, "session_id", session.ID)
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": reply,
	})
}

func (e *SessionEndpoints) GetMessagesHandler(w http.ResponseWriter, r *http.Request) {
	session := e.ownedSession(w, r)
	if session == nil {
		return
	}

	messages, err := e.interviewer.GetTranscript(r.Context(), session.ID)
	if err != nil {
		slog.Error("Failed to get transcript", "error", err, "session_id", session.ID)
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"messages": messages,
		"count":    len(messages),
	})
}

func (e *SessionEndpoints) GetModesHandler(w http.ResponseWriter, r *http.Request) {
	session := e.ownedSession(w, r)
	if session == nil {
		return
	}

	active, err := e.comms.ActiveModes(r.Context(), session.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"enabled_modes": session.Config.EnabledModes,
		"active_modes":  active,
	})
}

func (e *SessionEndpoints) EnableModeHandler(w http.ResponseWriter, r *http.Request) {
	e.toggleModeHandler(w, r, e.comms.EnableMode)
}

func (e *SessionEndpoints) DisableModeHandler(w http.ResponseWriter, r *http.Request) {
	e.toggleModeHandler(w, r, e.comms.DisableMode)
}

func (e *SessionEndpoints) toggleModeHandler(w http.ResponseWriter, r *http.Request, op func(context.Context, string, string) (models.StringList, error)) {
	session := e.ownedSession(w, r)
	if session == nil {
		return
	}

	mode := chi.URLParam(r, "mode")
	if mode == "" {
		http.Error(w, "Mode is required", http.StatusBadRequest)
		return
	}

	active, err := op(r.Context(), session.ID, mode)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"active_modes": active,
	})
}

func (e *SessionEndpoints) SaveWhiteboardHandler(w http.ResponseWriter, r *http.Request) {
	e.saveMediaHandler(w, r, e.comms.SaveWhiteboardSnapshot)
}

func (e *SessionEndpoints) SaveScreenCaptureHandler(w http.ResponseWriter, r *http.Request) {
	e.saveMediaHandler(w, r, e.comms.SaveScreenCapture)
}

func (e *SessionEndpoints) saveMediaHandler(w http.ResponseWriter, r *http.Request, op func(context.Context, string, []byte) (*models.MediaFile, error)) {
	session := e.ownedSession(w, r)
	if session == nil {
		return
	}

	var req SaveMediaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	data, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		http.Error(w, "Media data must be base64 encoded", http.StatusBadRequest)
		return
	}

	file, err := op(r.Context(), session.ID, data)
	if err != nil {
		slog.Error("Failed to save media", "error", err, "session_id", session.ID)
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"media": file,
	})
}

func (e *SessionEndpoints) ListMediaHandler(w http.ResponseWriter, r *http.Request) {
	session := e.ownedSession(w, r)
	if session == nil {
		return
	}

	kind := r.URL.Query().Get("kind")
	files, err := e.comms.ListMedia(r.Context(), session.ID, kind)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"media": files,
		"count": len(files),
	})
}

func (e *SessionEndpoints) GetEvaluationHandler(w http.ResponseWriter, r *http.Request) {
	session := e.ownedSession(w, r)
	if session == nil {
		return
	}

	report, err := e.evaluator.GetEvaluation(r.Context(), session.ID)
	if err != nil {
		slog.Error("Failed to get evaluation report", "error", err, "session_id", session.ID)
		writeServiceError(w, err)
		return
	}
	if report == nil {
		http.Error(w, "No evaluation report exists for this session", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"report": report,
	})
}

func (e *SessionEndpoints) GenerateEvaluationHandler(w http.ResponseWriter, r *http.Request) {
	session := e.ownedSession(w, r)
	if session == nil {
		return
	}

	report, err := e.evaluator.GenerateEvaluation(r.Context(), session.ID)
	if err != nil {
		slog.Error("Failed to generate evaluation report", "error", err, "session_id", session.ID)
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"report": report,
	})

	slog.Info("Evaluation report generated on request", "session_id", session.ID, "overall_score", report.OverallScore)
}

func (e *SessionEndpoints) GetUsageHandler(w http.ResponseWriter, r *http.Request) {
	session := e.ownedSession(w, r)
	if session == nil {
		return
	}

	usage, err := e.tracker.SessionUsage(r.Context(), session.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"usage": usage,
	})
}

func (e *SessionEndpoints) GetUsageBreakdownHandler(w http.ResponseWriter, r *http.Request) {
	session := e.ownedSession(w, r)
	if session == nil {
		return
	}

	breakdown, err := e.tracker.UsageBreakdown(r.Context(), session.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"breakdown": breakdown,
	})
}

func (e *SessionEndpoints) GetAuditHandler(w http.ResponseWriter, r *http.Request) {
	session := e.ownedSession(w, r)
	if session == nil {
		return
	}

	entries, err := e.sessions.AuditTrail(r.Context(), session.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"audit": entries,
		"count": len(entries),
	})
}
