package conversation

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/kestrelhq/realty-ai-platform/pkg/logging"
)

// ChatService is the slice of the orchestrator the HTTP layer uses.
type ChatService interface {
	Greeting() string
	ProcessMessage(ctx context.Context, sessionID, message string) (*TurnResult, error)
}

const sessionCookie = "realty_session"

// Handler serves the chat, scheduling, and availability endpoints.
type Handler struct {
	chat      ChatService
	scheduler SchedulingGateway
	logger    *logging.Logger
}

// NewHandler creates the conversation HTTP handler.
func NewHandler(chat ChatService, scheduler SchedulingGateway, logger *logging.Logger) *Handler {
	if chat == nil {
		panic("conversation: chat service cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{chat: chat, scheduler: scheduler, logger: logger}
}

type chatRequest struct {
	Message string `json:"message"`
}

// Chat handles POST /api/chat. The session is identified by the
// X-Session-Id header or a cookie; a new session ID is issued when neither
// is present.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid chat request body", "error", err)
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		writeJSON(w, http.StatusBadRequest, TurnResult{
			Answer:      "Please type a message to continue.",
			LeadScore:   0,
			LeadStatus:  "Unknown",
			CRMStatus:   "Skipped",
			CRMResponse: "No message provided",
			Error:       "Message cannot be empty.",
		})
		return
	}

	sessionID := h.sessionID(w, r)
	result, err := h.chat.ProcessMessage(r.Context(), sessionID, message)
	if err != nil {
		h.logger.Error("chat turn failed", "session_id", sessionID, "error", err)
		writeJSON(w, http.StatusInternalServerError, TurnResult{
			Answer:      "Oops, something went wrong! Let's try again.",
			LeadScore:   0,
			LeadStatus:  "Unknown",
			CRMStatus:   "Error",
			CRMResponse: "CRM update failed.",
			Error:       err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Greeting handles GET /api/greeting, the opening bot turn for a fresh UI.
func (h *Handler) Greeting(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"answer": h.chat.Greeting()})
}

type scheduleRequest struct {
	Email     string `json:"email"`
	StartTime string `json:"start_time"`
}

// Schedule handles POST /api/schedule, booking a meeting directly.
func (h *Handler) Schedule(w http.ResponseWriter, r *http.Request) {
	if h.scheduler == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "Scheduling is not configured"})
		return
	}
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}
	if req.Email == "" || req.StartTime == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Email and start time are required"})
		return
	}

	res := h.scheduler.ScheduleMeeting(r.Context(), "", req.Email, req.StartTime, "")
	if res.Status != "success" {
		h.logger.Error("meeting creation failed", "email", req.Email, "message", res.Message)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": res.Message})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"booking_url": res.BookingLink,
		"event_id":    res.EventURI,
	})
}

// AvailableTimes handles GET /api/available-times.
func (h *Handler) AvailableTimes(w http.ResponseWriter, r *http.Request) {
	if h.scheduler == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "Scheduling is not configured"})
		return
	}
	start := r.URL.Query().Get("start_time")
	end := r.URL.Query().Get("end_time")
	if start == "" || end == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "start_time and end_time are required"})
		return
	}

	res := h.scheduler.AvailableTimes(r.Context(), start, end)
	if res.Status != "success" {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": res.Message})
		return
	}
	writeJSON(w, http.StatusOK, res.Raw)
}

// sessionID resolves the caller's session identity, minting a cookie-backed
// ID when the client supplied none.
func (h *Handler) sessionID(w http.ResponseWriter, r *http.Request) string {
	if id := r.Header.Get("X-Session-Id"); id != "" {
		return id
	}
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are already written; nothing left to do but note it.
		logging.Default().Error("failed to encode response", "error", err)
	}
}
