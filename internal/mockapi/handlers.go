package mockapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/raphaelgruber/oskour/internal/models"
)

type chatRequest struct {
	Question      string             `json:"question"`
	KnowledgeBase string             `json:"knowledge_base"`
	SessionID     string             `json:"session_id"`
	Model         string             `json:"model,omitempty"`
	Source        models.SourceScope `json:"source,omitempty"`
}

type chatResponse struct {
	Answer       string   `json:"answer"`
	FilesUsed    []string `json:"files_used"`
	MessageParts []string `json:"message_parts,omitempty"`
	MessageID    int      `json:"message_id"`
}

type sessionRequest struct {
	SessionID string `json:"session_id"`
}

type ack struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// Handler returns the HTTP router serving every backend endpoint.
func (b *Backend) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(LoggingMiddleware(b.logger))
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(b.injectFailures)

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "Simple API server is running"})
	})
	r.Post("/chat", b.handleChat)
	r.Post("/clear_history", b.handleClearHistory)
	r.Post("/feedback", b.handleFeedback)
	r.Get("/trending_questions", b.handleTrending)
	r.Get("/chatbot_stats", b.handleChatbotStats)
	r.Get("/application_stats", b.handleApplicationStats)
	r.Get("/hourly_incidents", b.handleHourlyIncidents)
	return r
}

func (b *Backend) injectFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status, ok := b.failure(r.URL.Path); ok {
			writeJSON(w, status, errorResponse{Detail: "injected failure"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "invalid JSON body"})
		return
	}
	if strings.TrimSpace(req.Question) == "" || req.SessionID == "" {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Detail: "question and session_id are required"})
		return
	}
	source := req.Source
	if source == "" {
		source = models.SourceUser
	}

	ans := b.ask(req.SessionID, req.Question, source)
	b.logger.Info("chat", "session_id", req.SessionID, "message_id", ans.id, "parts", len(ans.parts))

	writeJSON(w, http.StatusOK, chatResponse{
		Answer:       ans.text,
		FilesUsed:    ans.files,
		MessageParts: ans.parts,
		MessageID:    ans.id,
	})
}

func (b *Backend) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Detail: "session_id is required"})
		return
	}
	if b.clear(req.SessionID) {
		writeJSON(w, http.StatusOK, ack{Success: true, Message: "Conversation history cleared"})
		return
	}
	writeJSON(w, http.StatusOK, ack{Success: false, Message: "Session not found"})
}

func (b *Backend) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var fb models.Feedback
	if err := json.NewDecoder(r.Body).Decode(&fb); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "invalid JSON body"})
		return
	}
	if !models.ValidRating(fb.Rating) {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Detail: "rating must be 1 or 5"})
		return
	}
	if !b.addFeedback(fb) {
		writeJSON(w, http.StatusNotFound, errorResponse{Detail: "unknown message_id"})
		return
	}
	writeJSON(w, http.StatusOK, ack{Success: true, Message: "Feedback recorded"})
}

func (b *Backend) handleTrending(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 5
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Detail: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	source, ok := models.ParseSourceScope(q.Get("source"))
	if !ok {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Detail: "source must be user, admin or all"})
		return
	}
	if q.Get("force_update") == "true" {
		b.logger.Debug("trending recompute requested", "source", source)
	}
	writeJSON(w, http.StatusOK, b.trending(limit, source))
}

func (b *Backend) handleChatbotStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, b.chatbotStats())
}

func (b *Backend) handleApplicationStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, b.applicationStats())
}

func (b *Backend) handleHourlyIncidents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, b.hourlyIncidents())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
