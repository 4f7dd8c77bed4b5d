package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/raphaelgruber/oskour/internal/metrics"
	"github.com/raphaelgruber/oskour/internal/models"
)

// =============================================================================
// TYPES (matching the backend JSON contract)
// =============================================================================

// ChatRequest asks the backend one question within a session.
type ChatRequest struct {
	SessionID     string             `json:"session_id"`
	Question      string             `json:"question"`
	KnowledgeBase string             `json:"knowledge_base"`
	Model         string             `json:"model,omitempty"`
	Source        models.SourceScope `json:"source,omitempty"`
}

// ChatResponse is the backend answer. When MessageParts is non-empty it supersedes Answer for display.
type ChatResponse struct {
	Answer       string   `json:"answer"`
	FilesUsed    []string `json:"files_used,omitempty"`
	MessageParts []string `json:"message_parts,omitempty"`
	MessageID    *int     `json:"message_id,omitempty"`
}

// Parts returns the segments to display, in order.
func (r *ChatResponse) Parts() []string {
	var parts []string
	for _, p := range r.MessageParts {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return []string{r.Answer}
	}
	return parts
}

// Ack is the acknowledgement returned by write endpoints.
type Ack struct {
	Success bool   `json:"success"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}

type clearHistoryRequest struct {
	SessionID string `json:"session_id"`
}

// =============================================================================
// WRITES (errors surfaced)
// =============================================================================

// SendMessage posts a question and returns the backend answer.
func (c *Client) SendMessage(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, &ValidationError{Field: "question", Reason: "must not be empty"}
	}
	if req.SessionID == "" {
		return nil, &ValidationError{Field: "session_id", Reason: "must not be empty"}
	}

	var resp ChatResponse
	if err := c.do(ctx, metrics.OpChat, http.MethodPost, "/chat", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ClearHistory asks the backend to forget a session's history.
func (c *Client) ClearHistory(ctx context.Context, sessionID string) (*Ack, error) {
	if sessionID == "" {
		return nil, &ValidationError{Field: "session_id", Reason: "must not be empty"}
	}
	var ack Ack
	if err := c.do(ctx, metrics.OpClearHistory, http.MethodPost, "/clear_history", nil, clearHistoryRequest{SessionID: sessionID}, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// SubmitFeedback rates an assistant reply. The request is validated before any network call.
func (c *Client) SubmitFeedback(ctx context.Context, fb models.Feedback) (*Ack, error) {
	if fb.MessageID <= 0 {
		return nil, &ValidationError{Field: "message_id", Reason: "reply has no backend id"}
	}
	if !models.ValidRating(fb.Rating) {
		return nil, &ValidationError{Field: "rating", Reason: "must be 1 or 5"}
	}
	var ack Ack
	if err := c.do(ctx, metrics.OpFeedback, http.MethodPost, "/feedback", nil, fb, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// =============================================================================
// READS (degrade to empty on error)
// =============================================================================

// TrendingQuestions returns the current aggregate, or an empty list when the backend fails.
func (c *Client) TrendingQuestions(ctx context.Context, limit int, forceUpdate bool, source models.SourceScope) []models.TrendingQuestion {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	q.Set("force_update", strconv.FormatBool(forceUpdate))
	if source != "" {
		q.Set("source", string(source))
	}

	var out []models.TrendingQuestion
	if err := c.do(ctx, metrics.OpTrending, http.MethodGet, "/trending_questions", q, nil, &out); err != nil {
		return []models.TrendingQuestion{}
	}
	if out == nil {
		return []models.TrendingQuestion{}
	}
	return out
}

// ChatbotStats returns global counters, or zero values when the backend fails.
func (c *Client) ChatbotStats(ctx context.Context) models.ChatbotStats {
	var out models.ChatbotStats
	if err := c.do(ctx, metrics.OpChatbotStats, http.MethodGet, "/chatbot_stats", nil, nil, &out); err != nil {
		return models.ChatbotStats{}
	}
	return out
}

// ApplicationStats returns per-application aggregates, or an empty list when the backend fails.
func (c *Client) ApplicationStats(ctx context.Context) []models.ApplicationStat {
	var out []models.ApplicationStat
	if err := c.do(ctx, metrics.OpApplicationStats, http.MethodGet, "/application_stats", nil, nil, &out); err != nil || out == nil {
		return []models.ApplicationStat{}
	}
	return out
}

// HourlyIncidents returns the incident histogram, or an empty list when the backend fails.
func (c *Client) HourlyIncidents(ctx context.Context) []models.HourlyIncidents {
	var out []models.HourlyIncidents
	if err := c.do(ctx, metrics.OpHourlyIncidents, http.MethodGet, "/hourly_incidents", nil, nil, &out); err != nil || out == nil {
		return []models.HourlyIncidents{}
	}
	return out
}
