// Package models defines the data structures shared by the oskour client, its views and the reference backend.
package models

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one entry of a conversation history.
// MessageID is assigned by the backend; messages without one cannot receive feedback.
type ChatMessage struct {
	Role             Role   `json:"role"`
	Content          string `json:"content"`
	MessageID        *int   `json:"message_id,omitempty"`
	IsLoading        bool   `json:"is_loading,omitempty"`
	IsLastInSequence bool   `json:"is_last_in_sequence,omitempty"`
}

// CanReceiveFeedback reports whether the message is a completed assistant reply
// the backend can attach feedback to.
func (m ChatMessage) CanReceiveFeedback() bool {
	return m.Role == RoleAssistant && !m.IsLoading && m.MessageID != nil
}

// SourceScope selects whose questions are counted in trending aggregates.
type SourceScope string

const (
	SourceUser  SourceScope = "user"
	SourceAdmin SourceScope = "admin"
	SourceAll   SourceScope = "all"
)

// ParseSourceScope validates a scope string. Empty input means SourceUser.
func ParseSourceScope(s string) (SourceScope, bool) {
	switch SourceScope(s) {
	case "":
		return SourceUser, true
	case SourceUser, SourceAdmin, SourceAll:
		return SourceScope(s), true
	default:
		return "", false
	}
}

// TrendingQuestion is one aggregate entry returned by the backend.
type TrendingQuestion struct {
	Question    string      `json:"question"`
	Count       int         `json:"count"`
	Source      SourceScope `json:"source,omitempty"`
	Application *string     `json:"application,omitempty"`
}

// Feedback rates an assistant reply. Rating is 1 (negative) or 5 (positive).
type Feedback struct {
	MessageID int     `json:"message_id"`
	Rating    int     `json:"rating"`
	Comment   *string `json:"comment,omitempty"`
}

// Feedback ratings accepted by the backend.
const (
	RatingNegative = 1
	RatingPositive = 5
)

// ValidRating reports whether r is one of the accepted ratings.
func ValidRating(r int) bool {
	return r == RatingNegative || r == RatingPositive
}
