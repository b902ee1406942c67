package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Feedback is a correction recorded when a user is unhappy with an answer.
type Feedback struct {
	bun.BaseModel `bun:"table:feedbacks,alias:fbk"`

	ID                uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	ConversationID    string    `bun:"conversation_id,notnull" json:"conversation_id"`
	OriginalQuestion  string    `bun:"original_question,notnull" json:"original_question"`
	FrustrationReason string    `bun:"frustration_reason,notnull" json:"frustration_reason"`
	DesiredAnswer     string    `bun:"desired_answer,notnull" json:"desired_answer"`
	CreatedAt         time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// CreateFeedbackRequest represents the request body
type CreateFeedbackRequest struct {
	ConversationID    string `json:"conversation_id"`
	OriginalQuestion  string `json:"original_question"`
	FrustrationReason string `json:"frustration_reason"`
	DesiredAnswer     string `json:"desired_answer"`
}

// FeedbackResponse represents the API response
type FeedbackResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
