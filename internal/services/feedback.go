package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/lapig-ufg/pasto-legal/internal/apperror"
	"github.com/lapig-ufg/pasto-legal/internal/models"
)

// FeedbackService records answers users were unhappy with, so the team can
// review what the assistant should have said.
type FeedbackService struct {
	db *bun.DB
}

// NewFeedbackService creates a new feedback service
func NewFeedbackService(db *bun.DB) *FeedbackService {
	return &FeedbackService{db: db}
}

// EnsureSchema creates the feedbacks table when missing.
func (s *FeedbackService) EnsureSchema(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*models.Feedback)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create feedbacks: %w", err)
	}
	_, err = s.db.NewCreateIndex().
		Model((*models.Feedback)(nil)).
		Index("feedbacks_conversation_id_idx").
		Column("conversation_id").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to index feedbacks: %w", err)
	}
	return nil
}

// ValidateFeedback checks the required fields of a request.
func ValidateFeedback(req models.CreateFeedbackRequest) error {
	switch {
	case strings.TrimSpace(req.ConversationID) == "":
		return apperror.New(apperror.InvalidInput, "conversation_id is required", nil)
	case strings.TrimSpace(req.OriginalQuestion) == "":
		return apperror.New(apperror.InvalidInput, "original_question is required", nil)
	case strings.TrimSpace(req.FrustrationReason) == "":
		return apperror.New(apperror.InvalidInput, "frustration_reason is required", nil)
	case strings.TrimSpace(req.DesiredAnswer) == "":
		return apperror.New(apperror.InvalidInput, "desired_answer is required", nil)
	}
	return nil
}

// CreateFeedback creates a new feedback entry
func (s *FeedbackService) CreateFeedback(ctx context.Context, req models.CreateFeedbackRequest) (*models.Feedback, error) {
	if err := ValidateFeedback(req); err != nil {
		return nil, err
	}
	feedback := &models.Feedback{
		ID:                uuid.New(),
		ConversationID:    strings.TrimSpace(req.ConversationID),
		OriginalQuestion:  strings.TrimSpace(req.OriginalQuestion),
		FrustrationReason: strings.TrimSpace(req.FrustrationReason),
		DesiredAnswer:     strings.TrimSpace(req.DesiredAnswer),
		CreatedAt:         time.Now(),
	}
	if _, err := s.db.NewInsert().Model(feedback).Exec(ctx); err != nil {
		return nil, err
	}
	return feedback, nil
}

// GetFeedbackByConversation retrieves every feedback of one conversation, newest first.
func (s *FeedbackService) GetFeedbackByConversation(ctx context.Context, conversationID string) ([]models.Feedback, error) {
	var feedbacks []models.Feedback
	err := s.db.NewSelect().
		Model(&feedbacks).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Scan(ctx)
	return feedbacks, err
}

// GetAllFeedback retrieves a page of feedback, newest first.
func (s *FeedbackService) GetAllFeedback(ctx context.Context, limit, offset int) ([]models.Feedback, error) {
	var feedbacks []models.Feedback
	err := s.db.NewSelect().
		Model(&feedbacks).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Scan(ctx)
	return feedbacks, err
}
