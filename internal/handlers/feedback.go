package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lapig-ufg/pasto-legal/internal/apperror"
	"github.com/lapig-ufg/pasto-legal/internal/models"
	"github.com/lapig-ufg/pasto-legal/internal/services"
	"github.com/lapig-ufg/pasto-legal/internal/utils"
)

// FeedbackHandler handles HTTP requests for feedback
type FeedbackHandler struct {
	service *services.FeedbackService
	logr    *zap.Logger
}

// NewFeedbackHandler creates a new feedback handler
func NewFeedbackHandler(svc *services.FeedbackService, logr *zap.Logger) *FeedbackHandler {
	return &FeedbackHandler{
		service: svc,
		logr:    logr,
	}
}

// decodeFeedback reads and validates a feedback request.
func decodeFeedback(r *http.Request) (models.CreateFeedbackRequest, string) {
	var req models.CreateFeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, "Invalid request body"
	}
	var ae *apperror.Error
	if err := services.ValidateFeedback(req); errors.As(err, &ae) {
		return req, ae.Message
	}
	return req, ""
}

// CreateFeedback handles POST /feedback
func (h *FeedbackHandler) CreateFeedback(w http.ResponseWriter, r *http.Request) {
	req, problem := decodeFeedback(r)
	if problem != "" {
		h.logr.Warn("validation failed", zap.String("reason", problem))
		writeJSON(w, http.StatusBadRequest, models.FeedbackResponse{
			Success: false,
			Message: problem,
		})
		return
	}

	feedback, err := h.service.CreateFeedback(r.Context(), req)
	if err != nil {
		h.logr.Error("failed to create feedback", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, models.FeedbackResponse{
			Success: false,
			Message: "Failed to submit feedback",
		})
		return
	}

	h.logr.Info("feedback submitted successfully",
		zap.String("conversation_id", feedback.ConversationID),
		zap.String("feedback_id", feedback.ID.String()))

	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": "Feedback submitted successfully",
		"data":    feedback,
	})
}

// GetFeedbackByConversation handles GET /feedback/conversation/{id}
func (h *FeedbackHandler) GetFeedbackByConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if strings.TrimSpace(id) == "" {
		h.logr.Warn("validation failed: conversation id is required")
		writeJSON(w, http.StatusBadRequest, models.FeedbackResponse{
			Success: false,
			Message: "Conversation id is required",
		})
		return
	}

	feedbacks, err := h.service.GetFeedbackByConversation(r.Context(), id)
	if err != nil {
		h.logr.Error("failed to fetch feedback by conversation", zap.Error(err), zap.String("conversation_id", id))
		writeJSON(w, http.StatusInternalServerError, models.FeedbackResponse{
			Success: false,
			Message: "Failed to fetch feedback",
		})
		return
	}

	h.logr.Info("feedback fetched successfully by conversation",
		zap.String("conversation_id", id),
		zap.Int("count", len(feedbacks)))

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    feedbacks,
		"count":   len(feedbacks),
	})
}

// GetAllFeedback handles GET /feedback
func (h *FeedbackHandler) GetAllFeedback(w http.ResponseWriter, r *http.Request) {
	limit, offset := utils.ParsePagination(r.URL.Query(), 50, 500)

	feedbacks, err := h.service.GetAllFeedback(r.Context(), limit, offset)
	if err != nil {
		h.logr.Error("failed to fetch all feedback", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, models.FeedbackResponse{
			Success: false,
			Message: "Failed to fetch feedback",
		})
		return
	}

	h.logr.Info("all feedback fetched successfully",
		zap.Int("count", len(feedbacks)),
		zap.Int("limit", limit),
		zap.Int("offset", offset))

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    feedbacks,
		"count":   len(feedbacks),
		"limit":   limit,
		"offset":  offset,
	})
}
