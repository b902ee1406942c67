package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lapig-ufg/pasto-legal/internal/models"
	"github.com/lapig-ufg/pasto-legal/internal/resolution"
	"github.com/lapig-ufg/pasto-legal/internal/services"
	"github.com/lapig-ufg/pasto-legal/internal/utils"
)

// ConversationHandler exposes the property resolution operations to the
// agent layer, one conversation per {id}.
type ConversationHandler struct {
	service *services.ConversationService
	preview resolution.PreviewRenderer
	logr    *zap.Logger
}

// NewConversationHandler creates a conversation handler. preview may be nil.
func NewConversationHandler(svc *services.ConversationService, preview resolution.PreviewRenderer, logr *zap.Logger) *ConversationHandler {
	return &ConversationHandler{service: svc, preview: preview, logr: logr}
}

type outcomeResponse struct {
	Status       resolution.Status       `json:"status"`
	Summary      string                  `json:"summary"`
	Instructions []string                `json:"instructions"`
	Candidates   []resolution.Candidate  `json:"candidates,omitempty"`
	Selected     *models.PropertyFeature `json:"selected,omitempty"`
	PreviewPNG   string                  `json:"preview_png,omitempty"`
}

func newOutcomeResponse(out *resolution.Outcome) outcomeResponse {
	resp := outcomeResponse{
		Status:       out.Status,
		Summary:      out.Summary,
		Instructions: out.Instructions,
		Candidates:   out.Candidates,
		Selected:     out.Selected,
	}
	if len(out.Preview) > 0 {
		resp.PreviewPNG = base64.StdEncoding.EncodeToString(out.Preview)
	}
	return resp
}

type stateResponse struct {
	ConversationID string                  `json:"conversation_id"`
	Mode           resolution.Mode         `json:"mode"`
	Candidates     []resolution.Candidate  `json:"candidates"`
	Selected       *models.PropertyFeature `json:"selected"`
}

// GetState handles GET /conversations/{id}/state
func (h *ConversationHandler) GetState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	st, err := h.service.State(r.Context(), id)
	if err != nil {
		writeError(w, h.logr, err, zap.String("conversation_id", id))
		return
	}

	resp := stateResponse{ConversationID: id, Mode: st.Mode(), Candidates: []resolution.Candidate{}}
	if c, ok := st.Candidate(); ok {
		resp.Candidates = resolution.NewCandidates([]models.PropertyFeature{c})
	} else if list := st.CandidateList(); len(list) > 0 {
		resp.Candidates = resolution.NewCandidates(list)
	}
	if sel, ok := st.Selected(); ok {
		resp.Selected = &sel
	}
	writeJSON(w, http.StatusOK, resp)
}

// LookupRequest accepts a coordinate pair, a WhatsApp style "lat,lng"
// location or a CAR code.
type LookupRequest struct {
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Location  string   `json:"location,omitempty"`
	Code      string   `json:"code,omitempty"`
}

func (req LookupRequest) input() (resolution.LookupInput, error) {
	in := resolution.LookupInput{Code: req.Code}
	switch {
	case req.Latitude != nil || req.Longitude != nil:
		if req.Latitude == nil || req.Longitude == nil {
			return in, errMissingPair
		}
		in.Coordinate = &models.Coordinate{Latitude: *req.Latitude, Longitude: *req.Longitude}
	case strings.TrimSpace(req.Location) != "":
		c, err := utils.ParseLatLng(req.Location)
		if err != nil {
			return in, err
		}
		in.Coordinate = &c
	}
	return in, nil
}

var errMissingPair = errors.New("latitude and longitude must be sent together")

// Lookup handles POST /conversations/{id}/lookup
func (h *ConversationHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req LookupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logr.Error("failed to decode request body", zap.Error(err))
		writeBadRequest(w, h.logr, "invalid request body", zap.String("conversation_id", id))
		return
	}
	in, err := req.input()
	if err != nil {
		writeBadRequest(w, h.logr, err.Error(), zap.String("conversation_id", id))
		return
	}

	out, err := h.service.Lookup(r.Context(), id, in)
	if err != nil {
		writeError(w, h.logr, err, zap.String("conversation_id", id))
		return
	}
	h.logr.Info("lookup completed",
		zap.String("conversation_id", id),
		zap.String("status", string(out.Status)),
		zap.Int("candidates", len(out.Candidates)))
	writeJSON(w, http.StatusOK, newOutcomeResponse(out))
}

// Confirm handles POST /conversations/{id}/confirm
func (h *ConversationHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.respond(w, id)(h.service.Confirm(r.Context(), id))
}

type SelectRequest struct {
	Index *int `json:"index"`
}

// Select handles POST /conversations/{id}/select
func (h *ConversationHandler) Select(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req SelectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Index == nil {
		writeBadRequest(w, h.logr, "index is required", zap.String("conversation_id", id))
		return
	}
	h.respond(w, id)(h.service.Select(r.Context(), id, *req.Index))
}

// Reject handles POST /conversations/{id}/reject
func (h *ConversationHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.respond(w, id)(h.service.Reject(r.Context(), id))
}

// ClearProperty handles DELETE /conversations/{id}/property
func (h *ConversationHandler) ClearProperty(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.respond(w, id)(h.service.ClearSelected(r.Context(), id))
}

// GetPropertyPreview handles GET /conversations/{id}/property/preview
func (h *ConversationHandler) GetPropertyPreview(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if h.preview == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: errorBody{Kind: "PREVIEW_DISABLED", Message: "previews are disabled"}})
		return
	}

	property, err := h.service.ActiveProperty(r.Context(), id)
	if err != nil {
		writeError(w, h.logr, err, zap.String("conversation_id", id))
		return
	}
	png, err := h.preview.Render([]models.PropertyFeature{property})
	if err != nil {
		writeError(w, h.logr, err, zap.String("conversation_id", id), zap.String("car", property.Code))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(png); err != nil {
		h.logr.Warn("failed to write preview", zap.Error(err))
	}
}

func (h *ConversationHandler) respond(w http.ResponseWriter, id string) func(*resolution.Outcome, error) {
	return func(out *resolution.Outcome, err error) {
		if err != nil {
			writeError(w, h.logr, err, zap.String("conversation_id", id))
			return
		}
		writeJSON(w, http.StatusOK, newOutcomeResponse(out))
	}
}
