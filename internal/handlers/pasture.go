package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lapig-ufg/pasto-legal/internal/apperror"
	"github.com/lapig-ufg/pasto-legal/internal/models"
	"github.com/lapig-ufg/pasto-legal/internal/pasture"
	"github.com/lapig-ufg/pasto-legal/internal/services"
)

const (
	ViewAbsolute = "absolute"
	ViewPercent  = "percent"
	unitPercent  = "%"
)

type PastureHandler struct {
	service *services.ConversationService
	logr    *zap.Logger
}

func NewPastureHandler(svc *services.ConversationService, logr *zap.Logger) *PastureHandler {
	return &PastureHandler{service: svc, logr: logr}
}

type propertyInfo struct {
	Code         string  `json:"code"`
	AreaHectares float64 `json:"area_ha"`
	Municipality string  `json:"municipality"`
}

type pastureResponse struct {
	Property  propertyInfo            `json:"property"`
	View      string                  `json:"view"`
	Biomass   pasture.Quantity        `json:"biomass"`
	Age       []pasture.AgeArea       `json:"age"`
	Vigor     []pasture.VigorArea     `json:"vigor"`
	LandCover []pasture.LandCoverArea `json:"land_cover"`
}

// GetPastureStats handles GET /conversations/{id}/pasture?view=absolute|percent
func (h *PastureHandler) GetPastureStats(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	view := r.URL.Query().Get("view")
	if view == "" {
		view = ViewAbsolute
	}
	if view != ViewAbsolute && view != ViewPercent {
		writeBadRequest(w, h.logr, "view must be absolute or percent", zap.String("conversation_id", id))
		return
	}

	start := time.Now()
	res, property, err := h.service.PastureStats(r.Context(), id)
	if err != nil {
		writeError(w, h.logr, err, zap.String("conversation_id", id))
		return
	}

	resp, err := presentPasture(res, property, view)
	if err != nil {
		writeError(w, h.logr, err, zap.String("conversation_id", id), zap.String("car", property.Code))
		return
	}

	h.logr.Info("pasture statistics served",
		zap.String("conversation_id", id),
		zap.String("car", property.Code),
		zap.String("view", view),
		zap.Duration("took", time.Since(start)))
	writeJSON(w, http.StatusOK, resp)
}

// presentPasture rounds to two decimals and, for the percent view, divides
// every area by the registered property area.
func presentPasture(res *pasture.PastureStatsResult, property models.PropertyFeature, view string) (*pastureResponse, error) {
	conv := func(q pasture.Quantity) pasture.Quantity {
		return pasture.Quantity{Value: pasture.Round2(q.Value), Unit: q.Unit}
	}
	if view == ViewPercent {
		if property.AreaHectares <= 0 {
			return nil, apperror.New(apperror.InvalidInput, "property has no registered area for a percent view", nil)
		}
		total := property.AreaHectares
		conv = func(q pasture.Quantity) pasture.Quantity {
			return pasture.Quantity{Value: pasture.Round2(q.Value / total * 100), Unit: unitPercent}
		}
	}

	resp := &pastureResponse{
		Property: propertyInfo{
			Code:         property.Code,
			AreaHectares: pasture.Round2(property.AreaHectares),
			Municipality: property.Municipality,
		},
		View:      view,
		Biomass:   pasture.Quantity{Value: pasture.Round2(res.Biomass.Value), Unit: res.Biomass.Unit},
		Age:       make([]pasture.AgeArea, len(res.Age)),
		Vigor:     make([]pasture.VigorArea, len(res.Vigor)),
		LandCover: make([]pasture.LandCoverArea, len(res.LandCover)),
	}
	for i, a := range res.Age {
		resp.Age[i] = pasture.AgeArea{Bucket: a.Bucket, Area: conv(a.Area)}
	}
	for i, v := range res.Vigor {
		resp.Vigor[i] = pasture.VigorArea{Level: v.Level, Area: conv(v.Area)}
	}
	for i, lc := range res.LandCover {
		resp.LandCover[i] = pasture.LandCoverArea{ClassID: lc.ClassID, ClassName: lc.ClassName, Area: conv(lc.Area)}
	}
	return resp, nil
}
