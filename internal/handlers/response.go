package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"go.uber.org/zap"

	"github.com/lapig-ufg/pasto-legal/internal/apperror"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(data); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

type errorBody struct {
	Kind         apperror.Kind `json:"kind"`
	Message      string        `json:"message"`
	Instructions []string      `json:"instructions"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

// statusFor maps an error kind to the HTTP status seen by the agent layer.
func statusFor(kind apperror.Kind) int {
	switch kind {
	case apperror.InvalidInput:
		return http.StatusBadRequest
	case apperror.NotFound:
		return http.StatusNotFound
	case apperror.NoPendingResolution, apperror.NoActiveProperty:
		return http.StatusConflict
	case apperror.InvalidSelection:
		return http.StatusUnprocessableEntity
	case apperror.UpstreamTimeout:
		return http.StatusGatewayTimeout
	case apperror.UpstreamUnavailable, apperror.UpstreamMalformedResponse, apperror.PartialAggregationFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError reports err as a structured error. Malformed upstream payloads
// are shown as unavailability; internal details never reach the caller.
func writeError(w http.ResponseWriter, logr *zap.Logger, err error, fields ...zap.Field) {
	kind := apperror.KindOf(err)
	status := statusFor(kind)

	body := errorBody{
		Kind:         apperror.UserFacing(kind),
		Message:      "internal error",
		Instructions: apperror.DefaultInstructions(kind),
	}
	var ae *apperror.Error
	if errors.As(err, &ae) {
		switch ae.Kind {
		case apperror.Internal:
		case apperror.UpstreamMalformedResponse:
			body.Message = "external service unavailable"
		default:
			body.Message = ae.Message
		}
		if len(ae.Instructions) > 0 {
			body.Instructions = ae.Instructions
		}
	}

	fields = append(fields, zap.String("kind", string(kind)), zap.Int("status", status), zap.Error(err))
	if status >= http.StatusInternalServerError {
		logr.Error("request failed", fields...)
	} else {
		logr.Info("request refused", fields...)
	}
	writeJSON(w, status, errorResponse{Error: body})
}

func writeBadRequest(w http.ResponseWriter, logr *zap.Logger, msg string, fields ...zap.Field) {
	writeError(w, logr, apperror.New(apperror.InvalidInput, msg, nil), fields...)
}
