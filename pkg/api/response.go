package api

import (
	"net/http"

	gojson "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ajitpratap0/polystore/pkg/errors"
	"github.com/ajitpratap0/polystore/pkg/logger"
)

// Envelope is the uniform success response. Data is always serialized, so a
// missing record surfaces as {"success": true, "data": null} rather than a
// 404 — that contract is part of the API.
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
}

// ErrorBody is the structured error response.
type ErrorBody struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := gojson.NewEncoder(w).Encode(body); err != nil {
		logger.Error("failed to encode response", zap.Error(err))
	}
}

// WriteSuccess writes the success envelope.
func WriteSuccess(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: data})
}

// WriteErr maps a structured error to a status code and writes the error
// envelope.
func WriteErr(w http.ResponseWriter, r *http.Request, err error) {
	errType := errors.TypeOf(err)
	writeJSON(w, statusFor(errType), ErrorBody{
		Success:   false,
		Error:     string(errType),
		Message:   err.Error(),
		RequestID: r.Header.Get("X-Request-ID"),
	})
}

func statusFor(errType errors.ErrorType) int {
	switch errType {
	case errors.ErrorTypeValidation, errors.ErrorTypeInvalidIdentifier:
		return http.StatusBadRequest
	case errors.ErrorTypeUnknownTenant:
		return http.StatusNotFound
	case errors.ErrorTypeConnection:
		return http.StatusBadGateway
	case errors.ErrorTypeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
