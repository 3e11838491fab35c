package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/graylogic-tuya/internal/bridges/tuya"
	"github.com/nerrad567/graylogic-tuya/internal/device"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeUnauthorized   = "unauthorised"
	ErrCodeConflict       = "conflict"
	ErrCodeInternal       = "internal_error"
	ErrCodeValidation     = "validation_error"
	ErrCodeNotLinked      = "not_linked"
	ErrCodeUpstream       = "upstream_error"
	ErrCodeUpstreamDenied = "upstream_rejected"
	ErrCodeUnavailable    = "unavailable"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writePairingError maps an error from a pairing session to a response.
// Remote failures surface as 502 with the remote message; anything
// unrecognised is a 500 with a generic message.
func writePairingError(w http.ResponseWriter, err error) {
	var rejected *tuya.RemoteRejectedError
	switch {
	case errors.Is(err, tuya.ErrInvalidUserCode):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, tuya.ErrNotLinked):
		writeError(w, http.StatusConflict, ErrCodeNotLinked, "no Tuya account is linked to this session")
	case errors.Is(err, tuya.ErrSessionClosed):
		writeNotFound(w, "pairing session not found")
	case errors.As(err, &rejected):
		writeError(w, http.StatusBadGateway, ErrCodeUpstreamDenied, rejected.Error())
	case errors.Is(err, tuya.ErrTransport),
		errors.Is(err, tuya.ErrMalformedResponse),
		errors.Is(err, tuya.ErrAccountEnumeration),
		errors.Is(err, tuya.ErrDeviceEnumeration):
		writeError(w, http.StatusBadGateway, ErrCodeUpstream, err.Error())
	case errors.Is(err, device.ErrDeviceNotFound):
		writeNotFound(w, "device not found")
	case errors.Is(err, device.ErrDeviceExists):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, device.ErrInvalidDevice), errors.Is(err, device.ErrInvalidName):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	default:
		writeInternalError(w, "internal server error")
	}
}
