package dto

import "net/http"

// Error codes used across the HTTP API
const (
	ErrCodeBadRequest     = "ERR_BAD_REQUEST"
	ErrCodeValidation     = "ERR_VALIDATION"
	ErrCodeNotFound       = "ERR_NOT_FOUND"
	ErrCodeConflict       = "ERR_CONFLICT"
	ErrCodeConcurrency    = "ERR_CONCURRENCY_CONFLICT"
	ErrCodeInternal       = "ERR_INTERNAL"
	ErrCodeUnavailable    = "ERR_UNAVAILABLE"
	ErrCodeInvalidPayload = "ERR_INVALID_PAYLOAD"
)

var errStatusMap = map[string]int{
	ErrCodeBadRequest:     http.StatusBadRequest,
	ErrCodeValidation:     http.StatusUnprocessableEntity,
	ErrCodeNotFound:       http.StatusNotFound,
	ErrCodeConflict:       http.StatusConflict,
	ErrCodeConcurrency:    http.StatusConflict,
	ErrCodeInternal:       http.StatusInternalServerError,
	ErrCodeUnavailable:    http.StatusServiceUnavailable,
	ErrCodeInvalidPayload: http.StatusBadRequest,
}

// GetHTTPStatus maps an error code to its HTTP status, defaulting to 500
func GetHTTPStatus(code string) int {
	if status, ok := errStatusMap[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
