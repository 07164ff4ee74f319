// Package errors defines the typed error taxonomy shared by the engine and
// the HTTP layer. Every failure the service reports is a ServiceError with a
// stable code and an HTTP status class; callers classify by code, never by
// message text.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies a failure category.
type ErrorCode string

const (
	// Client faults: retrying the same request cannot succeed.
	CodeUserNotFound          ErrorCode = "user_not_found"
	CodeMissionNotFound       ErrorCode = "mission_not_found"
	CodeAlreadyActive         ErrorCode = "mission_already_active"
	CodeNoActiveMission       ErrorCode = "no_active_mission"
	CodeMissionMismatch       ErrorCode = "mission_mismatch"
	CodeMissingParameters     ErrorCode = "missing_parameters"
	CodeInsufficientCrew      ErrorCode = "insufficient_crew"
	CodeIncompleteShipData    ErrorCode = "incomplete_ship_data"
	CodeIncompleteMissionData ErrorCode = "incomplete_mission_data"
	CodeInvalidFormat         ErrorCode = "invalid_format"

	// Auth faults, handled at the request boundary.
	CodeUnauthorized ErrorCode = "unauthorized"
	CodeTokenExpired ErrorCode = "token_expired"
	CodeInvalidToken ErrorCode = "invalid_token"
	CodeForbidden    ErrorCode = "forbidden"

	// Rate limiting.
	CodeRateLimitExceeded ErrorCode = "rate_limit_exceeded"

	// Server faults.
	CodeInternal    ErrorCode = "internal_error"
	CodeUnavailable ErrorCode = "service_unavailable"
)

// ServiceError carries a failure code, a user-facing message and the HTTP
// status it maps to. Err holds the underlying cause, if any; it is logged but
// never serialized into responses.
type ServiceError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Details    map[string]interface{}
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// Is matches two ServiceErrors by code, so errors.Is(err, AlreadyActive(""))
// style checks work without comparing messages.
func (e *ServiceError) Is(target error) bool {
	var se *ServiceError
	if !errors.As(target, &se) {
		return false
	}
	return e.Code == se.Code
}

// WithDetails attaches a key/value pair for diagnostics and returns the error.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsClientFault reports whether the error maps to a 4xx status.
func (e *ServiceError) IsClientFault() bool {
	return e.HTTPStatus >= 400 && e.HTTPStatus < 500
}

func newError(code ErrorCode, message string, status int, err error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// UserNotFound indicates the profile for the given user does not exist.
func UserNotFound(userID string) *ServiceError {
	return newError(CodeUserNotFound, fmt.Sprintf("user %s not found", userID), http.StatusNotFound, nil)
}

// MissionNotFound indicates the catalog has no mission with the given id.
func MissionNotFound(missionID string) *ServiceError {
	return newError(CodeMissionNotFound, fmt.Sprintf("mission %s not found", missionID), http.StatusNotFound, nil)
}

// AlreadyActive indicates the user's mission slot is occupied.
func AlreadyActive(missionName string) *ServiceError {
	msg := "a mission is already in progress"
	if missionName != "" {
		msg = fmt.Sprintf("mission %q is already in progress", missionName)
	}
	return newError(CodeAlreadyActive, msg, http.StatusConflict, nil)
}

// NoActiveMission indicates the user has no mission to cancel or complete.
func NoActiveMission() *ServiceError {
	return newError(CodeNoActiveMission, "no active mission", http.StatusConflict, nil)
}

// MissionMismatch indicates the supplied mission id does not match the active
// mission held by the server.
func MissionMismatch(supplied, stored string) *ServiceError {
	return newError(CodeMissionMismatch, "supplied mission does not match the active mission", http.StatusConflict, nil).
		WithDetails("supplied", supplied).
		WithDetails("stored", stored)
}

// MissingParameters indicates a required request field was absent or blank.
func MissingParameters(fields ...string) *ServiceError {
	e := newError(CodeMissingParameters, "required parameters are missing", http.StatusBadRequest, nil)
	if len(fields) > 0 {
		e = e.WithDetails("fields", fields)
	}
	return e
}

// InsufficientCrew indicates the ship's crew cannot satisfy the mission.
func InsufficientCrew(have, need int) *ServiceError {
	return newError(CodeInsufficientCrew,
		fmt.Sprintf("mission requires %d crew, ship has %d", need, have),
		http.StatusUnprocessableEntity, nil)
}

// IncompleteShipData indicates the stored ship record lacks crew information.
func IncompleteShipData() *ServiceError {
	return newError(CodeIncompleteShipData, "ship record is missing crew data", http.StatusUnprocessableEntity, nil)
}

// IncompleteMissionData indicates the mission definition lacks a crew
// requirement.
func IncompleteMissionData(missionID string) *ServiceError {
	return newError(CodeIncompleteMissionData, "mission definition is missing crew requirement", http.StatusUnprocessableEntity, nil).
		WithDetails("mission_id", missionID)
}

// InvalidFormat indicates a field failed syntactic validation.
func InvalidFormat(field, expected string) *ServiceError {
	return newError(CodeInvalidFormat, fmt.Sprintf("%s: %s", field, expected), http.StatusBadRequest, nil)
}

// Unauthorized indicates a missing or malformed credential.
func Unauthorized(message string) *ServiceError {
	if message == "" {
		message = "authentication required"
	}
	return newError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

// TokenExpired indicates the bearer token's lifetime has elapsed.
func TokenExpired() *ServiceError {
	return newError(CodeTokenExpired, "token has expired", http.StatusUnauthorized, nil)
}

// InvalidToken indicates the bearer token failed verification.
func InvalidToken(err error) *ServiceError {
	return newError(CodeInvalidToken, "invalid token", http.StatusUnauthorized, err)
}

// Forbidden indicates an authenticated caller lacks access to the resource.
func Forbidden(message string) *ServiceError {
	if message == "" {
		message = "access denied"
	}
	return newError(CodeForbidden, message, http.StatusForbidden, nil)
}

// RateLimitExceeded indicates the caller exceeded the configured request rate.
func RateLimitExceeded(limit int, window string) *ServiceError {
	return newError(CodeRateLimitExceeded, "rate limit exceeded", http.StatusTooManyRequests, nil).
		WithDetails("limit", limit).
		WithDetails("window", window)
}

// Internal wraps an unexpected failure. The message shown to clients stays
// generic; the cause is preserved for the operational log.
func Internal(message string, err error) *ServiceError {
	if message == "" {
		message = "internal error"
	}
	return newError(CodeInternal, message, http.StatusInternalServerError, err)
}

// Unavailable indicates storage was unreachable or a transaction could not be
// committed after retries.
func Unavailable(message string, err error) *ServiceError {
	if message == "" {
		message = "service temporarily unavailable"
	}
	return newError(CodeUnavailable, message, http.StatusServiceUnavailable, err)
}

// GetServiceError extracts a *ServiceError from err's chain, or nil when the
// error is not typed.
func GetServiceError(err error) *ServiceError {
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	return nil
}
