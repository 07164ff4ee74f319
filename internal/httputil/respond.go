// Package httputil provides shared HTTP response helpers so every handler and
// middleware emits the same success and failure shapes.
package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/stellarworks/voyager/internal/errors"
)

// errorBody is the single structural failure shape of the API.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteJSON writes data as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteServiceError writes a typed error using its HTTP status. Server faults
// are reduced to a generic message so internals never leak to clients.
func WriteServiceError(w http.ResponseWriter, serviceErr *errors.ServiceError) {
	message := serviceErr.Message
	if !serviceErr.IsClientFault() {
		message = "internal server error"
		if serviceErr.Code == errors.CodeUnavailable {
			message = "service temporarily unavailable"
		}
	}
	WriteJSON(w, serviceErr.HTTPStatus, errorBody{Error: errorDetail{
		Code:    string(serviceErr.Code),
		Message: message,
	}})
}

// WriteError classifies err and writes it. Untyped errors become generic
// internal failures.
func WriteError(w http.ResponseWriter, err error) {
	serviceErr := errors.GetServiceError(err)
	if serviceErr == nil {
		serviceErr = errors.Internal("", err)
	}
	WriteServiceError(w, serviceErr)
}
