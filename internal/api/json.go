// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package api

import (
	"encoding/json"
	"io"
	"net/http"

	"grimm.is/tcbridge/internal/errors"
	"grimm.is/tcbridge/internal/logging"
)

// Common error messages.
const (
	ErrInvalidBody = "Invalid request body"
	ErrNotFound    = "Not found"
)

// Response is the {success, message} document returned by every mutating
// endpoint.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ErrorBody is returned by read endpoints that fail.
type ErrorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// WriteJSON writes v as JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.APILog("error", "failed to encode response: %v", err)
	}
}

// WriteError writes an ErrorBody with the given status.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorBody{Error: msg})
}

// WriteKindError maps err's Kind to an HTTP status for read endpoints:
// InvalidSpec is 400, NotFound is 404, anything else is 500.
func WriteKindError(w http.ResponseWriter, err error) {
	kind := errors.GetKind(err)
	status := http.StatusInternalServerError
	switch kind {
	case errors.KindInvalidSpec:
		status = http.StatusBadRequest
	case errors.KindNotFound:
		status = http.StatusNotFound
	}
	WriteJSON(w, status, ErrorBody{Error: err.Error(), Kind: kind.String()})
}

// Success writes a successful Response.
func Success(w http.ResponseWriter, msg string) {
	WriteJSON(w, http.StatusOK, Response{Success: true, Message: msg})
}

// Failure writes a failed Response. Mutations report failure in the body
// with status 200 so clients only have one shape to handle.
func Failure(w http.ResponseWriter, msg string) {
	WriteJSON(w, http.StatusOK, Response{Success: false, Message: msg})
}

// BindJSON decodes the request body into dest. Unknown fields are
// ignored and an empty body leaves dest untouched. On failure a 400 has
// already been written.
func BindJSON[T any](w http.ResponseWriter, r *http.Request, dest *T) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil && err != io.EOF {
		WriteJSON(w, http.StatusBadRequest, Response{Message: ErrInvalidBody})
		return false
	}
	return true
}
