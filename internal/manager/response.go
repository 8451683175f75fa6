// Package manager implements the manager's REST and websocket front end
// (C4): admin-authenticated tunnel/CA/metrics routes, and the public mTLS
// and synchronization-admission routes computers talk to directly.
package manager

import (
	"encoding/json"
	"net/http"
)

type envelope struct {
	Data  interface{}    `json:"data,omitempty"`
	Error *errorResponse `json:"error,omitempty"`
}

type errorResponse struct {
	Kind       string `json:"kind"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

func JSON(w http.ResponseWriter, status int, env envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

func Ok(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusOK, envelope{Data: data})
}

func Created(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusCreated, envelope{Data: data})
}

func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func errJSON(w http.ResponseWriter, status int, kind, msg string) {
	JSON(w, status, envelope{Error: &errorResponse{Kind: kind, Message: msg}})
}

func ErrBadRequest(w http.ResponseWriter, msg string) { errJSON(w, http.StatusBadRequest, "invalid_input", msg) }
func ErrUnauthorized(w http.ResponseWriter, msg string) {
	errJSON(w, http.StatusUnauthorized, "unauthenticated", msg)
}
func ErrForbidden(w http.ResponseWriter, msg string) { errJSON(w, http.StatusForbidden, "unauthorized", msg) }
func ErrNotFound(w http.ResponseWriter, msg string)  { errJSON(w, http.StatusNotFound, "not_found", msg) }
func ErrConflict(w http.ResponseWriter, msg string)  { errJSON(w, http.StatusConflict, "conflict", msg) }
func ErrInternal(w http.ResponseWriter, msg string) {
	errJSON(w, http.StatusInternalServerError, "internal", msg)
}
func ErrUpstreamUnavailable(w http.ResponseWriter, msg string) {
	errJSON(w, http.StatusBadGateway, "upstream_unavailable", msg)
}

// ErrSaturated reports a 429 with the retry_after hint spec.md's admission
// controller requires.
func ErrSaturated(w http.ResponseWriter, retryAfterSeconds int) {
	JSON(w, http.StatusTooManyRequests, envelope{Error: &errorResponse{
		Kind:       "saturated",
		Message:    "synchronization admission is currently saturated",
		RetryAfter: retryAfterSeconds,
	}})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
