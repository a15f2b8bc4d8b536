// Package httputil holds the JSON request/response helpers shared by the
// admin API handlers, keeping the error envelope and content types uniform
// across endpoints.
package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/ignite/gads-reporter/internal/pkg/logger"
)

type errorBody struct {
	Error string `json:"error"`
}

// JSON writes data as a JSON response with the given status.
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("httputil: response encode failed", "error", err)
	}
}

// OK writes a 200 with data.
func OK(w http.ResponseWriter, data interface{}) { JSON(w, http.StatusOK, data) }

// Created writes a 201 with data.
func Created(w http.ResponseWriter, data interface{}) { JSON(w, http.StatusCreated, data) }

// NoContent writes an empty 204.
func NoContent(w http.ResponseWriter) { w.WriteHeader(http.StatusNoContent) }

// BadRequest writes a 400 with the given message in the error envelope.
func BadRequest(w http.ResponseWriter, message string) {
	JSON(w, http.StatusBadRequest, errorBody{Error: message})
}

// InternalError logs err and writes a generic 500; the real error never
// reaches the client.
func InternalError(w http.ResponseWriter, err error) {
	logger.Error("httputil: internal error", "error", err)
	JSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error"})
}

// Decode parses the JSON request body into dst, answering a 400 and
// returning false when the body is malformed.
func Decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		BadRequest(w, "invalid JSON: "+err.Error())
		return false
	}
	return true
}
