// Package handlers implements the /v1 HTTP handlers: blobs, metadata,
// users, tokens and the health probe.
package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fioncat/csync/internal/logger"
	"github.com/fioncat/csync/pkg/models"
)

// Response is the envelope every JSON endpoint replies with.
//
// Code mirrors the HTTP status. Message carries the short reason for
// failures; Data carries the payload of successful reads.
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// ListData is the data payload of list endpoints.
type ListData struct {
	Items any   `json:"items"`
	Total int64 `json:"total"`
}

// writeJSON writes a JSON response with the given status code.
//
// Encoding is done to a buffer first so an encode failure can still be
// reported before headers are sent.
func writeJSON(w http.ResponseWriter, status int, data any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		logger.Error("Failed to encode JSON response", "error", err)
		http.Error(w, `{"code":500,"message":"failed to encode response"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// writeOK writes an empty 200 envelope.
func writeOK(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, Response{Code: http.StatusOK})
}

// writeData writes a 200 envelope carrying data.
func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Response{Code: http.StatusOK, Data: data})
}

func badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, Response{Code: http.StatusBadRequest, Message: message})
}

func unauthorized(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusUnauthorized, Response{Code: http.StatusUnauthorized, Message: message})
}

func forbidden(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusForbidden, Response{Code: http.StatusForbidden, Message: message})
}

func notFound(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusNotFound, Response{Code: http.StatusNotFound, Message: message})
}

// internalError logs the cause and replies 500 with a short message.
// The cause never reaches the client.
func internalError(w http.ResponseWriter, message string, err error) {
	logger.Error(message, "error", err)
	writeJSON(w, http.StatusInternalServerError, Response{Code: http.StatusInternalServerError, Message: message})
}

// writeError maps a store error onto the envelope; this is the single
// place transaction errors turn into status codes. Not-found and
// duplicate conditions keep their message; anything else is a database
// failure reported with a constant string while the cause goes to the
// log.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrBlobNotFound), errors.Is(err, models.ErrUserNotFound):
		notFound(w, err.Error())
	case errors.Is(err, models.ErrUserExists):
		badRequest(w, err.Error())
	default:
		logger.Error("Database operation failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, Response{Code: http.StatusInternalServerError, Message: "database error"})
	}
}
