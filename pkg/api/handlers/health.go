package handlers

import (
	"net/http"
	"time"
)

// HealthHandler handles GET /v1/healthz.
//
// The probe is unauthenticated: it answers as soon as the HTTP server
// is up and reveals nothing beyond the build version.
type HealthHandler struct {
	version string
}

// NewHealthHandler creates a health handler reporting the given build
// version.
func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{version: version}
}

// HealthData is the payload of a health response.
type HealthData struct {
	Version string `json:"version"`

	// Timestamp is the server time as a unix second.
	Timestamp int64 `json:"timestamp"`
}

// Healthz reports the build version and the current server time.
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeData(w, HealthData{Version: h.version, Timestamp: time.Now().Unix()})
}
