// Package health provides shared types for health check responses.
package health

// Response mirrors the envelope returned by GET /v1/healthz.
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
	Data    struct {
		Version   string `json:"version"`
		Timestamp int64  `json:"timestamp"`
	} `json:"data"`
}
