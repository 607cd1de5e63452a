package middleware

import (
	"encoding/json"
	"net/http"
)

// envelope mirrors the response shape of the handlers package. The
// middleware writes its own rejections to avoid an import cycle with
// the handlers it wraps.
type envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(envelope{Code: code, Message: message})
}
