package handlers

import (
	"net/http"
	"time"

	"github.com/fioncat/csync/internal/telemetry"
	"github.com/fioncat/csync/pkg/api/middleware"
	"github.com/fioncat/csync/pkg/auth"
)

// TokenHandler handles GET /v1/token.
type TokenHandler struct {
	tokens *auth.TokenService
}

// NewTokenHandler creates a token handler.
func NewTokenHandler(tokens *auth.TokenService) *TokenHandler {
	return &TokenHandler{tokens: tokens}
}

// TokenData is the payload of a token response.
type TokenData struct {
	Token string `json:"token"`

	// ExpireTime is the expiry as a unix second.
	ExpireTime int64 `json:"expire_time"`
}

// Get mints a bearer token for the already-authenticated principal.
// Clients call this once with basic credentials and switch to the
// token for everything after.
func (h *TokenHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipalFromContext(r.Context())
	if principal == nil {
		unauthorized(w, "authentication required")
		return
	}

	ctx, span := telemetry.StartUserSpan(r.Context(), telemetry.SpanToken, principal.Name,
		telemetry.IsAdmin(principal.Admin))
	defer span.End()

	token, expireTime, err := h.tokens.Generate(principal.Name, principal.Admin, time.Now())
	if err != nil {
		telemetry.RecordError(ctx, err)
		internalError(w, "failed to generate token", err)
		return
	}

	writeData(w, TokenData{Token: token, ExpireTime: expireTime})
}
