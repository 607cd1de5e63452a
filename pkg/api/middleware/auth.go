// Package middleware provides HTTP middleware for the csync API.
package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fioncat/csync/internal/logger"
	"github.com/fioncat/csync/pkg/auth"
	"github.com/fioncat/csync/pkg/models"
	"github.com/fioncat/csync/pkg/secret"
	"github.com/fioncat/csync/pkg/store"
)

// Context key type for storing the authenticated principal
type contextKey string

const principalContextKey contextKey = "principal"

// GetPrincipalFromContext retrieves the authenticated principal from the
// request context. Returns nil if no principal is present.
//
// This function should only be called within handler code that runs
// after the Auth middleware has processed the request.
func GetPrincipalFromContext(ctx context.Context) *auth.Principal {
	principal, ok := ctx.Value(principalContextKey).(*auth.Principal)
	if !ok {
		return nil
	}
	return principal
}

// WithPrincipal returns a context carrying the given principal. Handlers
// are normally fed by the Auth middleware; tests use this directly.
func WithPrincipal(ctx context.Context, principal *auth.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, principal)
}

// Auth validates the Authorization header and stores the resulting
// principal in the request context.
//
// Two schemes are accepted:
//   - basic: the credential is "name:base64(password)". The admin
//     identity is checked against adminPassword and only from loopback
//     peers; regular users are checked against their stored salted hash.
//   - bearer: the credential is an RS256 token minted by tokens. A
//     token naming admin is rejected from remote peers.
//
// The peer address is taken from the socket; forwarding headers are
// deliberately not trusted, so admin cannot be smuggled through a
// proxy. All credential failures yield 401 with a short reason.
func Auth(s *store.Store, tokens *auth.TokenService, adminPassword string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fields := strings.Fields(r.Header.Get("Authorization"))
			if len(fields) != 2 {
				writeError(w, http.StatusUnauthorized, "missing or malformed authorization header")
				return
			}
			scheme, credential := fields[0], fields[1]
			isRemote := !auth.IsLoopbackAddr(r.RemoteAddr)

			var principal *auth.Principal
			switch strings.ToLower(scheme) {
			case "basic":
				name, password, err := parseBasicCredential(credential)
				if err != nil {
					writeError(w, http.StatusUnauthorized, err.Error())
					return
				}
				principal, err = verifyPassword(r.Context(), s, adminPassword, isRemote, name, password)
				if err != nil {
					var dbErr databaseError
					if errors.As(err, &dbErr) {
						logger.Error("Auth user lookup failed", "user", name, "error", dbErr.cause)
						writeError(w, http.StatusInternalServerError, "database error")
						return
					}
					writeError(w, http.StatusUnauthorized, err.Error())
					return
				}

			case "bearer":
				p, err := tokens.Validate(credential, time.Now())
				if err != nil {
					writeError(w, http.StatusUnauthorized, err.Error())
					return
				}
				if p.Name == models.AdminUserName && isRemote {
					writeError(w, http.StatusUnauthorized, "admin is not allowed from remote hosts")
					return
				}
				principal = p

			default:
				writeError(w, http.StatusUnauthorized, fmt.Sprintf("unsupported authorization scheme %q", scheme))
				return
			}

			ctx := WithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// parseBasicCredential splits a basic credential into name and plaintext
// password. The scheme keeps the name readable and encodes only the
// password: "name:base64(password)".
func parseBasicCredential(credential string) (string, string, error) {
	name, encoded, ok := strings.Cut(credential, ":")
	if !ok || name == "" {
		return "", "", errors.New("malformed basic credential")
	}
	password, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", "", errors.New("malformed basic credential")
	}
	return name, string(password), nil
}

// verifyPassword resolves a basic credential to a principal.
//
// The admin identity has no user row: its password comes from
// configuration, empty disables it, and loopback is required. Everyone
// else is matched against the stored salted hash.
func verifyPassword(ctx context.Context, s *store.Store, adminPassword string, isRemote bool, name, password string) (*auth.Principal, error) {
	if name == models.AdminUserName {
		if adminPassword == "" {
			return nil, errors.New("admin access is disabled")
		}
		if isRemote {
			return nil, errors.New("admin is not allowed from remote hosts")
		}
		if subtle.ConstantTimeCompare([]byte(password), []byte(adminPassword)) != 1 {
			return nil, errors.New("invalid user or password")
		}
		return &auth.Principal{Name: models.AdminUserName, Admin: true}, nil
	}

	var user *models.User
	err := s.Transaction(ctx, func(tx *store.Tx) error {
		var err error
		user, err = tx.GetUserPassword(name)
		return err
	})
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return nil, errors.New("invalid user or password")
		}
		return nil, databaseError{cause: err}
	}

	hash := secret.PasswordHash(password, user.Salt)
	if subtle.ConstantTimeCompare([]byte(hash), []byte(user.Hash)) != 1 {
		return nil, errors.New("invalid user or password")
	}
	return &auth.Principal{Name: user.Name, Admin: user.Admin}, nil
}

// databaseError marks a store failure during auth so it surfaces as 500
// instead of 401.
type databaseError struct {
	cause error
}

func (e databaseError) Error() string {
	return e.cause.Error()
}
