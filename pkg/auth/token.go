// Package auth issues and validates the bearer tokens that let clients
// skip per-request password hashing.
//
// Tokens are RS256 JWTs signed with a server-local RSA key. A token
// carries exactly six claims: issuer, subject (the user name), audience
// ("admin" or "normal"), issued-at, not-before and expiry. Validation
// rejects tokens missing any of them, so tokens minted by older or
// foreign issuers never pass.
package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenIssuer is the issuer claim stamped into every token.
const TokenIssuer = "fioncat.io/csync/jwt-tokenizer"

const (
	// AudienceAdmin marks tokens minted for the admin identity.
	AudienceAdmin = "admin"

	// AudienceNormal marks tokens minted for regular users.
	AudienceNormal = "normal"
)

// Common errors for token operations.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Principal is the identity a validated credential resolves to.
type Principal struct {
	// Name is the authenticated user name.
	Name string

	// Admin is true only for the reserved admin identity.
	Admin bool
}

// TokenService mints and validates bearer tokens.
type TokenService struct {
	key *rsa.PrivateKey
	ttl time.Duration
}

// NewTokenService creates a token service signing with key. Tokens
// expire ttl after issuance.
func NewTokenService(key *rsa.PrivateKey, ttl time.Duration) *TokenService {
	return &TokenService{key: key, ttl: ttl}
}

// TTL returns the configured token lifetime.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Generate mints a token for user, valid from now until now+ttl.
// It returns the signed token and its expiry as a unix second.
func (s *TokenService) Generate(user string, admin bool, now time.Time) (string, int64, error) {
	audience := AudienceNormal
	if admin {
		audience = AudienceAdmin
	}
	expiresAt := now.Add(s.ttl)

	claims := jwt.RegisteredClaims{
		Issuer:    TokenIssuer,
		Subject:   user,
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", 0, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt.Unix(), nil
}

// Validate checks a token against the service key at the given instant
// and resolves the principal it names.
func (s *TokenService) Validate(tokenString string, now time.Time) (*Principal, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
			}
			return &s.key.PublicKey, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(TokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	// Every claim is mandatory; the parser only verifies the ones
	// present.
	if claims.Subject == "" || claims.IssuedAt == nil || claims.NotBefore == nil {
		return nil, ErrInvalidToken
	}
	if len(claims.Audience) != 1 {
		return nil, ErrInvalidToken
	}

	switch claims.Audience[0] {
	case AudienceAdmin:
		return &Principal{Name: claims.Subject, Admin: true}, nil
	case AudienceNormal:
		return &Principal{Name: claims.Subject, Admin: false}, nil
	default:
		return nil, ErrInvalidToken
	}
}
