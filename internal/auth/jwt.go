// Package auth issues and validates the tokens that carry a user's identity.
//
// TWO KINDS OF TOKEN:
//
//  1. Session tokens live in the HttpOnly "token" cookie and identify the
//     signed-in user to this server (audience "dashboard", 60 minutes).
//  2. API bearers are minted for every single call to the analysis API
//     (audience "analysis-api", 60 seconds). They are never cached: each
//     outbound request asks BearerSource for a fresh one.
//
// Both are HS256 JWTs signed with the same secret, so the analysis backend
// can verify a bearer with nothing more than the shared key.
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: {"alg":"HS256","typ":"JWT"}
//	- Payload: {"sub":"userID","email":"...","aud":["dashboard"],"exp":...}
//	- Signature: HMAC-SHA256(header+"."+payload, secretKey)
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/xid"
)

const (
	issuer = "leaseshield"

	sessionAudience = "dashboard"
	// APIAudience is the audience of bearers sent to the analysis API.
	APIAudience = "analysis-api"

	// SessionLifetime is how long a session cookie token stays valid.
	SessionLifetime = 60 * time.Minute
	// BearerLifetime is deliberately short: bearers are minted per call.
	BearerLifetime = 60 * time.Second
)

// ErrTokenExpired is returned by Validate for a well-formed but expired token.
var ErrTokenExpired = errors.New("auth: token expired")

// Session is the identity observed by the rest of the application.
// Present is false for anonymous requests and for any auth error: a broken
// or expired token is treated exactly like no token at all.
type Session struct {
	UserID    string    `json:"userId,omitempty"`
	Email     string    `json:"email,omitempty"`
	Present   bool      `json:"isPresent"`
	ExpiresAt time.Time `json:"-"`
}

// Anonymous is the session of a signed-out caller.
var Anonymous = Session{}

// TokenService handles JWT creation and validation.
type TokenService struct {
	secret []byte
}

// NewTokenService creates a TokenService with the given secret.
// The secret should be at least 32 bytes of random data in production.
// Example: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret)}, nil
}

// claims is the JWT payload. The user ID is the standard "sub" claim; the
// email travels alongside because the admin gate compares it.
type claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// Generate signs a session token for the user.
func (s *TokenService) Generate(userID, email string) (string, error) {
	return s.GenerateWithDuration(userID, email, SessionLifetime)
}

// GenerateWithDuration signs a session token with a custom lifetime.
// Used in tests (negative durations produce expired tokens).
func (s *TokenService) GenerateWithDuration(userID, email string, d time.Duration) (string, error) {
	return s.sign(userID, email, sessionAudience, d)
}

// Bearer mints a short-lived credential for one call to the analysis API.
// Every call gets a distinct token ID.
func (s *TokenService) Bearer(userID, email string) (string, error) {
	return s.sign(userID, email, APIAudience, BearerLifetime)
}

func (s *TokenService) sign(userID, email, audience string, d time.Duration) (string, error) {
	now := time.Now()

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
			ID:        xid.New().String(),
		},
		Email: email,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Validate parses and verifies a session token.
//
// VALIDATION CHECKS (performed by the jwt library):
//   - Signature is valid and the algorithm is HS256 (no "none" confusion)
//   - Token is not expired and carries an expiry at all
//   - Issuer is "leaseshield" and the audience is the dashboard, so an API
//     bearer cannot be replayed as a session cookie
func (s *TokenService) Validate(tokenStr string) (Session, error) {
	return s.validate(tokenStr, sessionAudience)
}

// ValidateBearer verifies an API bearer. The analysis backend performs the
// same check on its side.
func (s *TokenService) ValidateBearer(tokenStr string) (Session, error) {
	return s.validate(tokenStr, APIAudience)
}

func (s *TokenService) validate(tokenStr, audience string) (Session, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Anonymous, ErrTokenExpired
		}
		return Anonymous, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return Anonymous, fmt.Errorf("auth: invalid token claims")
	}
	if c.Subject == "" {
		return Anonymous, fmt.Errorf("auth: token has no subject")
	}

	return Session{
		UserID:    c.Subject,
		Email:     c.Email,
		Present:   true,
		ExpiresAt: c.ExpiresAt.Time,
	}, nil
}
