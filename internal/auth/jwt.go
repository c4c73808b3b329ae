// Package auth is the identity provider: accounts, sessions and the tokens
// that carry them.
//
// SESSION FLOW:
//  1. SignUp / SignIn / SignInGitHub verify credentials and open a session
//  2. The session id travels inside an HS256 JWT (the "jti" claim), together
//     with the uid ("sub") and email
//  3. RequireAuth validates the JWT, checks the session is still open and
//     puts the Identity in the request context
//  4. SignOut closes the session; its tokens stop working immediately and
//     WatchSession subscribers receive nil
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "socialhub"

// TokenService signs and validates session tokens.
type TokenService struct {
	secret []byte
}

// NewTokenService creates a TokenService with the given secret.
// Generate one with: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret)}, nil
}

// Claims is the validated content of a session token.
type Claims struct {
	UID       string
	Email     string
	SessionID string
}

type claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Generate signs a token for id within session sessionID, valid for ttl.
func (s *TokenService) Generate(id Identity, sessionID string, ttl time.Duration) (string, error) {
	now := time.Now()

	c := claims{
		Email: id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UID,
			ID:        sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate checks signature, algorithm, issuer and expiry.
//
// Passing jwt.WithValidMethods rules out algorithm confusion ("alg": "none").
func (s *TokenService) Validate(tokenStr string) (*Claims, error) {
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
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("auth: token expired")
		}
		return nil, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("auth: invalid token claims")
	}
	if c.Subject == "" || c.ID == "" {
		return nil, fmt.Errorf("auth: token has no subject or session")
	}

	return &Claims{UID: c.Subject, Email: c.Email, SessionID: c.ID}, nil
}
