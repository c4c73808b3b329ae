package model

import "time"

// Account is the identity-backend record behind a Profile. It never leaves
// the server: the password hash and GitHub link are private to auth.
//
// Email is stored lower-cased and is unique. PasswordHash is empty for
// accounts created through GitHub sign-in; GitHubID is nil until linked.
type Account struct {
	UID          string    `json:"uid"          db:"uid"`
	Email        string    `json:"email"        db:"email"`
	PasswordHash string    `json:"-"            db:"password_hash"`
	GitHubID     *int64    `json:"githubId,omitempty" db:"github_id"`
	CreatedAt    time.Time `json:"createdAt"    db:"created_at"`
}

// Session is an open sign-in. Its id is the token's jti; the row is what
// makes a token valid, so deleting it signs the token out on every instance.
type Session struct {
	ID        string    `json:"id"        db:"id"`
	UID       string    `json:"uid"       db:"uid"`
	Email     string    `json:"email"     db:"email"`
	ExpiresAt time.Time `json:"expiresAt" db:"expires_at"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
