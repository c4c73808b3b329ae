package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/socialhub/internal/apperror"
	"github.com/sakif/socialhub/internal/changefeed"
	"github.com/sakif/socialhub/internal/model"
	"github.com/sakif/socialhub/internal/repository"
)

// DefaultSessionTTL bounds how long a session token stays valid.
const DefaultSessionTTL = 24 * time.Hour

// AuthResult is returned by every successful sign-in path.
type AuthResult struct {
	Identity  Identity  `json:"identity"`
	SessionID string    `json:"sessionId"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Provider is the identity provider. It owns accounts and sessions.
//
// SESSIONS ARE ROWS:
// A token is only accepted while its session row exists and has not
// expired, so every instance sharing the database agrees on who is signed
// in, and a restart signs nobody out. Closing a session publishes its topic
// on the change bus; watchers on any instance then re-read the row.
type Provider struct {
	accounts  repository.AccountRepository
	sessions  repository.SessionRepository
	notifier  changefeed.Notifier
	passwords *PasswordService
	tokens    *TokenService
	ttl       time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewProvider wires a Provider. ttl <= 0 selects DefaultSessionTTL; a nil
// notifier gets a process-local Hub.
func NewProvider(
	accounts repository.AccountRepository,
	sessions repository.SessionRepository,
	notifier changefeed.Notifier,
	passwords *PasswordService,
	tokens *TokenService,
	ttl time.Duration,
	logger *slog.Logger,
) *Provider {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if notifier == nil {
		notifier = changefeed.NewHub()
	}
	return &Provider{
		accounts:  accounts,
		sessions:  sessions,
		notifier:  notifier,
		passwords: passwords,
		tokens:    tokens,
		ttl:       ttl,
		logger:    logger,
		now:       time.Now,
	}
}

// TTL is the lifetime of sessions opened by this provider.
func (p *Provider) TTL() time.Duration { return p.ttl }

// SignUp creates a password account and opens a session for it.
func (p *Provider) SignUp(ctx context.Context, email, password string) (*AuthResult, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if len(password) < MinPasswordLength {
		return nil, apperror.NewAuthError(apperror.ReasonWeakPassword,
			fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if len(password) > MaxPasswordBytes {
		return nil, apperror.NewAuthError(apperror.ReasonWeakPassword,
			fmt.Sprintf("password must be %d bytes or fewer", MaxPasswordBytes))
	}

	hash, err := p.passwords.Hash(password)
	if err != nil {
		return nil, apperror.AuthUnknown(err)
	}

	account := &model.Account{Email: email, PasswordHash: hash}
	if err := p.accounts.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, apperror.NewAuthError(apperror.ReasonEmailInUse, "an account already exists for this email")
		}
		return nil, apperror.AuthUnknown(err)
	}

	p.logger.Info("account created",
		slog.String("uid", account.UID),
		slog.String("email", account.Email),
	)
	return p.openSession(ctx, account)
}

// SignIn verifies email and password and opens a session.
func (p *Provider) SignIn(ctx context.Context, email, password string) (*AuthResult, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}

	account, err := p.accounts.GetAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, wrongCredentials()
		}
		return nil, apperror.AuthUnknown(err)
	}
	// GitHub-only accounts have no password to sign in with.
	if account.PasswordHash == "" {
		return nil, wrongCredentials()
	}
	if err := p.passwords.Verify(account.PasswordHash, password); err != nil {
		if errors.Is(err, ErrPasswordMismatch) {
			return nil, wrongCredentials()
		}
		return nil, apperror.AuthUnknown(err)
	}

	return p.openSession(ctx, account)
}

// SignInGitHub resolves the account for a GitHub user: first by GitHub id,
// then by email (linking it), and otherwise creates a password-less account.
func (p *Provider) SignInGitHub(ctx context.Context, gh *GitHubUser) (*AuthResult, error) {
	account, err := p.accounts.GetAccountByGitHubID(ctx, gh.ID)
	if err == nil {
		return p.openSession(ctx, account)
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, apperror.AuthUnknown(err)
	}

	if gh.Email == "" {
		return nil, apperror.NewAuthError(apperror.ReasonInvalidEmail, "GitHub account has no verified email")
	}
	email, err := normalizeEmail(gh.Email)
	if err != nil {
		return nil, err
	}

	account, err = p.accounts.GetAccountByEmail(ctx, email)
	switch {
	case err == nil:
		if err := p.accounts.LinkGitHub(ctx, account.UID, gh.ID); err != nil {
			return nil, apperror.AuthUnknown(err)
		}
		ghID := gh.ID
		account.GitHubID = &ghID
		p.logger.Info("github linked", slog.String("uid", account.UID), slog.Int64("githubID", gh.ID))

	case errors.Is(err, apperror.ErrNotFound):
		ghID := gh.ID
		account = &model.Account{Email: email, GitHubID: &ghID}
		if err := p.accounts.CreateAccount(ctx, account); err != nil {
			return nil, apperror.AuthUnknown(err)
		}
		p.logger.Info("account created from github",
			slog.String("uid", account.UID),
			slog.String("login", gh.Login),
		)

	default:
		return nil, apperror.AuthUnknown(err)
	}

	return p.openSession(ctx, account)
}

// SignOut closes the session. Watchers of that session, on this instance
// or any other sharing the change bus, receive nil. Closing an unknown or
// already closed session is not an error.
func (p *Provider) SignOut(ctx context.Context, sessionID string) error {
	s, err := p.sessions.GetSession(ctx, sessionID)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("auth: signing out: %w", err)
	}
	if _, err := p.sessions.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("auth: signing out: %w", err)
	}
	p.notifier.Publish(sessionTopic(sessionID))
	p.logger.Info("session closed", slog.String("uid", s.UID))
	return nil
}

// Authenticate validates token and returns its identity and session id,
// provided the session is still open.
func (p *Provider) Authenticate(ctx context.Context, token string) (Identity, string, error) {
	c, err := p.tokens.Validate(token)
	if err != nil {
		return Identity{}, "", err
	}

	s, err := p.sessions.GetSession(ctx, c.SessionID)
	if errors.Is(err, apperror.ErrNotFound) {
		return Identity{}, "", errors.New("auth: session is not active")
	}
	if err != nil {
		return Identity{}, "", fmt.Errorf("auth: looking up session: %w", err)
	}
	if s.UID != c.UID {
		return Identity{}, "", errors.New("auth: session is not active")
	}
	if !p.now().Before(s.ExpiresAt) {
		return Identity{}, "", errors.New("auth: session expired")
	}
	return Identity{UID: s.UID, Email: s.Email}, s.ID, nil
}

// WatchSession streams the identity of a session: the current value first,
// then nil once the session is signed out or expires. The channel never
// reports errors; an unknown session, or one that cannot be read, yields
// nil. It is closed when ctx is done.
//
// The channel holds only the latest value, so a slow reader skips stale
// states rather than blocking sign-out.
func (p *Provider) WatchSession(ctx context.Context, sessionID string) <-chan *Identity {
	out := make(chan *Identity, 1)
	changed := make(chan struct{}, 1)
	wake := func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}

	// Subscribe before the first read so a sign-out in between is not lost.
	unsubscribe := p.notifier.Subscribe(sessionTopic(sessionID), wake)

	go func() {
		defer close(out)
		defer unsubscribe()

		var (
			expiry  *time.Timer
			last    *Identity
			emitted bool
		)
		defer func() {
			if expiry != nil {
				expiry.Stop()
			}
		}()

		for {
			ident, expiresAt := p.currentIdentity(ctx, sessionID)
			if ctx.Err() != nil {
				return
			}
			if expiry != nil {
				expiry.Stop()
				expiry = nil
			}
			if ident != nil {
				expiry = time.AfterFunc(expiresAt.Sub(p.now()), wake)
			}

			if !emitted || !sameIdentity(last, ident) {
				replaceLatest(out, ident)
				last, emitted = ident, true
			}

			select {
			case <-ctx.Done():
				return
			case <-changed:
			}
		}
	}()

	return out
}

// currentIdentity reads the session row. It returns nil for a missing,
// expired or unreadable session.
func (p *Provider) currentIdentity(ctx context.Context, sessionID string) (*Identity, time.Time) {
	s, err := p.sessions.GetSession(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, apperror.ErrNotFound) && ctx.Err() == nil {
			p.logger.Warn("session lookup failed", slog.String("session", sessionID), slog.Any("error", err))
		}
		return nil, time.Time{}
	}
	if !p.now().Before(s.ExpiresAt) {
		return nil, time.Time{}
	}
	return &Identity{UID: s.UID, Email: s.Email}, s.ExpiresAt
}

func (p *Provider) openSession(ctx context.Context, account *model.Account) (*AuthResult, error) {
	ident := Identity{UID: account.UID, Email: account.Email}
	sid := xid.New().String()

	token, err := p.tokens.Generate(ident, sid, p.ttl)
	if err != nil {
		return nil, apperror.AuthUnknown(err)
	}
	now := p.now()
	expires := now.Add(p.ttl)

	if n, err := p.sessions.DeleteExpiredSessions(ctx, now); err != nil {
		p.logger.Warn("pruning expired sessions failed", slog.Any("error", err))
	} else if n > 0 {
		p.logger.Debug("pruned expired sessions", slog.Int64("count", n))
	}

	err = p.sessions.CreateSession(ctx, &model.Session{
		ID:        sid,
		UID:       ident.UID,
		Email:     ident.Email,
		ExpiresAt: expires,
		CreatedAt: now,
	})
	if err != nil {
		return nil, apperror.AuthUnknown(err)
	}

	p.logger.Info("session opened", slog.String("uid", ident.UID))
	return &AuthResult{Identity: ident, SessionID: sid, Token: token, ExpiresAt: expires}, nil
}

// sessionTopic is the change-bus topic published when a session closes.
func sessionTopic(sessionID string) string {
	return "sessions/" + sessionID
}

// replaceLatest swaps whatever the reader has not taken yet for v. Only the
// watch goroutine sends on ch.
func replaceLatest(ch chan *Identity, v *Identity) {
	select {
	case <-ch:
	default:
	}
	ch <- v
}

func sameIdentity(a, b *Identity) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperror.NewAuthError(apperror.ReasonInvalidEmail, "email address is malformed")
	}
	return email, nil
}

func wrongCredentials() *apperror.AuthError {
	return apperror.NewAuthError(apperror.ReasonWrongCredentials, "email or password is incorrect")
}
