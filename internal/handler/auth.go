package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/socialhub/internal/auth"
	"github.com/sakif/socialhub/internal/model"
)

const stateCookie = "oauth_state"

// ProfileBootstrapper creates the profile of a freshly signed-in user.
// *service.ProfileService implements it.
type ProfileBootstrapper interface {
	GetOrCreateCurrentProfile(ctx context.Context) (*model.Profile, error)
}

// AuthHandler manages sign-up, sign-in, sign-out and the GitHub OAuth flow.
//
// HANDLER RESPONSIBILITIES:
//   - HandleSignUp / HandleSignIn → email + password, issue session cookie
//   - HandleSignOut               → close the session, clear the cookie
//   - HandleGitHubLogin           → redirect the browser to GitHub
//   - HandleGitHubCallback        → exchange the code, issue session cookie
//
// Every successful sign-in also makes sure the user has a profile. This is
// the only place profiles are created.
type AuthHandler struct {
	provider *auth.Provider
	github   *auth.GitHubProvider // nil when GitHub sign-in is not configured
	profiles ProfileBootstrapper
	secure   bool
	logger   *slog.Logger
}

// NewAuthHandler creates an AuthHandler. github may be nil. secure marks the
// session cookie Secure (HTTPS only).
func NewAuthHandler(
	provider *auth.Provider,
	github *auth.GitHubProvider,
	profiles ProfileBootstrapper,
	secure bool,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		provider: provider,
		github:   github,
		profiles: profiles,
		secure:   secure,
		logger:   logger,
	}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SessionResponse is returned by sign-up and sign-in.
type SessionResponse struct {
	Identity  auth.Identity  `json:"identity"`
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expiresAt"`
	Profile   *model.Profile `json:"profile"`
}

// HandleSignUp creates an account.
//
// HTTP: POST /auth/signup
// REQUEST BODY: {"email": "a@x.com", "password": "secret1"}
func (h *AuthHandler) HandleSignUp(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := decodeJSON(w, r, &c); err != nil {
		writeError(w, err)
		return
	}
	res, err := h.provider.SignUp(r.Context(), c.Email, c.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	h.finishSignIn(w, r, res, http.StatusCreated)
}

// HandleSignIn opens a session for an existing account.
//
// HTTP: POST /auth/signin
// REQUEST BODY: {"email": "a@x.com", "password": "secret1"}
func (h *AuthHandler) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := decodeJSON(w, r, &c); err != nil {
		writeError(w, err)
		return
	}
	res, err := h.provider.SignIn(r.Context(), c.Email, c.Password)
	if err != nil {
		h.logger.Info("sign-in rejected", slog.String("email", c.Email), slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	h.finishSignIn(w, r, res, http.StatusOK)
}

// HandleSignOut closes the current session. Session watchers receive null.
//
// HTTP: POST /auth/signout
//
// WHY POST AND NOT GET?
// Sign-out changes state. A GET could be triggered by a prefetch or a
// cross-site <img> tag.
func (h *AuthHandler) HandleSignOut(w http.ResponseWriter, r *http.Request) {
	if sid, ok := auth.SessionIDFromContext(r.Context()); ok {
		if err := h.provider.SignOut(r.Context(), sid); err != nil {
			writeError(w, err)
			return
		}
	}
	h.setTokenCookie(w, "", -1)
	w.WriteHeader(http.StatusNoContent)
}

// HandleGitHubLogin redirects the user to GitHub's authorization page.
//
// HTTP: GET /auth/github/login
//
// CSRF PROTECTION VIA STATE:
// A random state value goes into a short-lived HttpOnly cookie and into the
// authorization URL. The callback only proceeds when both match.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	if h.github == nil {
		http.NotFound(w, r)
		return
	}
	state := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the OAuth flow.
//
// HTTP: GET /auth/github/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Exchange the code for the GitHub user
//  3. Resolve or create the account, open a session
//  4. Set the session cookie and redirect to the app
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	if h.github == nil {
		http.NotFound(w, r)
		return
	}

	// --- Step 1: Validate CSRF state ---
	sc, err := r.Cookie(stateCookie)
	if err != nil || sc.Value == "" || r.URL.Query().Get("state") != sc.Value {
		h.logger.Warn("github callback: state mismatch")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}
	// single use
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("github callback: authorization denied", slog.String("error", errParam))
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return
	}

	// --- Step 2: Exchange code ---
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}
	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("github callback: exchange failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusBadGateway)
		return
	}

	// --- Step 3: Account and session ---
	res, err := h.provider.SignInGitHub(r.Context(), ghUser)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := h.profiles.GetOrCreateCurrentProfile(auth.WithIdentity(r.Context(), res.Identity)); err != nil {
		writeError(w, err)
		return
	}

	// --- Step 4: Cookie and redirect ---
	h.setTokenCookie(w, res.Token, int(time.Until(res.ExpiresAt).Seconds()))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *AuthHandler) finishSignIn(w http.ResponseWriter, r *http.Request, res *auth.AuthResult, status int) {
	profile, err := h.profiles.GetOrCreateCurrentProfile(auth.WithIdentity(r.Context(), res.Identity))
	if err != nil {
		writeError(w, err)
		return
	}
	h.setTokenCookie(w, res.Token, int(time.Until(res.ExpiresAt).Seconds()))
	writeJSON(w, status, SessionResponse{
		Identity:  res.Identity,
		Token:     res.Token,
		ExpiresAt: res.ExpiresAt,
		Profile:   profile,
	})
}

// setTokenCookie writes the session cookie. maxAge < 0 deletes it.
//
// HttpOnly keeps the token away from page scripts; SameSite=Lax keeps it off
// cross-site POSTs.
func (h *AuthHandler) setTokenCookie(w http.ResponseWriter, token string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.TokenCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
