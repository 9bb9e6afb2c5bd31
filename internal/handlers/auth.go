package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/moolinks/backend/internal/auth"
	"github.com/moolinks/backend/internal/logging"
	"github.com/moolinks/backend/internal/models"
	"github.com/moolinks/backend/internal/repositories"
)

const minPasswordLength = 8

// AuthHandler implements user authentication endpoints. Successful logins
// relay the access token as an HTTP-only cookie named CookieName.
type AuthHandler struct {
	Users      UserStore
	Sessions   SessionManager
	Limiter    RateLimiter
	CookieName string
	NowFunc    func() time.Time
}

// Login handles POST /api/v1/auth/login requests.
func (h AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if !h.admit(w, r, scopeAuth) {
		return
	}

	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		logger.Warn("invalid login payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.normalize()
	if req.Email == "" || req.Password == "" {
		respondError(ctx, w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := h.Users.FindByEmail(ctx, req.Email)
	if err != nil {
		if !errors.Is(err, repositories.ErrNotFound) {
			logger.Error("login user lookup failed", "error", err)
		}
		respondError(ctx, w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		logger.Warn("login password mismatch", "userId", user.ID)
		respondError(ctx, w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	h.startSession(w, r, logger, user, http.StatusOK)
}

// SignUp handles POST /api/v1/auth/signup requests.
func (h AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if !h.admit(w, r, scopeAuth) {
		return
	}

	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		logger.Warn("invalid signup payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.normalize()
	if msg := req.validate(); msg != "" {
		logger.Warn("signup rejected", "reason", msg)
		respondError(ctx, w, http.StatusBadRequest, msg)
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		logger.Error("signup failed to hash password", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "failed to secure password")
		return
	}

	now := h.now()
	user := models.User{
		ID:        uuid.NewString(),
		Email:     req.Email,
		Password:  string(hashed),
		CreatedAt: now,
		UpdatedAt: now,
	}

	// The unique email index decides races between concurrent signups.
	if err := h.Users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			respondError(ctx, w, http.StatusConflict, "account already exists")
			return
		}
		logger.Error("signup failed to create user", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "failed to create account")
		return
	}

	logger.Info("account created", "userId", user.ID)
	h.startSession(w, r, logger, user, http.StatusCreated)
}

// Refresh exchanges a refresh token for a new session. The old refresh token
// stops working.
func (h AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Sessions == nil {
		logger.Error("session manager unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "session service unavailable")
		return
	}

	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		respondError(ctx, w, http.StatusBadRequest, "refresh token is required")
		return
	}

	tokens, err := h.Sessions.Refresh(ctx, req.RefreshToken)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, auth.ErrRefreshTokenExpired) || errors.Is(err, auth.ErrSessionNotFound) {
			status = http.StatusUnauthorized
		}
		logger.Warn("refresh failed", "error", err, "status", status)
		respondError(ctx, w, status, "unable to refresh session")
		return
	}

	h.setCookie(w, r, tokens)
	respondJSON(ctx, w, http.StatusOK, authResponse{Tokens: tokens})
}

// Logout handles POST /api/v1/auth/logout. It revokes the session named by
// the refresh token in the body and the one the presented access token
// belongs to, then clears the session cookie. It always succeeds.
func (h AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	if h.Sessions != nil {
		h.Sessions.Revoke(ctx, strings.TrimSpace(req.RefreshToken))
		h.Sessions.RevokeAccess(ctx, auth.TokenFromRequest(r, h.CookieName))
	}

	if h.CookieName != "" {
		auth.ClearSessionCookie(w, r, h.CookieName)
	}
	respondJSON(ctx, w, http.StatusOK, okResponse)
}

// Me handles GET /api/v1/auth/me and reports the authenticated identity.
func (h AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	respondJSON(r.Context(), w, http.StatusOK, map[string]string{"id": userID})
}

// RequestPasswordReset handles POST /api/v1/auth/password-reset requests. The
// answer does not reveal whether the account exists.
func (h AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if !allowRequest(h.Limiter, r, scopePasswordReset) {
		logger.Warn("password reset rate limit exceeded", "ip", clientIP(r))
		respondError(ctx, w, http.StatusTooManyRequests, "too many requests")
		return
	}
	if h.Users == nil {
		logger.Error("user store unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "authentication services unavailable")
		return
	}

	var req passwordResetRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	email := normalizeEmail(req.Email)
	if email == "" {
		respondError(ctx, w, http.StatusBadRequest, "email is required")
		return
	}
	if _, err := mail.ParseAddress(email); err != nil {
		respondError(ctx, w, http.StatusBadRequest, "invalid email address")
		return
	}

	if _, err := h.Users.FindByEmail(ctx, email); err != nil && !errors.Is(err, repositories.ErrNotFound) {
		logger.Error("password reset lookup failed", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to process password reset")
		return
	}

	respondJSON(ctx, w, http.StatusAccepted, map[string]string{
		"status": "If an account exists for that email, password reset instructions have been sent.",
	})
}

// admit applies the rate limit of scope and checks the handler is wired.
func (h AuthHandler) admit(w http.ResponseWriter, r *http.Request, scope string) bool {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if !allowRequest(h.Limiter, r, scope) {
		logger.Warn("auth rate limit exceeded", "scope", scope, "ip", clientIP(r))
		respondError(ctx, w, http.StatusTooManyRequests, "too many requests")
		return false
	}
	if h.Users == nil || h.Sessions == nil {
		logger.Error("authentication dependencies unavailable", "hasUsers", h.Users != nil, "hasSessions", h.Sessions != nil)
		respondError(ctx, w, http.StatusInternalServerError, "authentication services unavailable")
		return false
	}
	return true
}

func (h AuthHandler) startSession(w http.ResponseWriter, r *http.Request, logger *slog.Logger, user models.User, status int) {
	ctx := r.Context()

	tokens, err := h.Sessions.Issue(ctx, user.ID)
	if err != nil {
		logger.Error("failed to issue session", "error", err, "userId", user.ID)
		respondError(ctx, w, http.StatusInternalServerError, "failed to create session")
		return
	}

	h.setCookie(w, r, tokens)
	respondJSON(ctx, w, status, authResponse{
		User:   &authUser{ID: user.ID, Email: user.Email},
		Tokens: tokens,
	})
}

func (h AuthHandler) setCookie(w http.ResponseWriter, r *http.Request, tokens models.SessionTokens) {
	if h.CookieName == "" {
		return
	}
	auth.SetSessionCookie(w, r, h.CookieName, tokens.AccessToken, tokens.AccessExpiresAt)
}

func (h AuthHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// credentialsRequest is the body of both login and signup.
type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c *credentialsRequest) normalize() {
	c.Email = normalizeEmail(c.Email)
}

// validate returns the client-facing reason the signup is rejected, or "".
func (c credentialsRequest) validate() string {
	switch {
	case c.Email == "" || c.Password == "":
		return "email and password are required"
	case !validEmail(c.Email):
		return "invalid email address"
	case len(c.Password) < minPasswordLength:
		return "password must be at least 8 characters"
	}
	return ""
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

type (
	loginRequest  = credentialsRequest
	signUpRequest = credentialsRequest
)

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type passwordResetRequest struct {
	Email string `json:"email"`
}

type authUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type authResponse struct {
	User   *authUser            `json:"user,omitempty"`
	Tokens models.SessionTokens `json:"tokens"`
}
