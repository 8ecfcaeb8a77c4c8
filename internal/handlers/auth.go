package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Rakanrepo/slevenback/internal/platform/auth"
	"github.com/Rakanrepo/slevenback/internal/platform/httpx"
	"github.com/Rakanrepo/slevenback/internal/services"
)

const (
	maxAuthBodySize  = 16 * 1024
	loginRateLimit   = 10
	loginRateWindow  = time.Minute
	registerEndpoint = "/register"
)

type registerRequest struct {
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userPayload struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FullName  string `json:"full_name"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at"`
}

type sessionPayload struct {
	Token     string      `json:"token"`
	ExpiresAt string      `json:"expires_at"`
	User      userPayload `json:"user"`
}

// AuthHandlers exposes registration, login, and profile endpoints.
type AuthHandlers struct {
	users    services.UserService
	tokens   *auth.TokenManager
	authn    *auth.Authenticator
	limiter  rateLimiter
	clientIP func(r *http.Request) string
}

// NewAuthHandlers constructs a new AuthHandlers instance.
func NewAuthHandlers(users services.UserService, tokens *auth.TokenManager, authn *auth.Authenticator) *AuthHandlers {
	return &AuthHandlers{
		users:   users,
		tokens:  tokens,
		authn:   authn,
		limiter: newSimpleRateLimiter(loginRateLimit, loginRateWindow, nil),
		clientIP: func(r *http.Request) string {
			return strings.TrimSpace(r.RemoteAddr)
		},
	}
}

// Routes registers the /auth endpoints.
func (h *AuthHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post(registerEndpoint, h.register)
	r.Post("/login", h.login)
}

// MeRoutes registers the authenticated profile endpoint.
func (h *AuthHandlers) MeRoutes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Get("/", h.me)
}

func (h *AuthHandlers) register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil || h.tokens == nil {
		httpx.WriteError(ctx, w, httpx.NewError("auth_unavailable", "authentication service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req registerRequest
	if !decodeAuthBody(ctx, w, r, &req) {
		return
	}

	user, err := h.users.Register(ctx, services.RegisterCommand{
		Email:    req.Email,
		FullName: req.FullName,
		Password: req.Password,
	})
	if err != nil {
		writeAuthError(ctx, w, err)
		return
	}

	session, ok := h.issueSession(ctx, w, user)
	if !ok {
		return
	}
	writeJSONResponse(w, http.StatusCreated, session)
}

func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil || h.tokens == nil {
		httpx.WriteError(ctx, w, httpx.NewError("auth_unavailable", "authentication service unavailable", http.StatusServiceUnavailable))
		return
	}

	if h.limiter != nil && !h.limiter.Allow(h.clientIP(r)) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many login attempts, retry later", http.StatusTooManyRequests))
		return
	}

	var req loginRequest
	if !decodeAuthBody(ctx, w, r, &req) {
		return
	}

	user, err := h.users.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		writeAuthError(ctx, w, err)
		return
	}

	session, ok := h.issueSession(ctx, w, user)
	if !ok {
		return
	}
	writeJSONResponse(w, http.StatusOK, session)
}

func (h *AuthHandlers) me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("auth_unavailable", "authentication service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UserID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	user, err := h.users.GetProfile(ctx, identity.UserID)
	if err != nil {
		writeAuthError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildUserPayload(user))
}

func (h *AuthHandlers) issueSession(ctx context.Context, w http.ResponseWriter, user services.User) (sessionPayload, bool) {
	token, expiresAt, err := h.tokens.Issue(auth.Identity{
		UserID: user.ID,
		Email:  user.Email,
		Role:   string(user.Role),
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("token_issuance_failed", "unable to issue session token", http.StatusInternalServerError))
		return sessionPayload{}, false
	}
	return sessionPayload{
		Token:     token,
		ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
		User:      buildUserPayload(user),
	}, true
}

func buildUserPayload(user services.User) userPayload {
	return userPayload{
		ID:        user.ID,
		Email:     user.Email,
		FullName:  user.FullName,
		Role:      string(user.Role),
		CreatedAt: user.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func decodeAuthBody(ctx context.Context, w http.ResponseWriter, r *http.Request, target any) bool {
	body, err := readLimitedBody(r, maxAuthBodySize)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body too large", http.StatusRequestEntityTooLarge))
			return false
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read request body", http.StatusBadRequest))
		return false
	}
	if len(body) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		return false
	}
	if err := json.Unmarshal(body, target); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return false
	}
	return true
}

func writeAuthError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrUserInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrUserEmailTaken):
		httpx.WriteError(ctx, w, httpx.NewError("email_taken", "email is already registered", http.StatusConflict))
	case errors.Is(err, services.ErrUserInvalidCredentials):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_credentials", "email or password is incorrect", http.StatusUnauthorized))
	case errors.Is(err, services.ErrUserNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("user_not_found", "user not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}
