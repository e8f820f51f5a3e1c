package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/kedevs/blogapi/internal/auth"
	"github.com/kedevs/blogapi/internal/metrics"
	"github.com/kedevs/blogapi/internal/services"
	"github.com/kedevs/blogapi/internal/store"
	"github.com/kedevs/blogapi/types"
)

// AuthHandler provides registration, login and token refresh endpoints.
type AuthHandler struct {
	userService *services.UserService
	credentials *auth.CredentialVerifier
	tokens      *auth.TokenIssuer
	metrics     *metrics.Metrics
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(
	userService *services.UserService,
	credentials *auth.CredentialVerifier,
	tokens *auth.TokenIssuer,
	m *metrics.Metrics,
) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		credentials: credentials,
		tokens:      tokens,
		metrics:     m,
	}
}

// AuthRouter registers auth routes on the given router. rateLimit, when not
// nil, guards the endpoints that accept credentials.
func AuthRouter(r chi.Router, handler *AuthHandler, rateLimit func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		if rateLimit != nil {
			r.Use(rateLimit)
		}
		r.Post("/signup", handler.Signup)
		r.Post("/login", handler.Login)
		r.Post("/refresh", handler.Refresh)
	})
	r.With(Authenticate(handler.tokens), RequireAuth).Get("/me", handler.Me)
}

// Signup creates a regular user account.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.userService.Register(r.Context(), services.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, "username or email already exists")
			return
		}
		writeServiceError(w, r, err, "failed to create user")
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// Login verifies credentials and returns an access/refresh token pair.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing credentials")
		return
	}

	principal, err := h.credentials.Verify(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			h.metrics.ObserveLogin(metrics.LoginFailure)
		} else {
			h.metrics.ObserveLogin(metrics.LoginError)
		}
		writeServiceError(w, r, err, "failed to authenticate")
		return
	}

	pair, err := h.tokens.Issue(principal)
	if err != nil {
		h.metrics.ObserveLogin(metrics.LoginError)
		writeServiceError(w, r, err, "failed to create token")
		return
	}

	user, err := h.userService.GetByID(r.Context(), principal.ID)
	if err != nil {
		h.metrics.ObserveLogin(metrics.LoginError)
		writeServiceError(w, r, err, "failed to load user")
		return
	}

	h.metrics.ObserveLogin(metrics.LoginSuccess)
	writeJSON(w, http.StatusOK, LoginResponse{
		Access:  pair.Access,
		Refresh: pair.Refresh,
		User:    user,
	})
}

// Refresh exchanges a refresh token for a new access token.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Refresh) == "" {
		writeError(w, http.StatusBadRequest, "refresh token is required")
		return
	}

	access, err := h.tokens.Refresh(r.Context(), strings.TrimSpace(req.Refresh))
	if err != nil {
		writeServiceError(w, r, err, "failed to refresh token")
		return
	}

	writeJSON(w, http.StatusOK, RefreshResponse{Access: access})
}

// Me returns the current authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	principal := principalFromContext(r.Context())

	user, err := h.userService.GetByID(r.Context(), principal.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeServiceError(w, r, auth.ErrTokenInvalid, "")
			return
		}
		writeServiceError(w, r, err, "failed to load user")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// RegisterRequest carries no privilege fields; any sent by the client are
// dropped during decoding.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Access  string     `json:"access"`
	Refresh string     `json:"refresh"`
	User    types.User `json:"user"`
}

type RefreshRequest struct {
	Refresh string `json:"refresh"`
}

type RefreshResponse struct {
	Access string `json:"access"`
}
