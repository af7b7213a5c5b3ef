package service

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/splitledger/splitledger/internal/auth"
	"github.com/splitledger/splitledger/internal/middleware"
	"github.com/splitledger/splitledger/internal/models"
)

// AuthService handles account registration and login.
type AuthService struct {
	authenticator auth.Authenticator
	jwtManager    *auth.JWTManager
}

// NewAuthService creates a new authentication service.
func NewAuthService(authenticator auth.Authenticator, jwtManager *auth.JWTManager) *AuthService {
	return &AuthService{
		authenticator: authenticator,
		jwtManager:    jwtManager,
	}
}

// Register mounts the auth routes. Registration and login go on the public
// mux; the session routes need a valid token and go behind the auth
// middleware with the rest of the API.
func (s *AuthService) Register(public, protected *http.ServeMux) {
	public.HandleFunc("POST /api/auth/register", s.register)
	public.HandleFunc("POST /api/auth/login", s.login)
	protected.HandleFunc("POST /api/auth/logout", s.logout)
	protected.HandleFunc("GET /api/auth/me", s.getCurrentUser)
}

// registerPayload is the registration request body.
type registerPayload struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Password    string `json:"password"`
}

// loginPayload is the login request body.
type loginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// userResponse is the wire shape of an account.
type userResponse struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	CreatedAt   time.Time `json:"createdAt"`
}

// sessionResponse is returned by register and login.
type sessionResponse struct {
	User  userResponse `json:"user"`
	Token string       `json:"token"`
}

func toUserResponse(user *models.User) userResponse {
	return userResponse{
		ID:          user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		CreatedAt:   time.Unix(user.CreatedAt, 0).UTC(),
	}
}

func (s *AuthService) register(w http.ResponseWriter, r *http.Request) {
	var payload registerPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if payload.Email == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("email is required"))
		return
	}
	if payload.DisplayName == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("display name is required"))
		return
	}

	user, err := s.authenticator.Register(r.Context(), payload.Email, payload.DisplayName, payload.Password)
	if err != nil {
		slog.Error("Registration failed", "email", payload.Email, "error", err)
		switch {
		case errors.Is(err, auth.ErrEmailExists):
			writeError(w, http.StatusConflict, err)
		case errors.Is(err, auth.ErrWeakPassword):
			writeError(w, http.StatusBadRequest, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	token, err := s.jwtManager.Generate(user)
	if err != nil {
		slog.Error("Failed to generate token", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	slog.Info("User registered", "user_id", user.ID, "email", user.Email)
	writeJSON(w, http.StatusCreated, sessionResponse{User: toUserResponse(user), Token: token})
}

func (s *AuthService) login(w http.ResponseWriter, r *http.Request) {
	var payload loginPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if payload.Email == "" || payload.Password == "" {
		writeError(w, http.StatusBadRequest, auth.ErrInvalidCredentials)
		return
	}

	user, err := s.authenticator.Authenticate(r.Context(), payload.Email, payload.Password)
	if err != nil {
		slog.Warn("Login failed", "email", payload.Email, "error", err)
		writeError(w, http.StatusUnauthorized, auth.ErrInvalidCredentials)
		return
	}

	token, err := s.jwtManager.Generate(user)
	if err != nil {
		slog.Error("Failed to generate token", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	slog.Info("User logged in", "user_id", user.ID)
	writeJSON(w, http.StatusOK, sessionResponse{User: toUserResponse(user), Token: token})
}

// logout is a no-op on the server side: tokens are stateless JWTs and the
// client discards its copy.
func (s *AuthService) logout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{})
}

// getCurrentUser returns the identity carried by the caller's token.
func (s *AuthService) getCurrentUser(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, auth.ErrMissingToken)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user": map[string]string{
			"id":    userID,
			"email": middleware.GetEmail(r.Context()),
		},
	})
}
