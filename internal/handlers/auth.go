package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/aegisshield/aegis/internal/apperrors"
	"github.com/aegisshield/aegis/internal/handlers/render"
	"github.com/aegisshield/aegis/internal/handlers/userctx"
	"github.com/aegisshield/aegis/internal/models"
	"github.com/aegisshield/aegis/internal/service/auth"
)

// AuthService is what the boundary needs from the auth core
type AuthService interface {
	Register(ctx context.Context, arg auth.RegisterParams) (models.User, error)
	Login(ctx context.Context, usernameOrEmail string, password string) (models.TokenBundle, error)
	Refresh(ctx context.Context, refreshToken string) (models.TokenBundle, error)
	Validate(ctx context.Context, bearerToken string) models.AuthOutcome
	ResetPassword(ctx context.Context, usernameOrEmail string, newPassword string) (bool, error)
	TokenRoles(bearerToken string) ([]string, error)
}

type UserResponse struct {
	ID          int64      `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	FullName    string     `json:"fullName"`
	IsActive    bool       `json:"isActive"`
	IsVerified  bool       `json:"isVerified"`
	LastLoginAt *time.Time `json:"lastLoginAt"`
	CreatedAt   time.Time  `json:"createdAt"`
	Roles       []string   `json:"roles"`
}

func userResponse(u models.User, roles []string) UserResponse {
	if roles == nil {
		roles = []string{}
	}
	return UserResponse{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		FullName:    u.FullName,
		IsActive:    u.IsActive,
		IsVerified:  u.IsVerified,
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
		Roles:       roles,
	}
}

type LoginResponse struct {
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	User         UserResponse `json:"user"`
	Roles        []string     `json:"roles"`
	ExpiresAt    time.Time    `json:"expiresAt"`
}

func loginResponse(bundle models.TokenBundle) LoginResponse {
	return LoginResponse{
		AccessToken:  bundle.Access.Value,
		RefreshToken: bundle.Refresh,
		User:         userResponse(bundle.User, bundle.Roles),
		Roles:        bundle.Roles,
		ExpiresAt:    bundle.Access.ExpiresAt,
	}
}

type AuthHandler struct {
	authService AuthService
	logger      logger
}

func NewAuth(as AuthService, l logger) *AuthHandler {
	return &AuthHandler{authService: as, logger: l}
}

func (h *AuthHandler) register(w http.ResponseWriter, r *http.Request) {
	type RegisterRequest struct {
		Username string `json:"username" validate:"required,min=2,max=50"`
		Email    string `json:"email" validate:"required,email,max=100"`
		Password string `json:"password" validate:"required,min=8"`
		FullName string `json:"fullName" validate:"max=100"`
	}

	data, err := render.BindAndValidate[RegisterRequest](w, r)
	if err != nil {
		return
	}

	user, err := h.authService.Register(r.Context(), auth.RegisterParams{
		Username: data.Username,
		Email:    data.Email,
		Password: data.Password,
		FullName: data.FullName,
	})
	if err != nil {
		h.renderError(w, err)
		return
	}

	render.JSONWithStatus(w, userResponse(user, []string{}), http.StatusCreated)
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	type LoginRequest struct {
		UsernameOrEmail string `json:"usernameOrEmail" validate:"required"`
		Password        string `json:"password" validate:"required"`
	}

	data, err := render.BindAndValidate[LoginRequest](w, r)
	if err != nil {
		return
	}

	bundle, err := h.authService.Login(r.Context(), data.UsernameOrEmail, data.Password)
	if err != nil {
		h.renderError(w, err)
		return
	}

	render.JSON(w, loginResponse(bundle))
}

func (h *AuthHandler) refresh(w http.ResponseWriter, r *http.Request) {
	type RefreshTokenRequest struct {
		RefreshToken string `json:"refreshToken" validate:"required"`
	}

	data, err := render.BindAndValidate[RefreshTokenRequest](w, r)
	if err != nil {
		return
	}

	bundle, err := h.authService.Refresh(r.Context(), data.RefreshToken)
	if err != nil {
		h.renderError(w, err)
		return
	}

	render.JSON(w, loginResponse(bundle))
}

// validate answers whether the presented bearer token is good and who
// it belongs to. A missing Authorization header is a transport level
// defect and gets 401, a well formed but rejected token is an ordinary
// negative answer with status 200.
func (h *AuthHandler) validate(w http.ResponseWriter, r *http.Request) {
	type TokenValidationResponse struct {
		Valid     bool          `json:"valid"`
		User      *UserResponse `json:"user,omitempty"`
		Timestamp int64         `json:"timestamp"`
	}

	token, ok := cutBearer(r.Header.Get("Authorization"))
	if !ok {
		render.AuthError(w, apperrors.ErrInvalidToken, http.StatusUnauthorized)
		return
	}

	outcome := h.authService.Validate(r.Context(), token)

	response := TokenValidationResponse{
		Valid:     outcome.Valid,
		Timestamp: time.Now().UnixMilli(),
	}
	if outcome.Valid {
		user := userResponse(outcome.User, outcome.Roles)
		response.User = &user
	}

	render.JSON(w, response)
}

// logout is stateless: tokens carry no server side state, the client
// discards them
func (h *AuthHandler) logout(w http.ResponseWriter, r *http.Request) {
	type LogoutResponse struct {
		Message   string `json:"message"`
		Timestamp int64  `json:"timestamp"`
	}

	render.JSON(w, LogoutResponse{
		Message:   "Successfully logged out",
		Timestamp: time.Now().UnixMilli(),
	})
}

// adminResetPassword force resets a user's password.
// Routed behind Auth + RequireRole("admin").
func (h *AuthHandler) adminResetPassword(w http.ResponseWriter, r *http.Request) {
	type AdminResetPasswordRequest struct {
		UsernameOrEmail string `json:"usernameOrEmail" validate:"required"`
		NewPassword     string `json:"newPassword" validate:"required,min=8"`
	}
	type AdminResetPasswordResponse struct {
		Success   bool   `json:"success"`
		Message   string `json:"message"`
		Timestamp int64  `json:"timestamp"`
	}

	data, err := render.BindAndValidate[AdminResetPasswordRequest](w, r)
	if err != nil {
		return
	}

	admin, _ := userctx.FromContext(r.Context())
	h.logger.Info("admin password reset requested", "admin", admin.User.Username, "target", data.UsernameOrEmail)

	success, err := h.authService.ResetPassword(r.Context(), data.UsernameOrEmail, data.NewPassword)
	if err != nil {
		h.renderError(w, err)
		return
	}

	response := AdminResetPasswordResponse{
		Success:   success,
		Timestamp: time.Now().UnixMilli(),
	}
	switch success {
	case true:
		response.Message = "Password reset successfully"
		render.JSON(w, response)
	default:
		response.Message = "User not found"
		render.JSONWithStatus(w, response, http.StatusBadRequest)
	}
}

// me returns the authenticated user, identity comes from the context
// set by the auth middleware
func (h *AuthHandler) me(w http.ResponseWriter, r *http.Request) {
	id, ok := userctx.FromContext(r.Context())
	if !ok {
		render.AuthError(w, apperrors.ErrInvalidToken, http.StatusUnauthorized)
		return
	}

	render.JSON(w, userResponse(id.User, id.Roles))
}

// renderError maps the closed auth taxonomy to transport status codes.
// Internal detail never leaks: anything outside the taxonomy renders as
// a plain internal error.
func (h *AuthHandler) renderError(w http.ResponseWriter, err error) {
	var authErr *apperrors.AuthError
	if !errors.As(err, &authErr) {
		h.logger.Error("unexpected error", "error", err.Error())
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var status int
	switch authErr.Code {
	case apperrors.ErrUserNotFound.Code,
		apperrors.ErrInvalidCredentials.Code,
		apperrors.ErrInvalidToken.Code,
		apperrors.ErrExpiredToken.Code:
		status = http.StatusUnauthorized
	case apperrors.ErrAccountInactive.Code:
		status = http.StatusForbidden
	case apperrors.ErrDuplicateUser.Code:
		status = http.StatusConflict
	case "INTERNAL_ERROR":
		status = http.StatusInternalServerError
	default:
		status = http.StatusBadRequest
	}

	render.AuthError(w, authErr, status)
}

func cutBearer(header string) (string, bool) {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", false
	}
	return token, true
}
