package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/task-manager/internal/middleware"
	"github.com/iliyamo/task-manager/internal/service"
)

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Auth    *service.AuthService
	Timeout time.Duration
}

func NewAuthHandler(auth *service.AuthService, timeout time.Duration) *AuthHandler {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &AuthHandler{Auth: auth, Timeout: timeout}
}

// ----- DTOs -----

type registerReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refreshToken"`
}

// Register: create user and return tokens immediately.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.Timeout)
	defer cancel()

	res, err := h.Auth.Register(ctx, service.RegisterInput{Email: req.Email, Password: req.Password, Name: req.Name})
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, "User registered successfully", res)
}

// Login: verify and return a new pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.Timeout)
	defer cancel()

	res, err := h.Auth.Login(ctx, req.Email, req.Password)
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, "Login successful", res)
}

// Refresh: consume the refresh token, return a new pair.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.Timeout)
	defer cancel()

	pair, err := h.Auth.Refresh(ctx, strings.TrimSpace(req.RefreshToken))
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, "Token refreshed successfully", pair)
}

// Logout revokes the presented refresh token. Unknown tokens and empty
// or unreadable bodies still succeed.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	// a bad body leaves RefreshToken empty, which Logout treats as nothing to revoke
	_ = c.Bind(&req)

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.Timeout)
	defer cancel()

	if err := h.Auth.Logout(ctx, strings.TrimSpace(req.RefreshToken)); err != nil {
		return err
	}
	return success(c, http.StatusOK, "Logout successful", nil)
}

// LogoutAll revokes every session of the caller (protected).
func (h *AuthHandler) LogoutAll(c echo.Context) error {
	s, ok := middleware.SessionFrom(c)
	if !ok {
		return echo.ErrUnauthorized
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.Timeout)
	defer cancel()

	if _, err := h.Auth.LogoutAll(ctx, s.UserID); err != nil {
		return err
	}
	return success(c, http.StatusOK, "Logged out from all devices", nil)
}

// Me returns the caller's profile (protected). A valid token whose user
// no longer exists is treated as unauthenticated.
func (h *AuthHandler) Me(c echo.Context) error {
	s, ok := middleware.SessionFrom(c)
	if !ok {
		return echo.ErrUnauthorized
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.Timeout)
	defer cancel()

	user, err := h.Auth.CurrentUser(ctx, s.UserID)
	if errors.Is(err, service.ErrNotFound) {
		return echo.NewHTTPError(http.StatusUnauthorized, "user not found")
	}
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, "", echo.Map{"user": user})
}
