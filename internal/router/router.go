// Package router wires handlers and middleware onto an echo instance.
package router

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/task-manager/internal/config"
	"github.com/iliyamo/task-manager/internal/handler"
	"github.com/iliyamo/task-manager/internal/middleware"
	"github.com/iliyamo/task-manager/internal/utils"
)

// Deps are the pieces New mounts. RateLimit and Cache may be nil.
type Deps struct {
	Auth      *handler.AuthHandler
	Tasks     *handler.TaskHandler
	Tokens    *utils.TokenService
	Metrics   *middleware.Metrics
	RateLimit echo.MiddlewareFunc
	Cache     echo.MiddlewareFunc
}

// New builds the echo instance with the global middleware chain and
// every route registered.
func New(cfg *config.Config, log *slog.Logger, d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.HTTPErrorHandler(log)

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	if d.Metrics != nil {
		e.Use(d.Metrics.Middleware())
	}
	e.Use(middleware.RequestLogger(log))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: strings.Split(cfg.CORSOrigin, ","),
		AllowMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut,
			http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAuthorization},
		AllowCredentials: true,
	}))
	e.Use(echomw.BodyLimit("1M"))

	RegisterRoutes(e, d.Metrics)

	api := e.Group(cfg.APIPrefix)
	RegisterAuth(api, d.Auth, d.Tokens, d.RateLimit)
	RegisterTasks(api, d.Tasks, d.Tokens, d.RateLimit, d.Cache)
	return e
}

// RegisterRoutes registers routes that do not require authentication and
// live outside the API prefix.
func RegisterRoutes(e *echo.Echo, m *middleware.Metrics) {
	e.GET("/health", handler.Health)
	if m != nil {
		e.GET("/metrics", m.Handler())
	}
}

// RegisterAuth registers /auth. register, login, refresh and logout are
// public and rate limited; logout-all and me need an access token.
func RegisterAuth(api *echo.Group, a *handler.AuthHandler, tokens *utils.TokenService, limit echo.MiddlewareFunc) {
	g := api.Group("/auth", orNoop(limit))
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout)

	jwt := middleware.JWTAuth(tokens)
	g.POST("/logout-all", a.LogoutAll, jwt)
	g.GET("/me", a.Me, jwt)
}

func orNoop(m echo.MiddlewareFunc) echo.MiddlewareFunc {
	if m == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return m
}
