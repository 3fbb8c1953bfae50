package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/task-manager/internal/handler"
	"github.com/iliyamo/task-manager/internal/middleware"
	"github.com/iliyamo/task-manager/internal/utils"
)

// RegisterTasks registers /tasks. All routes require a valid access token;
// the limiter and cache run after JWTAuth so both can key on the user.
func RegisterTasks(api *echo.Group, h *handler.TaskHandler, tokens *utils.TokenService, limit, cache echo.MiddlewareFunc) {
	g := api.Group("/tasks",
		middleware.JWTAuth(tokens),
		orNoop(limit),
		orNoop(cache),
	)
	g.GET("", h.List)
	g.POST("", h.Create)
	g.GET("/stats", h.Stats)
	g.GET("/:id", h.Get)
	g.PATCH("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
	g.POST("/:id/toggle", h.Toggle)
}
