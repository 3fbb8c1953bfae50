package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/task-manager/internal/middleware"
	"github.com/iliyamo/task-manager/internal/model"
	"github.com/iliyamo/task-manager/internal/service"
)

// TaskHandler serves /tasks. Every route sits behind JWTAuth and only
// ever touches the caller's own tasks.
type TaskHandler struct {
	Tasks   *service.TaskService
	Timeout time.Duration
}

func NewTaskHandler(tasks *service.TaskService, timeout time.Duration) *TaskHandler {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &TaskHandler{Tasks: tasks, Timeout: timeout}
}

type createTaskReq struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
	Status      string  `json:"status"`
}

type updateTaskReq struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
}

// List handles GET /tasks?page&limit&status&search&sortBy&sortOrder.
func (h *TaskHandler) List(c echo.Context) error {
	userID, err := h.caller(c)
	if err != nil {
		return err
	}

	var f model.TaskFilter
	if err := echo.QueryParamsBinder(c).
		Int("page", &f.Page).
		Int("limit", &f.Limit).
		BindError(); err != nil {
		return badRequest("page and limit must be integers")
	}
	f.Status = model.TaskStatus(c.QueryParam("status"))
	f.Search = c.QueryParam("search")
	f.SortBy = model.SortField(c.QueryParam("sortBy"))
	f.SortOrder = model.SortOrder(c.QueryParam("sortOrder"))

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.Timeout)
	defer cancel()

	page, err := h.Tasks.ListTasks(ctx, userID, f)
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, "", page)
}

// Stats handles GET /tasks/stats.
func (h *TaskHandler) Stats(c echo.Context) error {
	userID, err := h.caller(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.Timeout)
	defer cancel()

	stats, err := h.Tasks.GetTaskStats(ctx, userID)
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, "", echo.Map{"stats": stats})
}

// Get handles GET /tasks/:id.
func (h *TaskHandler) Get(c echo.Context) error {
	userID, err := h.caller(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.Timeout)
	defer cancel()

	task, err := h.Tasks.GetTask(ctx, userID, c.Param("id"))
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, "", echo.Map{"task": task})
}

// Create handles POST /tasks.
func (h *TaskHandler) Create(c echo.Context) error {
	userID, err := h.caller(c)
	if err != nil {
		return err
	}
	var req createTaskReq
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.Timeout)
	defer cancel()

	task, err := h.Tasks.CreateTask(ctx, userID, service.CreateTaskInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
	})
	if err != nil {
		return err
	}
	return success(c, http.StatusCreated, "Task created successfully", echo.Map{"task": task})
}

// Update handles PATCH /tasks/:id. Absent fields are left unchanged.
func (h *TaskHandler) Update(c echo.Context) error {
	userID, err := h.caller(c)
	if err != nil {
		return err
	}
	var req updateTaskReq
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.Timeout)
	defer cancel()

	task, err := h.Tasks.UpdateTask(ctx, userID, c.Param("id"), service.UpdateTaskInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
	})
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, "Task updated successfully", echo.Map{"task": task})
}

// Delete handles DELETE /tasks/:id.
func (h *TaskHandler) Delete(c echo.Context) error {
	userID, err := h.caller(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.Timeout)
	defer cancel()

	if err := h.Tasks.DeleteTask(ctx, userID, c.Param("id")); err != nil {
		return err
	}
	return success(c, http.StatusOK, "Task deleted successfully", nil)
}

// Toggle handles POST /tasks/:id/toggle.
func (h *TaskHandler) Toggle(c echo.Context) error {
	userID, err := h.caller(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.Timeout)
	defer cancel()

	task, err := h.Tasks.ToggleTaskStatus(ctx, userID, c.Param("id"))
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, "Task status toggled successfully", echo.Map{"task": task})
}

func (h *TaskHandler) caller(c echo.Context) (string, error) {
	s, ok := middleware.SessionFrom(c)
	if !ok {
		return "", echo.ErrUnauthorized
	}
	return s.UserID, nil
}
