package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/iliyamo/task-manager/internal/model"
	"github.com/iliyamo/task-manager/internal/queue"
	"github.com/iliyamo/task-manager/internal/repository"
)

const (
	maxTitleLen       = 255
	maxDescriptionLen = 2000
	msgTaskNotFound   = "task not found"
)

// CreateTaskInput is the body of a create request. Status may be empty.
type CreateTaskInput struct {
	Title       string
	Description *string
	Status      string
}

// UpdateTaskInput is a partial update; nil fields are left unchanged.
type UpdateTaskInput struct {
	Title       *string
	Description *string
	Status      *string
}

// TaskPage is one page of a task listing.
type TaskPage struct {
	Tasks      []model.Task     `json:"tasks"`
	Pagination model.Pagination `json:"pagination"`
}

// TaskService is the task query engine. Every operation is scoped to the
// calling user; tasks of other users are indistinguishable from missing ones.
type TaskService struct {
	tasks  TaskStore
	events EventPublisher
	log    *slog.Logger
	now    func() time.Time
}

func NewTaskService(tasks TaskStore, events EventPublisher, log *slog.Logger) *TaskService {
	if events == nil {
		events = NoopPublisher{}
	}
	return &TaskService{
		tasks:  tasks,
		events: events,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ListTasks returns one page of the user's tasks. The filter is normalized
// first, so blank optional fields mean "no constraint". A page past the end
// is empty, not an error.
func (s *TaskService) ListTasks(ctx context.Context, userID string, f model.TaskFilter) (*TaskPage, error) {
	const op = "service.TaskService.ListTasks"

	f = f.Normalize()
	if err := f.Validate(); err != nil {
		return nil, validationError(strings.ReplaceAll(err.Error(), "\n", "; "))
	}

	tasks, total, err := s.tasks.List(ctx, userID, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &TaskPage{Tasks: tasks, Pagination: model.NewPagination(f.Page, f.Limit, total)}, nil
}

// GetTask returns one owned task.
func (s *TaskService) GetTask(ctx context.Context, userID, taskID string) (*model.Task, error) {
	const op = "service.TaskService.GetTask"

	t, err := s.tasks.GetByIDAndOwner(ctx, taskID, userID)
	if err != nil {
		return nil, s.storeError(op, err)
	}
	return t, nil
}

// GetTaskStats counts all of the user's tasks by status.
func (s *TaskService) GetTaskStats(ctx context.Context, userID string) (*model.TaskStats, error) {
	const op = "service.TaskService.GetTaskStats"

	stats, err := s.tasks.CountByStatus(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &stats, nil
}

// CreateTask stores a new task owned by userID. Status defaults to PENDING.
func (s *TaskService) CreateTask(ctx context.Context, userID string, in CreateTaskInput) (*model.Task, error) {
	const op = "service.TaskService.CreateTask"
	log := s.log.With(slog.String("op", op))

	title, err := cleanTitle(in.Title)
	if err != nil {
		return nil, err
	}
	desc, err := cleanDescription(in.Description)
	if err != nil {
		return nil, err
	}
	status := model.TaskPending
	if strings.TrimSpace(in.Status) != "" {
		if status, err = model.ParseTaskStatus(in.Status); err != nil {
			return nil, validationError(err.Error())
		}
	}

	t := &model.Task{Title: title, Status: status, UserID: userID, CreatedAt: s.now()}
	if desc != nil && *desc != "" {
		t.Description = desc
	}
	if err := s.tasks.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Debug("task created", slog.String("user_id", userID), slog.String("task_id", t.ID))
	s.emit(ctx, log, queue.EventTaskCreated, t)
	return t, nil
}

// UpdateTask applies a partial update. An empty description clears it.
func (s *TaskService) UpdateTask(ctx context.Context, userID, taskID string, in UpdateTaskInput) (*model.Task, error) {
	const op = "service.TaskService.UpdateTask"
	log := s.log.With(slog.String("op", op))

	var patch model.TaskPatch
	if in.Title != nil {
		title, err := cleanTitle(*in.Title)
		if err != nil {
			return nil, err
		}
		patch.Title = &title
	}
	if in.Description != nil {
		desc, err := cleanDescription(in.Description)
		if err != nil {
			return nil, err
		}
		patch.Description = desc
	}
	if in.Status != nil {
		status, err := model.ParseTaskStatus(*in.Status)
		if err != nil {
			return nil, validationError(err.Error())
		}
		patch.Status = &status
	}
	if patch.Empty() {
		return nil, validationError("no fields to update")
	}

	t, err := s.tasks.Update(ctx, taskID, userID, patch, s.now())
	if err != nil {
		return nil, s.storeError(op, err)
	}

	s.emit(ctx, log, queue.EventTaskUpdated, t)
	return t, nil
}

// DeleteTask removes an owned task.
func (s *TaskService) DeleteTask(ctx context.Context, userID, taskID string) error {
	const op = "service.TaskService.DeleteTask"
	log := s.log.With(slog.String("op", op))

	if err := s.tasks.Delete(ctx, taskID, userID); err != nil {
		return s.storeError(op, err)
	}

	s.emit(ctx, log, queue.EventTaskDeleted, &model.Task{ID: taskID, UserID: userID})
	return nil
}

// ToggleTaskStatus advances the task one step through
// PENDING -> IN_PROGRESS -> COMPLETED -> PENDING.
func (s *TaskService) ToggleTaskStatus(ctx context.Context, userID, taskID string) (*model.Task, error) {
	const op = "service.TaskService.ToggleTaskStatus"
	log := s.log.With(slog.String("op", op))

	t, err := s.tasks.ToggleStatus(ctx, taskID, userID, s.now())
	if err != nil {
		return nil, s.storeError(op, err)
	}

	s.emit(ctx, log, queue.EventTaskToggled, t)
	return t, nil
}

func (s *TaskService) storeError(op string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return notFoundError(msgTaskNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *TaskService) emit(ctx context.Context, log *slog.Logger, typ string, t *model.Task) {
	ev := queue.NewActivityEvent(typ, t.UserID)
	ev.TaskID = t.ID
	ev.TaskTitle = t.Title
	ev.Status = string(t.Status)
	publish(ctx, s.events, log, ev)
}

func cleanTitle(raw string) (string, error) {
	title := strings.TrimSpace(raw)
	if title == "" {
		return "", validationError("title is required")
	}
	if utf8.RuneCountInString(title) > maxTitleLen {
		return "", validationError(fmt.Sprintf("title must be at most %d characters", maxTitleLen))
	}
	return title, nil
}

// cleanDescription trims the description; nil stays nil.
func cleanDescription(raw *string) (*string, error) {
	if raw == nil {
		return nil, nil
	}
	desc := strings.TrimSpace(*raw)
	if utf8.RuneCountInString(desc) > maxDescriptionLen {
		return nil, validationError(fmt.Sprintf("description must be at most %d characters", maxDescriptionLen))
	}
	return &desc, nil
}
