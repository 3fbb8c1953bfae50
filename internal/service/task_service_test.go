package service

import (
	"context"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/task-manager/internal/model"
	"github.com/iliyamo/task-manager/internal/queue"
)

func TestCreateThenToggle(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	user := env.register(t, "a@x.com").User
	ctx := context.Background()

	task, err := env.task.CreateTask(ctx, user.ID, CreateTaskInput{Title: "A"})
	require.NoError(t, err)
	assert.Equal(t, model.TaskPending, task.Status)
	assert.Nil(t, task.Description)
	assert.Equal(t, user.ID, task.UserID)

	toggled, err := env.task.ToggleTaskStatus(ctx, user.ID, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskInProgress, toggled.Status)
	assert.True(t, toggled.UpdatedAt.After(toggled.CreatedAt))

	for _, want := range []model.TaskStatus{model.TaskCompleted, model.TaskPending} {
		toggled, err = env.task.ToggleTaskStatus(ctx, user.ID, task.ID)
		require.NoError(t, err)
		assert.Equal(t, want, toggled.Status)
	}

	types := env.events.types()
	assert.Contains(t, types, queue.EventTaskCreated)
	assert.Contains(t, types, queue.EventTaskToggled)
}

func TestCreateTask_Validation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	user := env.register(t, "a@x.com").User
	ctx := context.Background()

	_, err := env.task.CreateTask(ctx, user.ID, CreateTaskInput{Title: "   "})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = env.task.CreateTask(ctx, user.ID, CreateTaskInput{Title: "A", Status: "DONE"})
	assert.ErrorIs(t, err, ErrValidation)

	task, err := env.task.CreateTask(ctx, user.ID, CreateTaskInput{
		Title:       "  Trimmed  ",
		Description: strPtr("  notes "),
		Status:      "completed",
	})
	require.NoError(t, err)
	assert.Equal(t, "Trimmed", task.Title)
	require.NotNil(t, task.Description)
	assert.Equal(t, "notes", *task.Description)
	assert.Equal(t, model.TaskCompleted, task.Status)
}

func TestUpdateTask(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	alice := env.register(t, "a@x.com").User
	bob := env.register(t, "b@x.com").User
	ctx := context.Background()

	task, err := env.task.CreateTask(ctx, alice.ID, CreateTaskInput{Title: "A", Description: strPtr("d")})
	require.NoError(t, err)

	_, err = env.task.UpdateTask(ctx, bob.ID, task.ID, UpdateTaskInput{Title: strPtr("mine now")})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.task.UpdateTask(ctx, alice.ID, task.ID, UpdateTaskInput{})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = env.task.UpdateTask(ctx, alice.ID, task.ID, UpdateTaskInput{Title: strPtr("")})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = env.task.UpdateTask(ctx, alice.ID, task.ID, UpdateTaskInput{Status: strPtr("nope")})
	assert.ErrorIs(t, err, ErrValidation)

	updated, err := env.task.UpdateTask(ctx, alice.ID, task.ID, UpdateTaskInput{
		Title:       strPtr("B"),
		Description: strPtr(""),
		Status:      strPtr("in_progress"),
	})
	require.NoError(t, err)
	assert.Equal(t, "B", updated.Title)
	assert.Nil(t, updated.Description)
	assert.Equal(t, model.TaskInProgress, updated.Status)
	assert.True(t, updated.UpdatedAt.After(task.UpdatedAt))

	got, err := env.task.GetTask(ctx, alice.ID, task.ID)
	require.NoError(t, err)
	assert.Equal(t, *updated, *got)

	_, err = env.task.GetTask(ctx, bob.ID, task.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteTask(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	alice := env.register(t, "a@x.com").User
	bob := env.register(t, "b@x.com").User
	ctx := context.Background()

	task, err := env.task.CreateTask(ctx, alice.ID, CreateTaskInput{Title: "A"})
	require.NoError(t, err)

	assert.ErrorIs(t, env.task.DeleteTask(ctx, bob.ID, task.ID), ErrNotFound)
	require.NoError(t, env.task.DeleteTask(ctx, alice.ID, task.ID))
	assert.ErrorIs(t, env.task.DeleteTask(ctx, alice.ID, task.ID), ErrNotFound)
	_, err = env.task.ToggleTaskStatus(ctx, alice.ID, task.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListTasks_PaginationAndStats(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	alice := env.register(t, "a@x.com").User
	bob := env.register(t, "b@x.com").User
	ctx := context.Background()

	statuses := []string{"PENDING", "IN_PROGRESS", "COMPLETED"}
	for i := 0; i < 25; i++ {
		_, err := env.task.CreateTask(ctx, alice.ID, CreateTaskInput{
			Title:  fmt.Sprintf("task %02d", i),
			Status: statuses[i%3],
		})
		require.NoError(t, err)
	}
	_, err := env.task.CreateTask(ctx, bob.ID, CreateTaskInput{Title: "bob's"})
	require.NoError(t, err)

	page3, err := env.task.ListTasks(ctx, alice.ID, model.TaskFilter{Page: 3, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, page3.Tasks, 5)
	assert.Equal(t, model.Pagination{Page: 3, Limit: 10, Total: 25, TotalPages: 3, HasNext: false, HasPrev: true}, page3.Pagination)

	beyond, err := env.task.ListTasks(ctx, alice.ID, model.TaskFilter{Page: 4, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, beyond.Tasks)
	assert.NotNil(t, beyond.Tasks)
	assert.EqualValues(t, 25, beyond.Pagination.Total)

	stats, err := env.task.GetTaskStats(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStats{Total: 25, Pending: 9, InProgress: 8, Completed: 8}, *stats)

	all, err := env.task.ListTasks(ctx, alice.ID, model.TaskFilter{})
	require.NoError(t, err)
	assert.Equal(t, stats.Total, all.Pagination.Total)
	assert.Equal(t, stats.Total, stats.Pending+stats.InProgress+stats.Completed)

	pending, err := env.task.ListTasks(ctx, alice.ID, model.TaskFilter{Status: "pending", Limit: 100})
	require.NoError(t, err)
	assert.EqualValues(t, stats.Pending, pending.Pagination.Total)
}

func TestListTasks_HugePageIsEmpty(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	user := env.register(t, "a@x.com").User
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := env.task.CreateTask(ctx, user.ID, CreateTaskInput{Title: fmt.Sprintf("task %d", i)})
		require.NoError(t, err)
	}

	page, err := env.task.ListTasks(ctx, user.ID, model.TaskFilter{Page: 1 << 62, Limit: 4})
	require.NoError(t, err)
	assert.Empty(t, page.Tasks)
	assert.Equal(t, model.Pagination{Page: 1 << 62, Limit: 4, Total: 3, TotalPages: 1, HasNext: false, HasPrev: true}, page.Pagination)
}

func TestListTasks_SearchFoldsNonASCII(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	user := env.register(t, "a@x.com").User
	ctx := context.Background()

	_, err := env.task.CreateTask(ctx, user.ID, CreateTaskInput{Title: "École meeting"})
	require.NoError(t, err)
	_, err = env.task.CreateTask(ctx, user.ID, CreateTaskInput{Title: "groceries"})
	require.NoError(t, err)

	for _, term := range []string{"école", "ÉCOLE", "École"} {
		page, err := env.task.ListTasks(ctx, user.ID, model.TaskFilter{Search: term})
		require.NoError(t, err)
		require.Len(t, page.Tasks, 1, term)
		assert.Equal(t, "École meeting", page.Tasks[0].Title)
	}
}

func TestListTasks_AbsentFieldsAreEquivalent(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	user := env.register(t, "a@x.com").User
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := env.task.CreateTask(ctx, user.ID, CreateTaskInput{Title: fmt.Sprintf("t%d", i)})
		require.NoError(t, err)
	}

	base, err := env.task.ListTasks(ctx, user.ID, model.TaskFilter{})
	require.NoError(t, err)
	for _, f := range []model.TaskFilter{
		{Status: "  "},
		{Search: "   "},
		{Page: 1, Limit: 10, SortBy: model.SortByCreatedAt, SortOrder: "DESC"},
	} {
		got, err := env.task.ListTasks(ctx, user.ID, f)
		require.NoError(t, err)
		assert.Equal(t, base, got, "%+v", f)
	}
}

func TestListTasks_RejectsBadQuery(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	user := env.register(t, "a@x.com").User
	ctx := context.Background()

	for _, f := range []model.TaskFilter{
		{Page: -1},
		{Limit: 101},
		{Status: "DONE"},
		{SortBy: "priority"},
		{SortOrder: "sideways"},
	} {
		_, err := env.task.ListTasks(ctx, user.ID, f)
		assert.ErrorIs(t, err, ErrValidation, "%+v", f)
	}
}

func TestSeedTasks(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	user := env.register(t, "a@x.com").User
	ctx := context.Background()
	rng := rand.New(rand.NewPCG(1, 2))

	n, err := SeedTasks(ctx, env.users, env.tasks, "A@x.com", 12, rng)
	require.NoError(t, err)
	assert.Equal(t, 12, n)

	stats, err := env.task.GetTaskStats(ctx, user.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 12, stats.Total)

	_, err = SeedTasks(ctx, env.users, env.tasks, "nobody@x.com", 5, rng)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = SeedTasks(ctx, env.users, env.tasks, "a@x.com", 0, rng)
	assert.ErrorIs(t, err, ErrValidation)
}
