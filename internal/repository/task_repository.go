package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/task-manager/internal/model"
)

// TaskRepo is the owner-scoped task store. Every statement carries a
// user_id predicate, so a task owned by someone else behaves exactly like
// a missing one.
type TaskRepo struct{ DB *sql.DB }

func NewTaskRepo(db *sql.DB) *TaskRepo { return &TaskRepo{DB: db} }

const taskColumns = "id,title,description,status,user_id,created_at,updated_at"

// bumpUpdatedAt moves updated_at forward even when two writes land in the
// same millisecond. Takes the current time twice.
const bumpUpdatedAt = "updated_at = CASE WHEN ? > updated_at THEN ? ELSE updated_at + 1 END"

// Sortable columns. Title sorts case-insensitively on both dialects.
var sortColumns = map[model.SortField]string{
	model.SortByCreatedAt: "created_at",
	model.SortByUpdatedAt: "updated_at",
	model.SortByTitle:     "LOWER(title)",
}

// Create inserts t. ID, status and timestamps are filled in when zero.
func (r *TaskRepo) Create(ctx context.Context, t *model.Task) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = model.TaskPending
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	t.CreatedAt = fromMillis(toMillis(t.CreatedAt))
	t.UpdatedAt = t.CreatedAt

	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO tasks ("+taskColumns+") VALUES (?,?,?,?,?,?,?)",
		t.ID, t.Title, t.Description, string(t.Status), t.UserID, toMillis(t.CreatedAt), toMillis(t.UpdatedAt))
	if err != nil {
		return fmt.Errorf("repository.TaskRepo.Create: %w", err)
	}
	return nil
}

// GetByIDAndOwner returns the task only when userID owns it.
func (r *TaskRepo) GetByIDAndOwner(ctx context.Context, id, userID string) (*model.Task, error) {
	t, err := getTask(ctx, r.DB, id, userID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("repository.TaskRepo.GetByIDAndOwner: %w", err)
	}
	return t, err
}

// Update applies the non-nil fields of p in a single conditional UPDATE and
// returns the stored result. An empty description clears the column.
func (r *TaskRepo) Update(ctx context.Context, id, userID string, p model.TaskPatch, now time.Time) (*model.Task, error) {
	const op = "repository.TaskRepo.Update"

	set := []string{}
	args := []any{}
	if p.Title != nil {
		set = append(set, "title = ?")
		args = append(args, *p.Title)
	}
	if p.Description != nil {
		if *p.Description == "" {
			set = append(set, "description = NULL")
		} else {
			set = append(set, "description = ?")
			args = append(args, *p.Description)
		}
	}
	if p.Status != nil {
		set = append(set, "status = ?")
		args = append(args, string(*p.Status))
	}
	ms := toMillis(now)
	set = append(set, bumpUpdatedAt)
	args = append(args, ms, ms, id, userID)

	query := "UPDATE tasks SET " + strings.Join(set, ", ") + " WHERE id = ? AND user_id = ?"
	return r.mutate(ctx, op, id, userID, query, args)
}

// ToggleStatus advances the status one step through the cycle
// PENDING -> IN_PROGRESS -> COMPLETED -> PENDING. The successor is computed
// by the store from the current row, so concurrent toggles never skip or
// repeat a step.
func (r *TaskRepo) ToggleStatus(ctx context.Context, id, userID string, now time.Time) (*model.Task, error) {
	ms := toMillis(now)
	query := "UPDATE tasks SET status = CASE status" +
		" WHEN ? THEN ?" +
		" WHEN ? THEN ?" +
		" ELSE ? END, " + bumpUpdatedAt +
		" WHERE id = ? AND user_id = ?"
	args := []any{
		string(model.TaskPending), string(model.TaskPending.Next()),
		string(model.TaskInProgress), string(model.TaskInProgress.Next()),
		string(model.TaskCompleted.Next()),
		ms, ms, id, userID,
	}
	return r.mutate(ctx, "repository.TaskRepo.ToggleStatus", id, userID, query, args)
}

// mutate runs an owner-scoped UPDATE and reads the row back in the same
// transaction.
func (r *TaskRepo) mutate(ctx context.Context, op, id, userID, query string, args []any) (*model.Task, error) {
	var out *model.Task
	err := WithTx(ctx, r.DB, nil, func(ctx context.Context, tx DBTX) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		out, err = getTask(ctx, tx, id, userID)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// Delete removes the task when userID owns it.
func (r *TaskRepo) Delete(ctx context.Context, id, userID string) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM tasks WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return fmt.Errorf("repository.TaskRepo.Delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("repository.TaskRepo.Delete: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns one page of userID's tasks matching f together with the
// number of matching tasks before pagination. f must be normalized and
// valid. Ordering is total: ties on the sort key fall back to id.
func (r *TaskRepo) List(ctx context.Context, userID string, f model.TaskFilter) ([]model.Task, int64, error) {
	const op = "repository.TaskRepo.List"

	where := []string{"user_id = ?"}
	args := []any{userID}

	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Search != "" {
		pattern := "%" + escapeLike(strings.ToLower(f.Search)) + "%"
		where = append(where, "(LOWER(title) LIKE ? ESCAPE '!' OR LOWER(COALESCE(description, '')) LIKE ? ESCAPE '!')")
		args = append(args, pattern, pattern)
	}
	cond := strings.Join(where, " AND ")

	var total int64
	if err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%s: count: %w", op, err)
	}
	// pages past the end are empty; this also keeps the offset from overflowing
	pages := (total + int64(f.Limit) - 1) / int64(f.Limit)
	if int64(f.Page-1) >= pages {
		return []model.Task{}, total, nil
	}

	col, ok := sortColumns[f.SortBy]
	if !ok {
		col = sortColumns[model.SortByCreatedAt]
	}
	dir := "DESC"
	if f.SortOrder == model.SortAsc {
		dir = "ASC"
	}

	dataSQL := "SELECT " + taskColumns + " FROM tasks WHERE " + cond +
		" ORDER BY " + col + " " + dir + ", id ASC LIMIT ? OFFSET ?"
	argsData := append(append([]any{}, args...), f.Limit, f.Offset())

	rows, err := r.DB.QueryContext(ctx, dataSQL, argsData...)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := make([]model.Task, 0, f.Limit)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("%s: scan: %w", op, err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}
	return out, total, nil
}

// CountByStatus counts all of userID's tasks grouped by status.
func (r *TaskRepo) CountByStatus(ctx context.Context, userID string) (model.TaskStats, error) {
	const op = "repository.TaskRepo.CountByStatus"

	var stats model.TaskStats
	rows, err := r.DB.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM tasks WHERE user_id = ? GROUP BY status", userID)
	if err != nil {
		return stats, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return stats, fmt.Errorf("%s: scan: %w", op, err)
		}
		switch model.TaskStatus(status) {
		case model.TaskPending:
			stats.Pending += n
		case model.TaskInProgress:
			stats.InProgress += n
		case model.TaskCompleted:
			stats.Completed += n
		}
		stats.Total += n
	}
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("%s: %w", op, err)
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(s rowScanner) (*model.Task, error) {
	var (
		t                model.Task
		desc             sql.NullString
		status           string
		created, updated int64
	)
	if err := s.Scan(&t.ID, &t.Title, &desc, &status, &t.UserID, &created, &updated); err != nil {
		return nil, err
	}
	if desc.Valid {
		t.Description = &desc.String
	}
	t.Status = model.TaskStatus(status)
	t.CreatedAt = fromMillis(created)
	t.UpdatedAt = fromMillis(updated)
	return &t, nil
}

func getTask(ctx context.Context, q DBTX, id, userID string) (*model.Task, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+taskColumns+" FROM tasks WHERE id = ? AND user_id = ? LIMIT 1", id, userID)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

// escapeLike neutralises LIKE wildcards in user input; '!' is the escape
// character declared in the query.
func escapeLike(s string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return r.Replace(s)
}
