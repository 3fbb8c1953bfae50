package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/task-manager/internal/database"
	"github.com/iliyamo/task-manager/internal/model"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = database.Migrate(context.Background(), db, database.DriverSQLite)
	require.NoError(t, err)
	return db
}

func createUser(t *testing.T, db *sql.DB, email string) *model.User {
	t.Helper()
	u := &model.User{Email: email, PasswordHash: "hash"}
	require.NoError(t, NewUserRepo(db).Create(context.Background(), u))
	return u
}

func createTask(t *testing.T, repo *TaskRepo, userID, title string, desc *string, status model.TaskStatus, created time.Time) *model.Task {
	t.Helper()
	task := &model.Task{Title: title, Description: desc, Status: status, UserID: userID, CreatedAt: created}
	require.NoError(t, repo.Create(context.Background(), task))
	return task
}

func strPtr(s string) *string { return &s }
