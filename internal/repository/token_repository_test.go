package repository

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/task-manager/internal/model"
)

func newToken(userID, hash string, expires time.Time) *model.RefreshToken {
	return &model.RefreshToken{UserID: userID, TokenHash: hash, ExpiresAt: expires}
}

func TestTokenRepo_CreateFindDelete(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	u := createUser(t, db, "a@x.com")
	repo := NewTokenRepo(db)
	ctx := context.Background()

	exp := time.Now().Add(time.Hour).UTC().Truncate(time.Millisecond)
	require.NoError(t, repo.Create(ctx, newToken(u.ID, "h1", exp)))

	got, err := repo.FindByHash(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.UserID)
	assert.True(t, exp.Equal(got.ExpiresAt))

	deleted, err := repo.DeleteByHash(ctx, "h1")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repo.DeleteByHash(ctx, "h1")
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = repo.FindByHash(ctx, "h1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTokenRepo_DuplicateHashRejected(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	u := createUser(t, db, "a@x.com")
	repo := NewTokenRepo(db)
	ctx := context.Background()

	exp := time.Now().Add(time.Hour)
	require.NoError(t, repo.Create(ctx, newToken(u.ID, "same", exp)))
	assert.Error(t, repo.Create(ctx, newToken(u.ID, "same", exp)))
}

func TestTokenRepo_Rotate(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	u := createUser(t, db, "a@x.com")
	repo := NewTokenRepo(db)
	ctx := context.Background()

	exp := time.Now().Add(time.Hour)
	require.NoError(t, repo.Create(ctx, newToken(u.ID, "old", exp)))

	require.NoError(t, repo.Rotate(ctx, "old", newToken(u.ID, "new", exp)))
	_, err := repo.FindByHash(ctx, "old")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.FindByHash(ctx, "new")
	assert.NoError(t, err)

	// old token is gone: the replacement must not be stored
	err = repo.Rotate(ctx, "old", newToken(u.ID, "newer", exp))
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.FindByHash(ctx, "newer")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTokenRepo_RotateIsExclusiveUnderConcurrency(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	u := createUser(t, db, "a@x.com")
	repo := NewTokenRepo(db)
	ctx := context.Background()

	exp := time.Now().Add(time.Hour)
	require.NoError(t, repo.Create(ctx, newToken(u.ID, "old", exp)))

	const callers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		wins     int
		notFound int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := repo.Rotate(ctx, "old", newToken(u.ID, "next-"+string(rune('a'+i)), exp))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case err == ErrNotFound:
				notFound++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, callers-1, notFound)

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM refresh_tokens WHERE user_id = ?", u.ID).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestTokenRepo_DeleteAllForUserAndExpired(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	a := createUser(t, db, "a@x.com")
	b := createUser(t, db, "b@x.com")
	repo := NewTokenRepo(db)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, repo.Create(ctx, newToken(a.ID, "a1", now.Add(time.Hour))))
	require.NoError(t, repo.Create(ctx, newToken(a.ID, "a2", now.Add(-time.Minute))))
	require.NoError(t, repo.Create(ctx, newToken(b.ID, "b1", now.Add(-time.Hour))))
	require.NoError(t, repo.Create(ctx, newToken(b.ID, "b2", now.Add(time.Hour))))

	n, err := repo.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = repo.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	n, err = repo.DeleteAllForUser(ctx, a.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = repo.FindByHash(ctx, "b2")
	assert.NoError(t, err)
}

func TestTokenRepo_RotateRollsBackOnInsertFailure(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM refresh_tokens WHERE token_hash=?")).
		WithArgs("old").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO refresh_tokens")).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err = NewTokenRepo(db).Rotate(context.Background(), "old", newToken("u", "new", time.Now().Add(time.Hour)))
	if err == nil {
		t.Fatalf("expected error")
	}
	assert.ErrorIs(t, err, assert.AnError)
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
