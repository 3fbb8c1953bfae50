package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/task-manager/internal/model"
)

// TokenRepo persists refresh tokens keyed by the SHA-256 of their value.
// A row is deleted when its token is consumed, revoked or swept.
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

// Create inserts a refresh token record.
func (r *TokenRepo) Create(ctx context.Context, t *model.RefreshToken) error {
	if err := insertToken(ctx, r.DB, t); err != nil {
		return fmt.Errorf("repository.TokenRepo.Create: %w", err)
	}
	return nil
}

// FindByHash returns the record for tokenHash or ErrNotFound.
func (r *TokenRepo) FindByHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error) {
	var (
		t                model.RefreshToken
		expires, created int64
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,user_id,token_hash,expires_at,created_at FROM refresh_tokens WHERE token_hash=? LIMIT 1",
		tokenHash).Scan(&t.ID, &t.UserID, &t.TokenHash, &expires, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository.TokenRepo.FindByHash: %w", err)
	}
	t.ExpiresAt = fromMillis(expires)
	t.CreatedAt = fromMillis(created)
	return &t, nil
}

// DeleteByHash removes the record for tokenHash and reports whether a row
// was actually deleted.
func (r *TokenRepo) DeleteByHash(ctx context.Context, tokenHash string) (bool, error) {
	n, err := deleteTokenByHash(ctx, r.DB, tokenHash)
	if err != nil {
		return false, fmt.Errorf("repository.TokenRepo.DeleteByHash: %w", err)
	}
	return n > 0, nil
}

// Rotate consumes the token identified by oldHash and stores next in the
// same transaction. The consuming DELETE is conditional: if another caller
// already removed the row, nothing is inserted and ErrNotFound is returned.
func (r *TokenRepo) Rotate(ctx context.Context, oldHash string, next *model.RefreshToken) error {
	const op = "repository.TokenRepo.Rotate"

	err := WithTx(ctx, r.DB, nil, func(ctx context.Context, tx DBTX) error {
		n, err := deleteTokenByHash(ctx, tx, oldHash)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return insertToken(ctx, tx, next)
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return err
}

// DeleteAllForUser revokes every session of userID.
func (r *TokenRepo) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE user_id=?", userID)
	if err != nil {
		return 0, fmt.Errorf("repository.TokenRepo.DeleteAllForUser: %w", err)
	}
	return res.RowsAffected()
}

// DeleteExpired sweeps every token whose expiry is at or before now.
func (r *TokenRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE expires_at <= ?", toMillis(now))
	if err != nil {
		return 0, fmt.Errorf("repository.TokenRepo.DeleteExpired: %w", err)
	}
	return res.RowsAffected()
}

func insertToken(ctx context.Context, q DBTX, t *model.RefreshToken) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := q.ExecContext(ctx,
		"INSERT INTO refresh_tokens (id,user_id,token_hash,expires_at,created_at) VALUES (?,?,?,?,?)",
		t.ID, t.UserID, t.TokenHash, toMillis(t.ExpiresAt), toMillis(t.CreatedAt))
	return err
}

func deleteTokenByHash(ctx context.Context, q DBTX, tokenHash string) (int64, error) {
	res, err := q.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE token_hash=?", tokenHash)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
