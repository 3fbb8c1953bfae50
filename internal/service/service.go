// Package service holds the business logic: the auth session lifecycle and
// the owner-scoped task engine. Stores, hashing and event delivery are
// consumed through the small interfaces below.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/iliyamo/task-manager/internal/model"
	"github.com/iliyamo/task-manager/internal/queue"
)

// UserStore is the credential store.
type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, id string) (*model.User, error)
}

// RefreshTokenStore persists refresh tokens by hash. Rotate must delete
// oldHash and insert next atomically, failing with repository.ErrNotFound
// when oldHash is already gone.
type RefreshTokenStore interface {
	Create(ctx context.Context, t *model.RefreshToken) error
	FindByHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error)
	DeleteByHash(ctx context.Context, tokenHash string) (bool, error)
	Rotate(ctx context.Context, oldHash string, next *model.RefreshToken) error
	DeleteAllForUser(ctx context.Context, userID string) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// TaskStore is the owner-scoped task store.
type TaskStore interface {
	Create(ctx context.Context, t *model.Task) error
	GetByIDAndOwner(ctx context.Context, id, userID string) (*model.Task, error)
	Update(ctx context.Context, id, userID string, p model.TaskPatch, now time.Time) (*model.Task, error)
	ToggleStatus(ctx context.Context, id, userID string, now time.Time) (*model.Task, error)
	Delete(ctx context.Context, id, userID string) error
	List(ctx context.Context, userID string, f model.TaskFilter) ([]model.Task, int64, error)
	CountByStatus(ctx context.Context, userID string) (model.TaskStats, error)
}

// PasswordHasher hashes and verifies credentials.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(hash, plain string) bool
}

// EventPublisher delivers activity events.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.ActivityEvent) error
}

// NoopPublisher drops every event. Used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, queue.ActivityEvent) error { return nil }

const publishTimeout = 2 * time.Second

// publish delivers ev best effort. The request's cancellation does not
// cut delivery short, but a slow broker cannot stall it for long.
func publish(ctx context.Context, p EventPublisher, log *slog.Logger, ev queue.ActivityEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := p.Publish(ctx, ev); err != nil {
		log.Warn("activity event not delivered", slog.String("type", ev.Type), slog.String("error", err.Error()))
	}
}
