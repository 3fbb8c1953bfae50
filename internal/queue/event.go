// Package queue defines the activity events published over RabbitMQ and
// the publisher and consumer that move them.
package queue

import "time"

// ActivityQueue is the durable queue that carries ActivityEvent messages.
const ActivityQueue = "task.activity"

// Event types.
const (
	EventUserRegistered   = "user.registered"
	EventUserLoggedIn     = "user.logged_in"
	EventSessionRefreshed = "session.refreshed"
	EventUserLoggedOutAll = "user.logged_out_all"
	EventTaskCreated      = "task.created"
	EventTaskUpdated      = "task.updated"
	EventTaskDeleted      = "task.deleted"
	EventTaskToggled      = "task.toggled"
)

// ActivityEvent records one user-visible state change. It carries enough
// context for downstream consumers to log or aggregate activity without
// querying the primary database. Tokens and passwords never appear here.
type ActivityEvent struct {
	Type       string `json:"type"`
	UserID     string `json:"user_id"`
	TaskID     string `json:"task_id,omitempty"`
	TaskTitle  string `json:"task_title,omitempty"`
	Status     string `json:"status,omitempty"`
	OccurredAt string `json:"occurred_at"`
}

// NewActivityEvent stamps an event with the current UTC time.
func NewActivityEvent(typ, userID string) ActivityEvent {
	return ActivityEvent{Type: typ, UserID: userID, OccurredAt: time.Now().UTC().Format(time.RFC3339)}
}
