package model

import "time"

// User represents an application user record as stored in the
// `users` table. Each field corresponds to a column in the database.
// PasswordHash never leaves the server; handlers render users through
// PublicUser.
//
// Fields:
//
//	ID           – opaque UUID primary key.
//	Email        – unique, trimmed and lower-cased address.
//	PasswordHash – bcrypt hash of the password.
//	Name         – optional display name (nil when not provided).
//	CreatedAt    – timestamp of creation.
//	UpdatedAt    – timestamp of last update.
type User struct {
	ID           string    // users.id
	Email        string    // users.email
	PasswordHash string    // users.password_hash
	Name         *string   // users.name (nullable)
	CreatedAt    time.Time // users.created_at
	UpdatedAt    time.Time // users.updated_at
}

// PublicUser is the client-facing view of a user.
type PublicUser struct {
	ID    string  `json:"id"`
	Email string  `json:"email"`
	Name  *string `json:"name"`
}

// Public strips credentials from u.
func (u *User) Public() PublicUser {
	return PublicUser{ID: u.ID, Email: u.Email, Name: u.Name}
}

// RefreshToken models an entry in the `refresh_tokens` table. The
// plain token is not stored; only its SHA-256 hash, which is the
// lookup key. A row exists exactly as long as the token is usable:
// consumption, logout and the expiry sweep all delete it.
//
// Fields:
//
//	ID        – primary key identifier.
//	UserID    – owner of the token.
//	TokenHash – SHA-256 hex digest of the token value.
//	ExpiresAt – expiration timestamp of the token.
//	CreatedAt – timestamp of creation.
type RefreshToken struct {
	ID        string    // refresh_tokens.id
	UserID    string    // refresh_tokens.user_id
	TokenHash string    // refresh_tokens.token_hash
	ExpiresAt time.Time // refresh_tokens.expires_at
	CreatedAt time.Time // refresh_tokens.created_at
}

// Expired reports whether the token is past its expiry at now.
func (t *RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
