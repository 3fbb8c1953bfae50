package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/iliyamo/task-manager/internal/model"
	"github.com/iliyamo/task-manager/internal/queue"
	"github.com/iliyamo/task-manager/internal/repository"
	"github.com/iliyamo/task-manager/internal/utils"
)

const (
	minPasswordLen = 6
	maxPasswordLen = 72 // bcrypt ignores anything beyond 72 bytes
	maxNameLen     = 100
	maxEmailLen    = 255
)

// Messages shared by several failure paths so callers cannot tell them apart.
const (
	msgInvalidCredentials = "invalid email or password"
	msgInvalidRefresh     = "invalid or expired refresh token"
	msgUserNotFound       = "user not found"
)

// TokenPair is a freshly issued access and refresh token.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// AuthResult is returned by register and login.
type AuthResult struct {
	User model.PublicUser `json:"user"`
	TokenPair
}

type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

// AuthService runs the session lifecycle. Each refresh token it issues is
// persisted by hash and is good for exactly one rotation; logout and
// logout-all revoke, and the sweep removes expired rows.
type AuthService struct {
	users  UserStore
	tokens RefreshTokenStore
	hasher PasswordHasher
	jwt    *utils.TokenService
	events EventPublisher
	log    *slog.Logger
	now    func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

func NewAuthService(users UserStore, tokens RefreshTokenStore, hasher PasswordHasher, jwt *utils.TokenService, events EventPublisher, log *slog.Logger) *AuthService {
	if events == nil {
		events = NoopPublisher{}
	}
	return &AuthService{
		users:  users,
		tokens: tokens,
		hasher: hasher,
		jwt:    jwt,
		events: events,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Register creates the account and opens its first session.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	const op = "service.AuthService.Register"
	log := s.log.With(slog.String("op", op))

	email := repository.NormalizeEmail(in.Email)
	name := strings.TrimSpace(in.Name)
	if err := validateRegistration(email, in.Password, name); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("%s: hash password: %w", op, err)
	}
	user := &model.User{Email: email, PasswordHash: hash, CreatedAt: s.now()}
	if name != "" {
		user.Name = &name
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return nil, conflictError("user with this email already exists")
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	pair, err := s.openSession(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user registered", slog.String("user_id", user.ID))
	publish(ctx, s.events, log, queue.NewActivityEvent(queue.EventUserRegistered, user.ID))
	return &AuthResult{User: user.Public(), TokenPair: pair}, nil
}

// Login checks credentials and opens a new session. Other sessions of the
// same user stay valid.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	const op = "service.AuthService.Login"
	log := s.log.With(slog.String("op", op))

	email = repository.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, validationError("email and password are required")
	}

	user, err := s.users.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		// keep the response time close to the wrong-password path
		s.hasher.Verify(s.dummy(), password)
		log.Info("login failed")
		return nil, unauthorizedError(msgInvalidCredentials)
	case err != nil:
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !s.hasher.Verify(user.PasswordHash, password) {
		log.Info("login failed", slog.String("user_id", user.ID))
		return nil, unauthorizedError(msgInvalidCredentials)
	}

	pair, err := s.openSession(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user logged in", slog.String("user_id", user.ID))
	publish(ctx, s.events, log, queue.NewActivityEvent(queue.EventUserLoggedIn, user.ID))
	return &AuthResult{User: user.Public(), TokenPair: pair}, nil
}

// Refresh rotates a refresh token: the presented token is consumed and a
// new pair is returned. Of several concurrent calls with the same token at
// most one succeeds; the others get UNAUTHORIZED.
func (s *AuthService) Refresh(ctx context.Context, raw string) (*TokenPair, error) {
	const op = "service.AuthService.Refresh"
	log := s.log.With(slog.String("op", op))

	if strings.TrimSpace(raw) == "" {
		return nil, validationError("refresh token is required")
	}
	claims, err := s.jwt.VerifyRefreshToken(raw)
	if err != nil {
		return nil, unauthorizedError(msgInvalidRefresh)
	}

	hash := utils.HashRefreshToken(raw)
	rec, err := s.tokens.FindByHash(ctx, hash)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		log.Info("refresh token not found", slog.String("user_id", claims.UserID))
		return nil, unauthorizedError(msgInvalidRefresh)
	case err != nil:
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if rec.Expired(s.now()) {
		if _, err := s.tokens.DeleteByHash(ctx, hash); err != nil {
			return nil, fmt.Errorf("%s: drop expired: %w", op, err)
		}
		return nil, unauthorizedError(msgInvalidRefresh)
	}
	if rec.UserID != claims.UserID {
		return nil, unauthorizedError(msgInvalidRefresh)
	}

	user, err := s.users.GetByID(ctx, rec.UserID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, unauthorizedError(msgInvalidRefresh)
	case err != nil:
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	pair, next, err := s.issuePair(user)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.tokens.Rotate(ctx, hash, next); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Warn("refresh token already consumed", slog.String("user_id", user.ID))
			return nil, unauthorizedError(msgInvalidRefresh)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Debug("session refreshed", slog.String("user_id", user.ID))
	publish(ctx, s.events, log, queue.NewActivityEvent(queue.EventSessionRefreshed, user.ID))
	return &pair, nil
}

// Logout revokes one refresh token. Unknown, already revoked and expired
// tokens are not an error.
func (s *AuthService) Logout(ctx context.Context, raw string) error {
	const op = "service.AuthService.Logout"

	if strings.TrimSpace(raw) == "" {
		return nil
	}
	if _, err := s.tokens.DeleteByHash(ctx, utils.HashRefreshToken(raw)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// LogoutAll revokes every session of userID and returns how many were open.
func (s *AuthService) LogoutAll(ctx context.Context, userID string) (int64, error) {
	const op = "service.AuthService.LogoutAll"
	log := s.log.With(slog.String("op", op))

	n, err := s.tokens.DeleteAllForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("all sessions revoked", slog.String("user_id", userID), slog.Int64("count", n))
	publish(ctx, s.events, log, queue.NewActivityEvent(queue.EventUserLoggedOutAll, userID))
	return n, nil
}

// CurrentUser returns the public profile behind an access token.
func (s *AuthService) CurrentUser(ctx context.Context, userID string) (*model.PublicUser, error) {
	const op = "service.AuthService.CurrentUser"

	user, err := s.users.GetByID(ctx, userID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, notFoundError(msgUserNotFound)
	case err != nil:
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	pub := user.Public()
	return &pub, nil
}

// CleanupExpiredTokens deletes every expired refresh token and returns the
// number removed.
func (s *AuthService) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	const op = "service.AuthService.CleanupExpiredTokens"

	n, err := s.tokens.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if n > 0 {
		s.log.Info("expired refresh tokens removed", slog.String("op", op), slog.Int64("count", n))
	}
	return n, nil
}

// openSession issues a pair and stores its refresh token.
func (s *AuthService) openSession(ctx context.Context, user *model.User) (TokenPair, error) {
	pair, rec, err := s.issuePair(user)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.tokens.Create(ctx, rec); err != nil {
		return TokenPair{}, fmt.Errorf("store refresh token: %w", err)
	}
	return pair, nil
}

// issuePair signs both tokens and builds the refresh record without
// persisting it. The record expires together with the token's exp claim.
func (s *AuthService) issuePair(user *model.User) (TokenPair, *model.RefreshToken, error) {
	access, err := s.jwt.IssueAccessToken(user.ID, user.Email)
	if err != nil {
		return TokenPair{}, nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := s.jwt.IssueRefreshToken(user.ID, user.Email)
	if err != nil {
		return TokenPair{}, nil, fmt.Errorf("issue refresh token: %w", err)
	}
	rec := &model.RefreshToken{
		UserID:    user.ID,
		TokenHash: utils.HashRefreshToken(refresh.Token),
		ExpiresAt: refresh.ExpiresAt,
		CreatedAt: s.now(),
	}
	return TokenPair{AccessToken: access.Token, RefreshToken: refresh.Token}, rec, nil
}

func (s *AuthService) dummy() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash("not-a-real-password")
		if err == nil {
			s.dummyHash = h
		}
	})
	return s.dummyHash
}

func validateRegistration(email, password, name string) error {
	var problems []string
	if email == "" {
		problems = append(problems, "email is required")
	} else if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email || len(email) > maxEmailLen {
		problems = append(problems, "email is invalid")
	}
	switch {
	case utf8.RuneCountInString(password) < minPasswordLen:
		problems = append(problems, fmt.Sprintf("password must be at least %d characters", minPasswordLen))
	case len(password) > maxPasswordLen:
		problems = append(problems, fmt.Sprintf("password must be at most %d bytes", maxPasswordLen))
	}
	if utf8.RuneCountInString(name) > maxNameLen {
		problems = append(problems, fmt.Sprintf("name must be at most %d characters", maxNameLen))
	}
	if len(problems) > 0 {
		return validationError(strings.Join(problems, "; "))
	}
	return nil
}
