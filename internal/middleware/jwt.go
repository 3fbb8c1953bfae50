package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/task-manager/internal/utils"
)

// sessionKey is where JWTAuth stores the Session in the echo context.
const sessionKey = "session"

// Session is the identity proven by a valid access token. It is attached
// to the request by JWTAuth and read by handlers through SessionFrom.
type Session struct {
	UserID string
	Email  string
}

// JWTAuth returns an Echo middleware that validates a Bearer access token
// and attaches the resulting Session to the context. Missing, malformed,
// forged and expired tokens all yield the same 401.
func JWTAuth(tokens *utils.TokenService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			scheme, raw, ok := strings.Cut(auth, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(raw) == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "access token required")
			}

			claims, err := tokens.VerifyAccessToken(strings.TrimSpace(raw))
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired access token")
			}

			c.Set(sessionKey, Session{UserID: claims.UserID, Email: claims.Email})
			return next(c)
		}
	}
}

// SessionFrom returns the Session attached by JWTAuth.
func SessionFrom(c echo.Context) (Session, bool) {
	s, ok := c.Get(sessionKey).(Session)
	return s, ok && s.UserID != ""
}
