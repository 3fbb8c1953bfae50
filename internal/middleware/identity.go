package middleware

import "github.com/labstack/echo/v4"

// currentUserID returns the authenticated user id, or "anon" on routes
// that run before (or without) JWTAuth.
func currentUserID(c echo.Context) string {
	if s, ok := SessionFrom(c); ok {
		return s.UserID
	}
	return "anon"
}
