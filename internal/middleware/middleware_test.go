package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/task-manager/internal/config"
	"github.com/iliyamo/task-manager/internal/utils"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func newTokens(t *testing.T) *utils.TokenService {
	t.Helper()
	s, err := utils.NewTokenService("access", "refresh", time.Minute, time.Hour)
	require.NoError(t, err)
	return s
}

func bearer(t *testing.T, tokens *utils.TokenService, userID string) string {
	t.Helper()
	tok, err := tokens.IssueAccessToken(userID, userID+"@x.com")
	require.NoError(t, err)
	return "Bearer " + tok.Token
}

func do(e *echo.Echo, method, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if auth != "" {
		req.Header.Set(echo.HeaderAuthorization, auth)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuth(t *testing.T) {
	t.Parallel()
	tokens := newTokens(t)

	e := echo.New()
	e.GET("/me", func(c echo.Context) error {
		s, ok := SessionFrom(c)
		if !ok {
			return c.NoContent(http.StatusInternalServerError)
		}
		return c.String(http.StatusOK, s.UserID+"|"+s.Email)
	}, JWTAuth(tokens))

	rec := do(e, http.MethodGet, "/me", bearer(t, tokens, "u1"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1|u1@x.com", rec.Body.String())

	refresh, err := tokens.IssueRefreshToken("u1", "u1@x.com")
	require.NoError(t, err)

	for _, auth := range []string{"", "Bearer", "Bearer ", "Basic abc", "Bearer garbage", "Bearer " + refresh.Token} {
		rec := do(e, http.MethodGet, "/me", auth)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "auth %q", auth)
	}
}

func TestTokenBucket(t *testing.T) {
	t.Parallel()
	_, rdb := newRedis(t)

	cfg := config.RateLimitConfig{
		Enabled:        true,
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: time.Hour,
		TTL:            5 * time.Hour,
		KeyStrategy:    "ip_route",
		Prefix:         "rl",
	}
	e := echo.New()
	e.GET("/ping", func(c echo.Context) error { return c.String(http.StatusOK, "pong") }, NewTokenBucket(cfg, rdb, discardLogger()))

	first := do(e, http.MethodGet, "/ping", "")
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "2", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/ping", "").Code)

	blocked := do(e, http.MethodGet, "/ping", "")
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.NotEmpty(t, blocked.Header().Get("Retry-After"))
}

func TestTokenBucket_FailsOpenWithoutRedis(t *testing.T) {
	t.Parallel()

	e := echo.New()
	mw := NewTokenBucket(config.RateLimitConfig{Enabled: true, Capacity: 1}, nil, discardLogger())
	e.GET("/ping", func(c echo.Context) error { return c.String(http.StatusOK, "pong") }, mw)
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/ping", "").Code)
	}
}

func TestBuildRateKey(t *testing.T) {
	t.Parallel()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/api/tasks")

	cfg := config.RateLimitConfig{Prefix: "rl", KeyStrategy: "user_route"}
	assert.Equal(t, "rl:user:anon:route:GET /api/tasks", buildRateKey(cfg, c))

	c.Set(sessionKey, Session{UserID: "u1"})
	cfg.KeyStrategy = ""
	assert.Equal(t, "rl:ip:10.0.0.1:user:u1:route:GET /api/tasks", buildRateKey(cfg, c))
}

func TestResponseCache_PerUserAndInvalidatedByWrites(t *testing.T) {
	t.Parallel()
	_, rdb := newRedis(t)
	tokens := newTokens(t)

	var reads atomic.Int64
	cache := NewRedisCache(config.CacheConfig{
		Enabled:      true,
		Methods:      []string{http.MethodGet},
		TTL:          time.Minute,
		Prefix:       "cache",
		MaxBodyBytes: 1 << 20,
	}, rdb, discardLogger())

	e := echo.New()
	g := e.Group("", JWTAuth(tokens), cache.Middleware())
	g.GET("/stats", func(c echo.Context) error {
		n := reads.Add(1)
		s, _ := SessionFrom(c)
		return c.JSON(http.StatusOK, map[string]any{"user": s.UserID, "read": n})
	})
	g.POST("/tasks", func(c echo.Context) error { return c.JSON(http.StatusCreated, map[string]string{"ok": "yes"}) })
	g.POST("/fail", func(c echo.Context) error { return echo.NewHTTPError(http.StatusBadRequest, "nope") })

	alice := bearer(t, tokens, "alice")
	bob := bearer(t, tokens, "bob")

	miss := do(e, http.MethodGet, "/stats", alice)
	assert.Equal(t, "MISS", miss.Header().Get("X-Cache"))
	hit := do(e, http.MethodGet, "/stats", alice)
	assert.Equal(t, "HIT", hit.Header().Get("X-Cache"))
	assert.JSONEq(t, miss.Body.String(), hit.Body.String())
	assert.EqualValues(t, 1, reads.Load())

	other := do(e, http.MethodGet, "/stats", bob)
	assert.Equal(t, "MISS", other.Header().Get("X-Cache"))
	assert.Contains(t, other.Body.String(), `"user":"bob"`)

	// failed writes keep the cache
	assert.Equal(t, http.StatusBadRequest, do(e, http.MethodPost, "/fail", alice).Code)
	assert.Equal(t, "HIT", do(e, http.MethodGet, "/stats", alice).Header().Get("X-Cache"))

	created := do(e, http.MethodPost, "/tasks", alice)
	assert.Equal(t, http.StatusCreated, created.Code)
	assert.JSONEq(t, `{"ok":"yes"}`, created.Body.String())

	after := do(e, http.MethodGet, "/stats", alice)
	assert.Equal(t, "MISS", after.Header().Get("X-Cache"))
	assert.True(t, strings.Contains(after.Body.String(), `"read":3`), after.Body.String())

	// bob's entry survives alice's write
	assert.Equal(t, "HIT", do(e, http.MethodGet, "/stats", bob).Header().Get("X-Cache"))
}

func TestPayloadRoundTrip(t *testing.T) {
	t.Parallel()

	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"a":1}`))
	require.NoError(t, err)

	status, gotHdr, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, hdr, gotHdr)
	assert.Equal(t, `{"a":1}`, string(body))

	_, _, _, ok = decodePayload([]byte{0, 1})
	assert.False(t, ok)
}

func TestMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/ok", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })
	e.GET("/boom", func(c echo.Context) error { return echo.NewHTTPError(http.StatusConflict, "x") })
	e.GET("/metrics", m.Handler())

	do(e, http.MethodGet, "/ok", "")
	do(e, http.MethodGet, "/boom", "")

	body := do(e, http.MethodGet, "/metrics", "").Body.String()
	assert.Contains(t, body, `http_requests_total{method="GET",route="/ok",status="204"} 1`)
	assert.Contains(t, body, `http_requests_total{method="GET",route="/boom",status="409"} 1`)
	assert.Contains(t, body, "http_request_duration_seconds_bucket")
}
