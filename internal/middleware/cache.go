package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/task-manager/internal/config"
)

// ResponseCache caches successful reads per user in Redis. Each user has a
// generation counter that is part of every cache key; a successful write
// by that user bumps the counter, so all of their cached reads become
// unreachable at once and simply expire later.
type ResponseCache struct {
	cfg config.CacheConfig
	rdb *redis.Client
	log *slog.Logger
}

// NewRedisCache returns a cache; a nil client or disabled config yields a
// cache whose middleware does nothing.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client, log *slog.Logger) *ResponseCache {
	return &ResponseCache{cfg: cfg, rdb: rdb, log: log}
}

// Middleware must run after JWTAuth; requests without a session pass
// through untouched.
func (rc *ResponseCache) Middleware() echo.MiddlewareFunc {
	if !rc.cfg.Enabled || rc.rdb == nil {
		return passthrough
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			s, ok := SessionFrom(c)
			if !ok {
				return next(c)
			}
			if rc.cfg.Cacheable(c.Request().Method) {
				return rc.serveCached(c, next, s.UserID)
			}
			return rc.invalidateAfter(c, next, s.UserID)
		}
	}
}

func (rc *ResponseCache) generationKey(userID string) string {
	return rc.cfg.Prefix + ":gen:" + userID
}

func (rc *ResponseCache) generation(ctx context.Context, userID string) (string, error) {
	gen, err := rc.rdb.Get(ctx, rc.generationKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "0", nil
	}
	return gen, err
}

// cacheKey is prefix:u:<user>:g:<generation>:<sha1(method route query)>.
func (rc *ResponseCache) cacheKey(c echo.Context, userID, gen string) string {
	r := c.Request()
	sum := sha1.Sum([]byte(r.Method + " " + r.URL.Path + "?" + r.URL.RawQuery))
	return fmt.Sprintf("%s:u:%s:g:%s:%x", rc.cfg.Prefix, userID, gen, sum[:])
}

func (rc *ResponseCache) serveCached(c echo.Context, next echo.HandlerFunc, userID string) error {
	ctx := c.Request().Context()
	gen, err := rc.generation(ctx, userID)
	if err != nil {
		rc.log.Warn("cache: generation lookup failed", slog.String("error", err.Error()))
		return next(c)
	}
	key := rc.cacheKey(c, userID, gen)

	if bs, err := rc.rdb.Get(ctx, key).Bytes(); err == nil {
		if status, hdr, body, ok := decodePayload(bs); ok {
			// headers set by outer middleware for this request take precedence
			out := c.Response().Header()
			for k, vals := range hdr {
				if _, set := out[k]; set || strings.EqualFold(k, echo.HeaderContentLength) {
					continue
				}
				for _, v := range vals {
					out.Add(k, v)
				}
			}
			c.Response().Header().Set("X-Cache", "HIT")
			c.Response().WriteHeader(status)
			if len(body) > 0 {
				_, _ = c.Response().Write(body)
			}
			return nil
		}
	}

	maxBody := int64(rc.cfg.MaxBodyBytes)
	cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: maxBody}
	c.Response().Writer = cw
	c.Response().Header().Set("X-Cache", "MISS")

	if err := next(c); err != nil {
		return err
	}

	if cw.status == http.StatusOK && !cw.truncated() {
		hdr := c.Response().Header().Clone()
		hdr.Del("X-Cache")
		if payload, err := encodePayload(cw.status, hdr, cw.buf.Bytes()); err == nil {
			_ = rc.rdb.SetEx(context.WithoutCancel(ctx), key, payload, rc.cfg.TTL).Err()
		}
	}
	return nil
}

// invalidateAfter holds the response of a write until the user's generation
// has been bumped, so a read issued right after the client sees the write
// can never be answered from the old generation.
func (rc *ResponseCache) invalidateAfter(c echo.Context, next echo.HandlerFunc, userID string) error {
	res := c.Response()
	orig := res.Writer
	bw := &bufferWriter{header: orig.Header(), status: http.StatusOK}
	res.Writer = bw

	err := next(c)
	res.Writer = orig

	if err == nil && bw.wrote && bw.status < http.StatusBadRequest {
		if ierr := rc.rdb.Incr(context.WithoutCancel(c.Request().Context()), rc.generationKey(userID)).Err(); ierr != nil {
			rc.log.Warn("cache: invalidation failed", slog.String("user_id", userID), slog.String("error", ierr.Error()))
		}
	}

	if bw.wrote {
		orig.WriteHeader(bw.status)
		if bw.buf.Len() > 0 {
			_, _ = orig.Write(bw.buf.Bytes())
		}
	}
	return err
}

// captureWriter captures response body/status while forwarding to the client.
type captureWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
	size   int64
	limit  int64
}

func (cw *captureWriter) WriteHeader(code int) { cw.status = code; cw.ResponseWriter.WriteHeader(code) }

func (cw *captureWriter) Write(b []byte) (int, error) {
	if cw.limit <= 0 || cw.size+int64(len(b)) <= cw.limit {
		cw.buf.Write(b)
	}
	cw.size += int64(len(b))
	return cw.ResponseWriter.Write(b)
}

func (cw *captureWriter) truncated() bool { return cw.limit > 0 && cw.size > cw.limit }

// bufferWriter holds a whole response in memory.
type bufferWriter struct {
	header http.Header
	status int
	buf    bytes.Buffer
	wrote  bool
}

func (bw *bufferWriter) Header() http.Header { return bw.header }

func (bw *bufferWriter) WriteHeader(code int) {
	if !bw.wrote {
		bw.status = code
		bw.wrote = true
	}
}

func (bw *bufferWriter) Write(b []byte) (int, error) {
	bw.wrote = true
	return bw.buf.Write(b)
}

// encodePayload packs: [4 bytes status][4 bytes headerLen][headerJSON][body]
func encodePayload(status int, header http.Header, body []byte) ([]byte, error) {
	hdrJSON, err := json.Marshal(header)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 8+len(hdrJSON)+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(status))
	binary.BigEndian.PutUint32(out[4:8], uint32(len(hdrJSON)))
	copy(out[8:8+len(hdrJSON)], hdrJSON)
	copy(out[8+len(hdrJSON):], body)
	return out, nil
}

func decodePayload(bs []byte) (status int, header http.Header, body []byte, ok bool) {
	if len(bs) < 8 {
		return 0, nil, nil, false
	}
	status = int(binary.BigEndian.Uint32(bs[0:4]))
	hlen := int(binary.BigEndian.Uint32(bs[4:8]))
	if hlen < 0 || 8+hlen > len(bs) {
		return 0, nil, nil, false
	}
	header = make(http.Header)
	if hlen > 0 {
		if err := json.Unmarshal(bs[8:8+hlen], &header); err != nil {
			return 0, nil, nil, false
		}
	}
	return status, header, bs[8+hlen:], true
}
