package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/uitgo/trip-service/pkg/cache"
	apperrors "github.com/uitgo/trip-service/pkg/errors"
	"github.com/uitgo/trip-service/pkg/logger"
)

const (
	// IdempotencyHeader is the request header carrying the client-chosen key.
	IdempotencyHeader = "Idempotency-Key"
	// ReplayedHeader is set on responses served from the idempotency cache.
	ReplayedHeader = "Idempotent-Replayed"

	keyPrefix = "idempotency:"
	lockTTL   = 30 * time.Second
)

type cachedResponse struct {
	StatusCode  int             `json:"status_code"`
	ContentType string          `json:"content_type,omitempty"`
	Body        json.RawMessage `json:"body"`
}

// bodyRecorder tees the response body so it can be stored after the handler ran.
type bodyRecorder struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyRecorder) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency replays the stored response for a repeated Idempotency-Key.
// Only mutating requests that carry the header are affected. Responses with
// status >= 500 are not stored so the client can retry them. If Redis is
// unreachable the request goes through unprotected.
func Idempotency(client *redis.Client, ttl time.Duration, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyHeader)
		if key == "" || client == nil || !mutating(c.Request.Method) {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		cacheKey := keyPrefix + c.Request.Method + ":" + c.Request.URL.Path + ":" + key

		cached, found, err := lookup(c, client, cacheKey, log)
		if err != nil {
			log.Warn("Idempotency lookup failed", logger.Err(err))
			c.Next()
			return
		}
		if found {
			replay(c, cached)
			return
		}

		lockKey := cacheKey + ":lock"
		acquired, err := cache.SetNX(ctx, client, lockKey, "1", lockTTL)
		if err != nil {
			log.Warn("Idempotency lock failed", logger.Err(err))
			c.Next()
			return
		}
		if !acquired {
			appErr := apperrors.ErrDuplicateRequest
			c.AbortWithStatusJSON(appErr.Status, gin.H{"error": appErr.Message, "code": appErr.Code})
			return
		}
		defer func() {
			if err := cache.Delete(ctx, client, lockKey); err != nil {
				log.Warn("Failed to release idempotency lock", logger.Err(err))
			}
		}()

		// The first request may have stored its response and released the
		// lock between our lookup and SetNX.
		cached, found, err = lookup(c, client, cacheKey, log)
		if err != nil {
			log.Warn("Idempotency lookup failed", logger.Err(err))
			c.Next()
			return
		}
		if found {
			replay(c, cached)
			return
		}

		rec := &bodyRecorder{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = rec
		c.Next()

		status := rec.Status()
		if status >= http.StatusInternalServerError || !json.Valid(rec.body.Bytes()) {
			return
		}

		data, err := json.Marshal(cachedResponse{
			StatusCode:  status,
			ContentType: rec.Header().Get("Content-Type"),
			Body:        rec.body.Bytes(),
		})
		if err != nil {
			log.Error("Failed to encode idempotent response", logger.Err(err))
			return
		}
		if err := cache.SetWithExpiry(ctx, client, cacheKey, data, ttl); err != nil {
			log.Warn("Failed to store idempotent response", logger.Err(err), logger.String("key", cacheKey))
		}
	}
}

// lookup reads the stored response for key. An unreadable entry counts as
// missing.
func lookup(c *gin.Context, client *redis.Client, key string, log *logger.Logger) (cachedResponse, bool, error) {
	var cached cachedResponse
	raw, err := cache.GetBytes(c.Request.Context(), client, key)
	if errors.Is(err, redis.Nil) {
		return cached, false, nil
	}
	if err != nil {
		return cached, false, err
	}
	if err := json.Unmarshal(raw, &cached); err != nil {
		log.Warn("Discarding unreadable idempotency entry", logger.String("key", key))
		return cached, false, nil
	}
	return cached, true, nil
}

func replay(c *gin.Context, cached cachedResponse) {
	contentType := cached.ContentType
	if contentType == "" {
		contentType = "application/json; charset=utf-8"
	}
	c.Header(ReplayedHeader, "true")
	c.Data(cached.StatusCode, contentType, cached.Body)
	c.Abort()
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}
