package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"stablepay.backend/pkg/logger"
	"stablepay.backend/pkg/redis"
)

const (
	IdempotencyHeader = "Idempotency-Key"
	// LockDuration covers a full payment stream, monitoring included
	LockDuration = 10 * time.Minute
	// RetentionDuration is how long we keep the response
	RetentionDuration = 24 * time.Hour

	processingMarker = "processing"
)

var (
	redisGet   = redis.Get
	redisSet   = redis.Set
	redisSetNX = redis.SetNX
	redisDel   = redis.Del
)

type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"contentType"`
	Body        string `json:"body"`
}

type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// WriteString is used by the SSE renderer, so it must be captured as well.
func (w responseWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// IdempotencyMiddleware replays the stored response of a request that was
// already completed under the same Idempotency-Key for the same user.
func IdempotencyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyHeader)
		if key == "" {
			c.Next()
			return
		}

		userID := ""
		if id, ok := GetUserID(c); ok {
			userID = id.String()
		}
		storageKey := fmt.Sprintf("idempotency:%s:%s", userID, key)
		ctx := c.Request.Context()

		val, err := redisGet(ctx, storageKey)
		if err == nil {
			if val == processingMarker {
				c.AbortWithStatusJSON(http.StatusConflict, gin.H{
					"code":    "ERR_IDEMPOTENCY_CONFLICT",
					"message": "Request already in progress",
				})
				return
			}
			replay(c, val)
			return
		}
		if !redis.IsNil(err) {
			logger.Warn(ctx, "Idempotency lookup failed, processing without it", zap.Error(err))
			c.Next()
			return
		}

		acquired, err := redisSetNX(ctx, storageKey, processingMarker, LockDuration)
		if err != nil || !acquired {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{
				"code":    "ERR_IDEMPOTENCY_CONFLICT",
				"message": "Request in progress",
			})
			return
		}

		w := &responseWriter{body: &bytes.Buffer{}, ResponseWriter: c.Writer}
		c.Writer = w

		c.Next()

		// the request context is gone once the client disconnects
		clientGone := ctx.Err() != nil
		ctx = context.WithoutCancel(ctx)

		status := c.Writer.Status()
		if clientGone {
			logger.Info(ctx, "Client left before the response completed, releasing idempotency key")
		} else if status >= 200 && status < 300 {
			stored, _ := json.Marshal(storedResponse{
				Status:      status,
				ContentType: c.Writer.Header().Get("Content-Type"),
				Body:        w.body.String(),
			})
			if err := redisSet(ctx, storageKey, string(stored), RetentionDuration); err != nil {
				logger.Warn(ctx, "Failed to store idempotent response", zap.Error(err))
			}
			return
		}
		_ = redisDel(ctx, storageKey)
	}
}

func replay(c *gin.Context, raw string) {
	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil || stored.Status == 0 {
		stored = storedResponse{Status: http.StatusOK, ContentType: "application/json", Body: raw}
	}
	if stored.ContentType == "" {
		stored.ContentType = "application/json"
	}
	c.Header("X-Idempotency-Hit", "true")
	c.Data(stored.Status, stored.ContentType, []byte(stored.Body))
	c.Abort()
}
