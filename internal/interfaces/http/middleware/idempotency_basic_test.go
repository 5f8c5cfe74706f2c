package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	redisv9 "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	redispkg "stablepay.backend/pkg/redis"
)

var testUserID = uuid.MustParse("0190a8c4-1111-7000-8000-000000000001")

func startMiniRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	srv, err := miniredis.Run()
	if err != nil {
		t.Skipf("skip: miniredis unavailable in this environment: %v", err)
	}
	t.Cleanup(srv.Close)

	cli := redisv9.NewClient(&redisv9.Options{Addr: srv.Addr()})
	redispkg.SetClient(cli)
	t.Cleanup(func() { _ = cli.Close() })
	return srv
}

func withUser(c *gin.Context) {
	c.Set(UserIDKey, testUserID)
	c.Next()
}

func storageKey(key string) string {
	return "idempotency:" + testUserID.String() + ":" + key
}

func TestIdempotencyMiddleware_NoHeaderPassthrough(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(IdempotencyMiddleware())
	r.POST("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)
}

func TestIdempotencyMiddleware_RedisErrorPassthrough(t *testing.T) {
	gin.SetMode(gin.TestMode)
	redispkg.SetClient(redisv9.NewClient(&redisv9.Options{Addr: "127.0.0.1:0"}))

	r := gin.New()
	r.Use(IdempotencyMiddleware())
	r.POST("/x", func(c *gin.Context) { c.Status(http.StatusAccepted) })

	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	req.Header.Set(IdempotencyHeader, "idem-key")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code)
}

func TestIdempotencyMiddleware_ProcessingConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := startMiniRedis(t)
	require.NoError(t, srv.Set(storageKey("key-1"), "processing"))

	r := gin.New()
	r.Use(withUser, IdempotencyMiddleware())
	r.POST("/x", func(c *gin.Context) { c.Status(http.StatusCreated) })

	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	req.Header.Set(IdempotencyHeader, "key-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusConflict, w.Code)
	require.Contains(t, w.Body.String(), "ERR_IDEMPOTENCY_CONFLICT")
}

func TestIdempotencyMiddleware_LegacyCachedBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := startMiniRedis(t)
	require.NoError(t, srv.Set(storageKey("key-2"), `{"ok":true}`))

	r := gin.New()
	r.Use(withUser, IdempotencyMiddleware())
	r.POST("/x", func(c *gin.Context) { c.Status(http.StatusCreated) })

	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	req.Header.Set(IdempotencyHeader, "key-2")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "true", w.Header().Get("X-Idempotency-Hit"))
	require.Equal(t, `{"ok":true}`, w.Body.String())
}

func TestIdempotencyMiddleware_StoresAndReplaysSuccess(t *testing.T) {
	gin.SetMode(gin.TestMode)
	startMiniRedis(t)

	calls := 0
	r := gin.New()
	r.Use(withUser, IdempotencyMiddleware())
	r.POST("/x", func(c *gin.Context) {
		calls++
		c.JSON(http.StatusCreated, gin.H{"id": 1})
	})

	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	req.Header.Set(IdempotencyHeader, "key-3")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	req2 := httptest.NewRequest(http.MethodPost, "/x", nil)
	req2.Header.Set(IdempotencyHeader, "key-3")
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, req2)
	require.Equal(t, http.StatusCreated, w2.Code)
	require.Equal(t, "true", w2.Header().Get("X-Idempotency-Hit"))
	require.JSONEq(t, `{"id":1}`, w2.Body.String())
	require.Contains(t, w2.Header().Get("Content-Type"), "application/json")
	require.Equal(t, 1, calls)
}

func TestIdempotencyMiddleware_ReplaysEventStream(t *testing.T) {
	gin.SetMode(gin.TestMode)
	startMiniRedis(t)

	r := gin.New()
	r.Use(withUser, IdempotencyMiddleware())
	r.POST("/stream", func(c *gin.Context) {
		c.SSEvent("sending", gin.H{"kind": "sending"})
		c.SSEvent("confirmed", gin.H{"kind": "confirmed"})
	})

	req := httptest.NewRequest(http.MethodPost, "/stream", nil)
	req.Header.Set(IdempotencyHeader, "key-sse")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Contains(t, w.Body.String(), "event:confirmed")

	req2 := httptest.NewRequest(http.MethodPost, "/stream", nil)
	req2.Header.Set(IdempotencyHeader, "key-sse")
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, req2)
	require.Equal(t, "true", w2.Header().Get("X-Idempotency-Hit"))
	require.Equal(t, w.Body.String(), w2.Body.String())
	require.Contains(t, w2.Header().Get("Content-Type"), "text/event-stream")
}

func TestIdempotencyMiddleware_DeletesKeyOnFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)
	startMiniRedis(t)

	r := gin.New()
	r.Use(withUser, IdempotencyMiddleware())
	r.POST("/x", func(c *gin.Context) {
		c.String(http.StatusInternalServerError, "boom")
	})

	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	req.Header.Set(IdempotencyHeader, "key-4")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusInternalServerError, w.Code)

	_, err := redispkg.Get(context.Background(), storageKey("key-4"))
	require.True(t, redispkg.IsNil(err))
}

func TestIdempotencyMiddleware_RetryAfterDisconnectIsProcessed(t *testing.T) {
	srv := startMiniRedis(t)
	gin.SetMode(gin.TestMode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	r := gin.New()
	r.Use(withUser, IdempotencyMiddleware())
	r.POST("/payments", func(c *gin.Context) {
		calls++
		c.Status(http.StatusOK)
		c.SSEvent("sending", "{}")
		if calls == 1 {
			cancel()
		}
	})

	first := httptest.NewRequest(http.MethodPost, "/payments", nil).WithContext(ctx)
	first.Header.Set(IdempotencyHeader, "reconnect")
	r.ServeHTTP(httptest.NewRecorder(), first)
	require.False(t, srv.Exists(storageKey("reconnect")))

	retry := httptest.NewRequest(http.MethodPost, "/payments", nil)
	retry.Header.Set(IdempotencyHeader, "reconnect")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, retry)

	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, w.Header().Get("X-Idempotency-Hit"))
	require.Equal(t, 2, calls)
	require.True(t, srv.Exists(storageKey("reconnect")))
}
