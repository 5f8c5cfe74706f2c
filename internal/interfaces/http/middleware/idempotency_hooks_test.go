package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	redisv9 "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyMiddleware_WithHookedRedis(t *testing.T) {
	origGet := redisGet
	origSet := redisSet
	origSetNX := redisSetNX
	origDel := redisDel
	t.Cleanup(func() {
		redisGet = origGet
		redisSet = origSet
		redisSetNX = origSetNX
		redisDel = origDel
	})

	newRouter := func() *gin.Engine {
		gin.SetMode(gin.TestMode)
		r := gin.New()
		r.Use(withUser, IdempotencyMiddleware())
		r.POST("/ok", func(c *gin.Context) { c.String(http.StatusCreated, `{"id":9}`) })
		r.POST("/fail", func(c *gin.Context) { c.String(http.StatusBadRequest, "bad") })
		return r
	}
	post := func(r *gin.Engine, path, key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.Header.Set(IdempotencyHeader, key)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	t.Run("store on success, cleanup on failure", func(t *testing.T) {
		var stored interface{}
		delCalled := false
		redisGet = func(context.Context, string) (string, error) { return "", redisv9.Nil }
		redisSetNX = func(context.Context, string, interface{}, time.Duration) (bool, error) { return true, nil }
		redisSet = func(_ context.Context, _ string, v interface{}, ttl time.Duration) error {
			stored = v
			require.Equal(t, RetentionDuration, ttl)
			return nil
		}
		redisDel = func(context.Context, string) error { delCalled = true; return nil }

		r := newRouter()
		require.Equal(t, http.StatusCreated, post(r, "/ok", "key-3").Code)
		require.Contains(t, stored, `"status":201`)

		require.Equal(t, http.StatusBadRequest, post(r, "/fail", "key-4").Code)
		require.True(t, delCalled)
	})

	t.Run("redis read error passthrough", func(t *testing.T) {
		redisGet = func(context.Context, string) (string, error) { return "", errors.New("redis down") }
		redisSetNX = func(context.Context, string, interface{}, time.Duration) (bool, error) {
			t.Fatal("lock must not be taken when lookup fails")
			return false, nil
		}

		require.Equal(t, http.StatusCreated, post(newRouter(), "/ok", "key-5").Code)
	})

	t.Run("setnx error returns conflict", func(t *testing.T) {
		redisGet = func(context.Context, string) (string, error) { return "", redisv9.Nil }
		redisSetNX = func(context.Context, string, interface{}, time.Duration) (bool, error) {
			return false, errors.New("boom")
		}

		require.Equal(t, http.StatusConflict, post(newRouter(), "/ok", "key-6").Code)
	})

	t.Run("client disconnect releases the key", func(t *testing.T) {
		var delCtxErr error
		delCalled := false
		redisGet = func(context.Context, string) (string, error) { return "", redisv9.Nil }
		redisSetNX = func(context.Context, string, interface{}, time.Duration) (bool, error) { return true, nil }
		redisSet = func(context.Context, string, interface{}, time.Duration) error {
			t.Fatal("a cut-off stream must not be stored")
			return nil
		}
		redisDel = func(ctx context.Context, _ string) error {
			delCalled = true
			delCtxErr = ctx.Err()
			return nil
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		r := gin.New()
		r.Use(withUser, IdempotencyMiddleware())
		r.POST("/stream", func(c *gin.Context) {
			c.Status(http.StatusOK)
			c.SSEvent("sending", "{}")
			cancel()
		})

		req := httptest.NewRequest(http.MethodPost, "/stream", nil).WithContext(ctx)
		req.Header.Set(IdempotencyHeader, "key-8")
		r.ServeHTTP(httptest.NewRecorder(), req)

		require.True(t, delCalled)
		require.NoError(t, delCtxErr)
	})

	t.Run("lost setnx race returns conflict", func(t *testing.T) {
		redisGet = func(context.Context, string) (string, error) { return "", redisv9.Nil }
		redisSetNX = func(context.Context, string, interface{}, time.Duration) (bool, error) { return false, nil }

		require.Equal(t, http.StatusConflict, post(newRouter(), "/ok", "key-7").Code)
	})
}
