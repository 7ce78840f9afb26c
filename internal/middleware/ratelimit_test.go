package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/membergate/core/internal/pkg/token"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRateLimitRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	r := gin.New()
	// Same ordering as the app wires: OptionalAuth must run first so the
	// limiter can see the admin identity.
	r.Use(OptionalAuth(), RateLimit(rdb))
	r.GET("/page", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return r
}

func TestRateLimitThrottlesAnonymousTraffic(t *testing.T) {
	r := newRateLimitRouter(t)

	throttled := false
	for i := 0; i < rateLimitMax*2+2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/page", nil))
		if w.Code == http.StatusTooManyRequests {
			throttled = true
			break
		}
	}
	assert.True(t, throttled, "anonymous traffic past the window limit is rejected")
}

func TestRateLimitExemptsAuthenticatedAdmin(t *testing.T) {
	r := newRateLimitRouter(t)

	bearer, err := token.SignAdmin("admin-1", time.Hour)
	require.NoError(t, err)

	for i := 0; i < rateLimitMax*2+2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/page", nil)
		req.Header.Set("Authorization", "Bearer "+bearer)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
	}
}
