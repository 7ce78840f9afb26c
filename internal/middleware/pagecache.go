package middleware

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const (
	PageCachePrefix     = "mg:page-cache:"
	defaultPageCacheTTL = 15 * time.Second
	defaultMaxBodyBytes = 1 << 20 // 1 MiB

	// CacheBustParam lets a client force a fresh render past every cache
	// layer. Post-login redirects append it so the visitor never lands on
	// a stale locked page.
	CacheBustParam = "ck_cache_bust"
)

// PageCacheOptions configures the anonymous full-page cache.
type PageCacheOptions struct {
	TTL          time.Duration
	Disable      bool
	MaxBodyBytes int
}

// PageCache caches whole GET responses in Redis for anonymous visitors.
//
// Correctness depends on never serving a cached page to a visitor whose
// request differs in access state: any cookie name registered through
// ExcludeCookie bypasses both the read and the write path, so a request
// carrying a subscriber token can neither see nor populate the anonymous
// copy of a gated page.
type PageCache struct {
	rdb  *redis.Client
	opts PageCacheOptions

	mu       sync.RWMutex
	excluded map[string]struct{}
}

// NewPageCache creates a PageCache around the given Redis client.
func NewPageCache(rdb *redis.Client, opts PageCacheOptions) *PageCache {
	if opts.TTL <= 0 {
		opts.TTL = defaultPageCacheTTL
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	return &PageCache{
		rdb:      rdb,
		opts:     opts,
		excluded: make(map[string]struct{}),
	}
}

// ExcludeCookie registers a cookie name whose presence bypasses the cache.
func (p *PageCache) ExcludeCookie(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	p.mu.Lock()
	p.excluded[name] = struct{}{}
	p.mu.Unlock()
}

// IsCookieExcluded reports whether the cookie name is registered.
func (p *PageCache) IsCookieExcluded(name string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.excluded[name]
	return ok
}

// ExcludedCookies lists the registered cookie names.
func (p *PageCache) ExcludedCookies() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.excluded))
	for name := range p.excluded {
		names = append(names, name)
	}
	return names
}

type cachedPage struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	BodyBase64  string `json:"body_base64"`
	Body        []byte `json:"-"`
}

type pageBodyWriter struct {
	gin.ResponseWriter
	body         []byte
	maxBodyBytes int
	overflow     bool
}

func (w *pageBodyWriter) Write(data []byte) (int, error) {
	w.capture(data)
	return w.ResponseWriter.Write(data)
}

func (w *pageBodyWriter) WriteString(s string) (int, error) {
	w.capture([]byte(s))
	return w.ResponseWriter.WriteString(s)
}

func (w *pageBodyWriter) capture(data []byte) {
	if w.overflow || len(data) == 0 {
		return
	}
	remaining := w.maxBodyBytes - len(w.body)
	if remaining <= 0 {
		w.overflow = true
		return
	}
	if len(data) > remaining {
		w.body = append(w.body, data[:remaining]...)
		w.overflow = true
		return
	}
	w.body = append(w.body, data...)
}

// Handler returns the caching middleware.
func (p *PageCache) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if p.opts.Disable || p.rdb == nil || c.Request.Method != http.MethodGet {
			c.Next()
			return
		}
		if p.shouldBypass(c) {
			c.Next()
			return
		}

		cacheKey := PageCachePrefix + c.Request.URL.RequestURI()
		if payload, ok := p.read(c.Request.Context(), cacheKey); ok {
			c.Header("X-MG-Cache", "HIT")
			c.Data(payload.Status, payload.ContentType, payload.Body)
			c.Abort()
			return
		}

		buffer := &pageBodyWriter{
			ResponseWriter: c.Writer,
			maxBodyBytes:   p.opts.MaxBodyBytes,
		}
		c.Writer = buffer
		c.Next()

		status := c.Writer.Status()
		if status != http.StatusOK || buffer.overflow || len(buffer.body) == 0 {
			return
		}
		// A response that set an excluded cookie (fresh login) must not be
		// shared either.
		if p.responseSetsExcludedCookie(c.Writer.Header()) {
			return
		}

		payload := cachedPage{
			Status:      status,
			ContentType: c.Writer.Header().Get("Content-Type"),
			BodyBase64:  base64.StdEncoding.EncodeToString(buffer.body),
		}
		raw, err := json.Marshal(payload)
		if err != nil {
			return
		}
		_ = p.rdb.Set(c.Request.Context(), cacheKey, raw, p.opts.TTL).Err()
	}
}

// Purge removes all cached pages.
func (p *PageCache) Purge(ctx context.Context) (int64, error) {
	if p.rdb == nil {
		return 0, nil
	}
	var (
		cursor  uint64
		deleted int64
	)
	for {
		keys, next, err := p.rdb.Scan(ctx, cursor, PageCachePrefix+"*", 200).Result()
		if err != nil {
			return deleted, err
		}
		if len(keys) > 0 {
			n, err := p.rdb.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, err
			}
			deleted += n
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}

func (p *PageCache) shouldBypass(c *gin.Context) bool {
	if IsAuthenticated(c) {
		return true
	}
	if strings.TrimSpace(c.Query(CacheBustParam)) != "" {
		return true
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	for name := range p.excluded {
		if _, err := c.Cookie(name); err == nil {
			return true
		}
	}
	return false
}

func (p *PageCache) responseSetsExcludedCookie(h http.Header) bool {
	for _, raw := range h.Values("Set-Cookie") {
		name, _, ok := strings.Cut(raw, "=")
		if !ok {
			continue
		}
		if p.IsCookieExcluded(strings.TrimSpace(name)) {
			return true
		}
	}
	return false
}

func (p *PageCache) read(ctx context.Context, cacheKey string) (cachedPage, bool) {
	raw, err := p.rdb.Get(ctx, cacheKey).Bytes()
	if err != nil || len(raw) == 0 {
		return cachedPage{}, false
	}
	var payload cachedPage
	if err := json.Unmarshal(raw, &payload); err != nil {
		return cachedPage{}, false
	}
	if payload.Status <= 0 {
		payload.Status = http.StatusOK
	}
	if payload.ContentType == "" {
		payload.ContentType = "text/html; charset=utf-8"
	}
	body, err := base64.StdEncoding.DecodeString(payload.BodyBase64)
	if err != nil {
		return cachedPage{}, false
	}
	payload.Body = body
	return payload, true
}
