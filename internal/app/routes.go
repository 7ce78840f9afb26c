package app

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/membergate/core/internal/middleware"
	"github.com/membergate/core/internal/modules/auth"
	"github.com/membergate/core/internal/modules/broadcast"
	"github.com/membergate/core/internal/modules/cachecompat"
	"github.com/membergate/core/internal/modules/content"
	"github.com/membergate/core/internal/modules/gate"
	"github.com/membergate/core/internal/modules/health"
	"github.com/membergate/core/internal/modules/otc"
	"github.com/membergate/core/internal/modules/recaptcha"
	"github.com/membergate/core/internal/modules/settings"
	"github.com/membergate/core/internal/modules/verifier"
	"github.com/membergate/core/internal/pkg/kit"
	"github.com/membergate/core/internal/pkg/mail"
	pkgredis "github.com/membergate/core/internal/pkg/redis"
	"github.com/membergate/core/internal/pkg/response"
)

func (a *App) registerRoutes(rc *pkgredis.Client, kitClient *kit.Client) error {
	r := a.router
	db := a.db
	authMW := middleware.Auth()

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c)
	})
	r.NoMethod(func(c *gin.Context) {
		response.MethodNotAllowed(c)
	})

	appInfo := gin.H{
		"name":    "membergate-core",
		"version": "1.0.0",
	}

	// OptionalAuth must run before anything that asks IsAuthenticated:
	// the rate limiter exempts admin requests and the page cache bypasses
	// for them, and both read the user id this middleware sets.
	r.Use(middleware.OptionalAuth())
	r.Use(middleware.RateLimit(rc.Raw()))

	// Shared services
	settingsSvc := settings.NewService(db)
	contentSvc := content.NewService(db)
	verifierSvc := verifier.NewService(kitClient, a.logger)
	codesSvc := otc.NewService(rc)
	broadcastSvc := broadcast.NewService(db, kitClient, a.logger)

	renderer, err := gate.NewRenderer()
	if err != nil {
		return err
	}

	// Cache layers must never serve a member's render to anonymous
	// visitors, so the subscriber cookie is excluded before any request
	// is served.
	registrars := []cachecompat.Registrar{cachecompat.NewPageCacheRegistrar(a.cache)}
	if a.cfg.CacheExclusionFile != "" {
		registrars = append(registrars, cachecompat.NewFileRegistrar(a.cfg.CacheExclusionFile))
	}
	compatSvc := cachecompat.NewService(gate.SubscriberCookie, contentSvc, a.logger, registrars...)
	compatSvc.EnsureExcluded()

	// Visitor-facing pages, served behind the cookie-aware page cache.
	root := r.Group("", a.cache.Handler())
	gate.NewHandler(gate.Deps{
		Contents:  contentSvc,
		Evaluator: gate.NewEvaluator(kitClient, a.logger),
		Verifier:  verifierSvc,
		Codes:     codesSvc,
		Captcha:   recaptcha.New(""),
		Settings:  settingsSvc,
		Kit:       kitClient,
		Mailer:    mail.New(a.cfg.Mail),
		Renderer:  renderer,
		SiteName:  a.cfg.SiteName,
		Log:       a.logger,
	}).RegisterRoutes(root)

	// Versioned admin API
	api := r.Group("/api/v2")

	api.GET("", func(c *gin.Context) { c.PureJSON(http.StatusOK, appInfo) })
	api.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"data": "pong"}) })
	api.GET("/uptime", func(c *gin.Context) {
		uptimeMs := time.Since(processStart).Milliseconds()
		c.JSON(http.StatusOK, gin.H{
			"timestamp": uptimeMs,
			"humanize":  humanizeDuration(time.Duration(uptimeMs) * time.Millisecond),
		})
	})

	health.RegisterRoutes(api, db, rc, a.sched, authMW)
	auth.NewHandler(auth.NewService(db)).RegisterRoutes(api, authMW)
	settings.NewHandler(settingsSvc).RegisterRoutes(api, authMW)
	content.NewHandler(contentSvc).RegisterRoutes(api, authMW)
	broadcast.NewHandler(broadcastSvc).RegisterRoutes(api, authMW)
	cachecompat.NewHandler(compatSvc, a.cache).RegisterRoutes(api, authMW)

	return nil
}
