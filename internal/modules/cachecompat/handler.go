package cachecompat

import (
	"github.com/gin-gonic/gin"
	"github.com/membergate/core/internal/middleware"
	"github.com/membergate/core/internal/pkg/response"
)

type Handler struct {
	svc   *Service
	cache *middleware.PageCache
}

func NewHandler(svc *Service, cache *middleware.PageCache) *Handler {
	return &Handler{svc: svc, cache: cache}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/cache", authMW)
	g.GET("/status", h.status)
	g.POST("/exclusions", h.register)
	g.POST("/purge", h.purge)
}

func (h *Handler) status(c *gin.Context) {
	response.OK(c, h.svc.Report())
}

func (h *Handler) register(c *gin.Context) {
	response.OK(c, h.svc.EnsureExcluded())
}

func (h *Handler) purge(c *gin.Context) {
	n, err := h.cache.Purge(c.Request.Context())
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, gin.H{"purged": n})
}
