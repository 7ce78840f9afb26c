package settings

import (
	"encoding/json"

	"github.com/gin-gonic/gin"
	"github.com/membergate/core/internal/pkg/response"
)

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/settings/restrict-content", authMW)
	g.GET("", h.get)
	g.GET("/defaults", h.defaults)
	g.PATCH("", h.patch)
}

func (h *Handler) get(c *gin.Context) {
	cur, err := h.svc.Get()
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, cur)
}

func (h *Handler) defaults(c *gin.Context) {
	response.OK(c, DefaultRestrict())
}

func (h *Handler) patch(c *gin.Context) {
	var partial map[string]json.RawMessage
	if err := c.ShouldBindJSON(&partial); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	updated, err := h.svc.Patch(partial)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, updated)
}
