package broadcast

import (
	"github.com/gin-gonic/gin"
	"github.com/membergate/core/internal/pkg/pagination"
	"github.com/membergate/core/internal/pkg/response"
)

type ExportDTO struct {
	ContentID string `json:"content_id" binding:"required"`
}

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/broadcasts", authMW)
	g.GET("", h.list)
	g.GET("/upstream", h.upstream)
	g.POST("/import", h.runImport)
	g.POST("/export", h.export)
}

func (h *Handler) list(c *gin.Context) {
	items, pag, err := h.svc.ListImported(pagination.FromContext(c))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Paged(c, items, pag)
}

func (h *Handler) upstream(c *gin.Context) {
	broadcasts, err := h.svc.kit.Broadcasts(c.Request.Context())
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, broadcasts)
}

func (h *Handler) runImport(c *gin.Context) {
	report, err := h.svc.Import(c.Request.Context())
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, report)
}

func (h *Handler) export(c *gin.Context) {
	var dto ExportDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, "content_id is required")
		return
	}
	b, err := h.svc.Export(c.Request.Context(), dto.ContentID)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if b == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, b)
}
