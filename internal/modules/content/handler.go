package content

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/membergate/core/internal/models"
	"github.com/membergate/core/internal/pkg/pagination"
	"github.com/membergate/core/internal/pkg/response"
)

type CreateContentDTO struct {
	Slug      string `json:"slug"     binding:"required"`
	Title     string `json:"title"    binding:"required"`
	Text      string `json:"text"     binding:"required"`
	Restrict  string `json:"restrict"`
	Published *bool  `json:"published"`
}

type UpdateContentDTO struct {
	Slug      *string `json:"slug"`
	Title     *string `json:"title"`
	Text      *string `json:"text"`
	Restrict  *string `json:"restrict"`
	Published *bool   `json:"published"`
}

type contentResponse struct {
	ID          string    `json:"id"`
	Slug        string    `json:"slug"`
	Title       string    `json:"title"`
	Text        string    `json:"text"`
	Restrict    string    `json:"restrict"`
	Published   bool      `json:"published"`
	BroadcastID string    `json:"broadcast_id,omitempty"`
	Created     time.Time `json:"created"`
	Modified    time.Time `json:"modified"`
}

func toResponse(m *models.ContentModel) contentResponse {
	return contentResponse{
		ID: m.ID, Slug: m.Slug, Title: m.Title, Text: m.Text,
		Restrict: m.Restrict, Published: m.Published,
		BroadcastID: m.BroadcastID,
		Created:     m.CreatedAt, Modified: m.UpdatedAt,
	}
}

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/contents", authMW)
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.POST("", h.create)
	g.PUT("/:id", h.update)
	g.PATCH("/:id", h.update)
	g.DELETE("/:id", h.delete)
}

func (h *Handler) list(c *gin.Context) {
	q := pagination.FromContext(c)
	items, pag, err := h.svc.List(q)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	out := make([]contentResponse, len(items))
	for i, m := range items {
		out[i] = toResponse(&m)
	}
	response.Paged(c, out, pag)
}

func (h *Handler) get(c *gin.Context) {
	m, err := h.svc.GetByID(c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if m == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, toResponse(m))
}

func (h *Handler) create(c *gin.Context) {
	var dto CreateContentDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	m, err := h.svc.Create(&dto)
	if err != nil {
		if errors.Is(err, ErrSlugExists) {
			response.Conflict(c, err.Error())
			return
		}
		response.BadRequest(c, err.Error())
		return
	}
	response.Created(c, toResponse(m))
}

func (h *Handler) update(c *gin.Context) {
	var dto UpdateContentDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	m, err := h.svc.Update(c.Param("id"), &dto)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if m == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, toResponse(m))
}

func (h *Handler) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Param("id")); err != nil {
		response.InternalError(c, err)
		return
	}
	response.NoContent(c)
}
