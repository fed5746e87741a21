package handler

import (
	"time"

	"whatsapp-broadcast-platform/internal/adapter/http/dto"
	"whatsapp-broadcast-platform/internal/core/domain"
	"whatsapp-broadcast-platform/internal/core/ports"
	"whatsapp-broadcast-platform/pkg/apperror"
	"whatsapp-broadcast-platform/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TemplateHandler handles template catalogue endpoints. Templates are a
// record of what the provider approved; there is no business logic beyond
// tenant scoping, so the handler talks to the repository directly.
type TemplateHandler struct {
	templateRepo ports.TemplateRepository
}

// NewTemplateHandler creates a new TemplateHandler.
func NewTemplateHandler(templateRepo ports.TemplateRepository) *TemplateHandler {
	return &TemplateHandler{templateRepo: templateRepo}
}

// Create handles POST /api/v1/templates.
func (h *TemplateHandler) Create(c *gin.Context) {
	tid, ok := tenantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	status := domain.TemplateStatusPending
	if req.Status != "" {
		status = domain.TemplateStatus(req.Status)
	}

	now := time.Now().UTC()
	tpl := &domain.Template{
		ID:        uuid.New(),
		TenantID:  tid,
		Name:      req.Name,
		Language:  req.Language,
		Body:      req.Body,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.templateRepo.Create(c.Request.Context(), tpl); err != nil {
		response.Error(c, apperror.ErrDatabaseError(err))
		return
	}

	response.Created(c, toTemplateResponse(tpl))
}

// List handles GET /api/v1/templates.
func (h *TemplateHandler) List(c *gin.Context) {
	tid, ok := tenantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	templates, err := h.templateRepo.List(c.Request.Context(), tid)
	if err != nil {
		response.Error(c, apperror.ErrDatabaseError(err))
		return
	}

	items := make([]dto.TemplateResponse, 0, len(templates))
	for i := range templates {
		items = append(items, toTemplateResponse(&templates[i]))
	}
	response.OK(c, items)
}

func toTemplateResponse(t *domain.Template) dto.TemplateResponse {
	return dto.TemplateResponse{
		ID:        t.ID.String(),
		Name:      t.Name,
		Language:  t.Language,
		Body:      t.Body,
		Status:    string(t.Status),
		CreatedAt: fmtTime(t.CreatedAt),
	}
}
