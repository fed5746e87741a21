package handler

import (
	"whatsapp-broadcast-platform/internal/adapter/http/dto"
	"whatsapp-broadcast-platform/internal/core/ports"
	"whatsapp-broadcast-platform/pkg/apperror"
	"whatsapp-broadcast-platform/pkg/response"

	"github.com/gin-gonic/gin"
)

// ContactHandler handles contact management endpoints.
type ContactHandler struct {
	contactSvc ports.ContactService
}

// NewContactHandler creates a new ContactHandler.
func NewContactHandler(contactSvc ports.ContactService) *ContactHandler {
	return &ContactHandler{contactSvc: contactSvc}
}

// Create handles POST /api/v1/contacts.
func (h *ContactHandler) Create(c *gin.Context) {
	tid, ok := tenantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.CreateContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	contact, err := h.contactSvc.Create(c.Request.Context(), tid, req.Phone, req.Name)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.ContactResponse{
		ID:        contact.ID.String(),
		Phone:     contact.Phone,
		Name:      contact.Name,
		CreatedAt: fmtTime(contact.CreatedAt),
	})
}

// Import handles POST /api/v1/contacts/import.
func (h *ContactHandler) Import(c *gin.Context) {
	tid, ok := tenantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.ImportContactsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	rows := make([]ports.ContactImportRow, 0, len(req.Contacts))
	for _, r := range req.Contacts {
		rows = append(rows, ports.ContactImportRow{Phone: r.Phone, Name: r.Name})
	}

	result, err := h.contactSvc.Import(c.Request.Context(), tid, rows)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.ImportResultResponse{
		Total:    result.Total,
		Imported: result.Imported,
		Skipped:  result.Skipped,
		Errors:   result.Errors,
	})
}
