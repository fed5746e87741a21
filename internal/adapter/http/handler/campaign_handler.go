package handler

import (
	"context"
	"time"

	"whatsapp-broadcast-platform/internal/adapter/http/dto"
	"whatsapp-broadcast-platform/internal/core/domain"
	"whatsapp-broadcast-platform/internal/core/ports"
	"whatsapp-broadcast-platform/pkg/apperror"
	"whatsapp-broadcast-platform/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CampaignHandler handles campaign lifecycle and dispatch endpoints.
type CampaignHandler struct {
	campaignSvc  ports.CampaignService
	dispatchSvc  ports.DispatchService
	defaultSpeed domain.DispatchSpeed
}

// NewCampaignHandler creates a new CampaignHandler.
func NewCampaignHandler(campaignSvc ports.CampaignService, dispatchSvc ports.DispatchService, defaultSpeed domain.DispatchSpeed) *CampaignHandler {
	return &CampaignHandler{
		campaignSvc:  campaignSvc,
		dispatchSvc:  dispatchSvc,
		defaultSpeed: defaultSpeed,
	}
}

// Create handles POST /api/v1/campaigns.
func (h *CampaignHandler) Create(c *gin.Context) {
	tid, ok := tenantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.CreateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	channelID, err := uuid.Parse(req.ChannelID)
	if err != nil {
		response.Error(c, apperror.Validation("invalid channel_id"))
		return
	}
	templateID, err := uuid.Parse(req.TemplateID)
	if err != nil {
		response.Error(c, apperror.Validation("invalid template_id"))
		return
	}
	contactIDs := make([]uuid.UUID, 0, len(req.ContactIDs))
	for _, raw := range req.ContactIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.Error(c, apperror.Validation("invalid contact id: "+raw))
			return
		}
		contactIDs = append(contactIDs, id)
	}

	var scheduledAt *time.Time
	if req.ScheduledAt != nil {
		ts, err := time.Parse(time.RFC3339, *req.ScheduledAt)
		if err != nil {
			response.Error(c, apperror.Validation("scheduled_at must be RFC3339"))
			return
		}
		scheduledAt = &ts
	}

	campaign, err := h.campaignSvc.Create(c.Request.Context(), ports.CreateCampaignRequest{
		TenantID:         tid,
		ChannelID:        channelID,
		TemplateID:       templateID,
		Name:             req.Name,
		ContactIDs:       contactIDs,
		VariableDefaults: req.VariableDefaults,
		ScheduledAt:      scheduledAt,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toCampaignResponse(campaign))
}

// Get handles GET /api/v1/campaigns/:id.
func (h *CampaignHandler) Get(c *gin.Context) {
	tid, ok := tenantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid campaign id"))
		return
	}

	campaign, err := h.campaignSvc.Get(c.Request.Context(), tid, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, toCampaignResponse(campaign))
}

// List handles GET /api/v1/campaigns.
func (h *CampaignHandler) List(c *gin.Context) {
	tid, ok := tenantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	page, pageSize := pagination(c)
	params := ports.CampaignListParams{
		TenantID: tid,
		Page:     page,
		PageSize: pageSize,
	}
	if s := c.Query("status"); s != "" {
		status := domain.CampaignStatus(s)
		params.Status = &status
	}

	campaigns, total, err := h.campaignSvc.List(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.CampaignResponse, 0, len(campaigns))
	for i := range campaigns {
		items = append(items, toCampaignResponse(&campaigns[i]))
	}
	response.Page(c, items, page, pageSize, total)
}

// Start handles POST /api/v1/campaigns/:id/start.
func (h *CampaignHandler) Start(c *gin.Context) {
	tid, ok := tenantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid campaign id"))
		return
	}

	campaign, err := h.campaignSvc.Start(c.Request.Context(), tid, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, toCampaignResponse(campaign))
}

// Pause handles POST /api/v1/campaigns/:id/pause.
func (h *CampaignHandler) Pause(c *gin.Context) {
	h.lifecycle(c, h.campaignSvc.Pause)
}

// Resume handles POST /api/v1/campaigns/:id/resume.
func (h *CampaignHandler) Resume(c *gin.Context) {
	h.lifecycle(c, h.campaignSvc.Resume)
}

// Cancel handles POST /api/v1/campaigns/:id/cancel.
func (h *CampaignHandler) Cancel(c *gin.Context) {
	h.lifecycle(c, h.campaignSvc.Cancel)
}

// lifecycle runs one pause/resume/cancel transition and returns the
// refreshed campaign.
func (h *CampaignHandler) lifecycle(c *gin.Context, op func(ctx context.Context, tenantID, id uuid.UUID) error) {
	tid, ok := tenantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid campaign id"))
		return
	}

	if err := op(c.Request.Context(), tid, id); err != nil {
		response.Error(c, err)
		return
	}

	campaign, err := h.campaignSvc.Get(c.Request.Context(), tid, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, toCampaignResponse(campaign))
}

// RetryFailed handles POST /api/v1/campaigns/:id/retry-failed.
func (h *CampaignHandler) RetryFailed(c *gin.Context) {
	tid, ok := tenantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid campaign id"))
		return
	}

	requeued, err := h.campaignSvc.RetryFailed(c.Request.Context(), tid, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.RetryFailedResponse{Requeued: requeued})
}

// Dispatch handles POST /api/v1/campaigns/:id/dispatch. It runs one batch
// synchronously and returns the batch result; external pollers drive this
// endpoint when the in-process poller is off.
func (h *CampaignHandler) Dispatch(c *gin.Context) {
	tid, ok := tenantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid campaign id"))
		return
	}

	var req dto.DispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	speed := h.defaultSpeed
	if req.Speed != "" {
		speed = domain.DispatchSpeed(req.Speed)
	}

	// Tenant scoping: the dispatcher itself is tenant-agnostic, so ownership
	// is checked here before handing over the id.
	if _, err := h.campaignSvc.Get(c.Request.Context(), tid, id); err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.dispatchSvc.ProcessBatch(c.Request.Context(), id, speed)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

func toCampaignResponse(cp *domain.Campaign) dto.CampaignResponse {
	resp := dto.CampaignResponse{
		ID:               cp.ID.String(),
		ChannelID:        cp.ChannelID.String(),
		TemplateID:       cp.TemplateID.String(),
		Name:             cp.Name,
		Status:           string(cp.Status),
		VariableDefaults: cp.VariableDefaults,
		TotalRecipients:  cp.TotalRecipients,
		SentCount:        cp.SentCount,
		DeliveredCount:   cp.DeliveredCount,
		ReadCount:        cp.ReadCount,
		FailedCount:      cp.FailedCount,
		ScheduledAt:      fmtTimePtr(cp.ScheduledAt),
		StartedAt:        fmtTimePtr(cp.StartedAt),
		CompletedAt:      fmtTimePtr(cp.CompletedAt),
		CreatedAt:        fmtTime(cp.CreatedAt),
	}
	if cp.PausedReason != nil {
		s := string(*cp.PausedReason)
		resp.PausedReason = &s
	}
	return resp
}
