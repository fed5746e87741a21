package handler

import (
	"strconv"
	"time"

	"whatsapp-broadcast-platform/internal/adapter/http/middleware"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const timeFormat = "2006-01-02T15:04:05Z07:00"

// tenantID extracts the authenticated tenant from the gin context. A false
// return means the route was wired without JWTAuth, which is a bug.
func tenantID(c *gin.Context) (uuid.UUID, bool) {
	v, exists := c.Get(middleware.CtxTenantID)
	if !exists {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// pagination parses page/page_size query params with sane bounds.
func pagination(c *gin.Context) (page, pageSize int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}

func fmtTime(t time.Time) string {
	return t.Format(timeFormat)
}

func fmtTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(timeFormat)
	return &s
}
