package logs

import (
	"time"

	"crmhub/internal/activitylog"
	"crmhub/internal/common"

	"github.com/gin-gonic/gin"
)

// Handler 活动日志查询
type Handler struct {
	service *activitylog.Service
}

// NewHandler 创建日志 Handler，service 为空表示未启用 MongoDB
func NewHandler(service *activitylog.Service) *Handler {
	return &Handler{service: service}
}

// StatsRequest 统计请求
type StatsRequest struct {
	Since *time.Time `form:"since" time_format:"2006-01-02"`
}

// List 日志列表
// GET /api/v1/logs?action=&resource=&user_id=&from=&to=&page=1
func (h *Handler) List(c *gin.Context) {
	if !h.enabled(c) {
		return
	}
	var req activitylog.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		_ = c.Error(err).SetType(gin.ErrorTypeBind)
		return
	}

	items, total, err := h.service.List(c.Request.Context(), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	common.ResponseList(c, items, total, &req.PaginationRequest)
}

// Stats 按动作统计
// GET /api/v1/logs/stats?since=2025-01-01
func (h *Handler) Stats(c *gin.Context) {
	if !h.enabled(c) {
		return
	}
	var req StatsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		_ = c.Error(err).SetType(gin.ErrorTypeBind)
		return
	}

	counts, err := h.service.CountByAction(c.Request.Context(), req.Since)
	if err != nil {
		_ = c.Error(err)
		return
	}
	common.ResponseSuccess(c, counts)
}

func (h *Handler) enabled(c *gin.Context) bool {
	if h.service == nil {
		_ = c.Error(common.NewBusinessError(common.CodeServiceUnavailable, "活动日志未启用"))
		return false
	}
	return true
}
