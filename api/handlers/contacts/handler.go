package contacts

import (
	"crmhub/internal/common"
	"crmhub/internal/contact"

	"github.com/gin-gonic/gin"
)

// Handler 联系人
type Handler struct {
	service *contact.Service
}

// NewHandler 创建联系人 Handler
func NewHandler(service *contact.Service) *Handler {
	return &Handler{service: service}
}

// List 联系人列表
// GET /api/v1/contacts?keyword=&status=&owner_id=&sort_by=&page=1
func (h *Handler) List(c *gin.Context) {
	var req contact.ListContactsRequest
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

// Stats 按状态统计
// GET /api/v1/contacts/stats
func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.service.StatsByStatus(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	common.ResponseSuccess(c, stats)
}

// Get 联系人详情
// GET /api/v1/contacts/:id
func (h *Handler) Get(c *gin.Context) {
	ct, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	common.ResponseSuccess(c, ct)
}

// Create 创建联系人
// POST /api/v1/contacts
func (h *Handler) Create(c *gin.Context) {
	var req contact.CreateContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err).SetType(gin.ErrorTypeBind)
		return
	}

	ct, err := h.service.Create(c.Request.Context(), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	common.ResponseCreated(c, ct)
}

// Update 更新联系人
// PUT /api/v1/contacts/:id
func (h *Handler) Update(c *gin.Context) {
	var req contact.UpdateContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err).SetType(gin.ErrorTypeBind)
		return
	}

	ct, err := h.service.Update(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	common.ResponseSuccess(c, ct)
}

// Delete 删除联系人
// DELETE /api/v1/contacts/:id
func (h *Handler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		_ = c.Error(err)
		return
	}
	common.ResponseSuccessMessage(c, "联系人已删除", nil)
}
