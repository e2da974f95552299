package orgs

import (
	"crmhub/internal/common"
	"crmhub/internal/org"
	"crmhub/internal/user"

	"github.com/gin-gonic/gin"
)

// Handler 组织管理
type Handler struct {
	service *org.Service
}

// NewHandler 创建组织 Handler
func NewHandler(service *org.Service) *Handler {
	return &Handler{service: service}
}

// ProvisionResponse 开通组织的返回结果
type ProvisionResponse struct {
	Organization *org.Organization `json:"organization"`
	Admin        *user.User        `json:"admin"`
}

// Create 开通组织并创建第一个管理员（超级管理员）
// POST /api/v1/orgs
func (h *Handler) Create(c *gin.Context) {
	var req org.CreateOrgRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err).SetType(gin.ErrorTypeBind)
		return
	}

	o, admin, err := h.service.Create(c.Request.Context(), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	common.ResponseCreated(c, ProvisionResponse{Organization: o, Admin: admin})
}

// List 组织列表
// GET /api/v1/orgs?keyword=&page=1&page_size=20
func (h *Handler) List(c *gin.Context) {
	var req org.ListOrgsRequest
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

// Current 当前用户所属组织
// GET /api/v1/orgs/current
func (h *Handler) Current(c *gin.Context) {
	o, err := h.service.Current(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	common.ResponseSuccess(c, o)
}

// Get 组织详情
// GET /api/v1/orgs/:id
func (h *Handler) Get(c *gin.Context) {
	o, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	common.ResponseSuccess(c, o)
}

// Update 更新组织
// PUT /api/v1/orgs/:id
func (h *Handler) Update(c *gin.Context) {
	var req org.UpdateOrgRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err).SetType(gin.ErrorTypeBind)
		return
	}

	o, err := h.service.Update(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	common.ResponseSuccess(c, o)
}
