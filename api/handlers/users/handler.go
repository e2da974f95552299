package users

import (
	"crmhub/internal/common"
	"crmhub/internal/user"

	"github.com/gin-gonic/gin"
)

// Handler 用户管理（组织管理员）
type Handler struct {
	service *user.Service
}

// NewHandler 创建用户 Handler
func NewHandler(service *user.Service) *Handler {
	return &Handler{service: service}
}

// UpdateRoleRequest 修改角色请求
type UpdateRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// List 用户列表
// GET /api/v1/users?keyword=&role=&page=1&page_size=20
func (h *Handler) List(c *gin.Context) {
	var req user.ListUsersRequest
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

// Create 创建用户
// POST /api/v1/users
func (h *Handler) Create(c *gin.Context) {
	var req user.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err).SetType(gin.ErrorTypeBind)
		return
	}

	u, err := h.service.Create(c.Request.Context(), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	common.ResponseCreated(c, u)
}

// Get 用户详情
// GET /api/v1/users/:id
func (h *Handler) Get(c *gin.Context) {
	u, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	common.ResponseSuccess(c, u)
}

// UpdateRole 修改角色
// PUT /api/v1/users/:id/role
func (h *Handler) UpdateRole(c *gin.Context) {
	var req UpdateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err).SetType(gin.ErrorTypeBind)
		return
	}

	u, err := h.service.UpdateRole(c.Request.Context(), c.Param("id"), req.Role)
	if err != nil {
		_ = c.Error(err)
		return
	}
	common.ResponseSuccess(c, u)
}

// Block 禁用用户
// POST /api/v1/users/:id/block
func (h *Handler) Block(c *gin.Context) {
	h.setActive(c, false)
}

// Unblock 启用用户
// POST /api/v1/users/:id/unblock
func (h *Handler) Unblock(c *gin.Context) {
	h.setActive(c, true)
}

func (h *Handler) setActive(c *gin.Context, active bool) {
	u, err := h.service.SetActive(c.Request.Context(), c.Param("id"), active)
	if err != nil {
		_ = c.Error(err)
		return
	}
	common.ResponseSuccess(c, u)
}

// Delete 删除用户（软删除）
// DELETE /api/v1/users/:id
func (h *Handler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		_ = c.Error(err)
		return
	}
	common.ResponseSuccessMessage(c, "用户已删除", nil)
}
