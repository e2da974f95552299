package templates

import (
	"crmhub/internal/common"
	"crmhub/internal/template"

	"github.com/gin-gonic/gin"
)

// TemplateHandler 邮件模板 Handler
type TemplateHandler struct {
	service *template.TemplateService
}

// NewTemplateHandler 创建 TemplateHandler 实例
func NewTemplateHandler(service *template.TemplateService) *TemplateHandler {
	return &TemplateHandler{service: service}
}

// ListTemplates 查询模板列表（本组织模板 + 全局模板）
// GET /api/v1/templates?category=&keyword=&page=1&page_size=20
func (h *TemplateHandler) ListTemplates(c *gin.Context) {
	var req template.ListTemplatesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		_ = c.Error(err).SetType(gin.ErrorTypeBind)
		return
	}

	items, total, err := h.service.ListTemplates(c.Request.Context(), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	common.ResponseList(c, items, total, &req.PaginationRequest)
}

// ListAll 查询所有组织的模板（超级管理员）
// GET /api/v1/templates/all
func (h *TemplateHandler) ListAll(c *gin.Context) {
	var req template.ListTemplatesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		_ = c.Error(err).SetType(gin.ErrorTypeBind)
		return
	}

	items, total, err := h.service.ListAll(c.Request.Context(), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	common.ResponseList(c, items, total, &req.PaginationRequest)
}

// GetTemplate 查询单个模板
// GET /api/v1/templates/:id
func (h *TemplateHandler) GetTemplate(c *gin.Context) {
	tmpl, err := h.service.GetTemplate(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	common.ResponseSuccess(c, tmpl)
}

// CreateTemplate 创建模板
// POST /api/v1/templates
func (h *TemplateHandler) CreateTemplate(c *gin.Context) {
	var req template.CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err).SetType(gin.ErrorTypeBind)
		return
	}

	tmpl, err := h.service.CreateTemplate(c.Request.Context(), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	common.ResponseCreated(c, tmpl)
}

// UpdateTemplate 更新模板
// PUT /api/v1/templates/:id
func (h *TemplateHandler) UpdateTemplate(c *gin.Context) {
	var req template.UpdateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err).SetType(gin.ErrorTypeBind)
		return
	}

	tmpl, err := h.service.UpdateTemplate(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	common.ResponseSuccess(c, tmpl)
}

// DeleteTemplate 删除模板
// DELETE /api/v1/templates/:id
func (h *TemplateHandler) DeleteTemplate(c *gin.Context) {
	if err := h.service.DeleteTemplate(c.Request.Context(), c.Param("id")); err != nil {
		_ = c.Error(err)
		return
	}
	common.ResponseSuccessMessage(c, "模板已删除", nil)
}

// RenderTemplate 渲染模板
// POST /api/v1/templates/:id/render
func (h *TemplateHandler) RenderTemplate(c *gin.Context) {
	var req template.RenderTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err).SetType(gin.ErrorTypeBind)
		return
	}

	rendered, err := h.service.RenderTemplate(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	common.ResponseSuccess(c, rendered)
}
