package template

import "crmhub/internal/common"

// EmailTemplate 邮件模板
// OrgID 为空表示所有组织共享的全局模板，只有超级管理员可以维护
type EmailTemplate struct {
	common.BaseModel
	OrgID       *string `json:"org_id" gorm:"size:36;index"`
	Name        string  `json:"name" gorm:"size:255;not null"`
	Category    string  `json:"category" gorm:"size:100"` // welcome, invoice, renewal, reminder
	Subject     string  `json:"subject" gorm:"size:500;not null"`
	Body        string  `json:"body" gorm:"type:text;not null"`
	Description string  `json:"description" gorm:"type:text"`
	UsageCount  int     `json:"usage_count" gorm:"default:0"`
	CreatedBy   string  `json:"created_by" gorm:"size:36"`
}

// Global 是否为全局模板
func (t *EmailTemplate) Global() bool {
	return t.OrgID == nil || *t.OrgID == ""
}

// CreateTemplateRequest 创建模板请求
type CreateTemplateRequest struct {
	Name        string `json:"name" binding:"required"`
	Category    string `json:"category"`
	Subject     string `json:"subject" binding:"required"`
	Body        string `json:"body" binding:"required"`
	Description string `json:"description"`
}

// UpdateTemplateRequest 更新模板请求
type UpdateTemplateRequest struct {
	Name        *string `json:"name"`
	Category    *string `json:"category"`
	Subject     *string `json:"subject"`
	Body        *string `json:"body"`
	Description *string `json:"description"`
}

// ListTemplatesRequest 查询模板列表请求
type ListTemplatesRequest struct {
	common.PaginationRequest
	Keyword  string `form:"keyword"`
	Category string `form:"category"`
}

// RenderTemplateRequest 渲染模板请求
type RenderTemplateRequest struct {
	Variables map[string]any `json:"variables"`
}

// RenderedEmail 渲染结果
type RenderedEmail struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}
