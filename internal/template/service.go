package template

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"crmhub/internal/common"
	"crmhub/internal/logger"
	"crmhub/internal/tenant"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TemplateService 邮件模板管理服务
// 组织模板由租户插件自动隔离；全局模板通过显式的 org_id 条件并入结果
type TemplateService struct {
	*common.BaseService
}

// NewTemplateService 创建 TemplateService 实例
func NewTemplateService(db *gorm.DB) *TemplateService {
	return &TemplateService{BaseService: common.NewBaseService(db)}
}

// visible 当前组织的模板加上全局模板
func visible(ctx context.Context) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if orgID := tenant.OrgID(ctx); orgID != "" {
			return db.Where("(org_id = ? OR org_id IS NULL)", orgID)
		}
		return db.Where("org_id IS NULL")
	}
}

// writable 组织只能修改自己的模板，没有组织的调用方只能修改全局模板
func writable(ctx context.Context) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if tenant.OrgID(ctx) != "" {
			return db
		}
		return db.Where("org_id IS NULL")
	}
}

// ListTemplates 查询模板列表
func (s *TemplateService) ListTemplates(ctx context.Context, req *ListTemplatesRequest) ([]EmailTemplate, int64, error) {
	query := s.Conn(ctx).Model(&EmailTemplate{}).
		Scopes(visible(ctx), common.Keyword(req.Keyword, "name", "subject"))
	if req.Category != "" {
		query = query.Where("category = ?", req.Category)
	}
	query = query.Order("org_id IS NULL").Order("name ASC")

	var templates []EmailTemplate
	total, err := s.ListPage(query, req.PaginationRequest, &templates)
	if err != nil {
		return nil, 0, err
	}
	return templates, total, nil
}

// ListAll 所有组织的模板（超级管理员控制台）
func (s *TemplateService) ListAll(ctx context.Context, req *ListTemplatesRequest) ([]EmailTemplate, int64, error) {
	query := tenant.WithoutTenant(s.Conn(ctx)).Model(&EmailTemplate{}).
		Scopes(common.Keyword(req.Keyword, "name", "subject"), common.Sort("", ""))
	if req.Category != "" {
		query = query.Where("category = ?", req.Category)
	}

	var templates []EmailTemplate
	total, err := s.ListPage(query, req.PaginationRequest, &templates)
	if err != nil {
		return nil, 0, err
	}
	return templates, total, nil
}

// GetTemplate 查询单个模板
func (s *TemplateService) GetTemplate(ctx context.Context, id string) (*EmailTemplate, error) {
	var tmpl EmailTemplate
	err := s.Conn(ctx).Scopes(visible(ctx)).Where("id = ?", id).First(&tmpl).Error
	if err != nil {
		return nil, common.TranslateNotFound(err, common.CodeTemplateNotFound)
	}
	return &tmpl, nil
}

// CreateTemplate 创建模板
// 带组织的调用方创建组织模板，否则创建全局模板
func (s *TemplateService) CreateTemplate(ctx context.Context, req *CreateTemplateRequest) (*EmailTemplate, error) {
	if err := validate(req.Subject, req.Body); err != nil {
		return nil, err
	}
	tmpl := &EmailTemplate{
		Name:        strings.TrimSpace(req.Name),
		Category:    strings.TrimSpace(req.Category),
		Subject:     req.Subject,
		Body:        req.Body,
		Description: req.Description,
		CreatedBy:   tenant.UserID(ctx),
	}
	if err := s.Conn(ctx).Create(tmpl).Error; err != nil {
		return nil, fmt.Errorf("创建模板失败: %w", err)
	}
	return tmpl, nil
}

// readOnly 全局模板对组织只读
func readOnly(ctx context.Context, t *EmailTemplate) bool {
	return t.Global() && tenant.OrgID(ctx) != ""
}

// UpdateTemplate 更新模板
func (s *TemplateService) UpdateTemplate(ctx context.Context, id string, req *UpdateTemplateRequest) (*EmailTemplate, error) {
	current, err := s.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	if readOnly(ctx, current) {
		return nil, common.NewBusinessError(common.CodeForbidden, "全局模板不允许修改")
	}

	updates := map[string]any{}
	subject, body := current.Subject, current.Body
	if req.Name != nil {
		updates["name"] = strings.TrimSpace(*req.Name)
	}
	if req.Category != nil {
		updates["category"] = strings.TrimSpace(*req.Category)
	}
	if req.Subject != nil {
		subject = *req.Subject
		updates["subject"] = subject
	}
	if req.Body != nil {
		body = *req.Body
		updates["body"] = body
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if len(updates) == 0 {
		return current, nil
	}
	if err := validate(subject, body); err != nil {
		return nil, err
	}

	res := s.Conn(ctx).Model(&EmailTemplate{}).Scopes(writable(ctx)).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("更新模板失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, common.NewBusinessError(common.CodeForbidden, "全局模板不允许修改")
	}
	return s.GetTemplate(ctx, id)
}

// DeleteTemplate 删除模板
func (s *TemplateService) DeleteTemplate(ctx context.Context, id string) error {
	current, err := s.GetTemplate(ctx, id)
	if err != nil {
		return err
	}
	if readOnly(ctx, current) {
		return common.NewBusinessError(common.CodeForbidden, "全局模板不允许删除")
	}
	res := s.Conn(ctx).Scopes(writable(ctx)).Where("id = ?", current.ID).Delete(&EmailTemplate{})
	if res.Error != nil {
		return fmt.Errorf("删除模板失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return common.NewBusinessError(common.CodeForbidden, "全局模板不允许删除")
	}
	return nil
}

// RenderTemplate 渲染模板（变量注入），缺少变量时报错
func (s *TemplateService) RenderTemplate(ctx context.Context, id string, req *RenderTemplateRequest) (*RenderedEmail, error) {
	tmpl, err := s.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}

	subject, err := render("subject", tmpl.Subject, req.Variables)
	if err != nil {
		return nil, err
	}
	body, err := render("body", tmpl.Body, req.Variables)
	if err != nil {
		return nil, err
	}

	s.incrementUsageCount(ctx, tmpl.ID)
	return &RenderedEmail{Subject: subject, Body: body}, nil
}

// incrementUsageCount 增加模板使用计数，全局模板同样计数
func (s *TemplateService) incrementUsageCount(ctx context.Context, id string) {
	err := tenant.WithoutTenant(s.Conn(ctx)).Model(&EmailTemplate{}).
		Where("id = ?", id).
		UpdateColumn("usage_count", gorm.Expr("usage_count + 1")).Error
	if err != nil {
		logger.WithContext(ctx).Warn("更新模板使用次数失败", zap.String("template_id", id), zap.Error(err))
	}
}

func validate(subject, body string) error {
	for name, text := range map[string]string{"subject": subject, "body": body} {
		if _, err := template.New(name).Option("missingkey=error").Parse(text); err != nil {
			return common.NewBusinessError(common.CodeTemplateRender, fmt.Sprintf("模板语法错误: %v", err))
		}
	}
	return nil
}

func render(name, text string, vars map[string]any) (string, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", common.NewBusinessError(common.CodeTemplateRender, fmt.Sprintf("解析模板失败: %v", err))
	}
	if vars == nil {
		vars = map[string]any{}
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", common.NewBusinessError(common.CodeTemplateRender, fmt.Sprintf("渲染模板失败: %v", err))
	}
	return buf.String(), nil
}
