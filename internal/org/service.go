package org

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"crmhub/internal/common"
	"crmhub/internal/tenant"
	"crmhub/internal/user"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service 组织管理
type Service struct {
	*common.BaseService
	users *user.Service
	scope tenant.ScopeConfig
}

// NewService 创建组织服务，scope 用于判断调用方是否可以跨组织操作
func NewService(db *gorm.DB, users *user.Service, scope tenant.ScopeConfig) *Service {
	return &Service{
		BaseService: common.NewBaseService(db),
		users:       users,
		scope:       scope,
	}
}

// Create 开通组织，并在同一事务中创建该组织的管理员
func (s *Service) Create(ctx context.Context, req *CreateOrgRequest) (*Organization, *user.User, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, nil, common.NewBusinessError(common.CodeInvalidRequest, "组织名称不能为空")
	}
	plan, err := normalizePlan(req.Plan)
	if err != nil {
		return nil, nil, err
	}
	slug := slugify(req.Slug)
	if slug == "" {
		slug = slugify(name)
	}
	if slug == "" {
		slug = "org-" + uuid.NewString()[:8]
	}

	o := &Organization{Name: name, Slug: slug, Plan: plan, IsActive: true}
	var admin *user.User
	err = s.Transaction(ctx, func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Organization{}).Where("slug = ?", slug).Count(&count).Error; err != nil {
			return fmt.Errorf("检查组织标识失败: %w", err)
		}
		if count > 0 {
			return common.NewBusinessError(common.CodeConflict, fmt.Sprintf("组织标识已存在: %s", slug))
		}
		if err := tx.Create(o).Error; err != nil {
			return fmt.Errorf("创建组织失败: %w", err)
		}

		// 管理员在新组织的作用域内创建，组织字段由插件填充
		adminCtx := tenant.WithContext(ctx, tenant.Context{
			UserID: tenant.UserID(ctx),
			OrgID:  o.ID,
			Role:   user.RoleAdmin,
		})
		admin, err = s.users.CreateInTx(adminCtx, tx, &user.CreateUserRequest{
			Email:    req.AdminEmail,
			Name:     req.AdminName,
			Role:     user.RoleAdmin,
			Password: req.AdminPassword,
		})
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return o, admin, nil
}

// Get 查询组织，非豁免角色只能看到自己的组织
func (s *Service) Get(ctx context.Context, id string) (*Organization, error) {
	if !s.canAccess(ctx, id) {
		return nil, common.NewBusinessErrorWithCode(common.CodeOrgNotFound)
	}
	var o Organization
	if err := s.FindByID(ctx, &o, id, common.CodeOrgNotFound); err != nil {
		return nil, err
	}
	return &o, nil
}

// Current 当前调用方所属的组织
func (s *Service) Current(ctx context.Context) (*Organization, error) {
	orgID := tenant.OrgID(ctx)
	if orgID == "" {
		return nil, common.NewBusinessErrorWithCode(common.CodeOrgNotFound)
	}
	return s.Get(ctx, orgID)
}

// List 组织列表（超级管理员）
func (s *Service) List(ctx context.Context, req *ListOrgsRequest) ([]Organization, int64, error) {
	query := s.Conn(ctx).Model(&Organization{}).
		Scopes(common.Keyword(req.Keyword, "name", "slug"), common.Sort("", ""))
	if !s.scope.IsExempt(tenant.Role(ctx)) {
		query = query.Where("id = ?", tenant.OrgID(ctx))
	}

	var orgs []Organization
	total, err := s.ListPage(query, req.PaginationRequest, &orgs)
	if err != nil {
		return nil, 0, err
	}
	return orgs, total, nil
}

// Update 更新组织，套餐与启用状态只有超级管理员可以修改
func (s *Service) Update(ctx context.Context, id string, req *UpdateOrgRequest) (*Organization, error) {
	if !s.canAccess(ctx, id) {
		return nil, common.NewBusinessErrorWithCode(common.CodeOrgNotFound)
	}

	updates := map[string]any{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, common.NewBusinessError(common.CodeInvalidRequest, "组织名称不能为空")
		}
		updates["name"] = name
	}
	if req.Plan != nil || req.IsActive != nil {
		if !s.scope.IsExempt(tenant.Role(ctx)) {
			return nil, common.NewBusinessErrorWithCode(common.CodeForbidden)
		}
		if req.Plan != nil {
			plan, err := normalizePlan(*req.Plan)
			if err != nil {
				return nil, err
			}
			updates["plan"] = plan
		}
		if req.IsActive != nil {
			updates["is_active"] = *req.IsActive
		}
	}
	if len(updates) == 0 {
		return s.Get(ctx, id)
	}

	res := s.Conn(ctx).Model(&Organization{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("更新组织失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, common.NewBusinessErrorWithCode(common.CodeOrgNotFound)
	}
	return s.Get(ctx, id)
}

// EnsureActive 组织存在且未被禁用
func (s *Service) EnsureActive(ctx context.Context, id string) error {
	var o Organization
	if err := s.FindByID(ctx, &o, id, common.CodeOrgNotFound); err != nil {
		return err
	}
	if !o.IsActive {
		return common.NewBusinessErrorWithCode(common.CodeOrgDisabled)
	}
	return nil
}

func (s *Service) canAccess(ctx context.Context, id string) bool {
	if s.scope.IsExempt(tenant.Role(ctx)) {
		return true
	}
	return id != "" && id == tenant.OrgID(ctx)
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(raw string) string {
	slug := slugInvalid.ReplaceAllString(strings.ToLower(strings.TrimSpace(raw)), "-")
	return strings.Trim(slug, "-")
}

func normalizePlan(plan string) (string, error) {
	plan = strings.ToLower(strings.TrimSpace(plan))
	if plan == "" {
		return PlanFree, nil
	}
	for _, p := range ValidPlans {
		if p == plan {
			return plan, nil
		}
	}
	return "", common.NewBusinessError(common.CodeInvalidRequest, fmt.Sprintf("无效的套餐: %s", plan))
}
