package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"crmhub/internal/auth"
	"crmhub/internal/common"
	"crmhub/internal/tenant"

	"gorm.io/gorm"
)

// Service 用户管理
// 所有查询都经过租户插件，只能看到当前组织的用户
// 豁免角色绕过组织过滤，只能由豁免角色授予
type Service struct {
	*common.BaseService
	scope tenant.ScopeConfig
}

// NewService 创建用户服务
func NewService(db *gorm.DB, scope tenant.ScopeConfig) *Service {
	return &Service{BaseService: common.NewBaseService(db), scope: scope}
}

// Create 创建用户，邮箱全局唯一
func (s *Service) Create(ctx context.Context, req *CreateUserRequest) (*User, error) {
	email := normalizeEmail(req.Email)
	role, err := normalizeRole(req.Role)
	if err != nil {
		return nil, err
	}
	if err := s.checkGrant(ctx, role); err != nil {
		return nil, err
	}

	orgID := strings.TrimSpace(req.OrgID)
	if !s.privileged(tenant.Role(ctx)) {
		orgID = ""
	}
	if orgID == "" && !s.privileged(role) && tenant.OrgID(ctx) == "" {
		return nil, common.NewBusinessError(common.CodeInvalidRequest, "必须指定用户所属组织")
	}

	taken, err := s.emailTaken(ctx, email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, common.NewBusinessErrorWithCode(common.CodeEmailTaken)
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	u := &User{
		Email:        email,
		Name:         strings.TrimSpace(req.Name),
		Role:         role,
		PasswordHash: hash,
		IsActive:     true,
		IsVerified:   true,
	}
	u.OrgID = orgID
	if err := s.Conn(ctx).Create(u).Error; err != nil {
		return nil, fmt.Errorf("创建用户失败: %w", err)
	}
	return u, nil
}

// CreateInTx 在已有事务中创建用户（组织开通时使用）
func (s *Service) CreateInTx(ctx context.Context, tx *gorm.DB, req *CreateUserRequest) (*User, error) {
	return (&Service{BaseService: common.NewBaseService(tx), scope: s.scope}).Create(ctx, req)
}

// List 分页查询用户
func (s *Service) List(ctx context.Context, req *ListUsersRequest) ([]User, int64, error) {
	query := s.Conn(ctx).Model(&User{}).
		Scopes(common.Keyword(req.Keyword, "email", "name"), common.Sort("", ""))
	if req.Role != "" {
		query = query.Where("role = ?", strings.ToUpper(req.Role))
	}

	var users []User
	total, err := s.ListPage(query, req.PaginationRequest, &users)
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// Get 查询用户
func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	var u User
	if err := s.FindByID(ctx, &u, id, common.CodeUserNotFound); err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateRole 修改角色，下一次请求即生效
func (s *Service) UpdateRole(ctx context.Context, id, role string) (*User, error) {
	role, err := normalizeRole(role)
	if err != nil {
		return nil, err
	}
	if err := s.checkGrant(ctx, role); err != nil {
		return nil, err
	}
	if err := s.checkTarget(ctx, id); err != nil {
		return nil, err
	}
	return s.update(ctx, id, map[string]any{"role": role})
}

// SetActive 启用/禁用用户
func (s *Service) SetActive(ctx context.Context, id string, active bool) (*User, error) {
	if err := s.checkTarget(ctx, id); err != nil {
		return nil, err
	}
	return s.update(ctx, id, map[string]any{"is_active": active})
}

// Delete 软删除用户
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.checkTarget(ctx, id); err != nil {
		return err
	}
	res := s.Conn(ctx).Where("id = ?", id).Delete(&User{})
	if res.Error != nil {
		return fmt.Errorf("删除用户失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return common.NewBusinessErrorWithCode(common.CodeUserNotFound)
	}
	return nil
}

// TouchLogin 记录最近登录时间
func (s *Service) TouchLogin(ctx context.Context, id string) error {
	return tenant.WithoutTenant(s.Conn(ctx)).Model(&User{}).
		Where("id = ?", id).
		UpdateColumn("last_login_at", time.Now().UTC()).Error
}

// FindByEmail 实现 auth.UserLookup
// 认证发生在租户作用域建立之前，这里显式跨租户查询，并包含已软删除的记录
func (s *Service) FindByEmail(ctx context.Context, email string) (*auth.Principal, error) {
	var u User
	err := tenant.WithoutTenant(s.Conn(ctx)).Unscoped().
		Where("email = ?", normalizeEmail(email)).
		First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询用户失败: %w", err)
	}
	return &auth.Principal{
		ID:           u.ID,
		OrgID:        u.OrgID,
		Email:        u.Email,
		Role:         u.Role,
		PasswordHash: u.PasswordHash,
		IsActive:     u.IsActive,
		IsDeleted:    u.DeletedAt.Valid,
		IsVerified:   u.IsVerified,
	}, nil
}

func (s *Service) update(ctx context.Context, id string, updates map[string]any) (*User, error) {
	res := s.Conn(ctx).Model(&User{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("更新用户失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, common.NewBusinessErrorWithCode(common.CodeUserNotFound)
	}
	return s.Get(ctx, id)
}

// privileged 超级管理员或配置中的豁免角色
func (s *Service) privileged(role string) bool {
	return strings.EqualFold(role, RoleSuperAdmin) || s.scope.IsExempt(role)
}

func (s *Service) checkGrant(ctx context.Context, role string) error {
	if s.privileged(role) && !s.privileged(tenant.Role(ctx)) {
		return common.NewBusinessError(common.CodeForbidden, fmt.Sprintf("无权授予角色: %s", role))
	}
	return nil
}

// checkTarget 非豁免调用方不能修改豁免角色的用户
func (s *Service) checkTarget(ctx context.Context, id string) error {
	if s.privileged(tenant.Role(ctx)) {
		return nil
	}
	target, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if s.privileged(target.Role) {
		return common.NewBusinessErrorWithCode(common.CodeForbidden)
	}
	return nil
}

func (s *Service) emailTaken(ctx context.Context, email string) (bool, error) {
	var count int64
	err := tenant.WithoutTenant(s.Conn(ctx)).Unscoped().Model(&User{}).Where("email = ?", email).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("检查邮箱失败: %w", err)
	}
	return count > 0, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func normalizeRole(role string) (string, error) {
	role = strings.ToUpper(strings.TrimSpace(role))
	for _, r := range ValidRoles {
		if r == role {
			return role, nil
		}
	}
	return "", common.NewBusinessError(common.CodeInvalidRequest, fmt.Sprintf("无效的角色: %s", role))
}
