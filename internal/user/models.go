package user

import (
	"time"

	"crmhub/internal/common"
)

// 角色
const (
	RoleSuperAdmin = "SUPER_ADMIN"
	RoleAdmin      = "ADMIN"
	RoleManager    = "MANAGER"
	RoleAgent      = "AGENT"
)

// ValidRoles 允许分配的角色
var ValidRoles = []string{RoleSuperAdmin, RoleAdmin, RoleManager, RoleAgent}

// User 后台用户，属于某个组织；超级管理员的 OrgID 为空
type User struct {
	common.TenantModel
	Email        string     `json:"email" gorm:"size:255;not null;uniqueIndex"`
	Name         string     `json:"name" gorm:"size:255"`
	Role         string     `json:"role" gorm:"size:50;not null;default:AGENT"`
	PasswordHash string     `json:"-" gorm:"size:255;not null"`
	IsActive     bool       `json:"is_active" gorm:"not null;default:true"`
	IsVerified   bool       `json:"is_verified" gorm:"not null;default:false"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

// CreateUserRequest 创建用户请求
type CreateUserRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Name     string `json:"name" binding:"required"`
	Role     string `json:"role" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
	// OrgID 只允许超级管理员显式指定，其它调用方由租户插件自动填充
	OrgID string `json:"org_id"`
}

// ListUsersRequest 用户列表请求
type ListUsersRequest struct {
	common.PaginationRequest
	Keyword string `form:"keyword"`
	Role    string `form:"role"`
}
