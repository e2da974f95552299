package org

import "crmhub/internal/common"

// 套餐
const (
	PlanFree       = "free"
	PlanPro        = "pro"
	PlanEnterprise = "enterprise"
)

// ValidPlans 可选套餐
var ValidPlans = []string{PlanFree, PlanPro, PlanEnterprise}

// Organization 组织（租户本身）
// 没有组织字段，租户插件对该表不生效，访问控制由服务层完成
type Organization struct {
	common.BaseModel
	Name     string `json:"name" gorm:"size:255;not null"`
	Slug     string `json:"slug" gorm:"size:100;not null;uniqueIndex"`
	Plan     string `json:"plan" gorm:"size:50;not null;default:free"`
	IsActive bool   `json:"is_active" gorm:"not null;default:true"`
}

// CreateOrgRequest 开通组织请求，同时创建第一个管理员
type CreateOrgRequest struct {
	Name          string `json:"name" binding:"required"`
	Slug          string `json:"slug"`
	Plan          string `json:"plan"`
	AdminEmail    string `json:"admin_email" binding:"required,email"`
	AdminName     string `json:"admin_name" binding:"required"`
	AdminPassword string `json:"admin_password" binding:"required,min=8"`
}

// UpdateOrgRequest 更新组织请求
type UpdateOrgRequest struct {
	Name     *string `json:"name"`
	Plan     *string `json:"plan"`
	IsActive *bool   `json:"is_active"`
}

// ListOrgsRequest 组织列表请求
type ListOrgsRequest struct {
	common.PaginationRequest
	Keyword string `form:"keyword"`
}
