package contact

import "crmhub/internal/common"

// 联系人状态
const (
	StatusLead     = "lead"
	StatusProspect = "prospect"
	StatusCustomer = "customer"
	StatusChurned  = "churned"
)

// ValidStatuses 合法状态
var ValidStatuses = []string{StatusLead, StatusProspect, StatusCustomer, StatusChurned}

// Contact 联系人
type Contact struct {
	common.TenantModel
	Name    string `json:"name" gorm:"size:255;not null"`
	Email   string `json:"email" gorm:"size:255;index"`
	Phone   string `json:"phone" gorm:"size:50"`
	Company string `json:"company" gorm:"size:255"`
	Status  string `json:"status" gorm:"size:20;not null;default:lead;index"`
	OwnerID string `json:"owner_id" gorm:"size:36;index"`
	Notes   string `json:"notes" gorm:"type:text"`
}

// CreateContactRequest 创建联系人请求
type CreateContactRequest struct {
	Name    string `json:"name" binding:"required"`
	Email   string `json:"email" binding:"omitempty,email"`
	Phone   string `json:"phone"`
	Company string `json:"company"`
	Status  string `json:"status"`
	OwnerID string `json:"owner_id"`
	Notes   string `json:"notes"`
}

// UpdateContactRequest 更新联系人请求，nil 字段保持不变
type UpdateContactRequest struct {
	Name    *string `json:"name"`
	Email   *string `json:"email" binding:"omitempty,email"`
	Phone   *string `json:"phone"`
	Company *string `json:"company"`
	Status  *string `json:"status"`
	OwnerID *string `json:"owner_id"`
	Notes   *string `json:"notes"`
}

// ListContactsRequest 联系人列表请求
type ListContactsRequest struct {
	common.PaginationRequest
	common.FilterRequest
	OwnerID string `form:"owner_id"`
}

// StatusCount 按状态统计
type StatusCount struct {
	Status string `json:"status"`
	Total  int64  `json:"total"`
}
