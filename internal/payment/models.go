package payment

import (
	"time"

	"crmhub/internal/common"
)

// 付款状态
const (
	StatusPending   = "pending"
	StatusPaid      = "paid"
	StatusCancelled = "cancelled"
)

// 计费周期
const (
	IntervalNone    = "none"
	IntervalMonthly = "monthly"
	IntervalYearly  = "yearly"
)

// Payment 付款记录，金额以最小货币单位存储
type Payment struct {
	common.TenantModel
	ContactID     string     `json:"contact_id" gorm:"size:36;not null;index"`
	Amount        int64      `json:"amount" gorm:"not null"`
	Currency      string     `json:"currency" gorm:"size:3;not null;default:USD"`
	Status        string     `json:"status" gorm:"size:20;not null;default:pending;index"`
	Interval      string     `json:"interval" gorm:"column:billing_interval;size:20;not null;default:none"`
	PeriodStart   *time.Time `json:"period_start,omitempty"`
	PeriodEnd     *time.Time `json:"period_end,omitempty" gorm:"index"`
	DueAt         time.Time  `json:"due_at" gorm:"not null"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
	Renewed       bool       `json:"renewed" gorm:"not null;default:false"`
	RenewedFromID *string    `json:"renewed_from_id,omitempty" gorm:"size:36;index"`
	Description   string     `json:"description" gorm:"size:500"`
}

// Recurring 是否为周期性付款
func (p *Payment) Recurring() bool {
	return p.Interval == IntervalMonthly || p.Interval == IntervalYearly
}

// CreatePaymentRequest 创建付款请求
type CreatePaymentRequest struct {
	ContactID   string     `json:"contact_id" binding:"required"`
	Amount      int64      `json:"amount" binding:"required,gt=0"`
	Currency    string     `json:"currency"`
	Interval    string     `json:"interval"`
	PeriodStart *time.Time `json:"period_start"`
	DueAt       *time.Time `json:"due_at"`
	Description string     `json:"description"`
}

// ListPaymentsRequest 付款列表请求
type ListPaymentsRequest struct {
	common.PaginationRequest
	common.FilterRequest
	ContactID string `form:"contact_id"`
}

// StatusSummary 按状态与币种汇总
type StatusSummary struct {
	Status   string `json:"status"`
	Currency string `json:"currency"`
	Count    int64  `json:"count"`
	Amount   int64  `json:"amount"`
}
