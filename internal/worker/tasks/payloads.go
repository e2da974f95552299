package tasks

// Task Types
const (
	TypeRenewalSweep = "payment:renewal_sweep"
	TypeRenewPayment = "payment:renew"
)

// QueueBilling 付款相关任务队列
const QueueBilling = "billing"

// RenewalSweepPayload 续期扫描任务载荷
// 扫描没有租户作用域，跨所有组织查找到期付款
type RenewalSweepPayload struct {
	AheadDays int `json:"ahead_days"`
	Limit     int `json:"limit"`
}

// RenewPaymentPayload 单笔付款续期任务载荷
// OrgID 用于在处理时重建该组织的作用域
type RenewPaymentPayload struct {
	PaymentID string `json:"payment_id"`
	OrgID     string `json:"org_id"`
}
