package payments

import (
	"errors"

	"crmhub/internal/common"
	"crmhub/internal/payment"

	"github.com/gin-gonic/gin"
)

// Handler 付款
type Handler struct {
	service *payment.Service
}

// NewHandler 创建付款 Handler
func NewHandler(service *payment.Service) *Handler {
	return &Handler{service: service}
}

// List 付款列表
// GET /api/v1/payments?status=&contact_id=&page=1
func (h *Handler) List(c *gin.Context) {
	var req payment.ListPaymentsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		_ = c.Error(err).SetType(gin.ErrorTypeBind)
		return
	}

	items, total, err := h.service.List(c.Request.Context(), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	common.ResponseList(c, items, total, &req.PaginationRequest)
}

// Summary 按状态与币种汇总
// GET /api/v1/payments/summary
func (h *Handler) Summary(c *gin.Context) {
	summary, err := h.service.Summary(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	common.ResponseSuccess(c, summary)
}

// Get 付款详情
// GET /api/v1/payments/:id
func (h *Handler) Get(c *gin.Context) {
	p, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	common.ResponseSuccess(c, p)
}

// Create 创建付款
// POST /api/v1/payments
func (h *Handler) Create(c *gin.Context) {
	var req payment.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err).SetType(gin.ErrorTypeBind)
		return
	}

	p, err := h.service.Create(c.Request.Context(), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	common.ResponseCreated(c, p)
}

// MarkPaid 标记为已支付
// POST /api/v1/payments/:id/paid
func (h *Handler) MarkPaid(c *gin.Context) {
	p, err := h.service.MarkPaid(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	common.ResponseSuccess(c, p)
}

// Cancel 取消付款
// POST /api/v1/payments/:id/cancel
func (h *Handler) Cancel(c *gin.Context) {
	p, err := h.service.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	common.ResponseSuccess(c, p)
}

// Renew 手动续期周期付款
// POST /api/v1/payments/:id/renew
func (h *Handler) Renew(c *gin.Context) {
	next, err := h.service.Renew(c.Request.Context(), c.Param("id"))
	if errors.Is(err, payment.ErrAlreadyRenewed) {
		err = common.NewBusinessError(common.CodePaymentState, err.Error())
	}
	if err != nil {
		_ = c.Error(err)
		return
	}
	common.ResponseCreated(c, next)
}
