package emailconfig

import (
	"crmhub/internal/common"
	"crmhub/internal/email"

	"github.com/gin-gonic/gin"
)

// Handler 组织邮件发送配置
type Handler struct {
	service *email.Service
}

// NewHandler 创建邮件配置 Handler
func NewHandler(service *email.Service) *Handler {
	return &Handler{service: service}
}

// Get 查询当前组织的邮件配置
// GET /api/v1/email-config
func (h *Handler) Get(c *gin.Context) {
	cfg, err := h.service.Get(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	common.ResponseSuccess(c, email.NewConfigView(cfg))
}

// Upsert 保存当前组织的邮件配置
// PUT /api/v1/email-config
func (h *Handler) Upsert(c *gin.Context) {
	var req email.UpsertConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err).SetType(gin.ErrorTypeBind)
		return
	}

	cfg, err := h.service.Upsert(c.Request.Context(), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	common.ResponseSuccess(c, email.NewConfigView(cfg))
}

// Verify 验证当前配置能否登录 SMTP 服务器
// POST /api/v1/email-config/verify
func (h *Handler) Verify(c *gin.Context) {
	if err := h.service.Verify(c.Request.Context()); err != nil {
		_ = c.Error(err)
		return
	}
	common.ResponseSuccessMessage(c, "SMTP 连接正常", nil)
}
