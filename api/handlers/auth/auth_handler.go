package auth

import (
	"context"
	"net/http"
	"time"

	"crmhub/internal/auth"
	"crmhub/internal/common"
	"crmhub/internal/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// OrgGuard 登录前检查用户所属组织是否可用
type OrgGuard interface {
	EnsureActive(ctx context.Context, id string) error
}

// LoginRecorder 记录最近登录时间
type LoginRecorder interface {
	TouchLogin(ctx context.Context, id string) error
}

// AuthHandler 认证处理器
type AuthHandler struct {
	service    *auth.Service
	orgs       OrgGuard
	logins     LoginRecorder
	cookieName string
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(service *auth.Service, orgs OrgGuard, logins LoginRecorder, cookieName string) *AuthHandler {
	return &AuthHandler{service: service, orgs: orgs, logins: logins, cookieName: cookieName}
}

// LoginRequest 登录请求
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Login 用户登录
// POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err).SetType(gin.ErrorTypeBind)
		return
	}

	ctx := c.Request.Context()
	res, err := h.service.Login(ctx, req.Email, req.Password)
	if err != nil {
		_ = c.Error(err)
		return
	}

	if res.User.OrgID != "" && h.orgs != nil {
		if err := h.orgs.EnsureActive(ctx, res.User.OrgID); err != nil {
			_ = c.Error(err)
			return
		}
	}

	if h.logins != nil {
		if err := h.logins.TouchLogin(ctx, res.User.ID); err != nil {
			logger.WithContext(ctx).Warn("记录登录时间失败", zap.String("user_id", res.User.ID), zap.Error(err))
		}
	}

	if h.cookieName != "" {
		maxAge := int(time.Until(res.ExpiresAt).Seconds())
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(h.cookieName, res.Token, maxAge, "/", "", c.Request.TLS != nil, true)
	}

	common.ResponseSuccess(c, res)
}

// Logout 用户登出，吊销当前令牌
// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	token := auth.TokenFromRequest(c, h.cookieName)
	if err := h.service.Logout(c.Request.Context(), token); err != nil {
		_ = c.Error(err)
		return
	}
	if h.cookieName != "" {
		c.SetCookie(h.cookieName, "", -1, "/", "", c.Request.TLS != nil, true)
	}
	common.ResponseSuccessMessage(c, "已退出登录", nil)
}

// Me 当前登录用户
// GET /api/v1/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	p, ok := auth.CurrentPrincipal(c)
	if !ok {
		_ = c.Error(auth.ErrNoToken)
		return
	}
	common.ResponseSuccess(c, p)
}
