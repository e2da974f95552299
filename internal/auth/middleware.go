package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"crmhub/internal/common"
	"crmhub/internal/metrics"
	"crmhub/internal/tenant"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// gin 上下文键
const (
	ContextUserKey   = "user"
	ContextUserIDKey = "user_id"
	ContextOrgIDKey  = "org_id"
	ContextRoleKey   = "role"
	ContextTokenKey  = "token"
)

// DefaultSuperAdminRole 默认超级管理员角色，任何角色要求都会放行
const DefaultSuperAdminRole = "SUPER_ADMIN"

// Principal 已认证的用户身份，来自用户记录而非令牌
type Principal struct {
	ID           string `json:"id"`
	OrgID        string `json:"org_id,omitempty"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	PasswordHash string `json:"-"`
	IsActive     bool   `json:"is_active"`
	IsDeleted    bool   `json:"is_deleted"`
	IsVerified   bool   `json:"is_verified"`
}

// UserLookup 按邮箱查找用户，不存在时返回 (nil, nil)
type UserLookup interface {
	FindByEmail(ctx context.Context, email string) (*Principal, error)
}

// OrgChecker 校验用户所属组织仍可用
type OrgChecker interface {
	EnsureActive(ctx context.Context, orgID string) error
}

// AuthenticatorConfig 认证器配置
type AuthenticatorConfig struct {
	SuperAdminRole string
	CookieName     string
}

// Authenticator 认证中间件
type Authenticator struct {
	tokens *JWTService
	users  UserLookup
	orgs   OrgChecker
	cfg    AuthenticatorConfig
	logger *zap.Logger
}

// NewAuthenticator 创建认证器
func NewAuthenticator(tokens *JWTService, users UserLookup, cfg AuthenticatorConfig, logger *zap.Logger) *Authenticator {
	if cfg.SuperAdminRole == "" {
		cfg.SuperAdminRole = DefaultSuperAdminRole
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Authenticator{tokens: tokens, users: users, cfg: cfg, logger: logger.Named("auth")}
}

// UseOrgChecker 启用组织状态检查，组织被禁用后已签发的令牌在下一次请求即失效
func (a *Authenticator) UseOrgChecker(orgs OrgChecker) {
	a.orgs = orgs
}

// Authenticate 校验令牌并加载用户，按需检查角色
func (a *Authenticator) Authenticate(ctx context.Context, token string, roles []string) (*Principal, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrNoToken
	}

	claims, err := a.tokens.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}

	user, err := a.users.FindByEmail(ctx, claims.Email)
	if err != nil {
		return nil, fmt.Errorf("加载用户失败: %w", err)
	}
	if err := CheckUsable(user); err != nil {
		return nil, err
	}
	if user.OrgID != "" && a.orgs != nil {
		if err := a.orgs.EnsureActive(ctx, user.OrgID); err != nil {
			return nil, err
		}
	}

	if !HasRole(user.Role, a.cfg.SuperAdminRole, roles) {
		return nil, ErrInsufficientRole
	}
	return user, nil
}

// CheckUsable 拒绝不存在、已删除、被禁用或未验证的用户
func CheckUsable(user *Principal) error {
	switch {
	case user == nil:
		return ErrUserNotFound
	case user.IsDeleted:
		return ErrUserDeleted
	case !user.IsActive:
		return ErrUserBlocked
	case !user.IsVerified:
		return ErrUserUnverified
	}
	return nil
}

// HasRole 角色匹配（不区分大小写），超级管理员总是通过；未声明角色时任何已认证用户通过
func HasRole(role, superAdminRole string, required []string) bool {
	if len(required) == 0 {
		return true
	}
	if superAdminRole != "" && strings.EqualFold(role, superAdminRole) {
		return true
	}
	for _, r := range required {
		if strings.EqualFold(role, r) {
			return true
		}
	}
	return false
}

// CheckAuth 路由级认证中间件，roles 为空时只要求登录
// 成功后把 {UserID, OrgID, Role} 写入请求的租户作用域，失败时通过 c.Error 交给统一错误处理
func (a *Authenticator) CheckAuth(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := TokenFromRequest(c, a.cfg.CookieName)
		ctx := c.Request.Context()

		user, err := a.Authenticate(ctx, token, roles)
		if err != nil {
			reason := "internal"
			var bizErr *common.BusinessError
			if authErr, ok := AsError(err); ok {
				reason = strings.ToLower(authErr.Code)
			} else if errors.As(err, &bizErr) {
				reason = "org_inactive"
			}
			metrics.AuthFailuresTotal.WithLabelValues(reason).Inc()
			_ = c.Error(err)
			c.Abort()
			return
		}

		identity := tenant.Context{UserID: user.ID, OrgID: user.OrgID, Role: user.Role}
		applied, err := tenant.Patch(ctx, identity)
		switch {
		case errors.Is(err, tenant.ErrScopeSealed):
			if current, _ := tenant.Get(ctx); current.UserID != user.ID || current.OrgID != user.OrgID {
				a.logger.Error("tenant scope already sealed with another identity",
					zap.String("user_id", user.ID),
					zap.String("scope_user_id", current.UserID),
				)
				metrics.AuthFailuresTotal.WithLabelValues("scope_conflict").Inc()
				_ = c.Error(fmt.Errorf("认证身份与租户作用域不一致: %w", err))
				c.Abort()
				return
			}
		case !applied:
			// 未注册 WithRequestContext 时补一个只读作用域
			c.Request = c.Request.WithContext(tenant.WithContext(ctx, identity))
		}

		c.Set(ContextUserKey, user)
		c.Set(ContextUserIDKey, user.ID)
		c.Set(ContextOrgIDKey, user.OrgID)
		c.Set(ContextRoleKey, user.Role)
		c.Set(ContextTokenKey, token)
		c.Next()
	}
}

// TokenFromRequest 优先读取 Authorization 头，其次读取 Cookie
func TokenFromRequest(c *gin.Context, cookieName string) string {
	if header := c.GetHeader("Authorization"); header != "" {
		return ExtractTokenFromBearer(header)
	}
	if cookieName != "" {
		if cookie, err := c.Cookie(cookieName); err == nil {
			return strings.TrimSpace(cookie)
		}
	}
	return ""
}

// CurrentPrincipal 获取当前已认证用户
func CurrentPrincipal(c *gin.Context) (*Principal, bool) {
	v, ok := c.Get(ContextUserKey)
	if !ok {
		return nil, false
	}
	p, ok := v.(*Principal)
	return p, ok && p != nil
}

// RequireRole 在 CheckAuth 之后为单个路由追加角色要求，不再重复加载用户
func (a *Authenticator) RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentPrincipal(c)
		if !ok {
			_ = c.Error(ErrNoToken)
			c.Abort()
			return
		}
		if !HasRole(user.Role, a.cfg.SuperAdminRole, roles) {
			metrics.AuthFailuresTotal.WithLabelValues(strings.ToLower(ErrInsufficientRole.Code)).Inc()
			_ = c.Error(ErrInsufficientRole)
			c.Abort()
			return
		}
		c.Next()
	}
}
