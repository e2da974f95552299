package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"crmhub/internal/common"
	"crmhub/internal/tenant"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

type memoryUsers map[string]*Principal

func (m memoryUsers) FindByEmail(_ context.Context, email string) (*Principal, error) {
	if u, ok := m[email]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func newUsers(t *testing.T) memoryUsers {
	t.Helper()
	hash, err := HashPassword("secret123")
	require.NoError(t, err)
	base := func(id, email, org, role string) *Principal {
		return &Principal{ID: id, Email: email, OrgID: org, Role: role, PasswordHash: hash, IsActive: true, IsVerified: true}
	}
	users := memoryUsers{
		"admin@a.io":   base("u-admin", "admin@a.io", "org-a", "ADMIN"),
		"agent@a.io":   base("u-agent", "agent@a.io", "org-a", "agent"),
		"root@crm.io":  base("u-root", "root@crm.io", "", "SUPER_ADMIN"),
		"blocked@a.io": base("u-blocked", "blocked@a.io", "org-a", "ADMIN"),
		"deleted@a.io": base("u-deleted", "deleted@a.io", "org-a", "ADMIN"),
		"pending@a.io": base("u-pending", "pending@a.io", "org-a", "ADMIN"),
	}
	users["blocked@a.io"].IsActive = false
	users["deleted@a.io"].IsDeleted = true
	users["pending@a.io"].IsVerified = false
	return users
}

type memoryOrgs map[string]bool

func (m memoryOrgs) EnsureActive(_ context.Context, orgID string) error {
	if !m[orgID] {
		return common.NewBusinessErrorWithCode(common.CodeOrgDisabled)
	}
	return nil
}

func tokenFor(t *testing.T, svc *JWTService, email, role string) string {
	t.Helper()
	token, _, err := svc.GenerateToken("sub", email, role)
	require.NoError(t, err)
	return token
}

func TestValidateToken(t *testing.T) {
	svc := NewJWTService(testSecret, "crmhub", time.Hour, nil)

	claims, err := svc.ValidateToken(context.Background(), tokenFor(t, svc, "admin@a.io", "ADMIN"))
	require.NoError(t, err)
	assert.Equal(t, "admin@a.io", claims.Email)
	assert.Equal(t, "ADMIN", claims.Role)

	t.Run("过期", func(t *testing.T) {
		expired := jwt.NewWithClaims(jwt.SigningMethodHS256, &TokenClaims{
			Email: "admin@a.io",
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "crmhub",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			},
		})
		signed, err := expired.SignedString([]byte(testSecret))
		require.NoError(t, err)
		_, err = svc.ValidateToken(context.Background(), signed)
		assert.Same(t, ErrTokenExpired, err)
	})

	t.Run("签名错误", func(t *testing.T) {
		other := NewJWTService("other-secret", "crmhub", time.Hour, nil)
		_, err := svc.ValidateToken(context.Background(), tokenFor(t, other, "admin@a.io", "ADMIN"))
		assert.Same(t, ErrTokenInvalid, err)
	})

	t.Run("格式错误", func(t *testing.T) {
		_, err := svc.ValidateToken(context.Background(), "not-a-jwt")
		assert.Same(t, ErrTokenInvalid, err)
	})
}

func TestExtractTokenFromBearer(t *testing.T) {
	assert.Equal(t, "abc", ExtractTokenFromBearer("Bearer abc"))
	assert.Equal(t, "abc", ExtractTokenFromBearer("bearer  abc "))
	assert.Equal(t, "abc", ExtractTokenFromBearer("abc"))
}

func TestHasRole(t *testing.T) {
	assert.True(t, HasRole("agent", "SUPER_ADMIN", nil))
	assert.True(t, HasRole("admin", "SUPER_ADMIN", []string{"ADMIN"}))
	assert.True(t, HasRole("super_admin", "SUPER_ADMIN", []string{"BILLING"}))
	assert.False(t, HasRole("agent", "SUPER_ADMIN", []string{"ADMIN", "BILLING"}))
	assert.False(t, HasRole("", "SUPER_ADMIN", []string{"ADMIN"}))
}

func TestAuthenticate(t *testing.T) {
	svc := NewJWTService(testSecret, "crmhub", time.Hour, nil)
	a := NewAuthenticator(svc, newUsers(t), AuthenticatorConfig{}, zap.NewNop())
	ctx := context.Background()

	tests := []struct {
		name  string
		token string
		roles []string
		want  error
	}{
		{"无令牌", "", nil, ErrNoToken},
		{"无效令牌", "garbage", nil, ErrTokenInvalid},
		{"用户不存在", tokenFor(t, svc, "ghost@a.io", "ADMIN"), nil, ErrUserNotFound},
		{"用户被禁用", tokenFor(t, svc, "blocked@a.io", "ADMIN"), nil, ErrUserBlocked},
		{"禁用优先于角色", tokenFor(t, svc, "blocked@a.io", "ADMIN"), []string{"ADMIN"}, ErrUserBlocked},
		{"用户已删除", tokenFor(t, svc, "deleted@a.io", "ADMIN"), nil, ErrUserDeleted},
		{"未验证", tokenFor(t, svc, "pending@a.io", "ADMIN"), nil, ErrUserUnverified},
		{"角色不足", tokenFor(t, svc, "agent@a.io", "agent"), []string{"ADMIN"}, ErrInsufficientRole},
		// 令牌里的角色不被信任，以用户记录为准
		{"令牌角色被忽略", tokenFor(t, svc, "agent@a.io", "ADMIN"), []string{"ADMIN"}, ErrInsufficientRole},
		{"角色大小写不敏感", tokenFor(t, svc, "agent@a.io", "agent"), []string{"AGENT"}, nil},
		{"超级管理员总是通过", tokenFor(t, svc, "root@crm.io", "SUPER_ADMIN"), []string{"BILLING"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := a.Authenticate(ctx, tt.token, tt.roles)
			if tt.want == nil {
				require.NoError(t, err)
				assert.NotNil(t, user)
				return
			}
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.Nil(t, user)
		})
	}
}

func TestAuthenticateRejectsDisabledOrg(t *testing.T) {
	svc := NewJWTService(testSecret, "crmhub", time.Hour, nil)
	a := NewAuthenticator(svc, newUsers(t), AuthenticatorConfig{}, zap.NewNop())
	orgs := memoryOrgs{"org-a": true}
	a.UseOrgChecker(orgs)
	ctx := context.Background()
	token := tokenFor(t, svc, "admin@a.io", "ADMIN")

	_, err := a.Authenticate(ctx, token, nil)
	require.NoError(t, err)

	// 已签发的令牌在组织禁用后立即失效
	orgs["org-a"] = false
	_, err = a.Authenticate(ctx, token, nil)
	var bizErr *common.BusinessError
	require.ErrorAs(t, err, &bizErr)
	assert.Equal(t, common.CodeOrgDisabled, bizErr.Code)

	// 超级管理员不属于任何组织，不受影响
	_, err = a.Authenticate(ctx, tokenFor(t, svc, "root@crm.io", "SUPER_ADMIN"), nil)
	assert.NoError(t, err)
}

func newAuthRouter(a *Authenticator, roles ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Request = c.Request.WithContext(tenant.Run(c.Request.Context(), tenant.Context{}))
		c.Next()
		if len(c.Errors) > 0 {
			status := http.StatusInternalServerError
			if authErr, ok := AsError(c.Errors.Last().Err); ok {
				status = authErr.Status
			}
			c.JSON(status, gin.H{"error": c.Errors.Last().Error()})
		}
	})
	r.GET("/me", a.CheckAuth(roles...), func(c *gin.Context) {
		tc, _ := tenant.Get(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"user_id": tc.UserID, "org_id": tc.OrgID, "role": tc.Role, "gin_org": c.GetString(ContextOrgIDKey)})
	})
	return r
}

func TestCheckAuthPatchesTenantScope(t *testing.T) {
	svc := NewJWTService(testSecret, "crmhub", time.Hour, nil)
	a := NewAuthenticator(svc, newUsers(t), AuthenticatorConfig{CookieName: "access_token"}, zap.NewNop())
	r := newAuthRouter(a, "ADMIN")

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, svc, "admin@a.io", "ADMIN"))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, map[string]string{"user_id": "u-admin", "org_id": "org-a", "role": "ADMIN", "gin_org": "org-a"}, body)

	t.Run("Cookie 令牌", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.AddCookie(&http.Cookie{Name: "access_token", Value: tokenFor(t, svc, "admin@a.io", "ADMIN")})
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		assert.Equal(t, http.StatusOK, resp.Code)
	})
}

func TestCheckAuthStatusMapping(t *testing.T) {
	svc := NewJWTService(testSecret, "crmhub", time.Hour, nil)
	a := NewAuthenticator(svc, newUsers(t), AuthenticatorConfig{}, zap.NewNop())
	r := newAuthRouter(a, "ADMIN")

	tests := []struct {
		name  string
		email string
		want  int
	}{
		{"无令牌", "", http.StatusUnauthorized},
		{"用户不存在", "ghost@a.io", http.StatusBadRequest},
		{"禁用", "blocked@a.io", http.StatusForbidden},
		{"删除", "deleted@a.io", http.StatusForbidden},
		{"角色不足", "agent@a.io", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.email != "" {
				req.Header.Set("Authorization", "Bearer "+tokenFor(t, svc, tt.email, "ADMIN"))
			}
			resp := httptest.NewRecorder()
			r.ServeHTTP(resp, req)
			assert.Equal(t, tt.want, resp.Code)
		})
	}
}

func TestCheckAuthRejectsForeignSealedScope(t *testing.T) {
	svc := NewJWTService(testSecret, "crmhub", time.Hour, nil)
	a := NewAuthenticator(svc, newUsers(t), AuthenticatorConfig{}, zap.NewNop())

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		sealed := tenant.WithContext(c.Request.Context(), tenant.Context{UserID: "u-root", Role: "SUPER_ADMIN"})
		c.Request = c.Request.WithContext(sealed)
		c.Next()
		if len(c.Errors) > 0 {
			c.AbortWithStatus(http.StatusInternalServerError)
		}
	})
	reached := false
	r.GET("/me", a.CheckAuth(), func(c *gin.Context) {
		reached = true
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, svc, "agent@a.io", "agent"))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.False(t, reached)
}

func TestCheckAuthWithoutSeededScope(t *testing.T) {
	svc := NewJWTService(testSecret, "crmhub", time.Hour, nil)
	a := NewAuthenticator(svc, newUsers(t), AuthenticatorConfig{}, zap.NewNop())

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", a.CheckAuth(), func(c *gin.Context) {
		c.String(http.StatusOK, tenant.OrgID(c.Request.Context()))
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, svc, "agent@a.io", "agent"))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "org-a", resp.Body.String())
}

func TestLoginAndLogout(t *testing.T) {
	svc := NewJWTService(testSecret, "crmhub", time.Hour, nil)
	s := NewService(newUsers(t), svc)
	ctx := context.Background()

	res, err := s.Login(ctx, " Admin@A.io ", "secret123")
	require.NoError(t, err)
	assert.Equal(t, "u-admin", res.User.ID)
	assert.True(t, res.ExpiresAt.After(time.Now()))

	claims, err := svc.ValidateToken(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, "admin@a.io", claims.Email)

	_, err = s.Login(ctx, "admin@a.io", "wrong")
	assert.Same(t, ErrInvalidCredentials, err)
	_, err = s.Login(ctx, "ghost@a.io", "secret123")
	assert.Same(t, ErrInvalidCredentials, err)
	_, err = s.Login(ctx, "blocked@a.io", "secret123")
	assert.Same(t, ErrUserBlocked, err)

	assert.Same(t, ErrNoToken, s.Logout(ctx, ""))
	assert.NoError(t, s.Logout(ctx, res.Token))
}

func TestRequireRole(t *testing.T) {
	svc := NewJWTService(testSecret, "crmhub", time.Hour, nil)
	a := NewAuthenticator(svc, newUsers(t), AuthenticatorConfig{}, zap.NewNop())

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Next()
		if len(c.Errors) > 0 {
			authErr, _ := AsError(c.Errors.Last().Err)
			c.AbortWithStatus(authErr.Status)
		}
	})
	r.DELETE("/contacts/1", a.CheckAuth(), a.RequireRole("ADMIN", "MANAGER"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	r.GET("/open", a.RequireRole("ADMIN"), func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(method, path, token string) int {
		req := httptest.NewRequest(method, path, nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		return resp.Code
	}

	assert.Equal(t, http.StatusNoContent, do(http.MethodDelete, "/contacts/1", tokenFor(t, svc, "admin@a.io", "ADMIN")))
	assert.Equal(t, http.StatusNoContent, do(http.MethodDelete, "/contacts/1", tokenFor(t, svc, "root@crm.io", "SUPER_ADMIN")))
	assert.Equal(t, http.StatusForbidden, do(http.MethodDelete, "/contacts/1", tokenFor(t, svc, "agent@a.io", "agent")))
	assert.Equal(t, http.StatusUnauthorized, do(http.MethodGet, "/open", ""))
}
