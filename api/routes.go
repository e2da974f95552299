package api

import (
	"crmhub/internal/activitylog"
	"crmhub/internal/middleware"
	"crmhub/internal/user"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes 注册所有 API 路由
func RegisterRoutes(router *gin.Engine, c *AppContainer, h *Handlers) {
	v1 := router.Group("/api/v1")

	// 认证 API（登录公开）
	registerAuthRoutes(v1, c, h)

	// 以下分组都要求登录，并记录写操作日志
	// 组内再挂一次 ErrorHandler，活动日志才能看到渲染后的状态码
	secured := v1.Group("")
	secured.Use(c.Authenticator.CheckAuth(), activitylog.Middleware(c.Recorder, c.Logger), ErrorHandler())

	registerOrgRoutes(secured, c, h)
	registerUserRoutes(secured, c, h)
	registerContactRoutes(secured, c, h)
	registerPaymentRoutes(secured, c, h)
	registerTemplateRoutes(secured, c, h)
	registerEmailConfigRoutes(secured, c, h)
	registerLogRoutes(secured, c, h)
}

// registerAuthRoutes 注册认证相关路由
func registerAuthRoutes(v1 *gin.RouterGroup, c *AppContainer, h *Handlers) {
	authGroup := v1.Group("/auth")
	{
		authGroup.POST("/login", middleware.RateLimitMiddleware(c.LoginLimiter), h.Auth.Login)
		authGroup.POST("/logout", h.Auth.Logout)
		authGroup.GET("/me", c.Authenticator.CheckAuth(), h.Auth.Me)
	}
}

// registerOrgRoutes 组织管理，开通与列表仅限超级管理员
func registerOrgRoutes(g *gin.RouterGroup, c *AppContainer, h *Handlers) {
	superOnly := c.Authenticator.RequireRole(user.RoleSuperAdmin)
	adminOnly := c.Authenticator.RequireRole(user.RoleAdmin)

	orgGroup := g.Group("/orgs")
	{
		orgGroup.POST("", superOnly, h.Orgs.Create)
		orgGroup.GET("", h.Orgs.List)
		orgGroup.GET("/current", h.Orgs.Current)
		orgGroup.GET("/:id", h.Orgs.Get)
		orgGroup.PUT("/:id", adminOnly, h.Orgs.Update)
	}
}

// registerUserRoutes 用户管理，组织管理员
func registerUserRoutes(g *gin.RouterGroup, c *AppContainer, h *Handlers) {
	userGroup := g.Group("/users")
	userGroup.Use(c.Authenticator.RequireRole(user.RoleAdmin))
	{
		userGroup.GET("", h.Users.List)
		userGroup.POST("", h.Users.Create)
		userGroup.GET("/:id", h.Users.Get)
		userGroup.PUT("/:id/role", h.Users.UpdateRole)
		userGroup.POST("/:id/block", h.Users.Block)
		userGroup.POST("/:id/unblock", h.Users.Unblock)
		userGroup.DELETE("/:id", h.Users.Delete)
	}
}

// registerContactRoutes 联系人，所有角色可读写，删除需要经理以上
func registerContactRoutes(g *gin.RouterGroup, c *AppContainer, h *Handlers) {
	managers := c.Authenticator.RequireRole(user.RoleAdmin, user.RoleManager)

	contactGroup := g.Group("/contacts")
	{
		contactGroup.GET("", h.Contacts.List)
		contactGroup.GET("/stats", h.Contacts.Stats)
		contactGroup.POST("", h.Contacts.Create)
		contactGroup.GET("/:id", h.Contacts.Get)
		contactGroup.PUT("/:id", h.Contacts.Update)
		contactGroup.DELETE("/:id", managers, h.Contacts.Delete)
	}
}

// registerPaymentRoutes 付款，写操作需要经理以上
func registerPaymentRoutes(g *gin.RouterGroup, c *AppContainer, h *Handlers) {
	managers := c.Authenticator.RequireRole(user.RoleAdmin, user.RoleManager)

	paymentGroup := g.Group("/payments")
	{
		paymentGroup.GET("", h.Payments.List)
		paymentGroup.GET("/summary", h.Payments.Summary)
		paymentGroup.GET("/:id", h.Payments.Get)
		paymentGroup.POST("", managers, h.Payments.Create)
		paymentGroup.POST("/:id/paid", managers, h.Payments.MarkPaid)
		paymentGroup.POST("/:id/cancel", managers, h.Payments.Cancel)
		paymentGroup.POST("/:id/renew", managers, h.Payments.Renew)
	}
}

// registerTemplateRoutes 邮件模板
func registerTemplateRoutes(g *gin.RouterGroup, c *AppContainer, h *Handlers) {
	managers := c.Authenticator.RequireRole(user.RoleAdmin, user.RoleManager)

	templateGroup := g.Group("/templates")
	{
		templateGroup.GET("", h.Templates.ListTemplates)
		templateGroup.GET("/all", c.Authenticator.RequireRole(user.RoleSuperAdmin), h.Templates.ListAll)
		templateGroup.GET("/:id", h.Templates.GetTemplate)
		templateGroup.POST("", managers, h.Templates.CreateTemplate)
		templateGroup.PUT("/:id", managers, h.Templates.UpdateTemplate)
		templateGroup.DELETE("/:id", managers, h.Templates.DeleteTemplate)
		templateGroup.POST("/:id/render", h.Templates.RenderTemplate)
	}
}

// registerEmailConfigRoutes 邮件发送配置，组织管理员
func registerEmailConfigRoutes(g *gin.RouterGroup, c *AppContainer, h *Handlers) {
	emailGroup := g.Group("/email-config")
	emailGroup.Use(c.Authenticator.RequireRole(user.RoleAdmin))
	{
		emailGroup.GET("", h.EmailConfig.Get)
		emailGroup.PUT("", h.EmailConfig.Upsert)
		emailGroup.POST("/verify", h.EmailConfig.Verify)
	}
}

// registerLogRoutes 活动日志
func registerLogRoutes(g *gin.RouterGroup, c *AppContainer, h *Handlers) {
	logGroup := g.Group("/logs")
	logGroup.Use(c.Authenticator.RequireRole(user.RoleAdmin, user.RoleManager))
	{
		logGroup.GET("", h.Logs.List)
		logGroup.GET("/stats", h.Logs.Stats)
	}
}
