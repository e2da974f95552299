package api

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	authHandlers "crmhub/api/handlers/auth"
	"crmhub/api/handlers/contacts"
	"crmhub/api/handlers/emailconfig"
	"crmhub/api/handlers/logs"
	"crmhub/api/handlers/orgs"
	"crmhub/api/handlers/payments"
	"crmhub/api/handlers/templates"
	"crmhub/api/handlers/users"
	"crmhub/internal/activitylog"
	"crmhub/internal/auth"
	"crmhub/internal/config"
	"crmhub/internal/contact"
	"crmhub/internal/email"
	"crmhub/internal/infra"
	"crmhub/internal/infra/queue"
	"crmhub/internal/logger"
	"crmhub/internal/middleware"
	"crmhub/internal/org"
	"crmhub/internal/payment"
	"crmhub/internal/security"
	"crmhub/internal/template"
	"crmhub/internal/tenant"
	"crmhub/internal/user"
	"crmhub/internal/worker"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AppContainer 应用依赖容器
type AppContainer struct {
	DB     *gorm.DB
	Config *config.Config
	Redis  redis.UniversalClient // 可为空：令牌吊销与后台任务不可用
	Mongo  *mongo.Database       // 可为空：活动日志不可用
	Scope  tenant.ScopeConfig
	Logger *zap.Logger

	// 认证
	JWTService    *auth.JWTService
	Authenticator *auth.Authenticator
	AuthService   *auth.Service
	LoginLimiter  *middleware.RateLimiter

	// 业务服务
	UserService     *user.Service
	OrgService      *org.Service
	ContactService  *contact.Service
	PaymentService  *payment.Service
	TemplateService *template.TemplateService
	EmailService    *email.Service
	ActivityLog     *activitylog.Service
	Recorder        activitylog.Recorder

	// 后台任务
	QueueClient queue.Client
	Worker      *worker.Server

	jwtSecret string
}

// Handlers 所有 HTTP Handler
type Handlers struct {
	Auth        *authHandlers.AuthHandler
	Orgs        *orgs.Handler
	Users       *users.Handler
	Contacts    *contacts.Handler
	Payments    *payments.Handler
	Templates   *templates.TemplateHandler
	EmailConfig *emailconfig.Handler
	Logs        *logs.Handler
}

// Models 需要迁移的关系表模型
func Models() []any {
	return []any{
		&org.Organization{},
		&user.User{},
		&contact.Contact{},
		&payment.Payment{},
		&template.EmailTemplate{},
		&email.Config{},
	}
}

// InitContainer 初始化应用容器
// redisClient 与 mongoDB 允许为空，对应功能降级
func InitContainer(db *gorm.DB, cfg *config.Config, redisClient redis.UniversalClient, mongoDB *mongo.Database) (*AppContainer, error) {
	c := &AppContainer{
		DB:     db,
		Config: cfg,
		Redis:  redisClient,
		Mongo:  mongoDB,
		Logger: logger.Get(),
		Scope: tenant.ScopeConfig{
			OrgField:    cfg.Tenant.OrgField,
			ExemptRoles: cfg.Tenant.ExemptRoles,
		},
	}

	// 为组织拥有的模型启用自动过滤
	if err := infra.AttachTenantModels(db, &cfg.Tenant, Models()...); err != nil {
		return nil, err
	}

	c.UserService = user.NewService(db, c.Scope)

	if err := c.initAuth(); err != nil {
		return nil, err
	}

	if err := c.initCoreServices(); err != nil {
		return nil, err
	}

	if err := c.initActivityLog(); err != nil {
		return nil, err
	}

	if err := c.initWorker(); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *AppContainer) initCoreServices() error {
	seed := c.Config.Security.SecretKey
	if strings.TrimSpace(seed) == "" {
		seed = c.jwtSecret
	}
	cipher, err := security.NewCipher(seed)
	if err != nil {
		return fmt.Errorf("初始化加密组件失败: %w", err)
	}

	c.OrgService = org.NewService(c.DB, c.UserService, c.Scope)
	c.Authenticator.UseOrgChecker(c.OrgService)
	c.ContactService = contact.NewService(c.DB)
	c.PaymentService = payment.NewService(c.DB)
	c.TemplateService = template.NewTemplateService(c.DB)
	c.EmailService = email.NewService(c.DB, cipher)
	return nil
}

func (c *AppContainer) initAuth() error {
	authCfg := c.Config.Auth

	secret := strings.TrimSpace(authCfg.JWTSecret)
	if secret == "" {
		secret = strings.TrimSpace(os.Getenv("JWT_SECRET_KEY"))
	}
	if secret == "" {
		if strings.EqualFold(c.Config.Server.Mode, "release") {
			return fmt.Errorf("JWT 密钥未配置，生产环境禁止使用默认密钥")
		}
		secret = "default_jwt_secret_key_change_in_production"
		c.Logger.Warn("JWT 密钥未配置，已回退为开发默认值，请在生产环境设置 APP_AUTH_JWT_SECRET")
	}

	c.jwtSecret = secret
	c.JWTService = auth.NewJWTService(secret, authCfg.Issuer, authCfg.AccessTokenTTL, c.Redis)
	c.Authenticator = auth.NewAuthenticator(c.JWTService, c.UserService, auth.AuthenticatorConfig{
		SuperAdminRole: authCfg.SuperAdminRole,
		CookieName:     authCfg.CookieName,
	}, c.Logger)
	c.AuthService = auth.NewService(c.UserService, c.JWTService)

	limiterCfg := middleware.DefaultRateLimiterConfig()
	if authCfg.LoginRatePerSec > 0 {
		limiterCfg.RequestsPerSecond = authCfg.LoginRatePerSec
	}
	if authCfg.LoginBurst > 0 {
		limiterCfg.BurstSize = authCfg.LoginBurst
	}
	c.LoginLimiter = middleware.NewRateLimiter(limiterCfg)
	return nil
}

func (c *AppContainer) initActivityLog() error {
	c.Recorder = activitylog.NopRecorder{}
	if c.Mongo == nil {
		c.Logger.Info("未配置 MongoDB，活动日志已禁用")
		return nil
	}

	collName := c.Config.Mongo.LogsCollection
	if collName == "" {
		collName = "activity_logs"
	}
	c.ActivityLog = activitylog.NewService(c.Mongo.Collection(collName), c.Scope, c.Logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.ActivityLog.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("创建活动日志索引失败: %w", err)
	}
	c.Recorder = c.ActivityLog
	return nil
}

func (c *AppContainer) initWorker() error {
	if c.Redis == nil {
		c.Logger.Warn("Redis 不可用，付款续期任务已禁用")
		return nil
	}

	opt := infra.AsynqRedisOpt(&c.Config.Redis)
	c.QueueClient = queue.NewClient(opt)

	if !c.Config.Worker.Enabled {
		return nil
	}
	srv, err := worker.NewServer(opt, c.Config.Worker, c.PaymentService, c.QueueClient, c.Logger)
	if err != nil {
		return fmt.Errorf("初始化 Worker 失败: %w", err)
	}
	c.Worker = srv
	return nil
}

// InitHandlers 初始化所有 Handlers
func (c *AppContainer) InitHandlers() *Handlers {
	return &Handlers{
		Auth:        authHandlers.NewAuthHandler(c.AuthService, c.OrgService, c.UserService, c.Config.Auth.CookieName),
		Orgs:        orgs.NewHandler(c.OrgService),
		Users:       users.NewHandler(c.UserService),
		Contacts:    contacts.NewHandler(c.ContactService),
		Payments:    payments.NewHandler(c.PaymentService),
		Templates:   templates.NewTemplateHandler(c.TemplateService),
		EmailConfig: emailconfig.NewHandler(c.EmailService),
		Logs:        logs.NewHandler(c.ActivityLog),
	}
}

// Close 释放容器持有的资源
func (c *AppContainer) Close() {
	if c.LoginLimiter != nil {
		c.LoginLimiter.Stop()
	}
	if c.QueueClient != nil {
		if err := c.QueueClient.Close(); err != nil {
			c.Logger.Warn("关闭任务队列客户端失败", zap.Error(err))
		}
	}
}
