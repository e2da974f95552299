package api

import (
	"context"
	"time"

	"crmhub/internal/metrics"
	"crmhub/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// SetupRouter 创建 Gin 路由
// 中间件顺序：Recovery -> 租户作用域 -> 请求 ID -> 请求日志 -> CORS -> 指标 -> 错误处理
// 错误处理放在最内层，外层的日志与指标才能拿到渲染后的状态码
func SetupRouter(c *AppContainer) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.WithRequestContext())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(RequestLogger())
	router.Use(CORS(c.Config.Server.AllowedOrigins))
	router.Use(metrics.PrometheusMiddleware())
	router.Use(ErrorHandler())

	router.GET("/health", HealthCheck())
	router.GET("/ready", ReadinessCheck(c.readinessChecks()))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	RegisterRoutes(router, c, c.InitHandlers())
	return router
}

func (c *AppContainer) readinessChecks() map[string]Check {
	checks := map[string]Check{"database": DatabaseCheck(c.DB)}
	if c.Redis != nil {
		checks["redis"] = func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return c.Redis.Ping(ctx).Err()
		}
	}
	if c.Mongo != nil {
		checks["mongo"] = func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return c.Mongo.Client().Ping(ctx, readpref.Primary())
		}
	}
	return checks
}
