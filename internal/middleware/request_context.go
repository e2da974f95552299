package middleware

import (
	"crmhub/internal/tenant"

	"github.com/gin-gonic/gin"
)

// WithRequestContext 为每个请求开启独立的租户作用域
// 必须注册为第一个中间件，之后的认证中间件通过 tenant.Patch 写入身份信息。
// 下游 panic 与错误原样向外传递，由 Recovery / ErrorHandler 处理。
func WithRequestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := tenant.Run(c.Request.Context(), tenant.Context{})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
