package api

import (
	"errors"
	"net/http"
	"time"

	"crmhub/internal/auth"
	"crmhub/internal/common"
	"crmhub/internal/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLogger 请求日志中间件
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		// 认证后的作用域已写入请求上下文，日志可带上组织与用户
		logger.WithContext(c.Request.Context()).Info("HTTP Request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// CORS 跨域中间件，allowedOrigins 为空时允许任意来源
func CORS(allowedOrigins []string) gin.HandlerFunc {
	const (
		allowHeaders = "Content-Type, Content-Length, Accept-Encoding, Authorization, Accept, Origin, Cache-Control, X-Requested-With, X-Request-ID"
		allowMethods = "POST, OPTIONS, GET, PUT, DELETE, PATCH"
	)
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		switch {
		case len(allowedOrigins) == 0:
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && stringInSlice(origin, allowedOrigins):
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Vary", "Origin")
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", allowHeaders)
		c.Writer.Header().Set("Access-Control-Allow-Methods", allowMethods)
		c.Writer.Header().Set("Access-Control-Max-Age", "600")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// ErrorBody 错误响应，认证错误额外携带字符串错误码
type ErrorBody struct {
	common.APIResponse
	Error string `json:"error,omitempty"`
}

// ErrorHandler 统一错误处理
// handler 和认证中间件通过 c.Error 上报错误，这里在链路结束后渲染响应
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		last := c.Errors.Last()
		status, body := renderError(last)
		if status >= http.StatusInternalServerError {
			logger.WithContext(c.Request.Context()).Error("请求处理失败",
				zap.String("path", c.FullPath()),
				zap.Error(last.Err),
			)
		}
		c.AbortWithStatusJSON(status, body)
	}
}

func renderError(ginErr *gin.Error) (int, ErrorBody) {
	err := ginErr.Err

	if ginErr.IsType(gin.ErrorTypeBind) {
		return http.StatusBadRequest, ErrorBody{
			APIResponse: common.ErrorResponse(common.CodeInvalidRequest, "请求参数错误: "+err.Error()),
		}
	}

	if authErr, ok := auth.AsError(err); ok {
		return authErr.Status, ErrorBody{
			APIResponse: common.ErrorResponse(authCode(authErr), authErr.Message),
			Error:       authErr.Code,
		}
	}

	var bizErr *common.BusinessError
	if errors.As(err, &bizErr) {
		return common.HTTPStatus(bizErr.Code), ErrorBody{
			APIResponse: common.ErrorResponse(bizErr.Code, bizErr.Message),
		}
	}

	return http.StatusInternalServerError, ErrorBody{
		APIResponse: common.ErrorResponse(common.CodeInternalError, common.GetErrorMessage(common.CodeInternalError)),
	}
}

func authCode(err *auth.Error) int {
	switch err {
	case auth.ErrUserNotFound:
		return common.CodeUserNotFound
	case auth.ErrUserBlocked:
		return common.CodeUserDisabled
	case auth.ErrInvalidCredentials:
		return common.CodeInvalidCredentials
	}
	if err.Status == http.StatusForbidden {
		return common.CodeForbidden
	}
	return common.CodeUnauthorized
}
