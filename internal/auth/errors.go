package auth

import (
	"errors"
	"net/http"
)

// Error 认证/鉴权错误，携带对外的 HTTP 状态码
type Error struct {
	Code    string
	Status  int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// 身份错误，均为用户可见的 4xx，不重试
var (
	ErrNoToken            = &Error{Code: "NO_TOKEN", Status: http.StatusUnauthorized, Message: "缺少认证令牌"}
	ErrTokenInvalid       = &Error{Code: "TOKEN_INVALID", Status: http.StatusUnauthorized, Message: "无效的令牌"}
	ErrTokenExpired       = &Error{Code: "TOKEN_EXPIRED", Status: http.StatusUnauthorized, Message: "令牌已过期"}
	ErrUserNotFound       = &Error{Code: "USER_NOT_FOUND", Status: http.StatusBadRequest, Message: "用户不存在"}
	ErrUserBlocked        = &Error{Code: "USER_BLOCKED", Status: http.StatusForbidden, Message: "用户已被禁用"}
	ErrUserDeleted        = &Error{Code: "USER_DELETED", Status: http.StatusForbidden, Message: "用户已被删除"}
	ErrUserUnverified     = &Error{Code: "USER_UNVERIFIED", Status: http.StatusForbidden, Message: "用户邮箱未验证"}
	ErrInsufficientRole   = &Error{Code: "INSUFFICIENT_ROLE", Status: http.StatusForbidden, Message: "权限不足"}
	ErrInvalidCredentials = &Error{Code: "INVALID_CREDENTIALS", Status: http.StatusUnauthorized, Message: "邮箱或密码错误"}
)

// AsError 提取 *Error
func AsError(err error) (*Error, bool) {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr, true
	}
	return nil, false
}
