package activitylog

import (
	"context"
	"net/http"
	"strings"
	"time"

	"crmhub/internal/logger"
	"crmhub/internal/tenant"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MetadataKey handler 可以通过 c.Set(MetadataKey, map[string]any{...}) 附加日志元数据
const MetadataKey = "activity_metadata"

// Middleware 记录写操作的活动日志
// 在请求处理完成后异步写入，日志上下文脱离请求取消但保留租户作用域
func Middleware(rec Recorder, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		if !mutating(c.Request.Method) {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		entry := newEntry(c, time.Since(start))
		ctx := context.WithoutCancel(c.Request.Context())
		go func() {
			if err := rec.Record(ctx, entry); err != nil {
				log.Warn("写入活动日志失败",
					zap.String("action", entry.Action),
					zap.String("request_id", entry.RequestID),
					zap.Error(err),
				)
			}
		}()
	}
}

func newEntry(c *gin.Context, elapsed time.Duration) *Entry {
	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}
	resource, action := inferAction(c.Request.Method, path, c.Writer.Status())

	entry := &Entry{
		Action:     action,
		Resource:   resource,
		ResourceID: c.Param("id"),
		Method:     c.Request.Method,
		Path:       c.Request.URL.Path,
		Status:     c.Writer.Status(),
		IP:         c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
		RequestID:  logger.GetRequestID(c.Request.Context()),
		DurationMs: elapsed.Milliseconds(),
		CreatedAt:  time.Now().UTC(),
	}
	if tc, ok := tenant.Get(c.Request.Context()); ok {
		entry.UserID = tc.UserID
	}

	metadata := map[string]any{}
	if len(c.Errors) > 0 {
		metadata["errors"] = c.Errors.Errors()
	}
	if meta, ok := c.Get(MetadataKey); ok {
		if m, ok := meta.(map[string]any); ok {
			for k, v := range m {
				metadata[k] = v
			}
		}
	}
	if len(metadata) > 0 {
		entry.Metadata = metadata
	}
	return entry
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// inferAction 根据路由模板推断资源与动作
// /api/v1/contacts/:id  PUT     -> contacts, contacts.update
// /api/v1/payments/:id/paid     -> payments, payments.paid
// 失败的请求追加 .failed
func inferAction(method, path string, status int) (string, string) {
	segments := make([]string, 0, 4)
	for _, seg := range strings.Split(strings.Trim(path, "/"), "/") {
		if seg == "" || seg == "api" || (len(seg) > 1 && seg[0] == 'v' && seg[1] >= '0' && seg[1] <= '9') {
			continue
		}
		segments = append(segments, seg)
	}
	if len(segments) == 0 {
		return "", strings.ToLower(method)
	}

	resource := segments[0]
	verb := ""
	if last := segments[len(segments)-1]; len(segments) > 1 && !strings.HasPrefix(last, ":") && !strings.HasPrefix(last, "*") {
		verb = last
	}
	if verb == "" {
		switch method {
		case http.MethodPost:
			verb = "create"
		case http.MethodPut, http.MethodPatch:
			verb = "update"
		case http.MethodDelete:
			verb = "delete"
		default:
			verb = strings.ToLower(method)
		}
	}

	action := resource + "." + verb
	if status >= http.StatusBadRequest {
		action += ".failed"
	}
	return resource, action
}
