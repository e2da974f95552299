package activitylog

import (
	"time"

	"crmhub/internal/common"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Entry 活动日志，存储在 MongoDB
// orgId 由 mongoscope 在写入时按请求作用域填充
type Entry struct {
	ID         primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	OrgID      string             `json:"org_id" bson:"orgId,omitempty"`
	UserID     string             `json:"user_id" bson:"userId,omitempty"`
	Action     string             `json:"action" bson:"action"`
	Resource   string             `json:"resource" bson:"resource"`
	ResourceID string             `json:"resource_id,omitempty" bson:"resourceId,omitempty"`
	Method     string             `json:"method" bson:"method"`
	Path       string             `json:"path" bson:"path"`
	Status     int                `json:"status" bson:"status"`
	IP         string             `json:"ip" bson:"ip"`
	UserAgent  string             `json:"user_agent,omitempty" bson:"userAgent,omitempty"`
	RequestID  string             `json:"request_id,omitempty" bson:"requestId,omitempty"`
	DurationMs int64              `json:"duration_ms" bson:"durationMs"`
	Metadata   map[string]any     `json:"metadata,omitempty" bson:"metadata,omitempty"`
	CreatedAt  time.Time          `json:"created_at" bson:"createdAt"`
}

// ListRequest 日志查询条件
type ListRequest struct {
	common.PaginationRequest
	Action   string     `form:"action"`
	Resource string     `form:"resource"`
	UserID   string     `form:"user_id"`
	From     *time.Time `form:"from" time_format:"2006-01-02"`
	To       *time.Time `form:"to" time_format:"2006-01-02"`
}

// ActionCount 按动作统计
type ActionCount struct {
	Action string `json:"action" bson:"_id"`
	Count  int64  `json:"count" bson:"count"`
}
