package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// API 指标
var (
	// APIRequestsTotal API 请求总数
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmhub_api_requests_total",
			Help: "API 请求总数",
		},
		[]string{"method", "path", "status"},
	)

	// APIRequestDuration API 请求延迟（秒）
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crmhub_api_request_duration_seconds",
			Help:    "API 请求延迟分布",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// APIResponseSize API 响应体大小（字节）
	APIResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crmhub_api_response_size_bytes",
			Help:    "API 响应体大小分布",
			Buckets: []float64{100, 1000, 10000, 100000, 1000000},
		},
		[]string{"method", "path"},
	)
)

// 认证与租户隔离指标
var (
	// AuthFailuresTotal 认证失败次数
	AuthFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmhub_auth_failures_total",
			Help: "认证/鉴权失败次数",
		},
		[]string{"reason"},
	)

	// TenantScopeDecisions 租户过滤决策次数
	// decision: scoped, explicit, no_context, skip_operation, skip_context, exempt_role, no_org, invalid_org
	TenantScopeDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmhub_tenant_scope_decisions_total",
			Help: "租户自动过滤决策次数",
		},
		[]string{"collection", "decision"},
	)
)

// 后台任务指标
var (
	// JobsProcessedTotal 任务处理次数
	JobsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmhub_jobs_processed_total",
			Help: "后台任务处理次数",
		},
		[]string{"type", "status"},
	)
)

// 系统指标
var (
	// BuildInfo 构建信息
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "crmhub_build_info",
			Help: "CRM Hub 构建信息",
		},
		[]string{"version", "go_version"},
	)
)

// RecordBuildInfo 记录构建信息
func RecordBuildInfo(version, goVersion string) {
	BuildInfo.WithLabelValues(version, goVersion).Set(1)
}
