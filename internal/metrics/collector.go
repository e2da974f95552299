package metrics

import (
	"context"
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

// 连接池指标
var (
	// DBConnections 数据库连接池状态
	DBConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "crmhub_db_connections",
			Help: "数据库连接池状态",
		},
		[]string{"state"},
	)

	// RedisPoolConnections Redis 连接池状态
	RedisPoolConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "crmhub_redis_pool_connections",
			Help: "Redis 连接池状态",
		},
		[]string{"state"},
	)
)

// SystemCollector 定期采集连接池指标
type SystemCollector struct {
	db       *sql.DB
	redis    redis.UniversalClient
	interval time.Duration
}

// NewSystemCollector 创建系统指标收集器，db 与 redisClient 均可为空
func NewSystemCollector(db *sql.DB, redisClient redis.UniversalClient) *SystemCollector {
	return &SystemCollector{db: db, redis: redisClient, interval: 15 * time.Second}
}

// Run 定期收集直到 ctx 结束
func (c *SystemCollector) Run(ctx context.Context) {
	c.collectOnce()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.collectOnce()
		case <-ctx.Done():
			return
		}
	}
}

func (c *SystemCollector) collectOnce() {
	if c.db != nil {
		stats := c.db.Stats()
		DBConnections.WithLabelValues("open").Set(float64(stats.OpenConnections))
		DBConnections.WithLabelValues("in_use").Set(float64(stats.InUse))
		DBConnections.WithLabelValues("idle").Set(float64(stats.Idle))
	}
	if c.redis != nil {
		stats := c.redis.PoolStats()
		RedisPoolConnections.WithLabelValues("total").Set(float64(stats.TotalConns))
		RedisPoolConnections.WithLabelValues("idle").Set(float64(stats.IdleConns))
		RedisPoolConnections.WithLabelValues("stale").Set(float64(stats.StaleConns))
	}
}
