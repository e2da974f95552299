package infra

import (
	"context"
	"fmt"
	"time"

	"crmhub/internal/config"
	"crmhub/internal/logger"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

var globalMongo *mongo.Client

// InitMongo 初始化 MongoDB 连接（活动日志）
func InitMongo(cfg *config.MongoConfig) (*mongo.Database, error) {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetServerSelectionTimeout(timeout).
		SetAppName("crmhub")
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("MongoDB 连接失败: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("MongoDB 连接测试失败: %w", err)
	}

	logger.Info("MongoDB 连接成功", zap.String("database", cfg.Database))

	globalMongo = client
	return client.Database(cfg.Database), nil
}

// CloseMongo 关闭 MongoDB 连接
func CloseMongo(ctx context.Context) error {
	if globalMongo != nil {
		return globalMongo.Disconnect(ctx)
	}
	return nil
}
