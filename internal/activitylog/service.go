package activitylog

import (
	"context"
	"fmt"
	"time"

	"crmhub/internal/tenant"
	"crmhub/internal/tenant/mongoscope"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Recorder 写入活动日志
type Recorder interface {
	Record(ctx context.Context, entry *Entry) error
}

// NopRecorder 未配置 MongoDB 时使用
type NopRecorder struct{}

// Record 丢弃日志
func (NopRecorder) Record(context.Context, *Entry) error { return nil }

// Service 活动日志服务
type Service struct {
	coll *mongoscope.Collection
	now  func() time.Time
}

// NewService 创建活动日志服务，coll 为空时只能构造查询条件
func NewService(coll *mongo.Collection, scope tenant.ScopeConfig, logger *zap.Logger) *Service {
	scope.OrgField = mongoscope.DefaultOrgField
	return &Service{
		coll: mongoscope.Attach(coll, Entry{}, scope, logger),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// EnsureIndexes 创建查询所需索引
func (s *Service) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Raw().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "orgId", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "orgId", Value: 1}, {Key: "action", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("创建活动日志索引失败: %w", err)
	}
	return nil
}

// Record 写入一条日志，组织由作用域自动填充
func (s *Service) Record(ctx context.Context, entry *Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	if _, err := s.coll.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("写入活动日志失败: %w", err)
	}
	return nil
}

// List 分页查询当前组织的日志，按时间倒序
func (s *Service) List(ctx context.Context, req *ListRequest) ([]Entry, int64, error) {
	filter := buildFilter(req)

	total, err := s.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("统计活动日志失败: %w", err)
	}
	if total == 0 {
		return []Entry{}, 0, nil
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(int64(req.GetOffset())).
		SetLimit(int64(req.GetPageSize()))
	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("查询活动日志失败: %w", err)
	}
	defer cursor.Close(ctx)

	entries := []Entry{}
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, 0, fmt.Errorf("解析活动日志失败: %w", err)
	}
	return entries, total, nil
}

// CountByAction 按动作聚合统计，聚合管道同样只统计当前组织
func (s *Service) CountByAction(ctx context.Context, since *time.Time) ([]ActionCount, error) {
	cursor, err := s.coll.Aggregate(ctx, actionPipeline(since))
	if err != nil {
		return nil, fmt.Errorf("统计活动日志失败: %w", err)
	}
	defer cursor.Close(ctx)

	counts := []ActionCount{}
	if err := cursor.All(ctx, &counts); err != nil {
		return nil, fmt.Errorf("解析统计结果失败: %w", err)
	}
	return counts, nil
}

func buildFilter(req *ListRequest) bson.M {
	filter := bson.M{}
	if req.Action != "" {
		filter["action"] = req.Action
	}
	if req.Resource != "" {
		filter["resource"] = req.Resource
	}
	if req.UserID != "" {
		filter["userId"] = req.UserID
	}
	created := bson.M{}
	if req.From != nil {
		created["$gte"] = req.From.UTC()
	}
	if req.To != nil {
		created["$lt"] = req.To.UTC().AddDate(0, 0, 1)
	}
	if len(created) > 0 {
		filter["createdAt"] = created
	}
	return filter
}

func actionPipeline(since *time.Time) mongo.Pipeline {
	pipeline := mongo.Pipeline{}
	if since != nil {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: bson.M{"createdAt": bson.M{"$gte": since.UTC()}}}})
	}
	return append(pipeline,
		bson.D{{Key: "$group", Value: bson.M{"_id": "$action", "count": bson.M{"$sum": 1}}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
	)
}
