package common

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// BaseService 服务基类，封装通用的数据库操作方法
// 组织过滤由租户插件完成，这里不再出现 org_id 条件
type BaseService struct {
	DB *gorm.DB
}

// NewBaseService 创建BaseService实例
func NewBaseService(db *gorm.DB) *BaseService {
	return &BaseService{DB: db}
}

// Conn 带上下文的数据库实例，租户作用域经由 ctx 传递给插件
func (s *BaseService) Conn(ctx context.Context) *gorm.DB {
	return s.DB.WithContext(ctx)
}

// FindByID 根据ID查询单条记录，记录不存在或属于其它组织时返回 notFoundCode 对应的业务错误
func (s *BaseService) FindByID(ctx context.Context, model any, id string, notFoundCode int) error {
	err := s.Conn(ctx).Where("id = ?", id).First(model).Error
	return TranslateNotFound(err, notFoundCode)
}

// ListPage 统计总数并查询当前页
func (s *BaseService) ListPage(query *gorm.DB, page PaginationRequest, dest any) (int64, error) {
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return 0, fmt.Errorf("统计记录数失败: %w", err)
	}
	if total == 0 {
		return 0, nil
	}
	if err := query.Scopes(Paginate(page)).Find(dest).Error; err != nil {
		return 0, fmt.Errorf("查询列表失败: %w", err)
	}
	return total, nil
}

// Exists 检查记录是否存在
func (s *BaseService) Exists(ctx context.Context, model any, condition string, args ...any) (bool, error) {
	var count int64
	err := s.Conn(ctx).Model(model).Where(condition, args...).Count(&count).Error
	return count > 0, err
}

// Transaction 执行事务，ctx 中的租户作用域对事务内语句同样生效
func (s *BaseService) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.Conn(ctx).Transaction(fn)
}

// TranslateNotFound 把 gorm.ErrRecordNotFound 转换为业务错误
func TranslateNotFound(err error, code int) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return NewBusinessErrorWithCode(code)
	}
	return err
}
