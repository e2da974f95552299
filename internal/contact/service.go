package contact

import (
	"context"
	"fmt"
	"strings"

	"crmhub/internal/common"

	"gorm.io/gorm"
)

// Service 联系人管理
type Service struct {
	*common.BaseService
}

// NewService 创建联系人服务
func NewService(db *gorm.DB) *Service {
	return &Service{BaseService: common.NewBaseService(db)}
}

// List 分页查询联系人
func (s *Service) List(ctx context.Context, req *ListContactsRequest) ([]Contact, int64, error) {
	query := s.Conn(ctx).Model(&Contact{}).Scopes(
		common.Keyword(req.Keyword, "name", "email", "company"),
		common.Status(strings.ToLower(req.Status)),
		common.CreatedBetween(req.FilterRequest),
		common.Sort(req.SortBy, req.SortOrder, "name", "company", "status", "created_at", "updated_at"),
	)
	if req.OwnerID != "" {
		query = query.Where("owner_id = ?", req.OwnerID)
	}

	var contacts []Contact
	total, err := s.ListPage(query, req.PaginationRequest, &contacts)
	if err != nil {
		return nil, 0, err
	}
	return contacts, total, nil
}

// Get 查询联系人，其它组织的联系人视为不存在
func (s *Service) Get(ctx context.Context, id string) (*Contact, error) {
	var c Contact
	if err := s.FindByID(ctx, &c, id, common.CodeContactNotFound); err != nil {
		return nil, err
	}
	return &c, nil
}

// Create 创建联系人，组织由租户插件填充
func (s *Service) Create(ctx context.Context, req *CreateContactRequest) (*Contact, error) {
	status, err := normalizeStatus(req.Status)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, common.NewBusinessError(common.CodeInvalidRequest, "联系人名称不能为空")
	}

	c := &Contact{
		Name:    name,
		Email:   strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:   strings.TrimSpace(req.Phone),
		Company: strings.TrimSpace(req.Company),
		Status:  status,
		OwnerID: req.OwnerID,
		Notes:   req.Notes,
	}
	if err := s.Conn(ctx).Create(c).Error; err != nil {
		return nil, fmt.Errorf("创建联系人失败: %w", err)
	}
	return c, nil
}

// Update 更新联系人
// 只用 Updates 写指定列，Save 在记录不存在时会插入新行
func (s *Service) Update(ctx context.Context, id string, req *UpdateContactRequest) (*Contact, error) {
	updates := map[string]any{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, common.NewBusinessError(common.CodeInvalidRequest, "联系人名称不能为空")
		}
		updates["name"] = name
	}
	if req.Email != nil {
		updates["email"] = strings.ToLower(strings.TrimSpace(*req.Email))
	}
	if req.Phone != nil {
		updates["phone"] = strings.TrimSpace(*req.Phone)
	}
	if req.Company != nil {
		updates["company"] = strings.TrimSpace(*req.Company)
	}
	if req.Status != nil {
		status, err := normalizeStatus(*req.Status)
		if err != nil {
			return nil, err
		}
		updates["status"] = status
	}
	if req.OwnerID != nil {
		updates["owner_id"] = *req.OwnerID
	}
	if req.Notes != nil {
		updates["notes"] = *req.Notes
	}
	if len(updates) == 0 {
		return s.Get(ctx, id)
	}

	res := s.Conn(ctx).Model(&Contact{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("更新联系人失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, common.NewBusinessErrorWithCode(common.CodeContactNotFound)
	}
	return s.Get(ctx, id)
}

// Delete 软删除联系人
func (s *Service) Delete(ctx context.Context, id string) error {
	res := s.Conn(ctx).Where("id = ?", id).Delete(&Contact{})
	if res.Error != nil {
		return fmt.Errorf("删除联系人失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return common.NewBusinessErrorWithCode(common.CodeContactNotFound)
	}
	return nil
}

// StatsByStatus 按状态分组统计，分组查询同样只统计当前组织
func (s *Service) StatsByStatus(ctx context.Context) ([]StatusCount, error) {
	var rows []StatusCount
	err := s.Conn(ctx).Model(&Contact{}).
		Select("status, count(*) AS total").
		Group("status").
		Order("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("统计联系人失败: %w", err)
	}
	return rows, nil
}

func normalizeStatus(status string) (string, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if status == "" {
		return StatusLead, nil
	}
	for _, s := range ValidStatuses {
		if s == status {
			return status, nil
		}
	}
	return "", common.NewBusinessError(common.CodeInvalidRequest, fmt.Sprintf("无效的联系人状态: %s", status))
}
