package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"crmhub/internal/common"
	"crmhub/internal/contact"
	"crmhub/internal/tenant"

	"gorm.io/gorm"
)

// ErrAlreadyRenewed 该付款已生成过下一期
var ErrAlreadyRenewed = errors.New("payment: already renewed")

// Service 付款管理
type Service struct {
	*common.BaseService
	now func() time.Time
}

// NewService 创建付款服务
func NewService(db *gorm.DB) *Service {
	return &Service{
		BaseService: common.NewBaseService(db),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// List 分页查询付款
func (s *Service) List(ctx context.Context, req *ListPaymentsRequest) ([]Payment, int64, error) {
	query := s.Conn(ctx).Model(&Payment{}).Scopes(
		common.Keyword(req.Keyword, "description"),
		common.Status(strings.ToLower(req.Status)),
		common.CreatedBetween(req.FilterRequest),
		common.Sort(req.SortBy, req.SortOrder, "amount", "due_at", "status", "created_at"),
	)
	if req.ContactID != "" {
		query = query.Where("contact_id = ?", req.ContactID)
	}

	var payments []Payment
	total, err := s.ListPage(query, req.PaginationRequest, &payments)
	if err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}

// Get 查询付款
func (s *Service) Get(ctx context.Context, id string) (*Payment, error) {
	var p Payment
	if err := s.FindByID(ctx, &p, id, common.CodePaymentNotFound); err != nil {
		return nil, err
	}
	return &p, nil
}

// Create 创建付款，联系人必须属于当前组织
func (s *Service) Create(ctx context.Context, req *CreatePaymentRequest) (*Payment, error) {
	if req.Amount <= 0 {
		return nil, common.NewBusinessError(common.CodeInvalidRequest, "金额必须大于 0")
	}
	interval, err := normalizeInterval(req.Interval)
	if err != nil {
		return nil, err
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "USD"
	}
	if len(currency) != 3 {
		return nil, common.NewBusinessError(common.CodeInvalidRequest, fmt.Sprintf("无效的币种: %s", currency))
	}

	exists, err := s.Exists(ctx, &contact.Contact{}, "id = ?", req.ContactID)
	if err != nil {
		return nil, fmt.Errorf("检查联系人失败: %w", err)
	}
	if !exists {
		return nil, common.NewBusinessErrorWithCode(common.CodeContactNotFound)
	}

	p := &Payment{
		ContactID:   req.ContactID,
		Amount:      req.Amount,
		Currency:    currency,
		Status:      StatusPending,
		Interval:    interval,
		Description: strings.TrimSpace(req.Description),
	}
	start := s.now()
	if req.PeriodStart != nil {
		start = req.PeriodStart.UTC()
	}
	p.DueAt = start
	if req.DueAt != nil {
		p.DueAt = req.DueAt.UTC()
	}
	if p.Recurring() {
		end := nextPeriod(start, interval)
		p.PeriodStart = &start
		p.PeriodEnd = &end
	}

	if err := s.Conn(ctx).Create(p).Error; err != nil {
		return nil, fmt.Errorf("创建付款失败: %w", err)
	}
	return p, nil
}

// MarkPaid 标记为已支付，只允许 pending 状态
func (s *Service) MarkPaid(ctx context.Context, id string) (*Payment, error) {
	return s.transition(ctx, id, StatusPending, map[string]any{
		"status":  StatusPaid,
		"paid_at": s.now(),
	})
}

// Cancel 取消待支付的付款
func (s *Service) Cancel(ctx context.Context, id string) (*Payment, error) {
	return s.transition(ctx, id, StatusPending, map[string]any{"status": StatusCancelled})
}

// Summary 按状态与币种汇总金额
func (s *Service) Summary(ctx context.Context) ([]StatusSummary, error) {
	var rows []StatusSummary
	err := s.Conn(ctx).Model(&Payment{}).
		Select("status, currency, count(*) AS count, COALESCE(sum(amount), 0) AS amount").
		Group("status, currency").
		Order("status, currency").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("汇总付款失败: %w", err)
	}
	return rows, nil
}

// DueForRenewal 查找所有组织中即将到期、尚未续期的周期性付款
// 由后台任务调用，显式跨租户
func (s *Service) DueForRenewal(ctx context.Context, before time.Time, limit int) ([]Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	var payments []Payment
	err := tenant.WithoutTenant(s.Conn(ctx)).
		Where("status = ? AND renewed = ? AND billing_interval IN ? AND period_end <= ?",
			StatusPaid, false, []string{IntervalMonthly, IntervalYearly}, before.UTC()).
		Order("period_end ASC").
		Limit(limit).
		Find(&payments).Error
	if err != nil {
		return nil, fmt.Errorf("查询待续期付款失败: %w", err)
	}
	return payments, nil
}

// Renew 为已支付的周期性付款生成下一期
// 调用方需要处于该付款所属组织的作用域中，新记录的组织由插件填充
func (s *Service) Renew(ctx context.Context, id string) (*Payment, error) {
	var next *Payment
	err := s.Transaction(ctx, func(tx *gorm.DB) error {
		var prev Payment
		if err := tx.Where("id = ?", id).First(&prev).Error; err != nil {
			return common.TranslateNotFound(err, common.CodePaymentNotFound)
		}
		if prev.Renewed {
			return ErrAlreadyRenewed
		}
		if prev.Status != StatusPaid || !prev.Recurring() || prev.PeriodEnd == nil {
			return common.NewBusinessError(common.CodePaymentState, "只有已支付的周期性付款可以续期")
		}

		res := tx.Model(&Payment{}).Where("id = ? AND renewed = ?", prev.ID, false).Update("renewed", true)
		if res.Error != nil {
			return fmt.Errorf("标记续期失败: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyRenewed
		}

		start := *prev.PeriodEnd
		end := nextPeriod(start, prev.Interval)
		next = &Payment{
			ContactID:     prev.ContactID,
			Amount:        prev.Amount,
			Currency:      prev.Currency,
			Status:        StatusPending,
			Interval:      prev.Interval,
			PeriodStart:   &start,
			PeriodEnd:     &end,
			DueAt:         start,
			RenewedFromID: &prev.ID,
			Description:   prev.Description,
		}
		if err := tx.Create(next).Error; err != nil {
			return fmt.Errorf("创建续期付款失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

func (s *Service) transition(ctx context.Context, id, from string, updates map[string]any) (*Payment, error) {
	res := s.Conn(ctx).Model(&Payment{}).Where("id = ? AND status = ?", id, from).Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("更新付款失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return nil, err
		}
		return nil, common.NewBusinessErrorWithCode(common.CodePaymentState)
	}
	return s.Get(ctx, id)
}

func nextPeriod(start time.Time, interval string) time.Time {
	if interval == IntervalYearly {
		return start.AddDate(1, 0, 0)
	}
	return start.AddDate(0, 1, 0)
}

func normalizeInterval(interval string) (string, error) {
	switch v := strings.ToLower(strings.TrimSpace(interval)); v {
	case "":
		return IntervalNone, nil
	case IntervalNone, IntervalMonthly, IntervalYearly:
		return v, nil
	default:
		return "", common.NewBusinessError(common.CodeInvalidRequest, fmt.Sprintf("无效的计费周期: %s", interval))
	}
}
