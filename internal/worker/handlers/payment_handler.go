package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"crmhub/internal/common"
	"crmhub/internal/metrics"
	"crmhub/internal/payment"
	"crmhub/internal/tenant"
	"crmhub/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// SystemRole 后台任务使用的角色，不在豁免列表中，照常按组织过滤
const SystemRole = "SYSTEM"

// PaymentRenewer 付款续期能力抽象，便于注入 mock
type PaymentRenewer interface {
	DueForRenewal(ctx context.Context, before time.Time, limit int) ([]payment.Payment, error)
	Renew(ctx context.Context, id string) (*payment.Payment, error)
}

// RenewEnqueuer 续期任务入队
type RenewEnqueuer interface {
	EnqueueRenewPayment(ctx context.Context, payload tasks.RenewPaymentPayload) error
}

type PaymentHandler struct {
	payments  PaymentRenewer
	queue     RenewEnqueuer
	aheadDays int
	logger    *zap.Logger
	now       func() time.Time
}

func NewPaymentHandler(payments PaymentRenewer, queue RenewEnqueuer, aheadDays int, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		payments:  payments,
		queue:     queue,
		aheadDays: aheadDays,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// HandleRenewalSweep 扫描所有组织中即将到期的付款，逐笔入队续期任务
func (h *PaymentHandler) HandleRenewalSweep(ctx context.Context, t *asynq.Task) error {
	p := tasks.RenewalSweepPayload{AheadDays: h.aheadDays, Limit: 500}
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return fmt.Errorf("json unmarshal failed: %v: %w", err, asynq.SkipRetry)
		}
	}

	before := h.now().AddDate(0, 0, p.AheadDays)
	due, err := h.payments.DueForRenewal(ctx, before, p.Limit)
	if err != nil {
		metrics.JobsProcessedTotal.WithLabelValues(tasks.TypeRenewalSweep, "failed").Inc()
		return err
	}

	enqueued := 0
	for _, item := range due {
		err := h.queue.EnqueueRenewPayment(ctx, tasks.RenewPaymentPayload{PaymentID: item.ID, OrgID: item.OrgID})
		if err != nil {
			h.logger.Error("续期任务入队失败", zap.String("payment_id", item.ID), zap.Error(err))
			continue
		}
		enqueued++
	}

	h.logger.Info("续期扫描完成",
		zap.Time("before", before),
		zap.Int("due", len(due)),
		zap.Int("enqueued", enqueued),
	)
	metrics.JobsProcessedTotal.WithLabelValues(tasks.TypeRenewalSweep, "succeeded").Inc()
	if enqueued < len(due) {
		return fmt.Errorf("%d of %d renewals not enqueued", len(due)-enqueued, len(due))
	}
	return nil
}

// HandleRenewPayment 在付款所属组织的作用域内生成下一期付款
func (h *PaymentHandler) HandleRenewPayment(ctx context.Context, t *asynq.Task) error {
	var p tasks.RenewPaymentPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	if p.PaymentID == "" || p.OrgID == "" {
		return fmt.Errorf("payment_id and org_id are required: %w", asynq.SkipRetry)
	}

	jobCtx := tenant.WithContext(ctx, tenant.Context{UserID: "system", OrgID: p.OrgID, Role: SystemRole})
	next, err := h.payments.Renew(jobCtx, p.PaymentID)
	switch {
	case errors.Is(err, payment.ErrAlreadyRenewed):
		h.logger.Info("付款已续期，跳过", zap.String("payment_id", p.PaymentID))
		metrics.JobsProcessedTotal.WithLabelValues(tasks.TypeRenewPayment, "skipped").Inc()
		return nil
	case err != nil:
		metrics.JobsProcessedTotal.WithLabelValues(tasks.TypeRenewPayment, "failed").Inc()
		var bizErr *common.BusinessError
		if errors.As(err, &bizErr) {
			h.logger.Warn("付款不可续期",
				zap.String("payment_id", p.PaymentID),
				zap.String("org_id", p.OrgID),
				zap.Error(err),
			)
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	h.logger.Info("付款续期完成",
		zap.String("payment_id", p.PaymentID),
		zap.String("next_payment_id", next.ID),
		zap.String("org_id", p.OrgID),
	)
	metrics.JobsProcessedTotal.WithLabelValues(tasks.TypeRenewPayment, "succeeded").Inc()
	return nil
}
