package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"crmhub/internal/common"
	"crmhub/internal/contact"
	"crmhub/internal/payment"
	"crmhub/internal/tenant"
	"crmhub/internal/worker/tasks"

	"github.com/glebarez/sqlite"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	orgA = "6f1c1f0e-8f5a-4c39-9a57-1f3b0d7f0a01"
	orgB = "0b7e3a52-2d4c-4a8e-b1d6-93c2f5e4a702"
)

type fakeRenewer struct {
	due       []payment.Payment
	before    time.Time
	renewCtx  context.Context
	renewedID string
	renewErr  error
}

func (f *fakeRenewer) DueForRenewal(ctx context.Context, before time.Time, limit int) ([]payment.Payment, error) {
	f.before = before
	return f.due, nil
}

func (f *fakeRenewer) Renew(ctx context.Context, id string) (*payment.Payment, error) {
	f.renewCtx = ctx
	f.renewedID = id
	if f.renewErr != nil {
		return nil, f.renewErr
	}
	return &payment.Payment{TenantModel: common.TenantModel{BaseModel: common.BaseModel{ID: "next"}}}, nil
}

type fakeQueue struct {
	payloads []tasks.RenewPaymentPayload
	failFor  string
}

func (q *fakeQueue) EnqueueRenewPayment(ctx context.Context, p tasks.RenewPaymentPayload) error {
	if p.PaymentID == q.failFor {
		return errors.New("redis down")
	}
	q.payloads = append(q.payloads, p)
	return nil
}

func duePayment(id, orgID string) payment.Payment {
	var p payment.Payment
	p.ID = id
	p.OrgID = orgID
	return p
}

func renewTask(t *testing.T, p tasks.RenewPaymentPayload) *asynq.Task {
	t.Helper()
	data, err := json.Marshal(p)
	require.NoError(t, err)
	return asynq.NewTask(tasks.TypeRenewPayment, data)
}

func TestRenewalSweepEnqueuesEveryOrg(t *testing.T) {
	renewer := &fakeRenewer{due: []payment.Payment{duePayment("p1", orgA), duePayment("p2", orgB)}}
	queue := &fakeQueue{}
	h := NewPaymentHandler(renewer, queue, 3, zaptest.NewLogger(t))
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return now }

	require.NoError(t, h.HandleRenewalSweep(context.Background(), asynq.NewTask(tasks.TypeRenewalSweep, nil)))
	assert.Equal(t, now.AddDate(0, 0, 3), renewer.before)
	assert.Equal(t, []tasks.RenewPaymentPayload{
		{PaymentID: "p1", OrgID: orgA},
		{PaymentID: "p2", OrgID: orgB},
	}, queue.payloads)
}

func TestRenewalSweepReportsEnqueueFailures(t *testing.T) {
	renewer := &fakeRenewer{due: []payment.Payment{duePayment("p1", orgA), duePayment("p2", orgB)}}
	queue := &fakeQueue{failFor: "p1"}
	h := NewPaymentHandler(renewer, queue, 0, zaptest.NewLogger(t))

	err := h.HandleRenewalSweep(context.Background(), asynq.NewTask(tasks.TypeRenewalSweep, []byte(`{"ahead_days":1,"limit":10}`)))
	assert.Error(t, err)
	assert.Len(t, queue.payloads, 1)
}

func TestRenewPaymentRunsUnderOrgScope(t *testing.T) {
	renewer := &fakeRenewer{}
	h := NewPaymentHandler(renewer, &fakeQueue{}, 0, zaptest.NewLogger(t))

	require.NoError(t, h.HandleRenewPayment(context.Background(), renewTask(t, tasks.RenewPaymentPayload{PaymentID: "p1", OrgID: orgB})))
	assert.Equal(t, "p1", renewer.renewedID)

	tc, ok := tenant.Get(renewer.renewCtx)
	require.True(t, ok)
	assert.Equal(t, orgB, tc.OrgID)
	assert.Equal(t, SystemRole, tc.Role)
}

func TestRenewPaymentErrors(t *testing.T) {
	tests := []struct {
		name      string
		task      *asynq.Task
		renewErr  error
		wantErr   bool
		skipRetry bool
	}{
		{"已续期视为成功", renewTask(t, tasks.RenewPaymentPayload{PaymentID: "p1", OrgID: orgA}), payment.ErrAlreadyRenewed, false, false},
		{"业务错误不重试", renewTask(t, tasks.RenewPaymentPayload{PaymentID: "p1", OrgID: orgA}), common.NewBusinessErrorWithCode(common.CodePaymentState), true, true},
		{"数据库错误重试", renewTask(t, tasks.RenewPaymentPayload{PaymentID: "p1", OrgID: orgA}), errors.New("db gone"), true, false},
		{"缺少组织", renewTask(t, tasks.RenewPaymentPayload{PaymentID: "p1"}), nil, true, true},
		{"非法载荷", asynq.NewTask(tasks.TypeRenewPayment, []byte("not-json")), nil, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewPaymentHandler(&fakeRenewer{renewErr: tt.renewErr}, &fakeQueue{}, 0, zap.NewNop())
			err := h.HandleRenewPayment(context.Background(), tt.task)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.skipRetry, errors.Is(err, asynq.SkipRetry))
		})
	}
}

// 扫描与续期串起来：扫描不带作用域，续期在各自组织内创建下一期
func TestSweepAndRenewAgainstDatabase(t *testing.T) {
	dsn := fmt.Sprintf("file:worker_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	require.NoError(t, db.Use(tenant.NewPlugin(zap.NewNop())))
	require.NoError(t, db.AutoMigrate(&contact.Contact{}, &payment.Payment{}))
	cfg := tenant.ScopeConfig{ExemptRoles: []string{"SUPER_ADMIN"}}
	require.NoError(t, tenant.Attach(db, &contact.Contact{}, cfg))
	require.NoError(t, tenant.Attach(db, &payment.Payment{}, cfg))

	contacts := contact.NewService(db)
	payments := payment.NewService(db)
	for _, orgID := range []string{orgA, orgB} {
		ctx := tenant.WithContext(context.Background(), tenant.Context{OrgID: orgID, Role: "ADMIN"})
		c, err := contacts.Create(ctx, &contact.CreateContactRequest{Name: "customer"})
		require.NoError(t, err)
		start := time.Now().UTC().AddDate(0, -1, 0)
		p, err := payments.Create(ctx, &payment.CreatePaymentRequest{ContactID: c.ID, Amount: 1000, Interval: payment.IntervalMonthly, PeriodStart: &start})
		require.NoError(t, err)
		_, err = payments.MarkPaid(ctx, p.ID)
		require.NoError(t, err)
	}

	queue := &fakeQueue{}
	h := NewPaymentHandler(payments, queue, 1, zaptest.NewLogger(t))
	require.NoError(t, h.HandleRenewalSweep(context.Background(), asynq.NewTask(tasks.TypeRenewalSweep, nil)))
	require.Len(t, queue.payloads, 2)

	for _, p := range queue.payloads {
		require.NoError(t, h.HandleRenewPayment(context.Background(), renewTask(t, p)))
	}

	var pending []payment.Payment
	require.NoError(t, db.Where("status = ?", payment.StatusPending).Find(&pending).Error)
	require.Len(t, pending, 2)
	orgs := map[string]bool{}
	for _, p := range pending {
		orgs[p.OrgID] = true
		require.NotNil(t, p.RenewedFromID)
	}
	assert.Equal(t, map[string]bool{orgA: true, orgB: true}, orgs)

	// 再次扫描不会重复续期
	queue.payloads = nil
	require.NoError(t, h.HandleRenewalSweep(context.Background(), asynq.NewTask(tasks.TypeRenewalSweep, nil)))
	assert.Empty(t, queue.payloads)
}
