package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"crmhub/internal/worker/tasks"

	"github.com/hibiken/asynq"
)

// Client 任务队列客户端接口
type Client interface {
	EnqueueRenewPayment(ctx context.Context, payload tasks.RenewPaymentPayload) error
	Close() error
}

// TaskOptions 任务选项
type TaskOptions struct {
	Queue     string        // 队列名称
	MaxRetry  int           // 最大重试次数
	Timeout   time.Duration // 超时时间
	TaskID    string        // 任务 ID，相同 ID 的任务不会重复入队
	Retention time.Duration // 完成后保留时间
}

type asynqClient struct {
	client *asynq.Client
}

// NewClient 创建任务队列客户端
func NewClient(opt asynq.RedisConnOpt) Client {
	return &asynqClient{client: asynq.NewClient(opt)}
}

// Enqueue 入队任务
func (c *asynqClient) Enqueue(ctx context.Context, taskType string, payload any, opts TaskOptions) (*asynq.TaskInfo, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload failed: %w", err)
	}

	var asynqOpts []asynq.Option
	if opts.Queue != "" {
		asynqOpts = append(asynqOpts, asynq.Queue(opts.Queue))
	}
	if opts.MaxRetry > 0 {
		asynqOpts = append(asynqOpts, asynq.MaxRetry(opts.MaxRetry))
	}
	if opts.Timeout > 0 {
		asynqOpts = append(asynqOpts, asynq.Timeout(opts.Timeout))
	}
	if opts.TaskID != "" {
		asynqOpts = append(asynqOpts, asynq.TaskID(opts.TaskID))
	}
	if opts.Retention > 0 {
		asynqOpts = append(asynqOpts, asynq.Retention(opts.Retention))
	}

	return c.client.EnqueueContext(ctx, asynq.NewTask(taskType, data), asynqOpts...)
}

// EnqueueRenewPayment 入队续期任务，同一笔付款只会有一个待处理任务
func (c *asynqClient) EnqueueRenewPayment(ctx context.Context, payload tasks.RenewPaymentPayload) error {
	_, err := c.Enqueue(ctx, tasks.TypeRenewPayment, payload, TaskOptions{
		Queue:     tasks.QueueBilling,
		MaxRetry:  5,
		Timeout:   time.Minute,
		TaskID:    "renew:" + payload.PaymentID,
		Retention: 24 * time.Hour,
	})
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue task failed: %w", err)
	}
	return nil
}

func (c *asynqClient) Close() error {
	return c.client.Close()
}
