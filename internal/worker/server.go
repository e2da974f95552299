package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"crmhub/internal/config"
	"crmhub/internal/worker/handlers"
	"crmhub/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Server 续期任务 Worker，内含 asynq 服务端与定时调度器
type Server struct {
	server    *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
	logger    *zap.Logger
}

// NewServer 创建 Worker，配置了 renewal_cron 时注册周期扫描
func NewServer(
	opt asynq.RedisConnOpt,
	cfg config.WorkerConfig,
	payments handlers.PaymentRenewer,
	queue handlers.RenewEnqueuer,
	logger *zap.Logger,
) (*Server, error) {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}

	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			tasks.QueueBilling: 6,
			"default":          1,
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.Error("任务执行失败",
				zap.String("type", task.Type()),
				zap.Error(err),
			)
		}),
	})

	mux := asynq.NewServeMux()
	paymentHandler := handlers.NewPaymentHandler(payments, queue, cfg.RenewalAheadDays, logger)
	mux.HandleFunc(tasks.TypeRenewalSweep, paymentHandler.HandleRenewalSweep)
	mux.HandleFunc(tasks.TypeRenewPayment, paymentHandler.HandleRenewPayment)

	scheduler := asynq.NewScheduler(opt, &asynq.SchedulerOpts{Location: time.UTC})
	if cfg.RenewalCron != "" {
		payload, err := json.Marshal(tasks.RenewalSweepPayload{AheadDays: cfg.RenewalAheadDays, Limit: 500})
		if err != nil {
			return nil, fmt.Errorf("marshal sweep payload: %w", err)
		}
		entryID, err := scheduler.Register(cfg.RenewalCron,
			asynq.NewTask(tasks.TypeRenewalSweep, payload),
			asynq.Queue(tasks.QueueBilling),
			asynq.MaxRetry(1),
		)
		if err != nil {
			return nil, fmt.Errorf("注册续期扫描任务失败: %w", err)
		}
		logger.Info("续期扫描已注册", zap.String("cron", cfg.RenewalCron), zap.String("entry_id", entryID))
	}

	return &Server{
		server:    srv,
		scheduler: scheduler,
		mux:       mux,
		logger:    logger,
	}, nil
}

// Start 非阻塞启动
func (s *Server) Start() error {
	s.logger.Info("Worker 服务器启动中 (后台)...")
	if err := s.scheduler.Start(); err != nil {
		return err
	}
	return s.server.Start(s.mux)
}

// Shutdown 停止 Worker 服务器
func (s *Server) Shutdown() {
	s.logger.Info("Worker 服务器停止中...")
	s.scheduler.Shutdown()
	s.server.Shutdown()
}
