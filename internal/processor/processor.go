package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nimasrn/finance-ledger/internal/config"
	"github.com/nimasrn/finance-ledger/internal/queue"
	"github.com/nimasrn/finance-ledger/pkg/logger"
	"github.com/nimasrn/finance-ledger/pkg/prom"
	"github.com/nimasrn/finance-ledger/pkg/redis"
	"github.com/nimasrn/finance-ledger/pkg/worker"
)

const HealthInterval = time.Second * 30
const ShutdownTimeout = time.Minute

// ServiceOptions sizes the consumer side of the processor.
type ServiceOptions struct {
	Queue             queue.QueueConfig
	Consumers         int
	Workers           int
	ProcessingTimeout time.Duration
	MetricsInterval   time.Duration
}

func OptionsFromConfig(c *config.Config) ServiceOptions {
	return ServiceOptions{
		Queue:             QueueConfigFrom(c),
		Consumers:         c.QueueConsumers,
		Workers:           c.QueueConsumers,
		ProcessingTimeout: c.ReminderProcessTimeout,
		MetricsInterval:   30 * time.Second,
	}
}

func QueueConfigFrom(c *config.Config) queue.QueueConfig {
	return queue.QueueConfig{
		Name:              c.QueueName,
		ConsumerGroup:     c.QueueConsumerGroup,
		ConsumerName:      c.QueueConsumerName,
		MaxRetries:        c.QueueMaxRetries,
		VisibilityTimeout: c.QueueVisibilityTimeout,
		PollInterval:      c.QueuePollInterval,
		BatchSize:         c.QueueBatchSize,
		MaxLen:            c.QueueMaxLen,
		EnableDLQ:         c.QueueEnableDLQ,
	}
}

// ProcessorService consumes reminder jobs from the queue and runs them on
// a worker pool.
type ProcessorService struct {
	adapter   redis.RedisAdapter
	opts      ServiceOptions
	queues    []*queue.Queue
	processor Processor
	metrics   *ServiceMetrics
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	worker    *worker.WorkerManager
}

// Processor handles one kind of queued job.
type Processor interface {
	Process(ctx context.Context, message *queue.Message) error
	GetType() string
}

func NewProcessorService(adapter redis.RedisAdapter, processor Processor, opts ServiceOptions) *ProcessorService {
	if opts.Consumers <= 0 {
		opts.Consumers = 1
	}
	if opts.Workers <= 0 {
		opts.Workers = opts.Consumers
	}
	if opts.ProcessingTimeout <= 0 {
		opts.ProcessingTimeout = time.Minute
	}
	if opts.MetricsInterval <= 0 {
		opts.MetricsInterval = 30 * time.Second
	}
	if opts.Queue.ConsumerName == "" {
		opts.Queue.ConsumerName = "processor"
	}

	ctx, cancel := context.WithCancel(context.Background())
	logger.Info("Registered processor", "type", processor.GetType())
	return &ProcessorService{
		adapter:   adapter,
		opts:      opts,
		processor: processor,
		metrics:   NewServiceMetrics(),
		ctx:       ctx,
		cancel:    cancel,
		worker:    worker.NewWorkerManager(opts.Workers*4, opts.Workers, nil),
	}
}

func (s *ProcessorService) Metrics() *ServiceMetrics {
	return s.metrics
}

// BufferedJobs is the number of read jobs still waiting for a worker.
func (s *ProcessorService) BufferedJobs() int64 {
	return s.worker.GetUnreadCount()
}

func (s *ProcessorService) Start() error {
	logger.Info("Starting Processor Service...")

	s.worker.SetWorker(s.workerHandler)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.worker.Start(); err != nil {
			logger.Info("Worker manager stopped", "reason", err)
		}
	}()

	for i := 0; i < s.opts.Consumers; i++ {
		cfg := s.opts.Queue
		cfg.ConsumerName = fmt.Sprintf("%s-instance-%d", cfg.ConsumerName, i)

		q, err := queue.NewQueue(s.adapter, cfg)
		if err != nil {
			return fmt.Errorf("failed to create queue %d: %w", i, err)
		}
		if err := q.Consume(s.messageHandler); err != nil {
			return fmt.Errorf("failed to start consumer %d: %w", i, err)
		}

		s.queues = append(s.queues, q)
		logger.Info("Started consumer instance", "instance", i)
	}

	s.wg.Add(2)
	go s.metricsReporter()
	go s.healthChecker()

	logger.Info("Processor Service started", "consumers", len(s.queues), "workers", s.opts.Workers)
	return nil
}

func (s *ProcessorService) metricsReporter() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.MetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.reportMetrics()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *ProcessorService) reportMetrics() {
	stats := s.metrics.GetStats()
	buffered := s.BufferedJobs()
	logger.Info("Metrics", "total_processed", stats["total_processed"], "total_failed", stats["total_failed"], "avg_duration_ms", stats["avg_duration_ms"], "uptime_seconds", stats["uptime_seconds"], "buffered", buffered)
	prom.SetGaugeVec(prom.SystemReminder, prom.MetricReminderQueueMessages, float64(buffered), "buffered")

	// all consumers share one stream, one read is enough
	if len(s.queues) > 0 {
		if qStats, err := s.queues[0].GetStats(context.Background()); err == nil {
			logger.Info("Queue stats", "total", qStats.TotalMessages, "pending", qStats.PendingMessages)
			prom.SetGaugeVec(prom.SystemReminder, prom.MetricReminderQueueMessages, float64(qStats.TotalMessages), "total")
			prom.SetGaugeVec(prom.SystemReminder, prom.MetricReminderQueueMessages, float64(qStats.PendingMessages), "pending")
		}
	}
}

func (s *ProcessorService) healthChecker() {
	defer s.wg.Done()

	ticker := time.NewTicker(HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.performHealthCheck()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *ProcessorService) performHealthCheck() {
	if err := s.adapter.Ping(s.ctx); err != nil {
		logger.Error("HEALTH CHECK FAILED: Redis connection error", "error", err)
		return
	}
	if len(s.queues) == 0 {
		return
	}
	stats, err := s.queues[0].GetStats(s.ctx)
	if err != nil {
		logger.Warn("HEALTH CHECK WARNING: Queue stats unavailable", "error", err)
		return
	}
	if stats.PendingMessages > 100 {
		logger.Warn("HEALTH CHECK WARNING: reminder jobs piling up", "pending_messages", stats.PendingMessages)
	}
	logger.Debug("HEALTH CHECK: OK")
}

// Stop gracefully stops consumers, then the worker pool.
func (s *ProcessorService) Stop() {
	logger.Info("Shutting down Processor Service...")

	s.cancel()

	var stopWg sync.WaitGroup
	for i, q := range s.queues {
		stopWg.Add(1)
		go func(index int, q *queue.Queue) {
			defer stopWg.Done()
			if err := q.Stop(ShutdownTimeout); err != nil {
				logger.Error("Error stopping queue", "queue", index, "error", err)
			}
		}(i, q)
	}
	stopWg.Wait()

	s.worker.Exit()
	s.wg.Wait()
	s.reportMetrics()

	logger.Info("Processor Service stopped")
}

type jobResult struct {
	msg        *queue.Message
	resultChan chan error
	ctx        context.Context
}

// messageHandler hands the message to the pool and waits for its result.
func (s *ProcessorService) messageHandler(ctx context.Context, msg *queue.Message) error {
	resultChan := make(chan error, 1)

	msgCtx, cancel := context.WithTimeout(ctx, s.opts.ProcessingTimeout)
	defer cancel()

	job := &jobResult{
		msg:        msg,
		resultChan: resultChan,
		ctx:        msgCtx,
	}
	if !s.worker.Enqueue(job) {
		return fmt.Errorf("worker pool stopped, message %s left pending", msg.ID)
	}

	select {
	case err := <-resultChan:
		return err
	case <-msgCtx.Done():
		return fmt.Errorf("timeout waiting for worker to process message: %w", msgCtx.Err())
	}
}

func (s *ProcessorService) workerHandler(workerIndex int, job interface{}) {
	jobRes, ok := job.(*jobResult)
	if !ok {
		logger.Error("Invalid job type in worker", "worker", workerIndex)
		return
	}

	select {
	case <-jobRes.ctx.Done():
		logger.Warn("Job context cancelled before processing started", "worker", workerIndex)
		return
	default:
	}

	start := time.Now()
	err := s.processor.Process(jobRes.ctx, jobRes.msg)
	if err != nil {
		s.metrics.RecordFailure()
		logger.Error("Failed to process message", "worker", workerIndex, "message_id", jobRes.msg.ID, "error", err)
	} else {
		s.metrics.RecordSuccess(time.Since(start))
	}

	// resultChan is buffered, the send never blocks
	jobRes.resultChan <- err
}
