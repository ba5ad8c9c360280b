package processor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nimasrn/finance-ledger/pkg/logger"
	"github.com/nimasrn/finance-ledger/pkg/redis"
)

var (
	ErrAlreadyProcessed   = errors.New("job already processed")
	ErrLockAcquireFailed  = errors.New("failed to acquire processing lock")
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")
)

type IdempotencyConfig struct {
	LockTTL time.Duration

	ProcessedTTL time.Duration

	MaxRetries int

	RetryKeyPrefix     string
	LockKeyPrefix      string
	ProcessedKeyPrefix string

	// DeliveryTTL bounds how long a sent reminder blocks a repeat of the
	// same delivery.
	DeliveryTTL       time.Duration
	DeliveryKeyPrefix string
}

func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		LockTTL:            2 * time.Minute,
		ProcessedTTL:       24 * time.Hour,
		MaxRetries:         3,
		RetryKeyPrefix:     "job:retry:",
		LockKeyPrefix:      "job:lock:",
		ProcessedKeyPrefix: "job:processed:",
		DeliveryTTL:        36 * time.Hour,
		DeliveryKeyPrefix:  "reminder:",
	}
}

type IdempotencyService struct {
	redis  redis.RedisAdapter
	config IdempotencyConfig
}

func NewIdempotencyService(redisAdapter redis.RedisAdapter, config IdempotencyConfig) *IdempotencyService {
	return &IdempotencyService{
		redis:  redisAdapter,
		config: config,
	}
}

type ProcessingContext struct {
	JobID        string
	RetryCount   int
	IsRetry      bool
	lockAcquired bool
}

func (s *IdempotencyService) AcquireProcessingLock(ctx context.Context, jobID string) (*ProcessingContext, error) {
	exists, err := s.redis.Exist(ctx, s.config.ProcessedKeyPrefix+jobID)
	if err != nil {
		// a failed check must not stall reminders; worst case is a repeated run
		logger.Warn("processed marker check failed", "job_id", jobID, "error", err)
	} else if exists > 0 {
		return nil, ErrAlreadyProcessed
	}

	retryCount, err := s.GetRetryCount(ctx, jobID)
	if err != nil {
		logger.Warn("retry counter read failed", "job_id", jobID, "error", err)
	}
	if retryCount >= s.config.MaxRetries {
		return nil, fmt.Errorf("%w: job_id=%s, retries=%d", ErrMaxRetriesExceeded, jobID, retryCount)
	}

	acquired, err := s.redis.SetNX(ctx, s.config.LockKeyPrefix+jobID, []byte(strconv.FormatInt(time.Now().UnixNano(), 10)), s.config.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLockAcquireFailed, err)
	}
	if !acquired {
		return nil, ErrLockAcquireFailed
	}

	logger.Debug("processing lock acquired", "job_id", jobID, "retry_count", retryCount)
	return &ProcessingContext{
		JobID:        jobID,
		RetryCount:   retryCount,
		IsRetry:      retryCount > 0,
		lockAcquired: true,
	}, nil
}

func (s *IdempotencyService) MarkSuccess(ctx context.Context, pc *ProcessingContext) error {
	if err := s.redis.Set(ctx, s.config.ProcessedKeyPrefix+pc.JobID, []byte("1"), s.config.ProcessedTTL); err != nil {
		return fmt.Errorf("failed to mark as processed: %w", err)
	}
	s.cleanup(ctx, pc)
	return nil
}

func (s *IdempotencyService) MarkFailure(ctx context.Context, pc *ProcessingContext, reason error) error {
	next := pc.RetryCount + 1
	if err := s.redis.Set(ctx, s.config.RetryKeyPrefix+pc.JobID, []byte(strconv.Itoa(next)), s.config.ProcessedTTL); err != nil {
		logger.Error("retry counter update failed", "job_id", pc.JobID, "error", err)
	}
	if err := s.ReleaseLock(ctx, pc); err != nil {
		return err
	}
	logger.Warn("job failed, will retry", "job_id", pc.JobID, "retry_count", next, "max_retries", s.config.MaxRetries, "reason", reason)
	return nil
}

func (s *IdempotencyService) ReleaseLock(ctx context.Context, pc *ProcessingContext) error {
	if pc == nil || !pc.lockAcquired {
		return nil
	}
	if err := s.redis.Del(ctx, s.config.LockKeyPrefix+pc.JobID); err != nil {
		logger.Warn("lock release failed", "job_id", pc.JobID, "error", err)
		return err
	}
	pc.lockAcquired = false
	return nil
}

func (s *IdempotencyService) cleanup(ctx context.Context, pc *ProcessingContext) {
	_ = s.ReleaseLock(ctx, pc)
	if err := s.redis.Del(ctx, s.config.RetryKeyPrefix+pc.JobID); err != nil {
		logger.Warn("retry counter cleanup failed", "job_id", pc.JobID, "error", err)
	}
}

func (s *IdempotencyService) GetRetryCount(ctx context.Context, jobID string) (int, error) {
	b, err := s.redis.Get(ctx, s.config.RetryKeyPrefix+jobID)
	if err != nil {
		if errors.Is(err, redis.NilError) {
			return 0, nil
		}
		return 0, err
	}
	n, _ := strconv.Atoi(string(b))
	return n, nil
}

func (s *IdempotencyService) IsProcessed(ctx context.Context, jobID string) (bool, error) {
	exists, err := s.redis.Exist(ctx, s.config.ProcessedKeyPrefix+jobID)
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}

// Claim reserves a reminder delivery key. It returns false when the same
// delivery was already claimed within DeliveryTTL.
func (s *IdempotencyService) Claim(ctx context.Context, key string) (bool, error) {
	return s.redis.SetNX(ctx, s.config.DeliveryKeyPrefix+key, []byte(strconv.FormatInt(time.Now().Unix(), 10)), s.config.DeliveryTTL)
}

// Release frees a delivery key so a failed attempt can be retried.
func (s *IdempotencyService) Release(ctx context.Context, key string) error {
	return s.redis.Del(ctx, s.config.DeliveryKeyPrefix+key)
}
