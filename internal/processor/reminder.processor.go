package processor

import (
	"context"
	"errors"
	"fmt"

	"github.com/nimasrn/finance-ledger/internal/model"
	"github.com/nimasrn/finance-ledger/internal/queue"
	"github.com/nimasrn/finance-ledger/pkg/logger"
)

type ReminderRunner interface {
	Process(ctx context.Context, force bool) (*model.ReminderResult, error)
}

type ReminderJobProcessor struct {
	reminders   ReminderRunner
	idempotency *IdempotencyService
}

func NewReminderJobProcessor(reminders ReminderRunner, idempotency *IdempotencyService) *ReminderJobProcessor {
	return &ReminderJobProcessor{
		reminders:   reminders,
		idempotency: idempotency,
	}
}

func (p *ReminderJobProcessor) GetType() string {
	return "reminder"
}

// Process runs one reminder pass for a queued job. A nil return acks the
// message; an error leaves it for redelivery.
func (p *ReminderJobProcessor) Process(ctx context.Context, msg *queue.Message) error {
	job, err := msg.Job()
	if err != nil {
		logger.Error("Failed to decode reminder job", "message_id", msg.ID, "error", err)
		return err
	}

	procCtx, err := p.idempotency.AcquireProcessingLock(ctx, job.ID)
	if err != nil {
		switch {
		case errors.Is(err, ErrAlreadyProcessed):
			logger.Info("Job already processed, skipping", "job_id", job.ID)
			return nil
		case errors.Is(err, ErrMaxRetriesExceeded):
			logger.Error("Max retries exceeded, dropping job", "job_id", job.ID)
			return nil
		case errors.Is(err, ErrLockAcquireFailed):
			logger.Info("Job locked by another consumer, will retry", "job_id", job.ID)
			return err
		}
		logger.Error("Failed to acquire lock", "job_id", job.ID, "error", err)
		return err
	}
	defer func() {
		if procCtx.lockAcquired {
			_ = p.idempotency.ReleaseLock(ctx, procCtx)
		}
	}()

	logger.Info("Running reminder job",
		"job_id", job.ID,
		"kind", job.Kind,
		"force", job.Force,
		"retry_count", procCtx.RetryCount)

	res, err := p.reminders.Process(ctx, job.Force)
	if err != nil {
		if markErr := p.idempotency.MarkFailure(ctx, procCtx, err); markErr != nil {
			logger.Error("Failed to mark failure", "job_id", job.ID, "error", markErr)
		}
		return fmt.Errorf("reminder job %s: %w", job.ID, err)
	}

	logger.Info("Reminder job done",
		"job_id", job.ID,
		"processed", res.Processed,
		"emails", res.EmailsSent,
		"calls", res.CallsMade,
		"errors", len(res.Errors))

	// delivery failures are already logged per reminder and deduplicated
	// per key, so the job itself counts as done
	if markErr := p.idempotency.MarkSuccess(ctx, procCtx); markErr != nil {
		logger.Error("Failed to mark success", "job_id", job.ID, "error", markErr)
	}
	return nil
}
