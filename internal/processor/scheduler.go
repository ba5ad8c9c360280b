package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/finance-ledger/internal/queue"
	"github.com/nimasrn/finance-ledger/pkg/logger"
)

type JobPublisher interface {
	PublishJob(ctx context.Context, job queue.Job) (string, error)
}

// Scheduler publishes reminder jobs on a fixed interval and once a day at
// a wall clock time. Job IDs come from the slot, so every instance running
// a scheduler publishes the same IDs and the processor runs each slot once.
type Scheduler struct {
	publisher JobPublisher
	interval  time.Duration
	dailyAt   string
	loc       *time.Location
	now       func() time.Time
}

func NewScheduler(publisher JobPublisher, interval time.Duration, dailyAt string, loc *time.Location) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		publisher: publisher,
		interval:  interval,
		dailyAt:   dailyAt,
		loc:       loc,
		now:       time.Now,
	}
}

// nextDaily returns the first instant at clock ("HH:MM") strictly after now.
func nextDaily(now time.Time, clock string, loc *time.Location) (time.Time, error) {
	at, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid daily time %q: %w", clock, err)
	}
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), at.Hour(), at.Minute(), 0, 0, loc)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next, nil
}

func slotID(kind queue.JobKind, slot time.Time) string {
	return string(kind) + "-" + slot.UTC().Format("2006-01-02T15:04:05")
}

func (s *Scheduler) publish(ctx context.Context, kind queue.JobKind, slot time.Time) {
	job := queue.Job{ID: slotID(kind, slot), Kind: kind, ScheduledAt: slot}
	if _, err := s.publisher.PublishJob(ctx, job); err != nil {
		logger.Error("failed to publish reminder job", "job_id", job.ID, "error", err)
		return
	}
	logger.Info("reminder job published", "job_id", job.ID, "kind", kind)
}

// Trigger publishes a one-off job outside the schedule.
func (s *Scheduler) Trigger(ctx context.Context, force bool) (string, error) {
	job := queue.Job{
		ID:          "manual-" + uuid.NewString(),
		Kind:        queue.JobKindManual,
		Force:       force,
		ScheduledAt: s.now(),
	}
	if _, err := s.publisher.PublishJob(ctx, job); err != nil {
		return "", err
	}
	return job.ID, nil
}

// Run blocks until ctx is done. It publishes the current interval slot at
// start so a restart does not wait a full interval.
func (s *Scheduler) Run(ctx context.Context) error {
	next, err := nextDaily(s.now(), s.dailyAt, s.loc)
	if err != nil {
		return err
	}
	logger.Info("reminder scheduler started", "interval", s.interval.String(), "next_daily", next.Format(time.RFC3339))

	s.publish(ctx, queue.JobKindHourly, s.now().Truncate(s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	daily := time.NewTimer(next.Sub(s.now()))
	defer daily.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("reminder scheduler stopped")
			return ctx.Err()
		case t := <-ticker.C:
			s.publish(ctx, queue.JobKindHourly, t.Truncate(s.interval))
		case <-daily.C:
			s.publish(ctx, queue.JobKindDaily, next)
			next, _ = nextDaily(next, s.dailyAt, s.loc)
			daily.Reset(next.Sub(s.now()))
		}
	}
}
