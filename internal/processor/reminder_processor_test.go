package processor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nimasrn/finance-ledger/internal/model"
	"github.com/nimasrn/finance-ledger/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockReminderRunner struct {
	mock.Mock
}

func (m *MockReminderRunner) Process(ctx context.Context, force bool) (*model.ReminderResult, error) {
	args := m.Called(ctx, force)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ReminderResult), args.Error(1)
}

func jobMessage(t *testing.T, job queue.Job) *queue.Message {
	data, err := json.Marshal(job)
	require.NoError(t, err)
	return &queue.Message{ID: "1-1", Data: data}
}

func TestReminderJobProcessor_RunsOnce(t *testing.T) {
	_, idem := newTestIdempotency(t)
	runner := new(MockReminderRunner)
	runner.On("Process", mock.Anything, true).Return(&model.ReminderResult{Processed: 2, EmailsSent: 2}, nil).Once()

	p := NewReminderJobProcessor(runner, idem)
	msg := jobMessage(t, queue.Job{ID: "manual-1", Kind: queue.JobKindManual, Force: true})

	require.NoError(t, p.Process(context.Background(), msg))
	// redelivery of the same job is acked without running again
	require.NoError(t, p.Process(context.Background(), msg))

	runner.AssertExpectations(t)
	assert.Equal(t, "reminder", p.GetType())
}

func TestReminderJobProcessor_FailureIsRetried(t *testing.T) {
	_, idem := newTestIdempotency(t)
	runner := new(MockReminderRunner)
	runner.On("Process", mock.Anything, false).Return(nil, errors.New("db down")).Once()
	runner.On("Process", mock.Anything, false).Return(&model.ReminderResult{}, nil).Once()

	p := NewReminderJobProcessor(runner, idem)
	msg := jobMessage(t, queue.Job{ID: "hourly-x", Kind: queue.JobKindHourly})

	err := p.Process(context.Background(), msg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")

	count, err := idem.GetRetryCount(context.Background(), "hourly-x")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, p.Process(context.Background(), msg))
	runner.AssertExpectations(t)
}

func TestReminderJobProcessor_DropsAfterMaxRetries(t *testing.T) {
	mr, idem := newTestIdempotency(t)
	require.NoError(t, mr.Set("job:retry:daily-y", "3"))
	runner := new(MockReminderRunner)

	p := NewReminderJobProcessor(runner, idem)
	require.NoError(t, p.Process(context.Background(), jobMessage(t, queue.Job{ID: "daily-y"})))
	runner.AssertNotCalled(t, "Process", mock.Anything, mock.Anything)
}

func TestReminderJobProcessor_LockedJobIsNacked(t *testing.T) {
	_, idem := newTestIdempotency(t)
	_, err := idem.AcquireProcessingLock(context.Background(), "hourly-z")
	require.NoError(t, err)

	runner := new(MockReminderRunner)
	p := NewReminderJobProcessor(runner, idem)
	err = p.Process(context.Background(), jobMessage(t, queue.Job{ID: "hourly-z"}))
	assert.ErrorIs(t, err, ErrLockAcquireFailed)
	runner.AssertNotCalled(t, "Process", mock.Anything, mock.Anything)
}

func TestReminderJobProcessor_BadPayload(t *testing.T) {
	_, idem := newTestIdempotency(t)
	p := NewReminderJobProcessor(new(MockReminderRunner), idem)
	err := p.Process(context.Background(), &queue.Message{ID: "1-2", Data: []byte("{")})
	assert.Error(t, err)
}

func TestProcessorService_ConsumesPublishedJobs(t *testing.T) {
	_, adapter := newTestRedis(t)
	idem := NewIdempotencyService(adapter, DefaultIdempotencyConfig())

	var mu sync.Mutex
	var forced []bool
	done := make(chan struct{}, 2)
	runner := new(MockReminderRunner)
	runner.On("Process", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		mu.Lock()
		forced = append(forced, args.Bool(1))
		mu.Unlock()
		done <- struct{}{}
	}).Return(&model.ReminderResult{}, nil)

	svc := NewProcessorService(adapter, NewReminderJobProcessor(runner, idem), ServiceOptions{
		Queue: queue.QueueConfig{
			Name:              "test:reminders",
			ConsumerGroup:     "workers",
			ConsumerName:      "proc",
			MaxRetries:        3,
			VisibilityTimeout: 5 * time.Second,
			PollInterval:      20 * time.Millisecond,
			BatchSize:         5,
			MaxLen:            100,
		},
		Consumers:         2,
		ProcessingTimeout: 5 * time.Second,
	})
	require.NoError(t, svc.Start())
	defer svc.Stop()

	pub, err := queue.NewQueue(adapter, queue.QueueConfig{Name: "test:reminders", ConsumerGroup: "workers", ConsumerName: "pub"})
	require.NoError(t, err)

	ctx := context.Background()
	waitRun := func() {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for job")
		}
	}

	_, err = pub.PublishJob(ctx, queue.Job{ID: "hourly-a", Kind: queue.JobKindHourly})
	require.NoError(t, err)
	waitRun()
	assert.Eventually(t, func() bool {
		ok, err := idem.IsProcessed(ctx, "hourly-a")
		return err == nil && ok
	}, 5*time.Second, 20*time.Millisecond)

	// same slot published by another scheduler instance
	_, err = pub.PublishJob(ctx, queue.Job{ID: "hourly-a", Kind: queue.JobKindHourly})
	require.NoError(t, err)
	_, err = pub.PublishJob(ctx, queue.Job{ID: "manual-b", Kind: queue.JobKindManual, Force: true})
	require.NoError(t, err)
	waitRun()

	assert.Eventually(t, func() bool {
		stats, err := pub.GetStats(ctx)
		return err == nil && stats.TotalMessages == 3 && stats.PendingMessages == 0
	}, 5*time.Second, 20*time.Millisecond)

	assert.Eventually(t, func() bool { return svc.BufferedJobs() == 0 }, 5*time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{false, true}, forced)
	runner.AssertNumberOfCalls(t, "Process", 2)
}

func TestProcessorService_BufferedJobsBeforeStart(t *testing.T) {
	_, adapter := newTestRedis(t)
	svc := NewProcessorService(adapter, NewReminderJobProcessor(new(MockReminderRunner), NewIdempotencyService(adapter, DefaultIdempotencyConfig())), ServiceOptions{
		Queue:   queue.QueueConfig{Name: "test:idle", ConsumerGroup: "workers"},
		Workers: 1,
	})

	assert.Equal(t, int64(0), svc.BufferedJobs())
	require.True(t, svc.worker.Enqueue(queue.Job{ID: "x"}))
	assert.Equal(t, int64(1), svc.BufferedJobs())
}
