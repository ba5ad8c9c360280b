package main

import (
	"errors"
	"time"

	"github.com/nimasrn/finance-ledger/internal/app"
	"github.com/nimasrn/finance-ledger/internal/processor"
	"github.com/nimasrn/finance-ledger/internal/queue"
	"github.com/nimasrn/finance-ledger/pkg/logger"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger.Info("starting reminder processor", "version", version, "commit", commit, "date", date)

	c, err := app.Init()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}

	ctx, stop := app.SignalContext()
	defer stop()

	a, err := app.Build(ctx, c)
	if err != nil {
		logger.Error("failed to build services", "error", err)
		return
	}
	if a.Redis == nil {
		logger.Error("the processor needs REDIS_ADDR; without it run the api, which schedules reminders in-process")
		return
	}

	if err := app.StartMetrics(c); err != nil {
		logger.Error("failed to create prometheus metrics", "error", err)
		return
	}

	opts := processor.OptionsFromConfig(c)
	if opts.Queue.ConsumerName == "" {
		opts.Queue.ConsumerName = c.AppName
	}

	publisher, err := queue.NewQueue(a.Redis, opts.Queue)
	if err != nil {
		logger.Error("failed creating queue", "error", err)
		return
	}

	service := processor.NewProcessorService(a.Redis, processor.NewReminderJobProcessor(a.Reminders, a.Idempotency), opts)
	if err := service.Start(); err != nil {
		logger.Error("failed to start processor", "error", err)
		service.Stop()
		return
	}

	sched := processor.NewScheduler(publisher, c.ReminderCheckInterval, c.ReminderDailyAt, time.Local)
	schedDone := make(chan error, 1)
	go func() {
		schedDone <- sched.Run(ctx)
	}()

	select {
	case err := <-schedDone:
		if err != nil && !errors.Is(err, ctx.Err()) {
			logger.Error("reminder scheduler failed", "error", err)
		}
	case <-ctx.Done():
	}

	service.Stop()
	logger.Sync()
}
