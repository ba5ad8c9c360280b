package main

import (
	"context"
	"time"

	"github.com/nimasrn/finance-ledger/internal/app"
	"github.com/nimasrn/finance-ledger/internal/handlers"
	"github.com/nimasrn/finance-ledger/internal/model"
	"github.com/nimasrn/finance-ledger/internal/processor"
	"github.com/nimasrn/finance-ledger/internal/queue"
	"github.com/nimasrn/finance-ledger/internal/services"
	xhttp "github.com/nimasrn/finance-ledger/pkg/http"
	"github.com/nimasrn/finance-ledger/pkg/logger"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// inlinePublisher runs reminder jobs in-process. It stands in for the
// queue when no Redis is configured.
type inlinePublisher struct {
	reminders *services.ReminderService
}

func (p inlinePublisher) PublishJob(ctx context.Context, job queue.Job) (string, error) {
	go func() {
		res, err := p.reminders.Process(context.Background(), job.Force)
		if err != nil {
			logger.Error("inline reminder run failed", "job_id", job.ID, "error", err)
			return
		}
		logResult(job, res)
	}()
	return job.ID, nil
}

func logResult(job queue.Job, res *model.ReminderResult) {
	logger.Info("inline reminder run finished",
		"job_id", job.ID,
		"processed", res.Processed,
		"emails", res.EmailsSent,
		"calls", res.CallsMade,
		"errors", len(res.Errors),
	)
}

func main() {
	logger.Info("starting finance ledger api", "version", version, "commit", commit, "date", date)

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

	if err := app.StartMetrics(c); err != nil {
		logger.Error("failed to start metrics", "error", err)
		return
	}

	opts := xhttp.DefaultServerOption()
	opts.Name = c.AppName
	opts.ReadTimeout = c.HttpServerReadTimeout
	opts.WriteTimeout = c.HttpServerWriteTimeout
	opts.MaxRequestBodySize = c.HttpMaxRequestBodySize

	s := xhttp.NewServer(opts)
	s.Use(xhttp.RecoverMiddleware)
	s.Use(xhttp.RequestIDMiddleware)
	s.Use(xhttp.RequestLoggerMiddleware)
	s.Use(xhttp.TimeoutMiddleware(c.HttpRequestTimeout))
	s.Use(xhttp.CompressMiddleware(6))

	g := s.Router.Group(c.HttpBaseRequestUrl)
	handlers.RegisterFinanceRoutes(g, handlers.NewFinanceHandler(a.Finance))
	handlers.RegisterReminderRoutes(g, handlers.NewReminderHandler(a.Reminders, c.ReminderProcessTimeout))
	handlers.RegisterAssistantRoutes(g, handlers.NewAssistantHandler(a.Assistant))
	handlers.RegisterHealthRoutes(g, handlers.NewHealthHandler(a.Health))

	// With Redis the processor binary owns scheduling.
	if a.Redis == nil {
		sched := processor.NewScheduler(inlinePublisher{reminders: a.Reminders}, c.ReminderCheckInterval, c.ReminderDailyAt, time.Local)
		go func() {
			if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("reminder scheduler stopped", "error", err)
			}
		}()
		logger.Info("reminder scheduler running in-process", "interval", c.ReminderCheckInterval.String(), "daily_at", c.ReminderDailyAt)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.ListenAndServe(c.HttpListenAddr)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("error in running http-server", "error", err)
		}
	case <-ctx.Done():
		done := make(chan struct{})
		go func() {
			s.Shutdown()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(app.ShutdownTimeout):
			logger.Warn("http server did not shut down in time")
		}
	}
	logger.Sync()
}
