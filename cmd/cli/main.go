package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nimasrn/finance-ledger/internal/app"
	"github.com/nimasrn/finance-ledger/internal/config"
	"github.com/nimasrn/finance-ledger/internal/processor"
	"github.com/nimasrn/finance-ledger/internal/queue"
	"github.com/nimasrn/finance-ledger/pkg/logger"
	"github.com/nimasrn/finance-ledger/pkg/pg"
)

const usage = `usage: cli <command> [flags]

commands:
  migrate  [--dir=./migrations]   apply pending database migrations
  import   --file=path.xlsx       replace the ledger with a spreadsheet
  remind   [--force]              run the reminder pass now
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	c, err := app.Init()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := app.SignalContext()
	defer stop()

	switch os.Args[1] {
	case "migrate":
		err = pg.Migrate(app.WriteConfig(c), flagValue("--dir=", "./migrations"))
	case "import":
		err = runImport(ctx)
	case "remind":
		err = runRemind(ctx)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	logger.Sync()
	if err != nil {
		logger.Error("command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func flagValue(prefix, def string) string {
	for _, v := range os.Args[2:] {
		if strings.HasPrefix(v, prefix) {
			return strings.TrimPrefix(v, prefix)
		}
	}
	return def
}

func hasFlag(name string) bool {
	for _, v := range os.Args[2:] {
		if v == name {
			return true
		}
	}
	return false
}

func runImport(ctx context.Context) error {
	path := flagValue("--file=", "")
	if path == "" {
		return fmt.Errorf("import needs --file=path")
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	a, err := app.Build(ctx, config.Get())
	if err != nil {
		return err
	}
	n, err := a.Finance.Import(ctx, f, path)
	if err != nil {
		return err
	}
	logger.Info("spreadsheet imported", "file", path, "rows", n)
	return nil
}

// runRemind queues a manual job when Redis is available so the processor
// runs it under its idempotency lock; otherwise it runs the pass here.
func runRemind(ctx context.Context) error {
	c := config.Get()
	force := hasFlag("--force")

	a, err := app.Build(ctx, c)
	if err != nil {
		return err
	}

	if a.Redis != nil {
		q, err := queue.NewQueue(a.Redis, processor.QueueConfigFrom(c))
		if err != nil {
			return err
		}
		id, err := processor.NewScheduler(q, c.ReminderCheckInterval, c.ReminderDailyAt, time.Local).Trigger(ctx, force)
		if err != nil {
			return err
		}
		logger.Info("reminder job queued", "job_id", id, "force", force)
		return nil
	}

	res, err := a.Reminders.Process(ctx, force)
	if err != nil {
		return err
	}
	logger.Info("reminder pass finished",
		"processed", res.Processed,
		"emails", res.EmailsSent,
		"calls", res.CallsMade,
		"errors", strings.Join(res.Errors, "; "),
	)
	return nil
}
