package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"asso-manager/internal/adapters/persistence/models"
	"asso-manager/internal/app"
	"asso-manager/internal/config"
	"asso-manager/internal/pkg/logger"
)

const usage = `usage: maintenance <command> [flags]

commands:
  sweep             expire overdue dues
  reminders         mail members whose dues expire soon (-days N)
  event-reminders   mail participants of tomorrow's events
  report            build and mail the monthly report to administrators
`

var errUsage = errors.New("invalid usage")

type command struct {
	name string
	days int
}

func parseCommand(args []string, defaultDays int) (command, error) {
	if len(args) == 0 {
		return command{}, errUsage
	}

	cmd := command{name: args[0], days: defaultDays}
	fs := flag.NewFlagSet(cmd.name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	switch cmd.name {
	case "sweep", "event-reminders", "report":
	case "reminders":
		fs.IntVar(&cmd.days, "days", defaultDays, "look-ahead in days")
	default:
		return command{}, fmt.Errorf("%w: unknown command %q", errUsage, cmd.name)
	}

	if err := fs.Parse(args[1:]); err != nil {
		return command{}, fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() > 0 {
		return command{}, fmt.Errorf("%w: unexpected arguments %v", errUsage, fs.Args())
	}
	return cmd, nil
}

// execute runs one maintenance job and prints its result as JSON
func execute(ctx context.Context, c *app.Container, cmd command, out io.Writer) error {
	var result interface{}

	switch cmd.name {
	case "sweep":
		n, err := c.Maintenance.RunSweep(ctx)
		if err != nil {
			return err
		}
		result = map[string]int64{"expired": n}
	case "reminders":
		report, err := c.Maintenance.RunDuesReminders(ctx, cmd.days)
		if err != nil {
			return err
		}
		result = report
	case "event-reminders":
		report, err := c.Maintenance.RunEventReminders(ctx)
		if err != nil {
			return err
		}
		result = report
	case "report":
		report, delivery, err := c.Maintenance.RunMonthlyReport(ctx)
		if err != nil {
			return err
		}
		result = map[string]interface{}{"report": report, "delivery": delivery}
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd.name)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// run opens the database, executes one command and always closes the handle
func run(ctx context.Context, cfg *config.Config, cmd command, appLogger *slog.Logger, out io.Writer) (err error) {
	db, err := config.ConnectDatabase(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer func() {
		if closeErr := config.CloseDatabase(db); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close database: %w", closeErr))
		}
	}()

	if err := models.AutoMigrate(db); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	container, err := app.New(cfg, db, appLogger)
	if err != nil {
		return fmt.Errorf("build services: %w", err)
	}

	if err := execute(ctx, container, cmd, out); err != nil {
		return fmt.Errorf("%s: %w", cmd.name, err)
	}
	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load configuration: %v", err)
	}

	cmd, err := parseCommand(os.Args[1:], cfg.Scheduler.ReminderDays)
	if err != nil {
		fmt.Fprint(os.Stderr, usage)
		log.Fatalf("❌ %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg, cmd, logger.New(cfg.Log.Level, cfg.Log.Format), os.Stdout)
	stop()
	if err != nil {
		log.Fatalf("❌ Maintenance failed: %v", err)
	}
}
