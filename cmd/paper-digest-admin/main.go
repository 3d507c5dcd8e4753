package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/target/paper-digest/config"
	"github.com/target/paper-digest/internal/bootstrap"
	"github.com/urfave/cli/v2"
)

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
	Out    io.Writer
}

const (
	defaultMigrationTimeout = 5 * time.Minute
	defaultCommandTimeout   = 30 * time.Second
)

func main() {
	logger := bootstrap.InitLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := newApp(func() (*commandContext, error) {
		cfg, err := bootstrap.LoadConfig()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		return &commandContext{Ctx: ctx, Logger: logger, Config: cfg, Out: os.Stdout}, nil
	})

	if err := app.RunContext(ctx, os.Args); err != nil {
		logger.ErrorContext(ctx, "command failed", "error", err)
		stop()
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

// newApp builds the command tree. load is called lazily so --help works without a config.
func newApp(load func() (*commandContext, error)) *cli.App {
	with := func(fn func(*commandContext, *cli.Context) error) cli.ActionFunc {
		return func(c *cli.Context) error {
			cmdCtx, err := load()
			if err != nil {
				return err
			}
			cmdCtx.Ctx = c.Context
			return fn(cmdCtx, c)
		}
	}

	return &cli.App{
		Name:  "paper-digest-admin",
		Usage: "operate the paper digest job store",
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "Run database migrations",
				Flags: []cli.Flag{
					&cli.DurationFlag{Name: "timeout", Value: defaultMigrationTimeout, Usage: "Timeout for the migration run"},
					&cli.BoolFlag{Name: "status", Usage: "List migrations and whether they are applied instead of running them"},
				},
				Action: with(runMigrate),
			},
			{
				Name:  "jobs",
				Usage: "Inspect digest jobs",
				Subcommands: []*cli.Command{
					{
						Name:  "list",
						Usage: "List jobs, newest first",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "status", Usage: "Filter by status (pending|processing|completed|failed)"},
							&cli.StringFlag{Name: "owner", Usage: "Filter by owner"},
							&cli.IntFlag{Name: "limit", Value: 50, Usage: "Maximum rows"},
							&cli.IntFlag{Name: "offset", Usage: "Rows to skip"},
							&cli.StringFlag{Name: "query", Usage: "JMESPath expression applied to the JSON job list"},
						},
						Action: with(runJobsList),
					},
					{
						Name:      "show",
						Usage:     "Print one job as JSON",
						ArgsUsage: "<job-id>",
						Action:    with(runJobsShow),
					},
				},
			},
			{
				Name:   "stats",
				Usage:  "Print job counts by status",
				Action: with(runStats),
			},
			{
				Name:  "reap",
				Usage: "Fail orphaned processing jobs once",
				Flags: []cli.Flag{
					&cli.DurationFlag{Name: "max-age", Usage: "Override REAPER_PROCESSING_MAX_AGE"},
					&cli.IntFlag{Name: "batch-size", Usage: "Override REAPER_BATCH_SIZE"},
				},
				Action: with(runReap),
			},
			{
				Name:  "export",
				Usage: "Write completed digests to an XLSX workbook",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "out", Value: "history.xlsx", Usage: "Output path"},
					&cli.StringFlag{Name: "owner", Usage: "Only export this owner's history"},
					&cli.IntFlag{Name: "limit", Value: 1000, Usage: "Maximum digests"},
				},
				Action: with(runExport),
			},
			{
				Name:      "cache-purge",
				Usage:     "Drop the cached digest for a URL",
				ArgsUsage: "<url>",
				Action:    with(runCachePurge),
			},
		},
	}
}
