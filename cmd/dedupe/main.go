// Command dedupe finds orders that were submitted more than once and deletes the extra copies.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/farmconnect/marketplace/internal/di"
	"github.com/farmconnect/marketplace/internal/platform/config"
	"github.com/farmconnect/marketplace/internal/platform/observability"
	predis "github.com/farmconnect/marketplace/internal/platform/redis"
	"github.com/farmconnect/marketplace/internal/platform/secrets"
	"github.com/farmconnect/marketplace/internal/services"
)

const (
	dedupeJob = "orders-dedupe"

	exitPartialFailure = 2
	exitBusy           = 3
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout).RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "dedupe: %v\n", err)
		os.Exit(1)
	}
}

// newApp builds the CLI. loadOpts are passed to config.Load ahead of the secret resolver.
func newApp(out io.Writer, loadOpts ...config.Option) *cli.App {
	return &cli.App{
		Name:  "dedupe",
		Usage: "find and delete duplicate orders",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "keep-first",
				Usage: "keep the first scanned order of each group instead of the most recent",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "report duplicate groups without deleting anything",
			},
			&cli.StringFlag{
				Name:  "store",
				Usage: "override the store driver (firestore, mongo, memory)",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "dotenv file with local overrides",
				Value: ".env",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "abort the run after this long",
				Value: 10 * time.Minute,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "print the report as JSON",
			},
		},
		Writer: out,
		Action: func(c *cli.Context) error {
			return run(c, out, loadOpts)
		},
	}
}

func run(c *cli.Context, out io.Writer, loadOpts []config.Option) error {
	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	baseLogger, err := observability.NewLogger("marketplace-dedupe")
	if err != nil {
		return fmt.Errorf("initialise logger: %w", err)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("dedupe")

	envOpts := append([]config.Option{config.WithEnvFile(c.String("env-file"))}, loadOpts...)
	envValues, err := config.EnvironmentValues(envOpts...)
	if err != nil {
		return fmt.Errorf("read environment: %w", err)
	}
	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		return fmt.Errorf("initialise secret fetcher: %w", err)
	}
	defer fetcher.Close()

	cfg, err := config.Load(ctx, append(envOpts, config.WithSecretResolver(fetcher))...)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if store := strings.ToLower(strings.TrimSpace(c.String("store"))); store != "" {
		cfg.Store.Driver = store
	}
	// The reconciler never places orders, so event and push clients stay closed.
	cfg.Events.Driver = config.EventsDriverNone
	cfg.Push.Enabled = false

	container, err := di.NewContainer(ctx, cfg, di.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("build dependencies: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("container close error", zap.Error(err))
		}
	}()

	opts := services.CleanupOptions{
		KeepMostRecent: !c.Bool("keep-first"),
		DryRun:         c.Bool("dry-run"),
	}
	logger.Info("starting duplicate order cleanup",
		zap.String("store", cfg.Store.Driver),
		zap.Bool("keepMostRecent", opts.KeepMostRecent),
		zap.Bool("dryRun", opts.DryRun),
	)

	var report services.CleanupReport
	runErr := container.RunExclusive(ctx, dedupeJob, func(ctx context.Context) error {
		var err error
		report, err = container.Services.Reconciler.Cleanup(ctx, opts)
		return err
	})
	if errors.Is(runErr, predis.ErrLockNotAcquired) {
		return cli.Exit("another dedupe run is in progress", exitBusy)
	}
	if runErr != nil && !errors.Is(runErr, services.ErrPartialFailure) {
		return runErr
	}

	if c.Bool("json") {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		printSummary(out, report)
	}

	if runErr != nil {
		logger.Warn("duplicate cleanup finished with failures", zap.Error(runErr))
		return cli.Exit(runErr.Error(), exitPartialFailure)
	}
	return nil
}

// printSummary writes the human readable report with locale grouped counts.
func printSummary(w io.Writer, report services.CleanupReport) {
	p := message.NewPrinter(language.English)
	mode := "cleanup"
	if report.DryRun {
		mode = "dry run"
	}
	p.Fprintf(w, "Duplicate order %s\n", mode)
	p.Fprintf(w, "  groups found:     %v\n", report.GroupsFound)
	p.Fprintf(w, "  duplicates found: %v\n", report.DuplicatesFound)
	if !report.DryRun {
		p.Fprintf(w, "  deleted:          %v\n", report.Deleted)
		p.Fprintf(w, "  failed:           %v\n", report.Failed)
	}
	p.Fprintf(w, "  remaining groups: %v\n", report.RemainingGroups)
	if !report.StartedAt.IsZero() && !report.FinishedAt.IsZero() {
		p.Fprintf(w, "  took:             %s\n", report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
	}
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	opts := []secrets.Option{secrets.WithLogger(logger.Named("secrets"))}
	if project := strings.TrimSpace(env["API_SECRET_DEFAULT_PROJECT_ID"]); project != "" {
		opts = append(opts, secrets.WithProject(project))
	} else if project := strings.TrimSpace(env["API_FIREBASE_PROJECT_ID"]); project != "" {
		opts = append(opts, secrets.WithProject(project))
	}
	if path := strings.TrimSpace(env["API_SECRET_FALLBACK_FILE"]); path != "" {
		opts = append(opts, secrets.WithFallbackFile(path))
	}
	return secrets.NewFetcher(ctx, opts...)
}
