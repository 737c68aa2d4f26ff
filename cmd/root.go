// Package cmd defines the CLI commands of the job-portal-crawler executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Jadaunkg/job-portal-crawler/internal/app"
	"github.com/Jadaunkg/job-portal-crawler/internal/config"
	"github.com/Jadaunkg/job-portal-crawler/internal/logging"
	"github.com/Jadaunkg/job-portal-crawler/internal/metrics"
	"github.com/Jadaunkg/job-portal-crawler/internal/model"
)

// newApp is the application factory. It's a variable so tests can swap the
// logger or fail initialization.
var newApp = func(ctx context.Context, cfgFile string) (*app.App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()
	return app.New(ctx, cfg, logger)
}

// cli carries the state shared by every subcommand of one invocation.
type cli struct {
	cfgFile string
	version string
	app     *app.App
}

func (c *cli) resolveApp() (*app.App, error) {
	if c.app == nil {
		return nil, errors.New("application services not initialized")
	}
	return c.app, nil
}

func (c *cli) close() {
	if c.app != nil {
		c.app.Close()
		c.app = nil
	}
}

// newRootCmd creates the root command and registers every subcommand.
func (c *cli) newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job-portal-crawler",
		Short: "Crawls recruitment portals and keeps a local listing database.",
		Long: `job-portal-crawler fetches job, result, admit card and notification
listings from the configured portals, deduplicates them into JSON files and
serves them over an HTTP API.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), c.cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			c.app = a
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			c.close()
		},
	}
	cmd.PersistentFlags().StringVar(&c.cfgFile, "config", "",
		"config file (default ./config.yaml, ./configs/config.yaml or $HOME/.job-portal-crawler/config.yaml)")

	cmd.AddCommand(
		c.newRunCmd(),
		c.newScheduleCmd(),
		c.newServeCmd(),
		c.newStatsCmd(),
		c.newRecentCmd(),
		c.newPortalsCmd(),
		c.newListCmd(),
		c.newCrawlDetailsCmd(),
		c.newViewDetailsCmd(),
		c.newBackupCmd(),
		c.newClearCmd(),
	)
	return cmd
}

func execute(ctx context.Context, version string, args []string, out, errOut io.Writer) error {
	c := &cli{version: version}
	defer c.close()
	root := c.newRootCmd()
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(errOut)
	return root.ExecuteContext(ctx)
}

// Execute is the main entry point. It exits non-zero when a command fails.
func Execute(version string) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := execute(ctx, version, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		stop()
		os.Exit(1)
	}
}

// entryCategory parses a category argument that must hold entries.
func entryCategory(raw string) (model.Category, error) {
	c, ok := model.ParseCategory(raw)
	if !ok || c == model.CategoryCrawlHistory {
		return "", fmt.Errorf("invalid category %q (use jobs, results, admit_cards or notifications)", raw)
	}
	return c, nil
}

// anyCategory parses a category argument, crawl_history included.
func anyCategory(raw string) (model.Category, error) {
	c, ok := model.ParseCategory(raw)
	if !ok {
		return "", fmt.Errorf("invalid category %q", raw)
	}
	return c, nil
}
