package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Jadaunkg/job-portal-crawler/internal/model"
	"github.com/Jadaunkg/job-portal-crawler/internal/refresh"
)

const shutdownTimeout = 10 * time.Second

// newRunCmd crawls every enabled portal once, or a single portal by name.
func (c *cli) newRunCmd() *cobra.Command {
	var portal string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Crawl the configured portals once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.resolveApp()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if portal != "" {
				stats, err := a.Coordinator.RunPortal(cmd.Context(), portal)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				printPortalStats(out, &stats)
				if err != nil {
					return fmt.Errorf("run portal %s: %w", portal, err)
				}
				return nil
			}

			summary, err := a.Refresh.Run(cmd.Context(), "cli")
			if err != nil && !errors.Is(err, context.Canceled) {
				if errors.Is(err, refresh.ErrInProgress) {
					return errors.New("a crawl is already running")
				}
				return fmt.Errorf("run crawl: %w", err)
			}
			printRunSummary(out, summary)
			return nil
		},
	}
	cmd.Flags().StringVar(&portal, "portal", "", "crawl only this portal (enabled or not)")
	return cmd
}

// newScheduleCmd runs the interval scheduler until interrupted.
func (c *cli) newScheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Crawl on the configured interval until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.resolveApp()
			if err != nil {
				return err
			}
			sched, err := a.Scheduler()
			if err != nil {
				return fmt.Errorf("build scheduler: %w", err)
			}
			if err := sched.Start(cmd.Context()); err != nil {
				return fmt.Errorf("start scheduler: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scheduler running (%s), press Ctrl+C to stop\n", sched.Spec())
			<-cmd.Context().Done()
			sched.Stop()
			a.Logger.Info("scheduler stopped")
			return nil
		},
	}
}

// newServeCmd starts the HTTP API and, optionally, the scheduler.
func (c *cli) newServeCmd() *cobra.Command {
	var (
		withScheduler bool
		port          int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.resolveApp()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			logger := a.Logger
			if port <= 0 {
				port = a.Config.Server.Port
			}

			if withScheduler {
				sched, err := a.Scheduler()
				if err != nil {
					return fmt.Errorf("build scheduler: %w", err)
				}
				if err := sched.Start(ctx); err != nil {
					return fmt.Errorf("start scheduler: %w", err)
				}
				defer sched.Stop()
			}

			srv := &http.Server{
				Addr:              fmt.Sprintf(":%d", port),
				Handler:           a.APIServer(c.version).Handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				logger.Info("http server started", zap.Int("port", port))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case <-ctx.Done():
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("http server: %w", err)
				}
			}
			logger.Info("shutdown initiated")

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("server shutdown error", zap.Error(err))
			}
			logger.Info("shutdown complete")
			return nil
		},
	}
	cmd.Flags().BoolVar(&withScheduler, "with-scheduler", false, "also run the interval scheduler")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides server.port)")
	return cmd
}

func printRunSummary(w io.Writer, s model.RunSummary) {
	fmt.Fprintf(w, "Crawl %s in %.1fs\n", s.Status, s.DurationSeconds)
	if s.Message != "" {
		fmt.Fprintln(w, s.Message)
	}
	fmt.Fprintf(w, "Portals: %d crawled, %d successful, %d failed\n", s.PortalsCrawled, s.Successful, s.Failed)
	fmt.Fprintf(w, "New items: %d\n", s.NewItems)
	for i := range s.PortalStats {
		printPortalStats(w, &s.PortalStats[i])
	}
}

func printPortalStats(w io.Writer, s *model.CrawlerStats) {
	fmt.Fprintf(w, "  %s: %s, pages=%d items=%d new=%d errors=%d\n",
		s.PortalName, s.Status, s.PagesCrawled, s.TotalItems(), s.NewEntries, len(s.Errors))
}
