package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ShayCichocki/conductor/internal/inbox"
	"github.com/ShayCichocki/conductor/internal/orchestrator"
)

var (
	serveInbox        string
	serveSaveInterval time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Watch the task inbox and run tasks as they arrive",
	Long: `Run conductor as a long-lived process.

Task files (*.yaml, *.yml) dropped into the inbox directory are submitted
and moved to processed/ or failed/. Pending tasks are swept every
inbox.poll_interval and whenever a task finishes. Memory is saved
periodically and on shutdown. Create a file named "stop" in the inbox,
or send SIGINT, to shut down.

When metrics.enabled is set, Prometheus metrics are served on
metrics.addr at /metrics.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveInbox, "inbox", "", "Inbox directory (default: inbox.dir)")
	serveCmd.Flags().DurationVar(&serveSaveInterval, "save-interval", time.Minute, "How often memory is saved")
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveSaveInterval <= 0 {
		return fmt.Errorf("--save-interval must be positive, got %s", serveSaveInterval)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a, err := openApp(ctx, cfg, logger, reg)
	if err != nil {
		return err
	}
	defer a.Close()

	events := orchestrator.NewChannelSink(cfg.Orchestrator.EventBuffer, logger)
	orch, err := a.newOrchestrator(orchestrator.MultiSink{orchestrator.NewLogSink(logger), events})
	if err != nil {
		return err
	}

	// kick asks the sweep loop for an early pass.
	kick := make(chan struct{}, 1)
	poke := func() {
		select {
		case kick <- struct{}{}:
		default:
		}
	}

	dir := serveInbox
	if dir == "" {
		dir = cfg.Inbox.Dir
	}
	watcher, err := inbox.NewWatcher(dir, func(ctx context.Context, file string, reqs []orchestrator.TaskRequest) error {
		if err := submitAll(orch, reqs); err != nil {
			return err
		}
		poke()
		return nil
	}, inbox.WithLogger(logger), inbox.WithPollInterval(cfg.Inbox.PollInterval))
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		// Any watcher exit, including a stop file, ends the server.
		defer cancel()
		err := watcher.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case e := <-events.Events():
				if e.Kind == orchestrator.EventTaskCompleted {
					poke()
				}
			}
		}
	})

	g.Go(func() error {
		sweep := time.NewTicker(cfg.Inbox.PollInterval)
		defer sweep.Stop()
		save := time.NewTicker(serveSaveInterval)
		defer save.Stop()

		for {
			select {
			case <-gctx.Done():
				return nil
			case <-sweep.C:
			case <-kick:
			case <-save.C:
				if err := a.save(gctx); err != nil {
					logger.Error("periodic save failed", zap.Error(err))
				}
				continue
			}
			if _, err := orch.ProcessPending(gctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("sweep failed", zap.Error(err))
			}
		}
	})

	if cfg.Metrics.Enabled {
		g.Go(func() error {
			return serveMetrics(gctx, cfg.Metrics.Addr, reg)
		})
	}

	logger.Info("conductor serving",
		zap.String("inbox", watcher.Dir()),
		zap.Int("agents", len(orch.Agents())),
		zap.Bool("metrics", cfg.Metrics.Enabled))

	runErr := g.Wait()
	events.Close()

	saveCtx, saveCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer saveCancel()
	if err := a.save(saveCtx); err != nil {
		return errors.Join(runErr, fmt.Errorf("save memory: %w", err))
	}

	stats := orch.Stats()
	logger.Info("conductor stopped",
		zap.Int64("files_processed", watcher.Processed()),
		zap.Int64("files_failed", watcher.Failed()),
		zap.Any("tasks", stats.Tasks))
	return runErr
}

// submitAll submits the requests of one inbox file. The batch is atomic,
// so a rejected file can be fixed and dropped again without duplicates.
func submitAll(orch *orchestrator.Orchestrator, reqs []orchestrator.TaskRequest) error {
	_, err := orch.SubmitAll(reqs)
	return err
}

// serveMetrics serves reg on addr until ctx is done.
func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics server started", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
