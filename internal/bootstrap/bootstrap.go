// Package bootstrap wires configuration, logging and the pipeline together
// and runs the service until a shutdown signal arrives.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"solarlab-server-go/internal/domain/fetch"
	"solarlab-server-go/internal/domain/flare"
	"solarlab-server-go/internal/domain/metrics"
	"solarlab-server-go/internal/domain/pipeline"
	"solarlab-server-go/internal/domain/process"
	platformconfig "solarlab-server-go/internal/platform/config"
	platformerrors "solarlab-server-go/internal/platform/errors"
	platformlogging "solarlab-server-go/internal/platform/logging"
	httptransport "solarlab-server-go/internal/transport/http"
	httpstatus "solarlab-server-go/internal/transport/http/status"

	"github.com/gin-gonic/gin"
)

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      platformerrors.Kind
	Execute   stepFn
}

type appState struct {
	config     *platformconfig.Config
	configPath string
	logger     *platformlogging.Logger

	collector    *metrics.Collector
	pool         *fetch.Pool
	fetcher      *fetch.Fetcher
	orchestrator *pipeline.Orchestrator
	monitor      *flare.Monitor
}

// Run starts the whole service lifecycle: configuration, logging, pipeline
// and the status HTTP surface, then blocks until shutdown.
func Run(ctx context.Context) error {
	state := &appState{}

	steps := InitGraph()
	if err := executeInitSteps(ctx, steps, state); err != nil {
		return err
	}

	config := state.config
	logger := state.logger
	if config == nil || logger == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"bootstrap state validation",
			"config/logger not initialised",
		)
	}
	if state.orchestrator == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"bootstrap state validation",
			"orchestrator not initialised",
		)
	}

	logBootstrapGraph(steps, logger)

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(rootCtx)

	if err := startServices(state, group, groupCtx); err != nil {
		cancel()
		return err
	}

	if err := waitForShutdown(signalCtx, cancel, logger, group); err != nil {
		return err
	}

	logger.InfoTag("BOOT", "service shut down cleanly")
	logger.Close()
	return nil
}

func logBootstrapGraph(steps []initStep, logger *platformlogging.Logger) {
	if logger == nil {
		return
	}
	logger.InfoTag("BOOT", "initialisation order")
	for _, step := range steps {
		logger.InfoTag("BOOT", "  %s", step.Title)
	}
	logger.InfoTag("BOOT", "starting services")
}

func executeInitSteps(ctx context.Context, steps []initStep, state *appState) error {
	if state == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"execute init steps",
			"nil bootstrap state",
		)
	}

	completed := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				return platformerrors.New(
					platformerrors.KindBootstrap,
					step.ID,
					fmt.Sprintf("dependency %s not satisfied", dep),
				)
			}
		}
		if step.Execute == nil {
			return platformerrors.New(
				platformerrors.KindBootstrap,
				step.ID,
				"missing execute function",
			)
		}
		if err := step.Execute(ctx, state); err != nil {
			var typed *platformerrors.Error
			if errors.As(err, &typed) {
				return err
			}

			kind := step.Kind
			if kind == "" {
				kind = platformerrors.KindBootstrap
			}
			return platformerrors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
		completed[step.ID] = struct{}{}
	}
	return nil
}

// InitGraph lists the bootstrap steps in dependency order.
func InitGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load",
			Title:   "Load configuration",
			Kind:    platformerrors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init-provider",
			Title:     "Initialise logging provider",
			DependsOn: []string{"config:load"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initLoggingStep,
		},
		{
			ID:        "metrics:init-collector",
			Title:     "Initialise metrics collector",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initMetricsStep,
		},
		{
			ID:        "fetch:init-pool",
			Title:     "Initialise download pool and fetcher",
			DependsOn: []string{"metrics:init-collector"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initFetchStep,
		},
		{
			ID:        "pipeline:init-orchestrator",
			Title:     "Initialise pipeline orchestrator",
			DependsOn: []string{"fetch:init-pool"},
			Kind:      platformerrors.KindPipeline,
			Execute:   initPipelineStep,
		},
		{
			ID:        "flare:init-monitor",
			Title:     "Initialise flare monitor",
			DependsOn: []string{"pipeline:init-orchestrator"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initFlareStep,
		},
	}
}

func loadConfigStep(_ context.Context, state *appState) error {
	result, err := platformconfig.NewLoader().WithDotEnv(true).Load()
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindConfig, "config:load", "failed to load configuration", err)
	}
	state.config = result.Config
	state.configPath = result.Path
	return nil
}

func initLoggingStep(_ context.Context, state *appState) error {
	if state == nil || state.config == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"logging:init-provider",
			"config not loaded",
		)
	}

	logger, err := platformlogging.New(platformlogging.Config{
		Level:    state.config.Log.Level,
		Dir:      state.config.Log.Dir,
		Filename: state.config.Log.File,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "logging:init-provider", "failed to initialize logging provider", err)
	}

	state.logger = logger
	platformlogging.DefaultLogger = logger

	logger.InfoTag("BOOT", "logging ready [%s] %s", state.config.Log.Level, state.configPath)
	return nil
}

func initMetricsStep(_ context.Context, state *appState) error {
	state.collector = metrics.NewCollector()
	return nil
}

func initFetchStep(_ context.Context, state *appState) error {
	if state.config == nil || state.logger == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"fetch:init-pool",
			"missing config/logger",
		)
	}

	state.pool = fetch.NewPool(state.config.Pool, state.logger)
	state.fetcher = fetch.NewFetcher(state.config.Source, state.pool, state.collector, state.logger)

	state.logger.InfoTag("BOOT", "fetcher ready: primary=%s", state.config.Source.PrimaryURL)
	return nil
}

func initPipelineStep(_ context.Context, state *appState) error {
	if state.fetcher == nil || state.collector == nil {
		return platformerrors.New(
			platformerrors.KindPipeline,
			"pipeline:init-orchestrator",
			"fetcher/collector not initialised",
		)
	}

	cfg := state.config.Pipeline
	state.orchestrator = pipeline.NewOrchestrator(
		cfg,
		state.fetcher,
		state.pool,
		process.NewFast(cfg.Workers, state.collector, state.logger),
		process.NewReference(state.collector, state.logger),
		state.collector,
		state.logger,
	)
	return nil
}

func initFlareStep(_ context.Context, state *appState) error {
	if state.config == nil || state.logger == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"flare:init-monitor",
			"missing config/logger",
		)
	}

	state.monitor = flare.NewMonitor(state.config.Flare, state.logger)
	return nil
}

func startServices(state *appState, g *errgroup.Group, groupCtx context.Context) error {
	if err := startPipeline(state, g, groupCtx); err != nil {
		return fmt.Errorf("start pipeline: %w", err)
	}

	if state.config.Web.Enabled {
		if _, err := startHTTPServer(state, g, groupCtx); err != nil {
			return fmt.Errorf("start http server: %w", err)
		}
	}

	return nil
}

func startPipeline(state *appState, g *errgroup.Group, groupCtx context.Context) error {
	logger := state.logger

	// The monitor must subscribe before the first round so it never misses
	// a detection window.
	state.monitor.Watch(state.orchestrator.Stream())

	if err := state.orchestrator.Start(groupCtx); err != nil {
		return err
	}

	g.Go(func() error {
		<-groupCtx.Done()
		logger.InfoTag("PIPELINE", "shutdown requested, stopping rounds")
		state.orchestrator.Stop()
		state.monitor.Stop()
		return nil
	})

	logger.InfoTag("PIPELINE", "pipeline started, interval %s", state.config.Pipeline.UpdateInterval)
	return nil
}

func startHTTPServer(state *appState, g *errgroup.Group, groupCtx context.Context) (*http.Server, error) {
	config := state.config
	logger := state.logger

	httpRouter, err := httptransport.Build(httptransport.Options{
		Config: config,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}
	router := httpRouter.Engine

	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			c.JSON(http.StatusNotFound, httptransport.APIResponse{
				Success: false,
				Data:    gin.H{},
				Message: "api not found",
				Code:    http.StatusNotFound,
			})
			return
		}
		c.Redirect(http.StatusTemporaryRedirect, "/api/status")
	})

	statusService, err := httpstatus.NewService(state.orchestrator, state.monitor, logger)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindTransport, "status:new-service", "failed to create status service", err)
	}
	if err := statusService.Register(groupCtx, httpRouter.API); err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindTransport, "status:register", "failed to register status routes", err)
	}

	httpServer := &http.Server{
		Addr:    ":" + strconv.Itoa(config.Web.Port),
		Handler: router,
	}

	g.Go(func() error {
		logger.InfoTag("HTTP", "status API listening on http://localhost:%d/api", config.Web.Port)
		logger.InfoTag("HTTP", "live feed: ws://localhost:%d/api/stream", config.Web.Port)

		go func() {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			statusService.Close()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.ErrorTag("HTTP", "server shutdown failed: %v", err)
			} else {
				logger.InfoTag("HTTP", "server shut down gracefully")
			}
		}()

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorTag("HTTP", "server failed: %v", err)
			return err
		}
		return nil
	})

	return httpServer, nil
}

func waitForShutdown(
	ctx context.Context,
	cancel context.CancelFunc,
	logger *platformlogging.Logger,
	g *errgroup.Group,
) error {
	<-ctx.Done()
	logger.InfoTag("BOOT", "shutdown signal received (%v), cleaning up", context.Cause(ctx))

	cancel()

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.ErrorTag("BOOT", "error during shutdown: %v", err)
			return err
		}
		logger.InfoTag("BOOT", "all services stopped")
	case <-time.After(15 * time.Second):
		timeoutErr := errors.New("shutdown timed out")
		logger.ErrorTag("BOOT", "shutdown timed out, forcing exit")
		return timeoutErr
	}
	return nil
}
