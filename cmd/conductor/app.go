package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ShayCichocki/conductor/internal/config"
	"github.com/ShayCichocki/conductor/internal/memory"
	"github.com/ShayCichocki/conductor/internal/metrics"
	"github.com/ShayCichocki/conductor/internal/orchestrator"
	"github.com/ShayCichocki/conductor/internal/persistence"
)

// app bundles the long-lived pieces a command works with.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	memory  *memory.Store
	sink    persistence.Sink
	metrics *metrics.Collector
}

// openApp opens the configured snapshot sink and loads project memory
// from it. A missing snapshot starts an empty memory. reg may be nil, in
// which case no metrics are collected.
func openApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, reg prometheus.Registerer) (*app, error) {
	a := &app{cfg: cfg, logger: logger}
	if reg != nil && cfg.Metrics.Enabled {
		a.metrics = metrics.NewCollector(cfg.Metrics.Namespace, reg, logger)
	}

	a.memory = memory.New(cfg.Project.Name,
		memory.WithLogger(logger),
		memory.WithMetrics(a.metrics),
		memory.WithTechStack(cfg.Project.TechStack...))

	sink, err := persistence.NewSink(cfg.Persistence)
	if err != nil {
		return nil, fmt.Errorf("open %s persistence: %w", cfg.Persistence.Backend, err)
	}
	a.sink = sink
	if sink == nil {
		return a, nil
	}

	if err := a.memory.LoadFrom(ctx, sink, cfg.Persistence.Key); err != nil {
		if !errors.Is(err, persistence.ErrNotFound) {
			sink.Close()
			return nil, err
		}
		logger.Debug("no saved memory, starting empty", zap.String("key", cfg.Persistence.Key))
	}
	return a, nil
}

// newOrchestrator builds an Orchestrator seeded with the configured agents
// and the simulated adapters, recording episodes into the app's memory.
func (a *app) newOrchestrator(sink orchestrator.NotificationSink) (*orchestrator.Orchestrator, error) {
	opts := []orchestrator.Option{
		orchestrator.WithLogger(a.logger),
		orchestrator.WithMetrics(a.metrics),
		orchestrator.WithMemory(a.memory),
		orchestrator.WithMaxConcurrency(a.cfg.Orchestrator.MaxConcurrency),
		orchestrator.WithNotificationSink(sink),
	}
	for _, ac := range a.cfg.Agents {
		opts = append(opts, orchestrator.WithAgents(ac.Agent()))
	}

	return orchestrator.New(orchestrator.RequiredConfig{
		Tools: simulatedTools(a.cfg.Tools, a.cfg.Agents),
		Work:  simulatedWork(a.cfg.Tools),
	}, opts...)
}

// save writes the memory back to the sink, if there is one.
func (a *app) save(ctx context.Context) error {
	if a.sink == nil {
		return nil
	}
	return a.memory.SaveTo(ctx, a.sink, a.cfg.Persistence.Key)
}

func (a *app) Close() error {
	if a.sink == nil {
		return nil
	}
	return a.sink.Close()
}
