// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/EnsembleBench/cmd/ensemblebench/config"
	"github.com/AleutianAI/EnsembleBench/pkg/logging"
	"github.com/AleutianAI/EnsembleBench/services/bench/dataset"
	"github.com/AleutianAI/EnsembleBench/services/bench/engine"
	"github.com/AleutianAI/EnsembleBench/services/bench/registry"
	"github.com/AleutianAI/EnsembleBench/services/bench/results"
	"github.com/AleutianAI/EnsembleBench/services/bench/telemetry"
)

const shutdownTimeout = 5 * time.Second

func runGrid(cmd *cobra.Command, _ []string) error {
	reg := registry.Default()
	cfg, err := config.Load(runConfigPath, reg)
	if err != nil {
		out.Error(err.Error())
		return err
	}
	cfg.Apply(config.Overrides{
		Datasets:    runDatasets,
		Generations: runGenerations,
		Selections:  runSelections,
		Workers:     runWorkers,
	})
	if err := cfg.Validate(reg); err != nil {
		out.Error(err.Error())
		return err
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		out.Error(err.Error())
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	if runMetricsAddr != "" {
		stopMetrics := serveMetrics(runMetricsAddr, logger.Slog())
		defer stopMetrics()
	}

	runID := engine.NewRunID()
	sink, closeSinks, err := buildSinks(ctx, cfg, runID, logger.Slog())
	if err != nil {
		out.Error(err.Error())
		return err
	}
	defer closeSinks()

	dc := cfg.DriverConfig()
	dc.RunID = runID
	driver, err := engine.NewDriver(dc, dataset.NewDirStore(cfg.DataDir), reg, []engine.Sink{sink}, logger.Slog())
	if err != nil {
		return err
	}

	out.Title(fmt.Sprintf("Grid %s", runID))
	summary, err := driver.Run(ctx)
	printRunSummary(summary)
	if err != nil {
		out.Error(err.Error())
		return err
	}
	return nil
}

func newLogger(cfg config.LoggingConfig) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	return logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Dir,
		Service: "ensemblebench",
		JSON:    cfg.JSON,
	}), nil
}

// buildSinks opens every enabled sink and fans them out through one
// MultiSink. The returned closer releases them all.
func buildSinks(ctx context.Context, cfg *config.GridConfig, runID string, logger *slog.Logger) (results.MultiSink, func(), error) {
	var sinks results.MultiSink
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.Sinks.CSV.Enabled {
		sinks = append(sinks, results.NewCSVSink(cfg.OutputDir, logger))
	}

	if b := cfg.Sinks.Badger; b.Enabled {
		bc := results.DefaultBadgerConfig(b.Path)
		bc.Logger = logger
		store, err := results.OpenBadgerStore(bc)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("open result database: %w", err)
		}
		sinks = append(sinks, store)
		closers = append(closers, func() {
			if err := store.Close(); err != nil {
				logger.Warn("result database close failed", "error", err)
			}
		})
	}

	if in := cfg.Sinks.Influx; in.Enabled {
		sink, err := results.NewInfluxSink(results.InfluxConfig{
			URL:    in.URL,
			Token:  os.Getenv(in.TokenEnv),
			Org:    in.Org,
			Bucket: in.Bucket,
		}, runID)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, sink)
		closers = append(closers, sink.Close)
	}

	if g := cfg.Sinks.GCS; g.Enabled {
		sink, err := results.NewGCSSink(ctx, results.GCSConfig{
			Bucket:          g.Bucket,
			Prefix:          g.Prefix,
			CredentialsFile: g.CredentialsFile,
		})
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, sink)
		closers = append(closers, func() {
			if err := sink.Close(); err != nil {
				logger.Warn("gcs client close failed", "error", err)
			}
		})
	}

	if len(sinks) == 0 {
		logger.Warn("no result sinks enabled; results are discarded")
	}
	return sinks, closeAll, nil
}

func serveMetrics(addr string, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", telemetry.MetricsHandler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func printRunSummary(s *engine.RunSummary) {
	if s == nil {
		return
	}
	rows := make([][]string, 0, len(s.Cells))
	for _, c := range s.Cells {
		reason := c.Reason
		if reason == "" && c.Failures > 0 {
			reason = fmt.Sprintf("%d fold(s) failed", c.Failures)
		}
		rows = append(rows, []string{
			c.Cell.Key(),
			out.Status(c.Status),
			strconv.Itoa(c.Folds),
			reason,
		})
	}
	out.Table([]string{"Cell", "Status", "Folds", "Notes"}, rows)

	completed := s.Count(engine.StatusCompleted)
	degraded := s.Count(engine.StatusDegraded)
	skipped := s.Count(engine.StatusSkipped)
	out.Box("Run "+s.RunID, fmt.Sprintf("completed: %d\ndegraded: %d\nskipped: %d\npersist failures: %d",
		completed, degraded, skipped, s.PersistFailures))

	switch {
	case skipped > 0 || s.PersistFailures > 0:
		out.Warning(fmt.Sprintf("%d cell(s) skipped, %d save(s) failed", skipped, s.PersistFailures))
	case degraded > 0:
		out.Warning(fmt.Sprintf("%d cell(s) degraded", degraded))
	default:
		out.Success(fmt.Sprintf("%d cell(s) completed", completed))
	}
}
