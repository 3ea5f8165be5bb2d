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
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/EnsembleBench/pkg/logging"
	"github.com/AleutianAI/EnsembleBench/services/bench/api"
	"github.com/AleutianAI/EnsembleBench/services/bench/registry"
	"github.com/AleutianAI/EnsembleBench/services/bench/results"
	"github.com/AleutianAI/EnsembleBench/services/bench/telemetry"
)

func runServe(cmd *cobra.Command, _ []string) error {
	logger := logging.New(logging.Config{Level: logging.LevelInfo, Service: "ensemblebench-api"})
	defer logger.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tcfg := telemetry.DefaultConfig()
	tcfg.ServiceName = api.ServiceName
	if tcfg.MetricExporter == "" || tcfg.MetricExporter == telemetry.ExporterNone {
		tcfg.MetricExporter = telemetry.ExporterPrometheus
	}
	shutdownTelemetry, err := telemetry.Init(ctx, tcfg)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = shutdownTelemetry(sctx)
	}()

	bc := results.DefaultBadgerConfig(serveDB)
	bc.Logger = logger.Slog()
	store, err := results.OpenBadgerStore(bc)
	if err != nil {
		out.Error(err.Error())
		return err
	}
	defer store.Close()

	router := api.NewRouter(store, registry.Default(), telemetry.MetricsHandler(), logger.Slog())
	srv := &http.Server{Addr: serveAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api listening", "addr", serveAddr, "db", serveDB)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	logger.Info("api shutting down")
	return srv.Shutdown(sctx)
}
