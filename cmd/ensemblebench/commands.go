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
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/EnsembleBench/pkg/ux"
)

// --- Global Command Variables ---
var (
	outputMode string
	out        *ux.Printer

	// run
	runConfigPath  string
	runDatasets    []string
	runGenerations []string
	runSelections  []string
	runWorkers     int
	runMetricsAddr string

	// synth
	synthOut      string
	synthDatasets int
	synthFolds    int
	synthClasses  int
	synthFeatures int
	synthSeed     uint64

	// strategies
	strategiesFamily string

	// config init
	configInitPath  string
	configInitForce bool

	// config validate
	configValidateWatch bool

	// serve
	serveDB   string
	serveAddr string

	rootCmd = &cobra.Command{
		Use:   "ensemblebench",
		Short: "Benchmark ensemble generation against dynamic classifier selection",
		Long: `ensemblebench evaluates every (dataset, noise level, generation method,
selection method) cell of an experiment grid over pre-defined folds and
writes per-fold metric tables for each cell.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			mode := ux.DetectMode(os.Stdout)
			if outputMode != "" {
				mode = ux.ParseMode(outputMode)
			}
			out = ux.NewPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)
		},
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the experiment grid described by a config file",
		Args:  cobra.NoArgs,
		RunE:  runGrid, // Defined in cmd_run.go
	}

	synthCmd = &cobra.Command{
		Use:   "synth",
		Short: "Write synthetic datasets in the fold store layout",
		Args:  cobra.NoArgs,
		RunE:  runSynth, // Defined in cmd_synth.go
	}

	strategiesCmd = &cobra.Command{
		Use:   "strategies",
		Short: "List registered generation, selection and imbalance strategies",
		Args:  cobra.NoArgs,
		RunE:  runStrategies, // Defined in cmd_strategies.go
	}

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Manage grid configuration files",
	}
	configInitCmd = &cobra.Command{
		Use:   "init",
		Short: "Write the reference grid configuration",
		Args:  cobra.NoArgs,
		RunE:  runConfigInit, // Defined in cmd_config.go
	}
	configValidateCmd = &cobra.Command{
		Use:   "validate [path]",
		Short: "Check a grid configuration file",
		Args:  cobra.ExactArgs(1),
		RunE:  runConfigValidate, // Defined in cmd_config.go
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve stored results over HTTP",
		Args:  cobra.NoArgs,
		RunE:  runServe, // Defined in cmd_serve.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&outputMode, "output", "",
		"Output style: rich, minimal or machine (default: detect from terminal)")

	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "grid.yaml", "Grid configuration file")
	runCmd.Flags().StringSliceVar(&runDatasets, "dataset", nil, "Restrict the grid to these datasets")
	runCmd.Flags().StringSliceVar(&runGenerations, "generation", nil, "Restrict the grid to these generation methods")
	runCmd.Flags().StringSliceVar(&runSelections, "selection", nil, "Restrict the grid to these selection methods")
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "Concurrent folds (default: from config)")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during the run")

	synthCmd.Flags().StringVar(&synthOut, "out", "data", "Output directory")
	synthCmd.Flags().IntVar(&synthDatasets, "datasets", 1, "Number of datasets")
	synthCmd.Flags().IntVar(&synthFolds, "folds", 6, "Folds per dataset")
	synthCmd.Flags().IntVar(&synthClasses, "classes", 5, "Activity classes")
	synthCmd.Flags().IntVar(&synthFeatures, "features", 8, "Feature dimensionality")
	synthCmd.Flags().Uint64Var(&synthSeed, "seed", 1, "Generator seed")

	strategiesCmd.Flags().StringVar(&strategiesFamily, "family", "", "Only list one family: generation, selection or imbalance")

	configInitCmd.Flags().StringVar(&configInitPath, "path", "grid.yaml", "Where to write the configuration")
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing file")
	configValidateCmd.Flags().BoolVar(&configValidateWatch, "watch", false, "Re-validate whenever the file changes")

	serveCmd.Flags().StringVar(&serveDB, "db", "results/db", "Badger result database directory")
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")

	configCmd.AddCommand(configInitCmd, configValidateCmd)
	rootCmd.AddCommand(runCmd, synthCmd, strategiesCmd, configCmd, serveCmd)
}
