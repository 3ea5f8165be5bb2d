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
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/EnsembleBench/cmd/ensemblebench/config"
	"github.com/AleutianAI/EnsembleBench/services/bench/registry"
)

func runConfigInit(cmd *cobra.Command, _ []string) error {
	if err := config.Write(configInitPath, config.DefaultConfig(), configInitForce); err != nil {
		out.Error(err.Error())
		return err
	}
	out.Success(fmt.Sprintf("wrote %s", configInitPath))
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	path := args[0]
	reg := registry.Default()
	err := validateOnce(path, reg)
	if !configValidateWatch {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	out.Info(fmt.Sprintf("watching %s", path))
	return watchFile(ctx, path, func() { _ = validateOnce(path, reg) })
}

func validateOnce(path string, reg *registry.Registry) error {
	cfg, err := config.Load(path, reg)
	if err != nil {
		out.Error(err.Error())
		return err
	}
	cells := len(cfg.Datasets) * len(cfg.NoiseLevels) * len(cfg.Generations) * len(cfg.Selections)
	out.Success(fmt.Sprintf("%s is valid: %d cells", path, cells))
	return nil
}
