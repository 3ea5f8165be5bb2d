// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// ModeEnv overrides output mode detection.
const ModeEnv = "ENSEMBLEBENCH_OUTPUT"

// Mode selects how much styling the CLI emits.
type Mode string

const (
	// ModeRich uses colors, icons and bordered tables.
	ModeRich Mode = "rich"

	// ModeMinimal keeps icons and tables but drops colors.
	ModeMinimal Mode = "minimal"

	// ModeMachine writes tab-separated lines for scripts and pipes.
	ModeMachine Mode = "machine"
)

// ParseMode reads a mode name. Unknown names fall back to ModeRich.
func ParseMode(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "minimal", "min", "plain":
		return ModeMinimal
	case "machine", "quiet", "tsv":
		return ModeMachine
	default:
		return ModeRich
	}
}

// DetectMode picks a mode for f: the ModeEnv override when set, machine
// output when f is not a terminal, rich output otherwise.
func DetectMode(f *os.File) Mode {
	if env := os.Getenv(ModeEnv); env != "" {
		return ParseMode(env)
	}
	if f == nil || !IsTerminal(f) {
		return ModeMachine
	}
	return ModeRich
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
