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
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Table renders rows under headers. Machine mode emits tab-separated
// lines with a header line; other modes draw a bordered table.
func (p *Printer) Table(headers []string, rows [][]string) {
	fmt.Fprint(p.out, p.RenderTable(headers, rows))
}

// RenderTable returns what Table would print.
func (p *Printer) RenderTable(headers []string, rows [][]string) string {
	if p.mode == ModeMachine {
		var b strings.Builder
		b.WriteString(strings.Join(headers, "\t"))
		b.WriteByte('\n')
		for _, row := range rows {
			b.WriteString(strings.Join(row, "\t"))
			b.WriteByte('\n')
		}
		return b.String()
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers(headers...).
		Rows(rows...)

	if p.mode == ModeRich {
		t = t.BorderStyle(lipgloss.NewStyle().Foreground(ColorTealDeep)).
			StyleFunc(func(row, _ int) lipgloss.Style {
				if row == table.HeaderRow {
					return Styles.Header
				}
				return Styles.Cell
			})
	} else {
		t = t.StyleFunc(func(int, int) lipgloss.Style {
			return lipgloss.NewStyle().Padding(0, 1)
		})
	}
	return t.String() + "\n"
}

// StatusIcon maps a cell status to its icon.
func StatusIcon(status string) Icon {
	switch status {
	case "completed":
		return IconSuccess
	case "degraded":
		return IconWarning
	case "skipped":
		return IconError
	default:
		return IconPending
	}
}

// Status renders a status word with its icon, or the bare word in machine
// mode.
func (p *Printer) Status(status string) string {
	if p.mode == ModeMachine {
		return status
	}
	return p.icon(StatusIcon(status)) + " " + status
}
