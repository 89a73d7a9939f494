// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"
)

// setupLogging routes the standard logger. The TUI owns the terminal, so
// its log output goes to --log-file or nowhere. The returned func restores
// stderr and closes the file.
func setupLogging(tui bool) (func(), error) {
	restore := func() {
		log.SetOutput(os.Stderr)
		log.SetPrefix("")
	}

	if logFile == "" {
		if tui {
			log.SetOutput(io.Discard)
		}
		return restore, nil
	}

	var f *os.File
	var err error
	if tui {
		f, err = tea.LogToFile(logFile, "udscope ")
	} else {
		f, err = os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err == nil {
			log.SetOutput(f)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return func() {
		restore()
		f.Close()
	}, nil
}

// stdoutIsTerminal reports whether a TUI can be drawn
func stdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}
