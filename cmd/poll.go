// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/udscope/pkg/datalist"
	"github.com/Thermoquad/udscope/pkg/poller"
	"github.com/Thermoquad/udscope/pkg/recorder"
	"github.com/Thermoquad/udscope/pkg/uds"
)

var (
	pollList     string
	pollInterval int
	pollMode     string
	pollTUI      bool
	pollStart    bool
	pollRecord   string
	pollHistory  int
)

var pollCmd = &cobra.Command{
	Use:   "poll [list]",
	Short: "Poll a list of data identifiers",
	Long: `Poll every entry of a data list with ReadDataByIdentifier and display the
decoded values.

The list holds one "label,id,type" entry per line. The id is decimal or
0x-prefixed hex; the type is one of float64, float32, uint32, int32, uint16,
int16, uint8 or int8. Lines starting with '#' are comments. Entries that cannot
be parsed are skipped with a warning.

Interactive keys:
  space  start/stop polling
  h      toggle hexadecimal display
  b      toggle binary display
  d      decimal display
  r      reset statistics
  q      quit

Without a terminal, or with --tui=false, values are printed once per cycle.

Examples:
  udscope poll data_list.txt --iface can0 --rx 18DAF101 --tx 18DA01F1
  udscope poll --transport elm327 --iface /dev/ttyUSB0 --record session.cbor`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPoll,
}

func init() {
	rootCmd.AddCommand(pollCmd)
	pollCmd.Flags().StringVar(&pollList, "list", "data_list.txt", "Data list file (overridden by the positional argument)")
	pollCmd.Flags().IntVar(&pollInterval, "interval", 100, "Pause between polling cycles in milliseconds")
	pollCmd.Flags().StringVar(&pollMode, "mode", "dec", "Initial display mode: dec, hex or bin")
	pollCmd.Flags().BoolVar(&pollTUI, "tui", true, "Interactive terminal UI")
	pollCmd.Flags().BoolVar(&pollStart, "start", false, "Start polling immediately (always on without the TUI)")
	pollCmd.Flags().StringVar(&pollRecord, "record", "", "Record every transaction to a CBOR file")
	pollCmd.Flags().IntVar(&pollHistory, "history", datalist.DefaultHistorySize, "Samples kept per row for the sparkline")
}

func runPoll(cmd *cobra.Command, args []string) error {
	listPath := pollList
	if len(args) > 0 {
		listPath = args[0]
	}

	mode, err := uds.ParseDisplayMode(pollMode)
	if err != nil {
		return err
	}

	rows, skipped, err := datalist.LoadFile(listPath)
	for _, s := range skipped {
		fmt.Fprintf(os.Stderr, "Warning: %s: skipped %s\n", listPath, s)
	}
	if err != nil {
		return err
	}

	useTUI := pollTUI && stdoutIsTerminal()
	closeLog, err := setupLogging(useTUI)
	if err != nil {
		return err
	}
	defer closeLog()

	conn, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	log.Printf("Polling %d identifiers from %s via %s", len(rows), listPath, conn.Info)

	var rec *recorder.Writer
	if pollRecord != "" {
		rec, err = recorder.Create(pollRecord, conn.Info)
		if err != nil {
			return err
		}
		defer func() {
			if err := rec.Close(); err != nil {
				log.Printf("Recording error: %v", err)
			}
		}()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	data := datalist.NewTable(rows, pollHistory)
	cfg := poller.Config{
		Timeout:  requestTimeout(),
		Interval: time.Duration(pollInterval) * time.Millisecond,
		Strict:   strictDID,
	}

	if useTUI {
		return runPollTUI(ctx, data, conn, cfg, rec, listPath, mode)
	}
	return runPollText(ctx, os.Stdout, data, conn, cfg, rec, mode)
}

// recordResult returns an OnResult hook writing to rec, or nil
func recordResult(rec *recorder.Writer) func(poller.Result) {
	if rec == nil {
		return nil
	}
	return func(r poller.Result) {
		s := recorder.NewSample(r.At, r.Row.Label, r.Row.ID, r.Row.Type, r.Outcome, r.RTT)
		if err := rec.Write(s); err != nil {
			log.Printf("Recording error: %v", err)
		}
	}
}

// startPoller runs p until ctx ends and returns a channel closed on exit
func startPoller(ctx context.Context, p *poller.Poller) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := p.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("Poller stopped: %v", err)
		}
	}()
	return done
}

func runPollTUI(ctx context.Context, data *datalist.Table, conn *Connection, cfg poller.Config,
	rec *recorder.Writer, listPath string, mode uds.DisplayMode) error {

	var prog *tea.Program

	p := poller.New(data, conn.Transport, cfg,
		poller.WithEnabled(pollStart),
		poller.WithOnResult(recordResult(rec)),
		poller.WithOnCycle(func(n uint64) {
			prog.Send(cycleMsg(n))
		}),
		poller.WithOnError(func(row datalist.Row, err error) {
			log.Printf("%s (%04X): %v", row.Label, row.ID, err)
			prog.Send(pollErrorMsg{label: row.Label, err: err})
		}),
	)

	m := initialPollModel(data, p, conn.Info, listPath, mode)
	prog = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	pollCtx, stopPoll := context.WithCancel(ctx)
	done := startPoller(pollCtx, p)

	_, err := prog.Run()

	// Stop the poller before the deferred transport close
	stopPoll()
	<-done

	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("TUI error: %v", err)
	}

	stats := p.Stats()
	fmt.Print(stats.String())
	return nil
}

func runPollText(ctx context.Context, w io.Writer, data *datalist.Table, conn *Connection, cfg poller.Config,
	rec *recorder.Writer, mode uds.DisplayMode) error {

	fmt.Fprintf(w, "udscope - ReadDataByIdentifier Poll\n")
	fmt.Fprintf(w, "Connection: %s\n", conn.Info)
	fmt.Fprintf(w, "Press Ctrl+C to exit\n\n")

	p := poller.New(data, conn.Transport, cfg,
		poller.WithEnabled(true),
		poller.WithOnResult(recordResult(rec)),
		poller.WithOnCycle(func(n uint64) {
			fmt.Fprint(w, formatCycle(n, data.Snapshot(), mode))
		}),
		poller.WithOnError(func(row datalist.Row, err error) {
			log.Printf("%s (%04X): %v", row.Label, row.ID, err)
		}),
	)

	<-startPoller(ctx, p)

	stats := p.Stats()
	fmt.Fprintf(w, "\n%s", stats.String())
	return nil
}

// formatCycle renders one cycle as aligned "label  value" lines
func formatCycle(n uint64, snaps []datalist.RowSnapshot, mode uds.DisplayMode) string {
	width := 0
	for _, s := range snaps {
		if len(s.Label) > width {
			width = len(s.Label)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] cycle %d\n", time.Now().Format("15:04:05.000"), n)
	for _, s := range snaps {
		value := uds.Format(s.Value, s.Type, mode)
		switch s.Outcome {
		case uds.NegativeResponse:
			value += fmt.Sprintf("  (NRC 0x%02X %s)", s.NRC, uds.NRCName(s.NRC))
		case uds.Malformed:
			value += "  (malformed)"
		}
		fmt.Fprintf(&b, "  %-*s  %04X  %s\n", width, s.Label, s.ID, value)
	}
	return b.String()
}
