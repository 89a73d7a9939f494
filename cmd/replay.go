// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/udscope/pkg/recorder"
	"github.com/Thermoquad/udscope/pkg/uds"
)

var (
	replayMode   string
	replayFilter string
)

var replayCmd = &cobra.Command{
	Use:   "replay FILE",
	Short: "Print a recorded polling session",
	Long: `Decode a recording made with "poll --record" and print every transaction in
human-readable form, with timestamp, identifier, outcome and value.

Examples:
  udscope replay session.cbor
  udscope replay session.cbor --mode hex --label rpm`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().StringVar(&replayMode, "mode", "dec", "Display mode: dec, hex or bin")
	replayCmd.Flags().StringVar(&replayFilter, "label", "", "Only print samples with this label")
}

func runReplay(cmd *cobra.Command, args []string) error {
	mode, err := uds.ParseDisplayMode(replayMode)
	if err != nil {
		return err
	}

	r, err := recorder.Open(args[0])
	if err != nil {
		return err
	}
	defer r.Close()

	h := r.Header()
	fmt.Printf("udscope - Recording %s\n", args[0])
	fmt.Printf("Started: %s\n", time.Unix(0, h.Started).Format(time.RFC3339))
	if h.Transport != "" {
		fmt.Printf("Connection: %s\n", h.Transport)
	}
	fmt.Println()

	n, err := replaySamples(os.Stdout, r, mode, replayFilter)
	fmt.Printf("\n%d samples\n", n)
	return err
}

// replaySamples prints samples until the end of the recording
func replaySamples(w io.Writer, r *recorder.Reader, mode uds.DisplayMode, label string) (int, error) {
	n := 0
	for {
		s, err := r.Next()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		if label != "" && s.Label != label {
			continue
		}
		n++
		fmt.Fprint(w, formatSample(s, mode))
	}
}

func formatSample(s recorder.Sample, mode uds.DisplayMode) string {
	ts := s.At().Format("15:04:05.000")
	rtt := time.Duration(s.RTT).Round(time.Microsecond)

	switch s.Outcome {
	case uds.Value:
		return fmt.Sprintf("[%s] %-20s %04X %-8s %s (rtt %v)\n",
			ts, s.Label, s.ID, s.Type, uds.Format(s.Value(), s.Type, mode), rtt)
	case uds.NegativeResponse:
		return fmt.Sprintf("[%s] %-20s %04X %-8s NRC 0x%02X %s\n",
			ts, s.Label, s.ID, s.Type, s.NRC, uds.NRCName(s.NRC))
	default:
		return fmt.Sprintf("[%s] %-20s %04X %-8s %s\n",
			ts, s.Label, s.ID, s.Type, s.Outcome)
	}
}
