// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/udscope/pkg/datalist"
	"github.com/Thermoquad/udscope/pkg/transport"
	"github.com/Thermoquad/udscope/pkg/uds"
)

var scanShowNRC bool

var scanCmd = &cobra.Command{
	Use:   "scan START END",
	Short: "Discover supported data identifiers",
	Long: `Send ReadDataByIdentifier for every identifier in START..END (inclusive) and
report the ones the ECU answers.

A positive response marks the identifier as supported and shows its payload
length, which hints at the scalar type (8, 4, 2 or 1 bytes). Identifiers the
ECU rejects are listed with their negative response code when --nrc is set.

Examples:
  udscope scan 0xF180 0xF19F
  udscope scan 0 0xFF --transport elm327 --iface /dev/ttyUSB0 --nrc

Exit codes:
  0 - At least one supported identifier found
  1 - No identifier answered positively`,
	Args: cobra.ExactArgs(2),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().BoolVar(&scanShowNRC, "nrc", false, "Also list negative responses")
}

// scanHit is one identifier that produced a reply
type scanHit struct {
	id      uint16
	payload []byte
	nrc     byte
	hasNRC  bool
}

func runScan(cmd *cobra.Command, args []string) error {
	start, err := datalist.ParseID(args[0])
	if err != nil {
		return err
	}
	end, err := datalist.ParseID(args[1])
	if err != nil {
		return err
	}
	if end < start {
		return fmt.Errorf("END 0x%04X is below START 0x%04X", end, start)
	}

	conn, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	fmt.Printf("udscope - Identifier Scan\n")
	fmt.Printf("Connection: %s\n", conn.Info)
	fmt.Printf("Range: 0x%04X..0x%04X (%d identifiers)\n\n", start, end, int(end)-int(start)+1)

	supported, rejected, err := scanRange(ctx, os.Stdout, conn.Transport, start, end)
	if err != nil {
		return err
	}

	fmt.Printf("\n--- Scan summary ---\n")
	fmt.Printf("Supported: %d\n", len(supported))
	fmt.Printf("Rejected:  %d\n", len(rejected))

	if len(supported) == 0 {
		return fmt.Errorf("no supported identifiers in range")
	}
	return nil
}

// scanRange probes every identifier in start..end. Timeouts are silent;
// a transport failure ends the scan.
func scanRange(ctx context.Context, w io.Writer, tp transport.Transport, start, end uint16) (supported, rejected []scanHit, err error) {
	timeout := requestTimeout()

	for id := uint32(start); id <= uint32(end); id++ {
		if ctx.Err() != nil {
			return supported, rejected, nil
		}

		did := uint16(id)
		resp, err := tp.Request(ctx, uds.BuildReadDataByIdentifier(did), timeout)
		if err != nil {
			if ctx.Err() != nil {
				return supported, rejected, nil
			}
			return supported, rejected, fmt.Errorf("scan stopped at 0x%04X: %w", did, err)
		}

		out := uds.Interpret(resp, did, uds.UInt8, uds.InterpretOptions{StrictIdentifier: true})
		switch {
		case out.Kind == uds.Value:
			hit := scanHit{id: did, payload: append([]byte(nil), resp[uds.ReadDataByIdentifierHeaderLength:]...)}
			supported = append(supported, hit)
			fmt.Fprintf(w, "0x%04X  supported  %d byte(s)%s  % X\n", did, len(hit.payload), typeHint(len(hit.payload)), hit.payload)

		case out.Kind == uds.NegativeResponse:
			hit := scanHit{id: did, nrc: out.NRC, hasNRC: out.HasNRC}
			rejected = append(rejected, hit)
			if scanShowNRC {
				fmt.Fprintf(w, "0x%04X  rejected   0x%02X %s\n", did, out.NRC, uds.NRCName(out.NRC))
			}
		}
	}
	return supported, rejected, nil
}

// typeHint names the scalar types matching a payload length
func typeHint(n int) string {
	switch n {
	case 8:
		return " (float64)"
	case 4:
		return " (float32/uint32/int32)"
	case 2:
		return " (uint16/int16)"
	case 1:
		return " (uint8/int8)"
	default:
		return ""
	}
}
