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
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/udscope/pkg/datalist"
	"github.com/Thermoquad/udscope/pkg/transport"
	"github.com/Thermoquad/udscope/pkg/uds"
)

var (
	readCount int
	readMode  string
	readDelay int
)

var readCmd = &cobra.Command{
	Use:   "read DID TYPE",
	Short: "Read one data identifier",
	Long: `Send ReadDataByIdentifier for a single identifier and print the decoded value.

DID is decimal or 0x-prefixed hex. TYPE is one of float64, float32, uint32,
int32, uint16, int16, uint8 or int8.

With --count the read is repeated and round-trip times are reported, which is
useful for verifying:
  - The transport and addressing are correct
  - The ECU supports the identifier
  - The response time fits within --timeout

Examples:
  udscope read 0xF190 uint32
  udscope read 500 uint16 --count 10 --mode hex`,
	Args: cobra.ExactArgs(2),
	RunE: runRead,
}

func init() {
	rootCmd.AddCommand(readCmd)
	readCmd.Flags().IntVar(&readCount, "count", 1, "Number of reads to send")
	readCmd.Flags().StringVar(&readMode, "mode", "dec", "Display mode: dec, hex or bin")
	readCmd.Flags().IntVar(&readDelay, "delay", 100, "Delay between reads in milliseconds")
}

func runRead(cmd *cobra.Command, args []string) error {
	did, err := datalist.ParseID(args[0])
	if err != nil {
		return err
	}
	typ, ok := uds.TypeFromName(args[1])
	if !ok {
		return fmt.Errorf("unknown type %q", args[1])
	}
	mode, err := uds.ParseDisplayMode(readMode)
	if err != nil {
		return err
	}
	if readCount < 1 {
		readCount = 1
	}

	conn, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	fmt.Printf("udscope - ReadDataByIdentifier\n")
	fmt.Printf("Connection: %s\n", conn.Info)
	fmt.Printf("Identifier: 0x%04X (%s)\n", did, typ)
	fmt.Printf("Timeout: %v per request\n\n", requestTimeout())

	sum := readRepeated(ctx, os.Stdout, conn.Transport, did, typ, mode, readCount,
		time.Duration(readDelay)*time.Millisecond)

	fmt.Printf("\n--- Read statistics ---\n")
	fmt.Print(sum.String())

	if sum.values < sum.sent {
		return fmt.Errorf("%d of %d reads returned no value", sum.sent-sum.values, sum.sent)
	}
	return nil
}

// readSummary collects the outcome of repeated reads
type readSummary struct {
	sent     int
	values   int
	timeouts int
	negative int
	failed   int
	minRTT   time.Duration
	maxRTT   time.Duration
	totalRTT time.Duration
}

func (s *readSummary) addRTT(rtt time.Duration) {
	if s.values == 1 || rtt < s.minRTT {
		s.minRTT = rtt
	}
	if rtt > s.maxRTT {
		s.maxRTT = rtt
	}
	s.totalRTT += rtt
}

func (s *readSummary) String() string {
	loss := 0.0
	if s.sent > 0 {
		loss = float64(s.sent-s.values) / float64(s.sent) * 100
	}
	out := fmt.Sprintf("%d requests sent, %d values received, %.0f%% loss\n", s.sent, s.values, loss)
	if s.timeouts > 0 || s.negative > 0 || s.failed > 0 {
		out += fmt.Sprintf("timeouts %d, negative responses %d, other failures %d\n", s.timeouts, s.negative, s.failed)
	}
	if s.values > 0 {
		avg := s.totalRTT / time.Duration(s.values)
		out += fmt.Sprintf("rtt min/avg/max = %v/%v/%v\n",
			s.minRTT.Round(time.Microsecond), avg.Round(time.Microsecond), s.maxRTT.Round(time.Microsecond))
	}
	return out
}

// readRepeated performs count reads of did and prints one line per read
func readRepeated(ctx context.Context, w io.Writer, tp transport.Transport, did uint16, typ uds.ScalarType,
	mode uds.DisplayMode, count int, delay time.Duration) readSummary {

	var sum readSummary
	req := uds.BuildReadDataByIdentifier(did)
	timeout := requestTimeout()

	for i := 1; i <= count; i++ {
		if ctx.Err() != nil {
			break
		}
		fmt.Fprintf(w, "Read %d/%d: ", i, count)
		sum.sent++

		start := time.Now()
		resp, err := tp.Request(ctx, req, timeout)
		rtt := time.Since(start)
		if err != nil {
			fmt.Fprintf(w, "FAILED: %v\n", err)
			sum.failed++
			continue
		}

		out := uds.Interpret(resp, did, typ, uds.InterpretOptions{StrictIdentifier: strictDID})
		switch out.Kind {
		case uds.Value:
			sum.values++
			sum.addRTT(rtt)
			fmt.Fprintf(w, "%s, rtt=%v\n", uds.Format(out.Value, typ, mode), rtt.Round(time.Microsecond))
		case uds.NegativeResponse:
			sum.negative++
			fmt.Fprintf(w, "%s\n", out)
		case uds.NoData:
			if len(resp) == 0 {
				sum.timeouts++
				fmt.Fprintf(w, "TIMEOUT (no response in %v)\n", timeout)
			} else {
				sum.failed++
				fmt.Fprintf(w, "NO DATA (% X)\n", resp)
			}
		default:
			sum.failed++
			fmt.Fprintf(w, "%s (% X)\n", out, resp)
		}

		if i < count && delay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(delay):
			}
		}
	}
	return sum
}
