// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/spf13/cobra"
)

var (
	// Config file flag
	configPath string

	// Transport flags
	transportName string
	ifaceName     string
	rxIDFlag      string
	txIDFlag      string
	baudRate      int
	timeoutMS     int
	strictDID     bool

	// Gateway flags
	gwUsername    string
	gwNoSSLVerify bool

	// Logging flags
	logFile string
)

var rootCmd = &cobra.Command{
	Use:   "udscope",
	Short: "UDS ReadDataByIdentifier poller",
	Long: `udscope - A CLI tool for polling ECU data identifiers over UDS (ISO 14229).

Reads a list of named data identifiers and polls them with ReadDataByIdentifier
(service 0x22), decoding each response as a big-endian scalar.

Transports:
  isotp:  Linux CAN_ISOTP socket     --iface can0
  elm327: ELM327 serial adapter      --iface /dev/ttyUSB0 [--baud 38400]
  ws:     WebSocket ISO-TP gateway   --iface ws://host/isotp [--username user]

Addresses are hexadecimal CAN identifiers; values above 0x7FF select 29-bit
addressing.

For gateway authentication, the password is read from the UDSCOPE_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.

Settings may also be given in a YAML file (--config); flags set on the
command line take precedence.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")

	// Transport flags
	rootCmd.PersistentFlags().StringVar(&transportName, "transport", "isotp", "Transport: isotp, elm327 or ws")
	rootCmd.PersistentFlags().StringVarP(&ifaceName, "iface", "i", "can0", "CAN interface, serial device or gateway URL")
	rootCmd.PersistentFlags().StringVarP(&rxIDFlag, "rx", "r", "18DAF101", "Response CAN identifier (hex)")
	rootCmd.PersistentFlags().StringVarP(&txIDFlag, "tx", "t", "18DA01F1", "Request CAN identifier (hex)")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 38400, "Baud rate (elm327 only)")
	rootCmd.PersistentFlags().IntVar(&timeoutMS, "timeout", 100, "Per-request timeout in milliseconds")
	rootCmd.PersistentFlags().BoolVar(&strictDID, "strict", false, "Reject responses echoing a different identifier")

	// Gateway flags
	rootCmd.PersistentFlags().StringVar(&gwUsername, "username", "", "Username for HTTP Basic auth (ws only)")
	rootCmd.PersistentFlags().BoolVar(&gwNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Logging flags
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write log output to this file")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
