// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/Thermoquad/udscope/pkg/transport"
)

// passwordEnv holds the gateway password when set
const passwordEnv = "UDSCOPE_PASSWORD"

// Connection is an opened transport plus a description for display
type Connection struct {
	Transport transport.Transport
	Info      string
	RxID      uint32
	TxID      uint32
}

// Close releases the transport
func (c *Connection) Close() error {
	return c.Transport.Close()
}

// requestTimeout returns the --timeout flag as a duration
func requestTimeout() time.Duration {
	if timeoutMS <= 0 {
		return 100 * time.Millisecond
	}
	return time.Duration(timeoutMS) * time.Millisecond
}

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	if pw := os.Getenv(passwordEnv); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		passwordBytes, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(passwordBytes), nil
	}

	// Not a terminal: read a line from the pipe
	reader := bufio.NewReader(os.Stdin)
	password, err := reader.ReadString('\n')
	if err != nil && password == "" {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Fprintln(os.Stderr)
	return strings.TrimSpace(password), nil
}

// newTransport builds the transport selected by --transport
func newTransport(name string) (transport.Transport, error) {
	switch strings.ToLower(name) {
	case "isotp", "socketcan", "":
		return transport.NewISOTP(), nil
	case "elm327", "elm":
		return transport.NewELM327(baudRate), nil
	case "ws", "wss", "gateway":
		opts := transport.GatewayOptions{
			Username:      gwUsername,
			SkipSSLVerify: gwNoSSLVerify,
		}
		if gwUsername != "" {
			password, err := GetPassword()
			if err != nil {
				return nil, err
			}
			opts.Password = password
		}
		return transport.NewGateway(opts), nil
	default:
		return nil, fmt.Errorf("unknown transport %q (use isotp, elm327 or ws)", name)
	}
}

// OpenConnection opens the transport selected by the root flags
func OpenConnection() (*Connection, error) {
	rx, err := parseCANID(rxIDFlag)
	if err != nil {
		return nil, fmt.Errorf("--rx: %w", err)
	}
	tx, err := parseCANID(txIDFlag)
	if err != nil {
		return nil, fmt.Errorf("--tx: %w", err)
	}

	tp, err := newTransport(transportName)
	if err != nil {
		return nil, err
	}
	if err := tp.Open(ifaceName, rx, tx); err != nil {
		return nil, fmt.Errorf("failed to open %s transport on %s: %w", transportName, ifaceName, err)
	}

	info := fmt.Sprintf("%v | rx %X tx %X", tp, rx, tx)
	return &Connection{Transport: tp, Info: info, RxID: rx, TxID: tx}, nil
}
