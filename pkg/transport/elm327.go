// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

// ELM327 prompt and status strings
const (
	elmPrompt      = '>'
	elmNoData      = "NO DATA"
	elmSearching   = "SEARCHING..."
	elmDefaultBaud = 38400

	// ATST tops out at 0xFF * 4 ms; a late reply has ended by then
	elmResyncTimeout = 1100 * time.Millisecond
	elmDrainWait     = 5 * time.Millisecond
	elmDrainLimit    = 4096
)

// elmFatal lists adapter replies that mean the bus or adapter failed
var elmFatal = []string{"CAN ERROR", "BUS ERROR", "BUS INIT", "BUFFER FULL", "UNABLE TO CONNECT", "STOPPED", "LV RESET", "?"}

// serialPort is the subset of serial.Port the ELM327 transport uses
type serialPort interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// ELM327 drives an ELM327-compatible serial OBD adapter. The adapter's CAN
// auto-formatting performs ISO-TP segmentation and reassembly; this transport
// only exchanges hex text with it. The iface passed to Open is the serial
// device path.
type ELM327 struct {
	mu       sync.Mutex
	baudRate int
	port     serialPort
	device   string
	timeout  time.Duration // adapter response timeout currently programmed

	// openPort is replaced in tests
	openPort func(device string, baud int) (serialPort, error)
}

// NewELM327 creates an unopened ELM327 transport at the given baud rate
// (0 selects 38400)
func NewELM327(baudRate int) *ELM327 {
	if baudRate <= 0 {
		baudRate = elmDefaultBaud
	}
	return &ELM327{
		baudRate: baudRate,
		openPort: openSerialPort,
	}
}

func openSerialPort(device string, baud int) (serialPort, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, err
	}
	return port, nil
}

// Open opens the serial device and configures the adapter for ISO 15765-4
// with the given request (tx) and response (rx) identifiers.
func (e *ELM327) Open(iface string, rxID, txID uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closeLocked()

	port, err := e.openPort(iface, e.baudRate)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %v", iface, err)
	}
	e.port = port
	e.device = iface
	e.timeout = 0

	if err := e.initLocked(rxID, txID); err != nil {
		e.closeLocked()
		return err
	}
	return nil
}

func (e *ELM327) initLocked(rxID, txID uint32) error {
	ctx := context.Background()

	// ATZ answers with the adapter banner, not OK
	banner, err := e.commandLocked(ctx, "ATZ", 2*time.Second)
	if err != nil {
		return fmt.Errorf("adapter reset: %w", err)
	}
	if !strings.Contains(banner, "ELM") {
		return fmt.Errorf("no ELM327 banner in %q", banner)
	}

	cmds := []string{"ATE0", "ATL0", "ATS0", "ATH0", "ATCAF1"}
	if IsExtended(txID) || IsExtended(rxID) {
		tx := txID &^ ExtendedFlag
		cmds = append(cmds,
			"ATSP7",
			fmt.Sprintf("ATCP%02X", tx>>24&0x1F),
			fmt.Sprintf("ATSH%06X", tx&0xFFFFFF),
			fmt.Sprintf("ATCRA%08X", rxID&^ExtendedFlag),
		)
	} else {
		cmds = append(cmds,
			"ATSP6",
			fmt.Sprintf("ATSH%03X", txID),
			fmt.Sprintf("ATCRA%03X", rxID),
		)
	}

	for _, cmd := range cmds {
		resp, err := e.commandLocked(ctx, cmd, time.Second)
		if err != nil {
			return fmt.Errorf("%s: %w", cmd, err)
		}
		if !strings.Contains(resp, "OK") {
			return fmt.Errorf("%s: unexpected reply %q", cmd, resp)
		}
	}
	return nil
}

// Request sends req as hex and waits up to timeout for the adapter's reply
func (e *ELM327) Request(ctx context.Context, req []byte, timeout time.Duration) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.port == nil {
		return nil, ErrNotOpen
	}

	if err := e.programTimeoutLocked(ctx, timeout); err != nil {
		return nil, err
	}

	// The adapter answers NO DATA after its own timeout; allow a margin on
	// top so its reply is still read in this transaction.
	text, err := e.commandLocked(ctx, strings.ToUpper(hex.EncodeToString(req)), timeout+100*time.Millisecond)
	if errors.Is(err, errPromptTimeout) {
		// Consume the late reply so it is not read as the next one
		if _, err := e.readPromptLocked(ctx, elmResyncTimeout); err != nil && !errors.Is(err, errPromptTimeout) {
			return nil, err
		}
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ParseELMResponse(text)
}

// programTimeoutLocked sets ATST (units of 4 ms) when the timeout changes
func (e *ELM327) programTimeoutLocked(ctx context.Context, timeout time.Duration) error {
	if timeout == e.timeout {
		return nil
	}
	units := timeout / (4 * time.Millisecond)
	if units < 1 {
		units = 1
	}
	if units > 0xFF {
		units = 0xFF
	}
	resp, err := e.commandLocked(ctx, fmt.Sprintf("ATST%02X", int(units)), time.Second)
	if err != nil {
		return err
	}
	if !strings.Contains(resp, "OK") {
		return &IOError{Op: "elm327 ATST", Err: fmt.Errorf("unexpected reply %q", resp)}
	}
	e.timeout = timeout
	return nil
}

var errPromptTimeout = errors.New("no prompt from adapter")

// commandLocked writes a command line and collects output up to the prompt
func (e *ELM327) commandLocked(ctx context.Context, cmd string, timeout time.Duration) (string, error) {
	if err := e.drainLocked(); err != nil {
		return "", err
	}
	if _, err := e.port.Write([]byte(cmd + "\r")); err != nil {
		return "", &IOError{Op: "elm327 write", Err: err}
	}
	return e.readPromptLocked(ctx, timeout)
}

// drainLocked discards input left over from earlier commands
func (e *ELM327) drainLocked() error {
	if err := e.port.SetReadTimeout(elmDrainWait); err != nil {
		return &IOError{Op: "elm327 set timeout", Err: err}
	}
	buf := make([]byte, 128)
	for total := 0; total < elmDrainLimit; {
		n, err := e.port.Read(buf)
		if err != nil {
			return &IOError{Op: "elm327 read", Err: err}
		}
		if n == 0 {
			return nil
		}
		total += n
	}
	return nil
}

// readPromptLocked collects output up to the prompt or the timeout
func (e *ELM327) readPromptLocked(ctx context.Context, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	var out strings.Builder
	buf := make([]byte, 128)
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		wait, ok := nextSlice(deadline)
		if !ok {
			return out.String(), errPromptTimeout
		}
		if err := e.port.SetReadTimeout(wait); err != nil {
			return "", &IOError{Op: "elm327 set timeout", Err: err}
		}

		n, err := e.port.Read(buf)
		if err != nil {
			return "", &IOError{Op: "elm327 read", Err: err}
		}
		for _, b := range buf[:n] {
			if b == elmPrompt {
				return out.String(), nil
			}
			out.WriteByte(b)
		}
	}
}

// ParseELMResponse converts adapter output (headers off, spaces off, CAN
// auto-formatting on) into the reassembled response bytes. "NO DATA" yields
// an empty response. Multi-frame replies look like:
//
//	00A
//	0:62F1905744
//	1:30303132333435
func ParseELMResponse(text string) ([]byte, error) {
	var lines []string
	for _, line := range strings.FieldsFunc(text, func(r rune) bool { return r == '\r' || r == '\n' }) {
		line = strings.TrimSpace(strings.ReplaceAll(line, " ", ""))
		if line == "" || line == elmSearching {
			continue
		}
		lines = append(lines, line)
	}

	if len(lines) == 0 {
		return nil, nil
	}
	for _, line := range lines {
		if line == elmNoData || line == strings.ReplaceAll(elmNoData, " ", "") {
			return nil, nil
		}
		for _, f := range elmFatal {
			if line == strings.ReplaceAll(f, " ", "") {
				return nil, &IOError{Op: "elm327", Err: errors.New(f)}
			}
		}
	}

	// Single frame
	if len(lines) == 1 && !strings.Contains(lines[0], ":") {
		return decodeHexLine(lines[0])
	}

	// Multi-frame: optional length line, then indexed segments
	total := -1
	var data []byte
	for _, line := range lines {
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			if total >= 0 || len(line) > 3 {
				return nil, &IOError{Op: "elm327", Err: fmt.Errorf("unexpected line %q", line)}
			}
			var n int
			if _, err := fmt.Sscanf(line, "%X", &n); err != nil {
				return nil, &IOError{Op: "elm327", Err: fmt.Errorf("bad length line %q", line)}
			}
			total = n
			continue
		}
		seg, err := decodeHexLine(line[idx+1:])
		if err != nil {
			return nil, err
		}
		data = append(data, seg...)
	}

	if total >= 0 {
		if len(data) < total {
			return nil, &IOError{Op: "elm327", Err: fmt.Errorf("short multi-frame reply: %d of %d bytes", len(data), total)}
		}
		// Last segment is padded
		data = data[:total]
	}
	return data, nil
}

func decodeHexLine(line string) ([]byte, error) {
	b, err := hex.DecodeString(line)
	if err != nil {
		return nil, &IOError{Op: "elm327", Err: fmt.Errorf("bad hex %q", line)}
	}
	return b, nil
}

// Close closes the serial port
func (e *ELM327) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closeLocked()
}

func (e *ELM327) closeLocked() error {
	if e.port == nil {
		return nil
	}
	err := e.port.Close()
	e.port = nil
	return err
}

// String describes the serial connection
func (e *ELM327) String() string {
	return fmt.Sprintf("ELM327: %s @ %d baud", e.device, e.baudRate)
}
