// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transport provides request/response exchanges with an ECU over
// ISO-TP. Segmentation and flow control are handled below this layer (by the
// kernel, the adapter firmware or a remote gateway); a Transport only sends
// one complete request and waits a bounded time for one complete response.
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Extended (29-bit) CAN identifier handling
const (
	MaxStandardID = 0x7FF
	ExtendedFlag  = 0x80000000 // CAN_EFF_FLAG
)

// MaxResponseSize bounds a single reassembled ISO-TP response
const MaxResponseSize = 4096

var (
	// ErrNotOpen is returned by Request before Open or after Close
	ErrNotOpen = errors.New("transport not open")

	// ErrUnsupported is returned when a transport is not available on this platform
	ErrUnsupported = errors.New("transport not supported on this platform")
)

// Transport performs one-shot request/response exchanges.
//
// Request returns an empty response and a nil error when no reply arrives
// within timeout; that is a normal outcome, not a failure. A non-nil error
// means the exchange itself failed (write error, socket torn down, ctx
// cancelled) and must be distinguished from a timeout by the caller.
type Transport interface {
	Open(iface string, rxID, txID uint32) error
	Request(ctx context.Context, req []byte, timeout time.Duration) ([]byte, error)
	Close() error
}

// IOError wraps a failed transport operation
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// IsExtended reports whether id needs 29-bit addressing
func IsExtended(id uint32) bool {
	return id&^ExtendedFlag > MaxStandardID
}

// CANID returns id with the extended flag set when it exceeds 11 bits
func CANID(id uint32) uint32 {
	if IsExtended(id) {
		return id | ExtendedFlag
	}
	return id
}

// waitSlice bounds each blocking wait so cancellation is noticed promptly
const waitSlice = 50 * time.Millisecond

// nextSlice returns how long to block before re-checking ctx, or false once
// the deadline has passed
func nextSlice(deadline time.Time) (time.Duration, bool) {
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return 0, false
	}
	if remaining > waitSlice {
		return waitSlice, true
	}
	return remaining, true
}
