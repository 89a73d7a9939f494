// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

//go:build !linux

package transport

import (
	"context"
	"time"
)

// ISOTP requires the Linux CAN_ISOTP socket family
type ISOTP struct{}

// NewISOTP creates a transport that always fails to open on this platform
func NewISOTP() *ISOTP {
	return &ISOTP{}
}

func (s *ISOTP) Open(iface string, rxID, txID uint32) error {
	return ErrUnsupported
}

func (s *ISOTP) Request(ctx context.Context, req []byte, timeout time.Duration) ([]byte, error) {
	return nil, ErrNotOpen
}

func (s *ISOTP) Close() error {
	return nil
}

func (s *ISOTP) String() string {
	return "ISO-TP (unsupported)"
}
