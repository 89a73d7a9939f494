// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"sync"
	"time"
)

// Mock is a deterministic Transport for tests and demos. Request ignores the
// request contents (apart from routing by DID when Responses is set) and
// returns a canned response.
type Mock struct {
	mu sync.Mutex

	// Response is returned for every request without a per-DID entry
	Response []byte
	// Responses maps a ReadDataByIdentifier DID to its canned response
	Responses map[uint16][]byte
	// Err, when set, fails every request
	Err error
	// Delay simulates ECU latency; a delay beyond the timeout is a timeout
	Delay time.Duration

	opened   bool
	requests [][]byte
}

// NewMock creates a mock returning resp for every request
func NewMock(resp []byte) *Mock {
	return &Mock{Response: resp}
}

// Open is a no-op
func (m *Mock) Open(iface string, rxID, txID uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opened = true
	return nil
}

// Request records req and returns the canned response
func (m *Mock) Request(ctx context.Context, req []byte, timeout time.Duration) ([]byte, error) {
	m.mu.Lock()
	m.requests = append(m.requests, append([]byte(nil), req...))
	resp := m.Response
	if len(req) >= 3 && m.Responses != nil {
		if r, ok := m.Responses[uint16(req[1])<<8|uint16(req[2])]; ok {
			resp = r
		}
	}
	err := m.Err
	delay := m.Delay
	m.mu.Unlock()

	if delay > 0 {
		wait := delay
		if wait > timeout {
			wait = timeout
		}
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
		if delay > timeout {
			return nil, nil
		}
	}

	if err != nil {
		return nil, err
	}
	return append([]byte(nil), resp...), nil
}

// Close is a no-op
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opened = false
	return nil
}

// SetResponse replaces the default canned response
func (m *Mock) SetResponse(resp []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Response = resp
}

// SetError makes every following request fail with err (nil clears it)
func (m *Mock) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err = err
}

// Requests returns a copy of every request seen so far
func (m *Mock) Requests() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.requests))
	copy(out, m.requests)
	return out
}

// String describes the mock
func (m *Mock) String() string {
	return "Mock"
}
