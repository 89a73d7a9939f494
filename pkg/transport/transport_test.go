// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

// Compile-time interface checks
var (
	_ Transport = (*ISOTP)(nil)
	_ Transport = (*ELM327)(nil)
	_ Transport = (*Gateway)(nil)
	_ Transport = (*Mock)(nil)
)

func TestCANID(t *testing.T) {
	tests := []struct {
		in   uint32
		want uint32
	}{
		{0x7E0, 0x7E0},
		{0x7FF, 0x7FF},
		{0x800, 0x800 | ExtendedFlag},
		{0x18DAF101, 0x18DAF101 | ExtendedFlag},
		{0x18DAF101 | ExtendedFlag, 0x18DAF101 | ExtendedFlag},
	}
	for _, tt := range tests {
		if got := CANID(tt.in); got != tt.want {
			t.Errorf("CANID(0x%X) = 0x%X, want 0x%X", tt.in, got, tt.want)
		}
	}
}

func TestIOErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := error(&IOError{Op: "write", Err: inner})
	if !errors.Is(err, inner) {
		t.Error("IOError should unwrap to its cause")
	}
	if err.Error() != "write: boom" {
		t.Errorf("Error() = %q", err.Error())
	}
}

// ============================================================
// Mock Tests
// ============================================================

func TestMock_CannedResponse(t *testing.T) {
	m := NewMock([]byte{0x62, 0x01, 0xF4, 0x00, 0x2A})
	if err := m.Open("can0", 0x7E8, 0x7E0); err != nil {
		t.Fatalf("Open: %v", err)
	}

	resp, err := m.Request(context.Background(), []byte{0x22, 0x01, 0xF4}, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if !bytes.Equal(resp, []byte{0x62, 0x01, 0xF4, 0x00, 0x2A}) {
		t.Errorf("resp = % X", resp)
	}

	reqs := m.Requests()
	if len(reqs) != 1 || !bytes.Equal(reqs[0], []byte{0x22, 0x01, 0xF4}) {
		t.Errorf("Requests() = %v", reqs)
	}
}

func TestMock_PerDIDResponses(t *testing.T) {
	m := &Mock{
		Response: []byte{0x7F, 0x22, 0x31},
		Responses: map[uint16][]byte{
			0x0100: {0x62, 0x01, 0x00, 0x07},
		},
	}
	ctx := context.Background()

	resp, _ := m.Request(ctx, []byte{0x22, 0x01, 0x00}, time.Second)
	if !bytes.Equal(resp, []byte{0x62, 0x01, 0x00, 0x07}) {
		t.Errorf("routed resp = % X", resp)
	}
	resp, _ = m.Request(ctx, []byte{0x22, 0x02, 0x00}, time.Second)
	if !bytes.Equal(resp, []byte{0x7F, 0x22, 0x31}) {
		t.Errorf("default resp = % X", resp)
	}
}

func TestMock_DelayBeyondTimeout(t *testing.T) {
	m := NewMock([]byte{0x62, 0x00, 0x01, 0x01})
	m.Delay = time.Second

	start := time.Now()
	resp, err := m.Request(context.Background(), []byte{0x22, 0x00, 0x01}, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("timeout should not be an error: %v", err)
	}
	if len(resp) != 0 {
		t.Errorf("expected empty response on timeout, got % X", resp)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Request blocked past its timeout: %v", elapsed)
	}
}

func TestMock_Cancellation(t *testing.T) {
	m := NewMock(nil)
	m.Delay = time.Second
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := m.Request(ctx, []byte{0x22, 0x00, 0x01}, time.Second); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestMock_Error(t *testing.T) {
	m := NewMock(nil)
	m.SetError(&IOError{Op: "write", Err: errors.New("network down")})
	if _, err := m.Request(context.Background(), []byte{0x22, 0, 1}, time.Second); err == nil {
		t.Error("expected injected error")
	}
	m.SetError(nil)
	if _, err := m.Request(context.Background(), []byte{0x22, 0, 1}, time.Second); err != nil {
		t.Errorf("error should be cleared: %v", err)
	}
}

func TestMock_ResponseIsCopied(t *testing.T) {
	canned := []byte{0x62, 0x00, 0x01, 0x05}
	m := NewMock(canned)
	resp, _ := m.Request(context.Background(), []byte{0x22, 0, 1}, time.Second)
	resp[3] = 0xFF
	if canned[3] != 0x05 {
		t.Error("caller mutated the canned response")
	}
}

func TestNextSlice(t *testing.T) {
	if _, ok := nextSlice(time.Now().Add(-time.Millisecond)); ok {
		t.Error("expired deadline should report false")
	}
	d, ok := nextSlice(time.Now().Add(time.Hour))
	if !ok || d != waitSlice {
		t.Errorf("nextSlice(far) = %v, %v", d, ok)
	}
}
