// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

//go:build linux

package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// ISOTP talks to an ECU through a kernel ISO-TP socket (CAN_ISOTP). The
// kernel performs segmentation, flow control and reassembly, so each
// transaction is a single write followed by a single read.
type ISOTP struct {
	mu    sync.Mutex // serializes transactions and Close
	fd    int
	iface string
	buf   []byte

	sigMu   sync.Mutex // guards closing; never held while blocking
	closing chan struct{}
}

// NewISOTP creates an unopened kernel ISO-TP transport
func NewISOTP() *ISOTP {
	return &ISOTP{fd: -1}
}

// Open binds an ISO-TP socket on iface. Addresses above 0x7FF are bound as
// 29-bit identifiers. Re-opening closes the previous socket first.
func (s *ISOTP) Open(iface string, rxID, txID uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closeLocked()

	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return fmt.Errorf("interface %s: %w", iface, err)
	}

	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_DGRAM, unix.CAN_ISOTP)
	if err != nil {
		return &IOError{Op: "socket(CAN_ISOTP)", Err: err}
	}

	addr := &unix.SockaddrCAN{
		Ifindex: ifi.Index,
		RxID:    CANID(rxID),
		TxID:    CANID(txID),
	}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return &IOError{Op: "bind(iso-tp)", Err: err}
	}

	s.fd = fd
	s.iface = iface
	s.buf = make([]byte, MaxResponseSize)

	s.sigMu.Lock()
	s.closing = make(chan struct{})
	s.sigMu.Unlock()
	return nil
}

// Request writes req and waits up to timeout for the reassembled response
func (s *ISOTP) Request(ctx context.Context, req []byte, timeout time.Duration) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fd < 0 {
		return nil, ErrNotOpen
	}

	s.sigMu.Lock()
	closing := s.closing
	s.sigMu.Unlock()

	// Drop replies that arrived after a previous transaction timed out
	s.drainLocked()

	if _, err := unix.Write(s.fd, req); err != nil {
		return nil, &IOError{Op: "write(iso-tp)", Err: err}
	}

	deadline := time.Now().Add(timeout)
	fds := []unix.PollFd{{Fd: int32(s.fd), Events: unix.POLLIN}}
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-closing:
			return nil, ErrNotOpen
		default:
		}

		wait, ok := nextSlice(deadline)
		if !ok {
			return nil, nil
		}

		fds[0].Revents = 0
		n, err := unix.Poll(fds, int(wait/time.Millisecond)+1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return nil, &IOError{Op: "poll(iso-tp)", Err: err}
		}
		if n == 0 {
			continue
		}
		if fds[0].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 && fds[0].Revents&unix.POLLIN == 0 {
			return nil, &IOError{Op: "poll(iso-tp)", Err: fmt.Errorf("socket error (revents 0x%X)", fds[0].Revents)}
		}
		break
	}

	n, err := unix.Read(s.fd, s.buf)
	if err != nil {
		return nil, &IOError{Op: "read(iso-tp)", Err: err}
	}

	resp := make([]byte, n)
	copy(resp, s.buf[:n])
	return resp, nil
}

// drainLocked discards any queued responses without blocking
func (s *ISOTP) drainLocked() {
	fds := []unix.PollFd{{Fd: int32(s.fd), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(fds, 0)
		if err != nil || n == 0 || fds[0].Revents&unix.POLLIN == 0 {
			return
		}
		if _, err := unix.Read(s.fd, s.buf); err != nil {
			return
		}
	}
}

// Close releases the socket. An in-flight Request is interrupted at its next
// wait slice and Close returns once it has finished.
func (s *ISOTP) Close() error {
	s.signalClosing()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *ISOTP) signalClosing() {
	s.sigMu.Lock()
	defer s.sigMu.Unlock()
	if s.closing == nil {
		return
	}
	select {
	case <-s.closing:
	default:
		close(s.closing)
	}
}

func (s *ISOTP) closeLocked() error {
	if s.fd < 0 {
		return nil
	}
	err := unix.Close(s.fd)
	s.fd = -1
	if err != nil {
		return &IOError{Op: "close(iso-tp)", Err: err}
	}
	return nil
}

// String describes the bound interface
func (s *ISOTP) String() string {
	return "ISO-TP: " + s.iface
}
