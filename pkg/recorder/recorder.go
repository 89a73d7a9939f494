// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package recorder stores polled samples as a CBOR sequence (RFC 8742): one
// header item followed by one item per transaction.
package recorder

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/Thermoquad/udscope/pkg/uds"
)

// Magic identifies a recording
const Magic = "udscope"

// FormatVersion is the current recording format
const FormatVersion = 1

// ErrNotRecording is returned when a stream does not start with a header
var ErrNotRecording = errors.New("not a udscope recording")

// Header is the first item of a recording
type Header struct {
	Magic     string `cbor:"1,keyasint"`
	Version   uint8  `cbor:"2,keyasint"`
	Started   int64  `cbor:"3,keyasint"` // unix nanoseconds
	Transport string `cbor:"4,keyasint,omitempty"`
}

// Sample is one recorded transaction
type Sample struct {
	Time    int64           `cbor:"1,keyasint"` // unix nanoseconds
	Label   string          `cbor:"2,keyasint"`
	ID      uint16          `cbor:"3,keyasint"`
	Type    uds.ScalarType  `cbor:"4,keyasint"`
	Outcome uds.OutcomeKind `cbor:"5,keyasint"`
	Bits    uint64          `cbor:"6,keyasint,omitempty"` // raw value bits when Outcome is Value
	NRC     byte            `cbor:"7,keyasint,omitempty"`
	RTT     int64           `cbor:"8,keyasint,omitempty"` // nanoseconds
}

// At returns the sample timestamp
func (s Sample) At() time.Time {
	return time.Unix(0, s.Time)
}

// Value returns the decoded value, Unknown unless the outcome was a value
func (s Sample) Value() uds.ScalarValue {
	if s.Outcome != uds.Value {
		return uds.Unknown()
	}
	v, ok := uds.ValueFromBits(s.Type, s.Bits)
	if !ok {
		return uds.Unknown()
	}
	return v
}

// NewSample converts a transaction result into a sample
func NewSample(at time.Time, label string, id uint16, t uds.ScalarType, out uds.Outcome, rtt time.Duration) Sample {
	s := Sample{
		Time:    at.UnixNano(),
		Label:   label,
		ID:      id,
		Type:    t,
		Outcome: out.Kind,
		RTT:     int64(rtt),
	}
	switch out.Kind {
	case uds.Value:
		s.Bits = out.Value.Bits()
	case uds.NegativeResponse:
		s.NRC = out.NRC
	}
	return s
}

// Writer appends samples to a recording
type Writer struct {
	w   *bufio.Writer
	c   io.Closer
	enc *cbor.Encoder
}

// NewWriter writes the header to w and returns a Writer
func NewWriter(w io.Writer, transport string) (*Writer, error) {
	bw := bufio.NewWriter(w)
	rw := &Writer{w: bw, enc: cbor.NewEncoder(bw)}
	if c, ok := w.(io.Closer); ok {
		rw.c = c
	}

	h := Header{
		Magic:     Magic,
		Version:   FormatVersion,
		Started:   time.Now().UnixNano(),
		Transport: transport,
	}
	if err := rw.enc.Encode(h); err != nil {
		return nil, fmt.Errorf("failed to write recording header: %w", err)
	}
	return rw, nil
}

// Create creates (or truncates) a recording file
func Create(path, transport string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create recording: %w", err)
	}
	w, err := NewWriter(f, transport)
	if err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

// Write appends one sample
func (w *Writer) Write(s Sample) error {
	if err := w.enc.Encode(s); err != nil {
		return fmt.Errorf("failed to write sample: %w", err)
	}
	return nil
}

// Flush writes buffered samples to the underlying writer
func (w *Writer) Flush() error {
	return w.w.Flush()
}

// Close flushes and closes the underlying writer when it is closable
func (w *Writer) Close() error {
	err := w.w.Flush()
	if w.c != nil {
		if cerr := w.c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Reader reads samples from a recording
type Reader struct {
	dec    *cbor.Decoder
	c      io.Closer
	header Header
}

// NewReader reads and validates the header from r
func NewReader(r io.Reader) (*Reader, error) {
	rd := &Reader{dec: cbor.NewDecoder(bufio.NewReader(r))}
	if c, ok := r.(io.Closer); ok {
		rd.c = c
	}

	if err := rd.dec.Decode(&rd.header); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNotRecording
		}
		return nil, fmt.Errorf("%w: %v", ErrNotRecording, err)
	}
	if rd.header.Magic != Magic {
		return nil, ErrNotRecording
	}
	if rd.header.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported recording version %d", rd.header.Version)
	}
	return rd, nil
}

// Open opens a recording file
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open recording: %w", err)
	}
	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// Header returns the recording header
func (r *Reader) Header() Header {
	return r.header
}

// Next returns the next sample, or io.EOF at the end of the recording
func (r *Reader) Next() (Sample, error) {
	var s Sample
	if err := r.dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return Sample{}, io.EOF
		}
		return Sample{}, fmt.Errorf("failed to read sample: %w", err)
	}
	return s, nil
}

// Close closes the underlying reader when it is closable
func (r *Reader) Close() error {
	if r.c != nil {
		return r.c.Close()
	}
	return nil
}
