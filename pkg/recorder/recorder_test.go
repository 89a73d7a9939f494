// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package recorder

import (
	"bytes"
	"errors"
	"io"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/Thermoquad/udscope/pkg/uds"
)

func TestWriteRead(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, "Mock")
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	at := time.Unix(1700000000, 123456789)
	samples := []Sample{
		NewSample(at, "rpm", 0x000C, uds.UInt16, uds.Outcome{Kind: uds.Value, Value: uds.UInt16Value(850)}, 3*time.Millisecond),
		NewSample(at, "temp", 0xF405, uds.Float32, uds.Outcome{Kind: uds.Value, Value: uds.Float32Value(-12.5)}, 0),
		NewSample(at, "vin", 0xF190, uds.UInt8, uds.Outcome{Kind: uds.NegativeResponse, NRC: 0x31, HasNRC: true}, 0),
		NewSample(at, "odo", 0x1234, uds.UInt32, uds.Outcome{Kind: uds.NoData}, 100*time.Millisecond),
	}
	for _, s := range samples {
		if err := w.Write(s); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	r, err := NewReader(&buf)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	if h := r.Header(); h.Transport != "Mock" || h.Version != FormatVersion {
		t.Errorf("unexpected header %+v", h)
	}

	var got []Sample
	for {
		s, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		got = append(got, s)
	}

	if len(got) != len(samples) {
		t.Fatalf("read %d samples, want %d", len(got), len(samples))
	}
	for i := range samples {
		if got[i] != samples[i] {
			t.Errorf("sample %d = %+v, want %+v", i, got[i], samples[i])
		}
	}

	if v, ok := got[0].Value().AsUInt16(); !ok || v != 850 {
		t.Errorf("rpm value = %v", got[0].Value())
	}
	if v, ok := got[1].Value().AsFloat32(); !ok || v != -12.5 {
		t.Errorf("temp value = %v", got[1].Value())
	}
	if got[2].Value().IsKnown() || got[2].NRC != 0x31 {
		t.Errorf("negative sample = %+v", got[2])
	}
	if !math.IsNaN(got[3].Value().Float64()) {
		t.Errorf("no-data sample decoded to %v", got[3].Value())
	}
	if !got[0].At().Equal(at) {
		t.Errorf("At = %v, want %v", got[0].At(), at)
	}
}

func TestNewReader_Rejects(t *testing.T) {
	foreign, err := cbor.Marshal(Header{Magic: "other", Version: FormatVersion})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	future, err := cbor.Marshal(Header{Magic: Magic, Version: FormatVersion + 1})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	tests := []struct {
		name string
		data []byte
		is   error
	}{
		{"empty", nil, ErrNotRecording},
		{"garbage", []byte{0xFF, 0xFF}, ErrNotRecording},
		{"wrong magic", foreign, ErrNotRecording},
		{"future version", future, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewReader(bytes.NewReader(tt.data))
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Errorf("err = %v, want %v", err, tt.is)
			}
		})
	}
}

func TestNext_Truncated(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, "")
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	if err := w.Write(NewSample(time.Now(), "rpm", 12, uds.UInt16, uds.Outcome{Kind: uds.NoData}, 0)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	data := buf.Bytes()[:buf.Len()-2]
	r, err := NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	if _, err := r.Next(); err == nil || err == io.EOF {
		t.Errorf("truncated sample returned %v, want a decode error", err)
	}
}

func TestCreateOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.cbor")

	w, err := Create(path, "ISO-TP: vcan0")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	s := NewSample(time.Now(), "rpm", 12, uds.UInt16, uds.Outcome{Kind: uds.Value, Value: uds.UInt16Value(1)}, 0)
	if err := w.Write(s); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer r.Close()

	got, err := r.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if got != s {
		t.Errorf("got %+v, want %+v", got, s)
	}
	if _, err := r.Next(); err != io.EOF {
		t.Errorf("second Next = %v, want io.EOF", err)
	}

	if _, err := Open(filepath.Join(t.TempDir(), "missing.cbor")); err == nil {
		t.Error("expected error for missing file")
	}
}
