// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package uds

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
)

// ============================================================
// Test Helpers
// ============================================================

// encodeBE is the big-endian encoding oracle used by the round-trip tests
func encodeBE(v ScalarValue) []byte {
	w := v.Type().Width()
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v.Bits())
	return buf[8-w:]
}

// ============================================================
// Type Name Tests
// ============================================================

func TestTypeFromName(t *testing.T) {
	tests := []struct {
		name string
		want ScalarType
		ok   bool
	}{
		{"float64", Float64, true},
		{"double", Float64, true},
		{"DOUBLE", Float64, true},
		{"float32", Float32, true},
		{"Single", Float32, true},
		{"uint32", UInt32, true},
		{"int32", Int32, true},
		{"UInt16", UInt16, true},
		{"int16", Int16, true},
		{"uint8", UInt8, true},
		{" int8 ", Int8, true},
		{"int64", 0, false},
		{"", 0, false},
		{"float", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := TypeFromName(tt.name)
			if ok != tt.ok {
				t.Fatalf("TypeFromName(%q) ok = %v, want %v", tt.name, ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Errorf("TypeFromName(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestTypeNameRoundTrip(t *testing.T) {
	for _, typ := range ScalarTypes {
		got, ok := TypeFromName(typ.String())
		if !ok || got != typ {
			t.Errorf("TypeFromName(%q) = %v, %v; want %v, true", typ.String(), got, ok, typ)
		}
	}
}

func TestScalarTypeWidth(t *testing.T) {
	want := map[ScalarType]int{
		Float64: 8, Float32: 4, UInt32: 4, Int32: 4,
		UInt16: 2, Int16: 2, UInt8: 1, Int8: 1,
	}
	for typ, w := range want {
		if typ.Width() != w {
			t.Errorf("%v.Width() = %d, want %d", typ, typ.Width(), w)
		}
	}
	if ScalarType(42).Width() != 0 {
		t.Error("invalid type should have zero width")
	}
}

// ============================================================
// Decode Tests
// ============================================================

func TestDecode_UInt16(t *testing.T) {
	v, ok := Decode([]byte{0x12, 0x34}, UInt16)
	if !ok {
		t.Fatal("Decode failed")
	}
	got, isU16 := v.AsUInt16()
	if !isU16 || got != 4660 {
		t.Errorf("Decode = %v (%v), want UInt16(4660)", got, v.Type())
	}
}

func TestDecode_ShortSlice(t *testing.T) {
	if _, ok := Decode([]byte{0xFF}, UInt32); ok {
		t.Error("Decode([0xFF], UInt32) should fail")
	}
}

func TestDecode_KnownValues(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		typ  ScalarType
		want float64
	}{
		{"int8 negative", []byte{0xFF}, Int8, -1},
		{"uint8 max", []byte{0xFF}, UInt8, 255},
		{"int16 min", []byte{0x80, 0x00}, Int16, -32768},
		{"uint16 max", []byte{0xFF, 0xFF}, UInt16, 65535},
		{"int32 negative", []byte{0xFF, 0xFF, 0xFF, 0xFE}, Int32, -2},
		{"uint32", []byte{0x00, 0x01, 0x00, 0x00}, UInt32, 65536},
		{"float32 1.5", []byte{0x3F, 0xC0, 0x00, 0x00}, Float32, 1.5},
		{"float64 -2.25", []byte{0xC0, 0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}, Float64, -2.25},
		{"trailing bytes ignored", []byte{0x00, 0x2A, 0xDE, 0xAD}, UInt16, 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok := Decode(tt.data, tt.typ)
			if !ok {
				t.Fatalf("Decode(% X, %v) failed", tt.data, tt.typ)
			}
			if v.Type() != tt.typ {
				t.Errorf("variant = %v, want %v", v.Type(), tt.typ)
			}
			if got := v.Float64(); got != tt.want {
				t.Errorf("Float64() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecode_LengthGate(t *testing.T) {
	data := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x01, 0x02, 0x03, 0x04}
	for _, typ := range ScalarTypes {
		for n := 0; n < typ.Width(); n++ {
			if v, ok := Decode(data[:n], typ); ok || v.IsKnown() {
				t.Errorf("Decode(%d bytes, %v) should fail", n, typ)
			}
		}
		if _, ok := Decode(data[:typ.Width()], typ); !ok {
			t.Errorf("Decode(%d bytes, %v) should succeed", typ.Width(), typ)
		}
	}
}

func TestDecode_Idempotent(t *testing.T) {
	data := []byte{0x40, 0x09, 0x21, 0xFB, 0x54, 0x44, 0x2D, 0x18}
	for _, typ := range ScalarTypes {
		a, okA := Decode(data, typ)
		b, okB := Decode(data, typ)
		if okA != okB || a != b {
			t.Errorf("Decode not deterministic for %v: %v != %v", typ, a, b)
		}
	}
}

func TestDecode_DoesNotRetainInput(t *testing.T) {
	data := []byte{0x00, 0x2A}
	v, _ := Decode(data, UInt16)
	data[1] = 0xFF
	if got, _ := v.AsUInt16(); got != 42 {
		t.Errorf("decoded value changed with input buffer: %d", got)
	}
}

func TestDecode_RoundTrip(t *testing.T) {
	values := []ScalarValue{
		Float64Value(0), Float64Value(math.Pi), Float64Value(-1e300), Float64Value(math.Inf(1)),
		Float32Value(0), Float32Value(3.25), Float32Value(-math.MaxFloat32),
		UInt32Value(0), UInt32Value(math.MaxUint32), UInt32Value(0x12345678),
		Int32Value(math.MinInt32), Int32Value(math.MaxInt32), Int32Value(-1),
		UInt16Value(0), UInt16Value(math.MaxUint16),
		Int16Value(math.MinInt16), Int16Value(math.MaxInt16),
		UInt8Value(0), UInt8Value(math.MaxUint8),
		Int8Value(math.MinInt8), Int8Value(math.MaxInt8),
	}

	for _, want := range values {
		got, ok := Decode(encodeBE(want), want.Type())
		if !ok {
			t.Errorf("Decode(encodeBE(%v)) failed", want)
			continue
		}
		if got != want {
			t.Errorf("round trip %v: got %v", want, got)
		}
	}
}

func TestDecode_FloatNaNBitsPreserved(t *testing.T) {
	data := []byte{0x7F, 0xC0, 0x00, 0x01}
	v, ok := Decode(data, Float32)
	if !ok {
		t.Fatal("Decode failed")
	}
	if !bytes.Equal(encodeBE(v), data) {
		t.Errorf("NaN payload not preserved: % X", encodeBE(v))
	}
	if !math.IsNaN(v.Float64()) {
		t.Error("expected NaN")
	}
}

// ============================================================
// Widening Tests
// ============================================================

func TestFloat64Widening(t *testing.T) {
	if got := Int8Value(-1).Float64(); got != -1.0 {
		t.Errorf("Int8(-1) = %v, want -1.0", got)
	}
	if got := UInt8Value(255).Float64(); got != 255.0 {
		t.Errorf("UInt8(255) = %v, want 255.0", got)
	}
	if got := Float32Value(0.5).Float64(); got != 0.5 {
		t.Errorf("Float32(0.5) = %v, want 0.5", got)
	}
	if got := UInt32Value(math.MaxUint32).Float64(); got != float64(math.MaxUint32) {
		t.Errorf("UInt32(max) = %v", got)
	}
	if !math.IsNaN(Unknown().Float64()) {
		t.Error("Unknown should widen to NaN")
	}
}

func TestTypedAccessorMismatch(t *testing.T) {
	v := UInt16Value(7)
	if _, ok := v.AsInt16(); ok {
		t.Error("AsInt16 should fail on a UInt16 value")
	}
	if _, ok := v.AsUInt16(); !ok {
		t.Error("AsUInt16 should succeed")
	}
	if _, ok := Unknown().AsUInt16(); ok {
		t.Error("accessors should fail on Unknown")
	}
}

func TestValueFromBits(t *testing.T) {
	v, ok := ValueFromBits(Int8, 0xFFFF)
	if !ok {
		t.Fatal("ValueFromBits failed")
	}
	if got, _ := v.AsInt8(); got != -1 {
		t.Errorf("ValueFromBits(Int8, 0xFFFF) = %d, want -1", got)
	}
	if v != Int8Value(-1) {
		t.Error("ValueFromBits should mask to type width")
	}
	if _, ok := ValueFromBits(ScalarType(99), 1); ok {
		t.Error("invalid type should fail")
	}
}

// ============================================================
// Format Tests
// ============================================================

func TestFormat(t *testing.T) {
	tests := []struct {
		name string
		v    ScalarValue
		mode DisplayMode
		want string
	}{
		{"uint16 hex", UInt16Value(4660), ModeHex, "0x1234"},
		{"uint8 bin", UInt8Value(5), ModeBin, "00000101b"},
		{"uint16 dec", UInt16Value(4660), ModeDec, "4660"},
		{"int8 dec", Int8Value(-1), ModeDec, "-1"},
		{"int8 hex", Int8Value(-1), ModeHex, "0xFF"},
		{"int16 hex", Int16Value(-2), ModeHex, "0xFFFE"},
		{"int16 bin", Int16Value(-1), ModeBin, "1111111111111111b"},
		{"uint32 hex no padding", UInt32Value(5), ModeHex, "0x5"},
		{"uint32 bin width", UInt32Value(1), ModeBin, "00000000000000000000000000000001b"},
		{"int32 dec", Int32Value(math.MinInt32), ModeDec, "-2147483648"},
		{"float32 dec", Float32Value(1.5), ModeDec, "1.5"},
		{"float32 hex falls back", Float32Value(1.5), ModeHex, "1.5"},
		{"float64 bin falls back", Float64Value(-0.25), ModeBin, "-0.25"},
		{"unknown", Unknown(), ModeHex, "NaN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Format(tt.v, tt.v.Type(), tt.mode)
			if got != tt.want {
				t.Errorf("Format = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormat_BinaryLength(t *testing.T) {
	for _, typ := range ScalarTypes {
		if typ.IsFloat() {
			continue
		}
		v, _ := Decode([]byte{0x80, 0, 0, 0}, typ)
		s := Format(v, typ, ModeBin)
		if len(s) != typ.Width()*8+1 {
			t.Errorf("%v binary length = %d, want %d", typ, len(s), typ.Width()*8+1)
		}
		if s[0] != '1' {
			t.Errorf("%v binary should start with the sign bit set: %s", typ, s)
		}
	}
}

func TestDisplayMode(t *testing.T) {
	m, err := ParseDisplayMode("HEX")
	if err != nil || m != ModeHex {
		t.Fatalf("ParseDisplayMode(HEX) = %v, %v", m, err)
	}
	if _, err := ParseDisplayMode("oct"); err == nil {
		t.Error("expected error for unknown mode")
	}
	if ModeHex.Toggle(ModeHex) != ModeDec {
		t.Error("toggling the active mode should return to decimal")
	}
	if ModeDec.Toggle(ModeBin) != ModeBin {
		t.Error("toggling an inactive mode should select it")
	}
	if ModeBin.String() != "bin" {
		t.Errorf("ModeBin.String() = %q", ModeBin.String())
	}
}

// ============================================================
// Request Tests
// ============================================================

func TestBuildReadDataByIdentifier(t *testing.T) {
	tests := []struct {
		did  uint16
		want []byte
	}{
		{0x01F4, []byte{0x22, 0x01, 0xF4}},
		{0x0000, []byte{0x22, 0x00, 0x00}},
		{0xF190, []byte{0x22, 0xF1, 0x90}},
		{0xFFFF, []byte{0x22, 0xFF, 0xFF}},
	}
	for _, tt := range tests {
		got := BuildReadDataByIdentifier(tt.did)
		if !bytes.Equal(got, tt.want) {
			t.Errorf("BuildReadDataByIdentifier(0x%04X) = % X, want % X", tt.did, got, tt.want)
		}
	}
}

// ============================================================
// Response Interpretation Tests
// ============================================================

func TestInterpret_Scenarios(t *testing.T) {
	tests := []struct {
		name     string
		resp     []byte
		typ      ScalarType
		wantKind OutcomeKind
		wantNRC  byte
	}{
		{"empty", []byte{}, UInt16, NoData, 0},
		{"nil", nil, Float32, NoData, 0},
		{"positive uint16", []byte{0x62, 0x01, 0xF4, 0x00, 0x2A}, UInt16, Value, 0},
		{"request out of range", []byte{0x7F, 0x22, 0x31}, UInt16, NegativeResponse, 0x31},
		{"positive header only", []byte{0x62, 0x01, 0xF4}, UInt8, NoData, 0},
		{"payload too short", []byte{0x62, 0x01, 0xF4, 0x00}, UInt32, NoData, 0},
		{"short garbage", []byte{0x50, 0x01}, UInt8, Malformed, 0},
		{"long garbage", []byte{0x50, 0x01, 0x02, 0x03}, UInt8, NoData, 0},
		{"negative without nrc", []byte{0x7F, 0x22}, UInt8, NegativeResponse, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Interpret(tt.resp, 0x01F4, tt.typ, InterpretOptions{})
			if out.Kind != tt.wantKind {
				t.Fatalf("Kind = %v, want %v", out.Kind, tt.wantKind)
			}
			if out.NRC != tt.wantNRC {
				t.Errorf("NRC = 0x%02X, want 0x%02X", out.NRC, tt.wantNRC)
			}
		})
	}
}

func TestInterpret_PositiveValue(t *testing.T) {
	out := Interpret([]byte{0x62, 0x01, 0xF4, 0x00, 0x2A}, 500, UInt16, InterpretOptions{})
	if out.Kind != Value {
		t.Fatalf("Kind = %v, want VALUE", out.Kind)
	}
	if out.Value != UInt16Value(42) {
		t.Errorf("Value = %v, want UInt16(42)", out.Value)
	}
}

func TestInterpret_NegativeResponse(t *testing.T) {
	out := Interpret([]byte{0x7F, 0x22, 0x31}, 500, UInt16, InterpretOptions{})
	if !out.HasNRC || out.Service != 0x22 {
		t.Errorf("Service = 0x%02X, HasNRC = %v", out.Service, out.HasNRC)
	}
	err := out.Err()
	if err == nil {
		t.Fatal("Err() should return an error for a negative response")
	}
	nre, ok := err.(*NegativeResponseError)
	if !ok || nre.NRC != NRCRequestOutOfRange {
		t.Errorf("Err() = %v", err)
	}
	if nre.IsRetryable() {
		t.Error("requestOutOfRange is not retryable")
	}
}

func TestInterpret_EchoedIdentifier(t *testing.T) {
	resp := []byte{0x62, 0x01, 0xF5, 0x00, 0x2A}

	lenient := Interpret(resp, 0x01F4, UInt16, InterpretOptions{})
	if lenient.Kind != Value {
		t.Errorf("lenient Kind = %v, want VALUE", lenient.Kind)
	}

	strict := Interpret(resp, 0x01F4, UInt16, InterpretOptions{StrictIdentifier: true})
	if strict.Kind != Malformed {
		t.Errorf("strict Kind = %v, want MALFORMED", strict.Kind)
	}

	match := Interpret(resp, 0x01F5, UInt16, InterpretOptions{StrictIdentifier: true})
	if match.Kind != Value {
		t.Errorf("strict matching Kind = %v, want VALUE", match.Kind)
	}
}

func TestInterpret_NeverPanics(t *testing.T) {
	inputs := [][]byte{
		{0x7F}, {0x62}, {0x62, 0x00}, {0x00}, {0xFF, 0xFF, 0xFF, 0xFF, 0xFF},
	}
	for _, in := range inputs {
		for _, typ := range ScalarTypes {
			_ = Interpret(in, 0, typ, InterpretOptions{StrictIdentifier: true})
		}
	}
}

func TestOutcomeApply(t *testing.T) {
	prev := UInt8Value(9)

	if got := (Outcome{Kind: Value, Value: UInt8Value(1)}).Apply(prev); got != UInt8Value(1) {
		t.Errorf("Value should replace previous, got %v", got)
	}
	if got := (Outcome{Kind: NoData}).Apply(prev); got.IsKnown() {
		t.Errorf("NoData should reset to Unknown, got %v", got)
	}
	if got := (Outcome{Kind: NegativeResponse, NRC: 0x31, HasNRC: true}).Apply(prev); got != prev {
		t.Errorf("NegativeResponse should keep previous, got %v", got)
	}
	if got := (Outcome{Kind: Malformed}).Apply(prev); got != prev {
		t.Errorf("Malformed should keep previous, got %v", got)
	}
}

func TestNRCName(t *testing.T) {
	if got := NRCName(0x31); got != "requestOutOfRange" {
		t.Errorf("NRCName(0x31) = %q", got)
	}
	if got := NRCName(0x01); got != "unknown" {
		t.Errorf("NRCName(0x01) = %q", got)
	}
}
