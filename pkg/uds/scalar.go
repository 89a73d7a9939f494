// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package uds

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ScalarType identifies the encoding of a data identifier's payload
type ScalarType uint8

// Supported scalar encodings
const (
	Float64 ScalarType = iota
	Float32
	UInt32
	Int32
	UInt16
	Int16
	UInt8
	Int8
)

// ScalarTypes lists every supported encoding in declaration order
var ScalarTypes = []ScalarType{Float64, Float32, UInt32, Int32, UInt16, Int16, UInt8, Int8}

// Width returns the fixed payload width in bytes (0 for an invalid type)
func (t ScalarType) Width() int {
	switch t {
	case Float64:
		return 8
	case Float32, UInt32, Int32:
		return 4
	case UInt16, Int16:
		return 2
	case UInt8, Int8:
		return 1
	default:
		return 0
	}
}

// IsFloat reports whether the type is an IEEE-754 encoding
func (t ScalarType) IsFloat() bool {
	return t == Float64 || t == Float32
}

// IsSigned reports whether an integer type is two's complement
func (t ScalarType) IsSigned() bool {
	return t == Int32 || t == Int16 || t == Int8
}

// String returns the canonical lower-case name of the type
func (t ScalarType) String() string {
	switch t {
	case Float64:
		return "float64"
	case Float32:
		return "float32"
	case UInt32:
		return "uint32"
	case Int32:
		return "int32"
	case UInt16:
		return "uint16"
	case Int16:
		return "int16"
	case UInt8:
		return "uint8"
	case Int8:
		return "int8"
	default:
		return fmt.Sprintf("ScalarType(%d)", uint8(t))
	}
}

// TypeFromName maps a configured type name ("float32", "INT16", "double" ...)
// to its ScalarType. The second result is false for unrecognized names.
func TypeFromName(name string) (ScalarType, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "float64", "double":
		return Float64, true
	case "float32", "single":
		return Float32, true
	case "uint32":
		return UInt32, true
	case "int32":
		return Int32, true
	case "uint16":
		return UInt16, true
	case "int16":
		return Int16, true
	case "uint8":
		return UInt8, true
	case "int8":
		return Int8, true
	}
	return 0, false
}

// ScalarValue holds exactly one decoded scalar. The zero value is the
// "unknown" sentinel, which widens to NaN.
type ScalarValue struct {
	typ   ScalarType
	bits  uint64 // raw big-endian bits, zero-extended
	valid bool
}

// Unknown returns the "no value" sentinel
func Unknown() ScalarValue {
	return ScalarValue{}
}

// Constructors, one per variant

func Float64Value(v float64) ScalarValue {
	return ScalarValue{typ: Float64, bits: math.Float64bits(v), valid: true}
}

func Float32Value(v float32) ScalarValue {
	return ScalarValue{typ: Float32, bits: uint64(math.Float32bits(v)), valid: true}
}

func UInt32Value(v uint32) ScalarValue {
	return ScalarValue{typ: UInt32, bits: uint64(v), valid: true}
}

func Int32Value(v int32) ScalarValue {
	return ScalarValue{typ: Int32, bits: uint64(uint32(v)), valid: true}
}

func UInt16Value(v uint16) ScalarValue {
	return ScalarValue{typ: UInt16, bits: uint64(v), valid: true}
}

func Int16Value(v int16) ScalarValue {
	return ScalarValue{typ: Int16, bits: uint64(uint16(v)), valid: true}
}

func UInt8Value(v uint8) ScalarValue {
	return ScalarValue{typ: UInt8, bits: uint64(v), valid: true}
}

func Int8Value(v int8) ScalarValue {
	return ScalarValue{typ: Int8, bits: uint64(uint8(v)), valid: true}
}

// ValueFromBits rebuilds a value from its type and raw bits, as stored by
// Bits. Bits above the type's width are discarded.
func ValueFromBits(t ScalarType, bits uint64) (ScalarValue, bool) {
	w := t.Width()
	if w == 0 {
		return Unknown(), false
	}
	if w < 8 {
		bits &= 1<<(uint(w)*8) - 1
	}
	return ScalarValue{typ: t, bits: bits, valid: true}, true
}

// IsKnown reports whether the value holds a decoded scalar
func (v ScalarValue) IsKnown() bool { return v.valid }

// Type returns the active variant (meaningless when !IsKnown)
func (v ScalarValue) Type() ScalarType { return v.typ }

// Bits returns the raw bit pattern, zero-extended to 64 bits
func (v ScalarValue) Bits() uint64 { return v.bits }

// Typed accessors. Each reports false when the active variant differs.

func (v ScalarValue) AsFloat64() (float64, bool) {
	return math.Float64frombits(v.bits), v.valid && v.typ == Float64
}

func (v ScalarValue) AsFloat32() (float32, bool) {
	return math.Float32frombits(uint32(v.bits)), v.valid && v.typ == Float32
}

func (v ScalarValue) AsUInt32() (uint32, bool) {
	return uint32(v.bits), v.valid && v.typ == UInt32
}

func (v ScalarValue) AsInt32() (int32, bool) {
	return int32(uint32(v.bits)), v.valid && v.typ == Int32
}

func (v ScalarValue) AsUInt16() (uint16, bool) {
	return uint16(v.bits), v.valid && v.typ == UInt16
}

func (v ScalarValue) AsInt16() (int16, bool) {
	return int16(uint16(v.bits)), v.valid && v.typ == Int16
}

func (v ScalarValue) AsUInt8() (uint8, bool) {
	return uint8(v.bits), v.valid && v.typ == UInt8
}

func (v ScalarValue) AsInt8() (int8, bool) {
	return int8(uint8(v.bits)), v.valid && v.typ == Int8
}

// Float64 widens the value to a float64. Unknown values return NaN.
func (v ScalarValue) Float64() float64 {
	if !v.valid {
		return math.NaN()
	}
	switch v.typ {
	case Float64:
		return math.Float64frombits(v.bits)
	case Float32:
		return float64(math.Float32frombits(uint32(v.bits)))
	case UInt32:
		return float64(uint32(v.bits))
	case Int32:
		return float64(int32(uint32(v.bits)))
	case UInt16:
		return float64(uint16(v.bits))
	case Int16:
		return float64(int16(uint16(v.bits)))
	case UInt8:
		return float64(uint8(v.bits))
	case Int8:
		return float64(int8(uint8(v.bits)))
	}
	return math.NaN()
}

// Decode interprets the first t.Width() bytes of b as a big-endian scalar.
// Trailing bytes are ignored. Returns false if b is too short.
func Decode(b []byte, t ScalarType) (ScalarValue, bool) {
	w := t.Width()
	if w == 0 || len(b) < w {
		return Unknown(), false
	}

	switch t {
	case Float64:
		return Float64Value(math.Float64frombits(binary.BigEndian.Uint64(b))), true
	case Float32:
		return Float32Value(math.Float32frombits(binary.BigEndian.Uint32(b))), true
	case UInt32:
		return UInt32Value(binary.BigEndian.Uint32(b)), true
	case Int32:
		return Int32Value(int32(binary.BigEndian.Uint32(b))), true
	case UInt16:
		return UInt16Value(binary.BigEndian.Uint16(b)), true
	case Int16:
		return Int16Value(int16(binary.BigEndian.Uint16(b))), true
	case UInt8:
		return UInt8Value(b[0]), true
	case Int8:
		return Int8Value(int8(b[0])), true
	}
	return Unknown(), false
}

// DisplayMode selects how values are rendered
type DisplayMode uint8

// Display modes
const (
	ModeDec DisplayMode = iota
	ModeHex
	ModeBin
)

// String returns the mode's short name ("dec", "hex", "bin")
func (m DisplayMode) String() string {
	switch m {
	case ModeHex:
		return "hex"
	case ModeBin:
		return "bin"
	default:
		return "dec"
	}
}

// ParseDisplayMode maps "dec", "hex" or "bin" to a DisplayMode
func ParseDisplayMode(s string) (DisplayMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dec", "":
		return ModeDec, nil
	case "hex":
		return ModeHex, nil
	case "bin":
		return ModeBin, nil
	}
	return ModeDec, fmt.Errorf("unknown display mode %q (use dec, hex or bin)", s)
}

// Toggle switches to mode, or back to decimal if mode is already active
func (m DisplayMode) Toggle(mode DisplayMode) DisplayMode {
	if m == mode {
		return ModeDec
	}
	return mode
}

// Format renders v for display. Hex and binary apply to integer types only;
// floating types fall back to decimal in every mode.
func Format(v ScalarValue, t ScalarType, mode DisplayMode) string {
	if !v.valid {
		return "NaN"
	}
	if v.typ != t {
		// Stored value came from a different type; render what we hold.
		t = v.typ
	}

	if t.IsFloat() || mode == ModeDec {
		return formatDecimal(v)
	}

	width := t.Width() * 8
	switch mode {
	case ModeHex:
		return "0x" + strings.ToUpper(strconv.FormatUint(v.bits, 16))
	case ModeBin:
		digits := strconv.FormatUint(v.bits, 2)
		if pad := width - len(digits); pad > 0 {
			digits = strings.Repeat("0", pad) + digits
		}
		return digits + "b"
	}
	return formatDecimal(v)
}

func formatDecimal(v ScalarValue) string {
	switch v.typ {
	case Float64:
		return strconv.FormatFloat(math.Float64frombits(v.bits), 'g', -1, 64)
	case Float32:
		return strconv.FormatFloat(float64(math.Float32frombits(uint32(v.bits))), 'g', -1, 32)
	case Int32, Int16, Int8:
		return strconv.FormatInt(int64(v.Float64()), 10)
	default:
		return strconv.FormatUint(v.bits, 10)
	}
}

// String renders the value in decimal
func (v ScalarValue) String() string {
	return Format(v, v.typ, ModeDec)
}
