// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package datalist

import (
	"math"
	"strings"
)

// sparkBlocks are the eight bar heights used by Sparkline
var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

// History is a fixed-capacity ring of samples. Push evicts the oldest sample
// once full. Not safe for concurrent use; Table guards it.
type History struct {
	buf   []float64
	start int
	size  int
}

// NewHistory creates a ring holding up to capacity samples
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{buf: make([]float64, capacity)}
}

// Push appends a sample, evicting the oldest when full
func (h *History) Push(v float64) {
	if h.size < len(h.buf) {
		h.buf[(h.start+h.size)%len(h.buf)] = v
		h.size++
		return
	}
	h.buf[h.start] = v
	h.start = (h.start + 1) % len(h.buf)
}

// Len returns the number of stored samples
func (h *History) Len() int { return h.size }

// Cap returns the ring capacity
func (h *History) Cap() int { return len(h.buf) }

// Values returns the samples oldest first
func (h *History) Values() []float64 {
	out := make([]float64, h.size)
	for i := 0; i < h.size; i++ {
		out[i] = h.buf[(h.start+i)%len(h.buf)]
	}
	return out
}

// Last returns the newest sample
func (h *History) Last() (float64, bool) {
	if h.size == 0 {
		return math.NaN(), false
	}
	return h.buf[(h.start+h.size-1)%len(h.buf)], true
}

// Sparkline renders the newest width samples as block characters scaled
// between their min and max. NaN samples (no data) render as spaces.
func Sparkline(values []float64, width int) string {
	if width <= 0 {
		return ""
	}
	if len(values) > width {
		values = values[len(values)-width:]
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	var s strings.Builder
	for _, v := range values {
		switch {
		case math.IsNaN(v) || math.IsInf(v, 0):
			s.WriteRune(' ')
		case hi == lo:
			s.WriteRune(sparkBlocks[len(sparkBlocks)/2])
		default:
			idx := int(math.Round((v - lo) / (hi - lo) * float64(len(sparkBlocks)-1)))
			s.WriteRune(sparkBlocks[idx])
		}
	}
	return s.String()
}
