// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package poller

import (
	"fmt"
	"sort"
	"time"

	"github.com/Thermoquad/udscope/pkg/uds"
)

// Statistics tracks transaction counts and rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	Transactions uint64
	Values       uint64
	NoData       uint64 // includes timeouts
	Timeouts     uint64
	Negative     uint64
	Malformed    uint64
	IOErrors     uint64
	Cycles       uint64

	// NRCs counts negative responses by code
	NRCs map[byte]uint64

	// Rates (calculated)
	TransactionRate float64 // transactions/sec
	ErrorRate       float64 // failed transactions/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
		NRCs:           make(map[byte]uint64),
	}
}

// Update counts one transaction. timedOut marks a NoData outcome caused by
// no reply; err is a transport failure.
func (s *Statistics) Update(out uds.Outcome, timedOut bool, err error) {
	s.Transactions++
	s.LastUpdateTime = time.Now()

	if err != nil {
		s.IOErrors++
		s.NoData++
		return
	}

	switch out.Kind {
	case uds.Value:
		s.Values++
	case uds.NoData:
		s.NoData++
		if timedOut {
			s.Timeouts++
		}
	case uds.NegativeResponse:
		s.Negative++
		if out.HasNRC {
			s.NRCs[out.NRC]++
		}
	case uds.Malformed:
		s.Malformed++
	}
}

// Errors returns the number of transactions that produced no value for a
// reason other than a plain timeout
func (s *Statistics) Errors() uint64 {
	return s.Negative + s.Malformed + s.IOErrors + (s.NoData - s.Timeouts - s.IOErrors)
}

// CalculateRates calculates transaction and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.TransactionRate = float64(s.Transactions) / elapsed
		s.ErrorRate = float64(s.Errors()) / elapsed
	}
}

// Clone returns a deep copy
func (s *Statistics) Clone() Statistics {
	c := *s
	c.NRCs = make(map[byte]uint64, len(s.NRCs))
	for k, v := range s.NRCs {
		c.NRCs[k] = v
	}
	return c
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	percent := func(n uint64) float64 {
		if s.Transactions == 0 {
			return 0
		}
		return float64(n) * 100.0 / float64(s.Transactions)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Cycles:          %8d\n", s.Cycles)
	result += fmt.Sprintf("Transactions:    %8d\n", s.Transactions)
	result += fmt.Sprintf("Values:          %8d (%.1f%%)\n", s.Values, percent(s.Values))
	result += fmt.Sprintf("No Data:         %8d (%.1f%%)\n", s.NoData, percent(s.NoData))
	if s.Timeouts > 0 {
		result += fmt.Sprintf("  Timeouts:         %5d\n", s.Timeouts)
	}
	if s.Negative > 0 {
		result += fmt.Sprintf("Negative:        %8d (%.1f%%)\n", s.Negative, percent(s.Negative))
		codes := make([]int, 0, len(s.NRCs))
		for nrc := range s.NRCs {
			codes = append(codes, int(nrc))
		}
		sort.Ints(codes)
		for _, c := range codes {
			name := uds.NRCName(byte(c))
			result += fmt.Sprintf("  0x%02X %-28s %5d\n", c, name, s.NRCs[byte(c)])
		}
	}
	if s.Malformed > 0 {
		result += fmt.Sprintf("Malformed:       %8d (%.1f%%)\n", s.Malformed, percent(s.Malformed))
	}
	if s.IOErrors > 0 {
		result += fmt.Sprintf("I/O Errors:      %8d (%.1f%%)\n", s.IOErrors, percent(s.IOErrors))
	}

	result += fmt.Sprintf("Transaction Rate:%8.1f req/sec\n", s.TransactionRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
