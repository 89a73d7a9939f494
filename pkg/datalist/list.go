// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package datalist loads the list of polled data identifiers and holds their
// latest values for concurrent polling and rendering.
package datalist

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/Thermoquad/udscope/pkg/uds"
)

// ErrNoRows is returned when a list yields no usable entries
var ErrNoRows = errors.New("no usable entries in data list")

// Row is one polled data point
type Row struct {
	Label string
	ID    uint16
	Type  uds.ScalarType
}

// Skipped records a list entry that was not loaded
type Skipped struct {
	Line   int
	Reason string
}

func (s Skipped) String() string {
	return fmt.Sprintf("line %d: %s", s.Line, s.Reason)
}

// Load reads "label,id,type" lines. Blank lines and lines starting with '#'
// are ignored. Entries with a missing column, a bad identifier or an unknown
// type name are skipped and reported; ErrNoRows is returned if nothing loads.
func Load(r io.Reader) ([]Row, []Skipped, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.Comment = '#'
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true

	var rows []Row
	var skipped []Skipped
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				skipped = append(skipped, Skipped{Line: perr.Line, Reason: perr.Err.Error()})
				continue
			}
			return nil, nil, fmt.Errorf("reading data list: %w", err)
		}

		row, reason := parseRecord(record)
		if reason != "" {
			line, _ := cr.FieldPos(0)
			skipped = append(skipped, Skipped{Line: line, Reason: reason})
			continue
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, skipped, ErrNoRows
	}
	return rows, skipped, nil
}

// LoadFile loads a data list from path
func LoadFile(path string) ([]Row, []Skipped, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open data list: %w", err)
	}
	defer f.Close()

	rows, skipped, err := Load(f)
	if err != nil {
		return nil, skipped, fmt.Errorf("%s: %w", path, err)
	}
	return rows, skipped, nil
}

func parseRecord(record []string) (Row, string) {
	if len(record) < 3 {
		return Row{}, fmt.Sprintf("expected label,id,type; got %d field(s)", len(record))
	}

	label := strings.TrimSpace(record[0])
	if label == "" {
		return Row{}, "empty label"
	}

	id, err := ParseID(record[1])
	if err != nil {
		return Row{}, err.Error()
	}

	typ, ok := uds.TypeFromName(record[2])
	if !ok {
		return Row{}, fmt.Sprintf("unknown type %q", strings.TrimSpace(record[2]))
	}

	return Row{Label: label, ID: id, Type: typ}, ""
}

// ParseID parses a data identifier in decimal or 0x-prefixed hex
func ParseID(s string) (uint16, error) {
	s = strings.TrimSpace(s)
	digits, base := s, 10
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		digits, base = s[2:], 16
	}
	v, err := strconv.ParseUint(digits, base, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid identifier %q", s)
	}
	return uint16(v), nil
}
