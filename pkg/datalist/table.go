// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package datalist

import (
	"sync"
	"time"

	"github.com/Thermoquad/udscope/pkg/uds"
)

// DefaultHistorySize is the number of samples kept per row
const DefaultHistorySize = 120

// RowSnapshot is a consistent copy of one row's state
type RowSnapshot struct {
	Row
	Value   uds.ScalarValue
	Outcome uds.OutcomeKind
	NRC     byte
	Updated time.Time
	History []float64
}

type rowState struct {
	value   uds.ScalarValue
	outcome uds.OutcomeKind
	nrc     byte
	updated time.Time
	history *History
}

// Table holds the rows and their latest values. One poller writes, any
// number of renderers read; every value is replaced atomically under the
// table lock so a reader never sees a half-written sample.
type Table struct {
	mu     sync.RWMutex
	rows   []Row
	states []rowState
}

// NewTable creates a table with every value unknown
func NewTable(rows []Row, historySize int) *Table {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	t := &Table{
		rows:   append([]Row(nil), rows...),
		states: make([]rowState, len(rows)),
	}
	for i := range t.states {
		t.states[i] = rowState{outcome: uds.NoData, history: NewHistory(historySize)}
	}
	return t
}

// Len returns the number of rows
func (t *Table) Len() int {
	return len(t.rows)
}

// Row returns the static definition of row i
func (t *Table) Row(i int) Row {
	return t.rows[i]
}

// Value returns the current value of row i
func (t *Table) Value(i int) uds.ScalarValue {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.states[i].value
}

// Apply stores the result of one transaction for row i and returns the
// value now held. See uds.Outcome.Apply for the update policy.
func (t *Table) Apply(i int, out uds.Outcome, at time.Time) uds.ScalarValue {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := &t.states[i]
	st.value = out.Apply(st.value)
	st.outcome = out.Kind
	st.nrc = out.NRC
	st.updated = at
	st.history.Push(st.value.Float64())
	return st.value
}

// Snapshot copies every row under a single read lock
func (t *Table) Snapshot() []RowSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]RowSnapshot, len(t.rows))
	for i, r := range t.rows {
		st := t.states[i]
		out[i] = RowSnapshot{
			Row:     r,
			Value:   st.value,
			Outcome: st.outcome,
			NRC:     st.nrc,
			Updated: st.updated,
			History: st.history.Values(),
		}
	}
	return out
}

// Reset clears every value and history
func (t *Table) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.states {
		size := t.states[i].history.Cap()
		t.states[i] = rowState{outcome: uds.NoData, history: NewHistory(size)}
	}
}
