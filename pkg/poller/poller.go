// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package poller runs the ReadDataByIdentifier polling loop. A single
// goroutine owns every write to the data table; renderers read snapshots.
package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Thermoquad/udscope/pkg/datalist"
	"github.com/Thermoquad/udscope/pkg/transport"
	"github.com/Thermoquad/udscope/pkg/uds"
)

// Defaults
const (
	DefaultTimeout  = 100 * time.Millisecond
	DefaultInterval = 100 * time.Millisecond
)

// Config tunes the polling loop
type Config struct {
	Timeout  time.Duration // per request
	Interval time.Duration // pause between full cycles
	Strict   bool          // reject positive responses echoing another DID
}

// Result is the outcome of one row in one cycle
type Result struct {
	Index   int
	Row     datalist.Row
	Outcome uds.Outcome
	Value   uds.ScalarValue // value held by the row after this result
	RTT     time.Duration
	At      time.Time
	Timeout bool  // no reply within the request timeout
	Err     error // transport failure, never a timeout
}

// Option configures a Poller
type Option func(*Poller)

// WithOnCycle is called after every complete cycle
func WithOnCycle(fn func(cycle uint64)) Option {
	return func(p *Poller) { p.onCycle = fn }
}

// WithOnResult is called after every row transaction
func WithOnResult(fn func(Result)) Option {
	return func(p *Poller) { p.onResult = fn }
}

// WithOnError is called when the transport fails. Timeouts are not errors.
func WithOnError(fn func(row datalist.Row, err error)) Option {
	return func(p *Poller) { p.onError = fn }
}

// WithEnabled sets the initial polling state (default disabled)
func WithEnabled(enabled bool) Option {
	return func(p *Poller) { p.enabled.Store(enabled) }
}

// Poller polls every row of a table through one transport
type Poller struct {
	table *datalist.Table
	tp    transport.Transport
	cfg   Config

	enabled atomic.Bool
	wake    chan struct{}
	cycles  atomic.Uint64

	statsMu sync.Mutex
	stats   *Statistics

	onCycle  func(uint64)
	onResult func(Result)
	onError  func(datalist.Row, error)
}

// New creates a poller. Zero durations in cfg take the defaults.
func New(table *datalist.Table, tp transport.Transport, cfg Config, opts ...Option) *Poller {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	p := &Poller{
		table: table,
		tp:    tp,
		cfg:   cfg,
		wake:  make(chan struct{}, 1),
		stats: NewStatistics(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Enabled reports whether polling is running
func (p *Poller) Enabled() bool {
	return p.enabled.Load()
}

// SetEnabled starts or pauses polling
func (p *Poller) SetEnabled(enabled bool) {
	if p.enabled.Swap(enabled) != enabled && enabled {
		p.signal()
	}
}

// Toggle flips the polling state and returns the new state
func (p *Poller) Toggle() bool {
	for {
		old := p.enabled.Load()
		if p.enabled.CompareAndSwap(old, !old) {
			if !old {
				p.signal()
			}
			return !old
		}
	}
}

func (p *Poller) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Cycles returns the number of completed cycles
func (p *Poller) Cycles() uint64 {
	return p.cycles.Load()
}

// Stats returns a copy of the transaction statistics with rates computed
func (p *Poller) Stats() Statistics {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	p.stats.CalculateRates()
	return p.stats.Clone()
}

// ResetStats clears the transaction statistics
func (p *Poller) ResetStats() {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	p.stats.Reset()
}

// Run polls until ctx is cancelled. While disabled it idles until enabled.
func (p *Poller) Run(ctx context.Context) error {
	for {
		if !p.Enabled() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-p.wake:
			}
			continue
		}

		if _, err := p.PollOnce(ctx); err != nil {
			return err
		}

		timer := time.NewTimer(p.cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// PollOnce performs one full cycle over every row in list order. Per-row
// failures are contained in the results; only ctx cancellation stops the
// cycle early, returning the results gathered so far and ctx.Err().
func (p *Poller) PollOnce(ctx context.Context) ([]Result, error) {
	results := make([]Result, 0, p.table.Len())

	for i := 0; i < p.table.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		res := p.pollRow(ctx, i)
		if res.Err != nil && ctx.Err() != nil {
			// Shutdown interrupted the request; leave the row untouched
			return results, ctx.Err()
		}

		res.Value = p.table.Apply(i, res.Outcome, res.At)
		results = append(results, res)

		p.statsMu.Lock()
		p.stats.Update(res.Outcome, res.Timeout, res.Err)
		p.statsMu.Unlock()

		if p.onResult != nil {
			p.onResult(res)
		}
		if res.Err != nil && p.onError != nil {
			p.onError(res.Row, res.Err)
		}
	}

	n := p.cycles.Add(1)
	p.statsMu.Lock()
	p.stats.Cycles++
	p.statsMu.Unlock()

	if p.onCycle != nil {
		p.onCycle(n)
	}
	return results, nil
}

func (p *Poller) pollRow(ctx context.Context, i int) Result {
	row := p.table.Row(i)
	req := uds.BuildReadDataByIdentifier(row.ID)

	start := time.Now()
	resp, err := p.tp.Request(ctx, req, p.cfg.Timeout)
	res := Result{
		Index: i,
		Row:   row,
		RTT:   time.Since(start),
		At:    time.Now(),
		Err:   err,
	}

	if err != nil {
		res.Outcome = uds.Outcome{Kind: uds.NoData}
	} else {
		res.Timeout = len(resp) == 0
		res.Outcome = uds.Interpret(resp, row.ID, row.Type, uds.InterpretOptions{StrictIdentifier: p.cfg.Strict})
	}
	return res
}
