package swap

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bankii-labs/bankiiswap/internal/constants"
	"github.com/bankii-labs/bankiiswap/internal/jupiter"
	"github.com/bankii-labs/bankiiswap/internal/quote"
)

// Sequencer hands out increasing sequence numbers so only the newest response is applied.
type Sequencer struct {
	n atomic.Uint64
}

func (s *Sequencer) Next() uint64 { return s.n.Add(1) }

// IsLatest reports whether seq is the most recently issued number.
func (s *Sequencer) IsLatest(seq uint64) bool { return s.n.Load() == seq }

// Debouncer runs the most recently triggered function once no new trigger
// has arrived for the delay.
type Debouncer struct {
	mu    sync.Mutex
	delay time.Duration
	timer *time.Timer
	fn    func()
	runs  sync.WaitGroup // scheduled or running functions
}

func NewDebouncer(delay time.Duration) *Debouncer {
	if delay <= 0 {
		delay = constants.QuoteDebounce
	}
	return &Debouncer{delay: delay}
}

func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelLocked()

	d.runs.Add(1)
	var t *time.Timer
	t = time.AfterFunc(d.delay, func() {
		defer d.runs.Done()
		d.mu.Lock()
		if d.timer == t {
			d.timer, d.fn = nil, nil
		}
		d.mu.Unlock()
		fn()
	})
	d.timer, d.fn = t, fn
}

// Stop cancels a pending run.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelLocked()
}

// Flush runs a pending function now instead of after the delay, then waits
// for every run already started. Trigger must not be called concurrently.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	var fn func()
	if d.timer != nil && d.timer.Stop() {
		fn = d.fn
	}
	d.timer, d.fn = nil, nil
	d.mu.Unlock()

	if fn != nil {
		fn()
		d.runs.Done()
	}
	d.runs.Wait()
}

func (d *Debouncer) cancelLocked() {
	if d.timer != nil && d.timer.Stop() {
		d.runs.Done()
	}
	d.timer, d.fn = nil, nil
}

// QuoteSource is satisfied by *quote.Service.
type QuoteSource interface {
	GetQuote(ctx context.Context, req quote.Request) (*jupiter.QuoteResponse, error)
}

// QuoteUpdate is delivered for the newest fetch only.
type QuoteUpdate struct {
	Seq     uint64
	Request quote.Request
	Quote   *jupiter.QuoteResponse
	Err     error
}

// DebouncedQuoter turns a stream of input edits into debounced, sequence-guarded quote fetches.
type DebouncedQuoter struct {
	ctx       context.Context
	source    QuoteSource
	seq       Sequencer
	debouncer *Debouncer

	mu       sync.Mutex // held from the latest-check through onUpdate
	onUpdate func(QuoteUpdate)
}

// NewDebouncedQuoter calls onUpdate from a background goroutine with the result
// of the latest fetch. Responses overtaken by a newer fetch are dropped.
// onUpdate must not call back into the quoter.
func NewDebouncedQuoter(ctx context.Context, source QuoteSource, delay time.Duration, onUpdate func(QuoteUpdate)) *DebouncedQuoter {
	return &DebouncedQuoter{
		ctx:       ctx,
		source:    source,
		debouncer: NewDebouncer(delay),
		onUpdate:  onUpdate,
	}
}

// Request schedules a fetch for req, replacing any fetch still waiting on the debounce delay.
func (q *DebouncedQuoter) Request(req quote.Request) {
	q.debouncer.Trigger(func() {
		seq := q.seq.Next()
		res, err := q.source.GetQuote(q.ctx, req)

		q.mu.Lock()
		defer q.mu.Unlock()
		if !q.seq.IsLatest(seq) || q.ctx.Err() != nil {
			return
		}
		q.onUpdate(QuoteUpdate{Seq: seq, Request: req, Quote: res, Err: err})
	})
}

// Invalidate drops any pending or in-flight fetch, e.g. when the input is cleared.
// An update already being delivered finishes before Invalidate returns.
func (q *DebouncedQuoter) Invalidate() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.debouncer.Stop()
	q.seq.Next()
}

// Flush fetches a request still waiting on the debounce delay right away and
// blocks until every started fetch has been delivered or dropped.
func (q *DebouncedQuoter) Flush() { q.debouncer.Flush() }

func (q *DebouncedQuoter) Stop() { q.debouncer.Stop() }
