// Package dispatch delivers normalized market events to listener callbacks.
// Each subscription gets its own bounded queue drained by a dedicated
// worker, so a slow listener stalls only its own stream and can never back
// up the websocket read loop.
package dispatch

import (
	"sync"

	"github.com/BookmapAPI/bitfinex-adapter/internal/symbol"
	"github.com/BookmapAPI/bitfinex-adapter/logger"
)

// dropLogInterval throttles queue-overflow warnings.
const dropLogInterval = 1000

type queue struct {
	jobs      chan func()
	submitted uint64
	dropped   uint64
}

// Dispatcher fans events out to per-symbol worker goroutines.
type Dispatcher struct {
	mu     sync.Mutex
	closed bool
	buffer int
	queues map[symbol.StreamSymbol]*queue
	wg     sync.WaitGroup
	log    *logger.Entry
}

func NewDispatcher(buffer int) *Dispatcher {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Dispatcher{
		buffer: buffer,
		queues: make(map[symbol.StreamSymbol]*queue),
		log:    logger.GetLogger().WithComponent("dispatch"),
	}
}

// Submit enqueues a job on the symbol's queue, creating the queue on first
// use. When the queue is full the job is dropped and counted rather than
// blocking the caller.
func (d *Dispatcher) Submit(sym symbol.StreamSymbol, job func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	q, ok := d.queues[sym]
	if !ok {
		q = &queue{jobs: make(chan func(), d.buffer)}
		d.queues[sym] = q
		d.wg.Add(1)
		go d.drain(q)
	}

	select {
	case q.jobs <- job:
		q.submitted++
	default:
		q.dropped++
		if q.dropped == 1 || q.dropped%dropLogInterval == 0 {
			d.log.WithFields(logger.Fields{
				"symbol":  sym.String(),
				"dropped": q.dropped,
			}).Warn("listener queue full, dropping events")
		}
	}
}

func (d *Dispatcher) drain(q *queue) {
	defer d.wg.Done()
	for job := range q.jobs {
		job()
	}
}

// DropQueue discards the symbol's queue. Jobs already enqueued are still
// delivered before the worker exits.
func (d *Dispatcher) DropQueue(sym symbol.StreamSymbol) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if q, ok := d.queues[sym]; ok {
		delete(d.queues, sym)
		close(q.jobs)
	}
}

// Dropped returns how many events were discarded for the symbol because its
// queue was full.
func (d *Dispatcher) Dropped(sym symbol.StreamSymbol) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if q, ok := d.queues[sym]; ok {
		return q.dropped
	}
	return 0
}

// QueueDepth returns the number of pending jobs for the symbol.
func (d *Dispatcher) QueueDepth(sym symbol.StreamSymbol) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if q, ok := d.queues[sym]; ok {
		return len(q.jobs)
	}
	return 0
}

// Close shuts every queue down and waits for the workers to finish
// delivering what was already enqueued.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for sym, q := range d.queues {
		delete(d.queues, sym)
		close(q.jobs)
	}
	d.mu.Unlock()
	d.wg.Wait()
}
