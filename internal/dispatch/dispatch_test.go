package dispatch

import (
	"sync"
	"testing"
	"time"

	"github.com/BookmapAPI/bitfinex-adapter/internal/symbol"
)

func TestSubmitPreservesPerSymbolOrder(t *testing.T) {
	d := NewDispatcher(64)
	sym := symbol.TradeSymbol{CurrencyPair: "BTC_USD"}

	var mu sync.Mutex
	var got []int
	for i := 0; i < 10; i++ {
		i := i
		d.Submit(sym, func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}
	d.Close()

	if len(got) != 10 {
		t.Fatalf("delivered %d jobs, want 10", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("job %d delivered out of order: got sequence %v", i, got)
		}
	}
}

func TestSlowListenerDoesNotStallOthers(t *testing.T) {
	d := NewDispatcher(4)
	defer d.Close()

	slow := symbol.TradeSymbol{CurrencyPair: "BTC_USD"}
	fast := symbol.TradeSymbol{CurrencyPair: "ETH_USD"}

	block := make(chan struct{})
	d.Submit(slow, func() { <-block })

	done := make(chan struct{})
	d.Submit(fast, func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("fast symbol's job was stalled by the slow one")
	}
	close(block)
}

func TestFullQueueDropsInsteadOfBlocking(t *testing.T) {
	d := NewDispatcher(2)
	defer d.Close()

	sym := symbol.TradeSymbol{CurrencyPair: "BTC_USD"}
	block := make(chan struct{})

	// One job occupies the worker, two fill the buffer.
	d.Submit(sym, func() { <-block })
	for i := 0; i < 100 && d.QueueDepth(sym) != 0; i++ {
		time.Sleep(10 * time.Millisecond)
	}
	d.Submit(sym, func() {})
	d.Submit(sym, func() {})

	delivered := make(chan struct{}, 1)
	start := time.Now()
	d.Submit(sym, func() { delivered <- struct{}{} })
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("Submit blocked for %v on a full queue", elapsed)
	}

	if got := d.Dropped(sym); got != 1 {
		t.Errorf("Dropped = %d, want 1", got)
	}
	close(block)

	select {
	case <-delivered:
		t.Error("dropped job was delivered anyway")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestDropQueueStopsDelivery(t *testing.T) {
	d := NewDispatcher(8)
	defer d.Close()

	sym := symbol.TradeSymbol{CurrencyPair: "BTC_USD"}
	d.Submit(sym, func() {})
	d.DropQueue(sym)

	if depth := d.QueueDepth(sym); depth != 0 {
		t.Errorf("QueueDepth after DropQueue = %d, want 0", depth)
	}

	// A new submit rebuilds the queue from scratch.
	done := make(chan struct{})
	d.Submit(sym, func() { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("queue was not recreated after DropQueue")
	}
}

func TestCloseDeliversPendingJobs(t *testing.T) {
	d := NewDispatcher(16)
	sym := symbol.TradeSymbol{CurrencyPair: "BTC_USD"}

	var mu sync.Mutex
	count := 0
	for i := 0; i < 5; i++ {
		d.Submit(sym, func() {
			mu.Lock()
			count++
			mu.Unlock()
		})
	}
	d.Close()

	if count != 5 {
		t.Errorf("delivered %d jobs before Close returned, want 5", count)
	}

	// Submit after Close is a no-op.
	d.Submit(sym, func() { t.Error("job ran after Close") })
	time.Sleep(50 * time.Millisecond)
}
