package book

import (
	"testing"

	"github.com/BookmapAPI/bitfinex-adapter/internal/symbol"
	"github.com/BookmapAPI/bitfinex-adapter/internal/wire"
)

func newTestRawBook(t *testing.T) *RawBook {
	t.Helper()
	sym := symbol.RawBookSymbol{CurrencyPair: "BTC_USD"}
	return NewRawBook(sym, symbol.PrecisionP0, newTestConverter(t))
}

func rawOrder(t *testing.T, id int64, price, amount string) wire.RawOrder {
	t.Helper()
	return wire.RawOrder{OrderID: id, Price: dec(t, price), Amount: dec(t, amount)}
}

func TestRawOrdersAggregateIntoLevels(t *testing.T) {
	b := newTestRawBook(t)
	rec := &eventRecorder{}

	if err := b.ApplyUpdate(rawOrder(t, 1, "7245.3", "1"), rec.record); err != nil {
		t.Fatalf("ApplyUpdate: %v", err)
	}
	if err := b.ApplyUpdate(rawOrder(t, 2, "7245.3", "0.5"), rec.record); err != nil {
		t.Fatalf("ApplyUpdate: %v", err)
	}

	want := []DepthEvent{
		{Bid: true, Price: 72453, Size: 10000},
		{Bid: true, Price: 72453, Size: 15000},
	}
	if len(rec.events) != len(want) {
		t.Fatalf("events = %v, want %v", rec.events, want)
	}
	for i := range want {
		if rec.events[i] != want[i] {
			t.Errorf("event %d = %v, want %v", i, rec.events[i], want[i])
		}
	}
}

func TestRawRemovalEmitsRemainingAggregate(t *testing.T) {
	b := newTestRawBook(t)
	rec := &eventRecorder{}

	if err := b.ApplyUpdate(rawOrder(t, 1, "7245.3", "1"), rec.record); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := b.ApplyUpdate(rawOrder(t, 2, "7245.3", "0.5"), rec.record); err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec.reset()
	if err := b.ApplyUpdate(rawOrder(t, 1, "0", "1"), rec.record); err != nil {
		t.Fatalf("remove: %v", err)
	}
	want := DepthEvent{Bid: true, Price: 72453, Size: 5000}
	if len(rec.events) != 1 || rec.events[0] != want {
		t.Fatalf("events = %v, want [%v]", rec.events, want)
	}

	rec.reset()
	if err := b.ApplyUpdate(rawOrder(t, 2, "0", "0.5"), rec.record); err != nil {
		t.Fatalf("remove last: %v", err)
	}
	want = DepthEvent{Bid: true, Price: 72453, Size: 0}
	if len(rec.events) != 1 || rec.events[0] != want {
		t.Fatalf("events = %v, want [%v]", rec.events, want)
	}
}

func TestRawRemovalOfUnknownOrderIgnored(t *testing.T) {
	b := newTestRawBook(t)
	rec := &eventRecorder{}

	if err := b.ApplyUpdate(rawOrder(t, 99, "0", "1"), rec.record); err != nil {
		t.Fatalf("ApplyUpdate: %v", err)
	}
	if len(rec.events) != 0 {
		t.Errorf("removal of unknown order emitted %v", rec.events)
	}
}

func TestRawModificationMovesOrderBetweenLevels(t *testing.T) {
	b := newTestRawBook(t)
	rec := &eventRecorder{}

	if err := b.ApplyUpdate(rawOrder(t, 1, "7245.3", "1"), rec.record); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := b.ApplyUpdate(rawOrder(t, 2, "7245.3", "0.5"), rec.record); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// Order 1 moves down one level.
	rec.reset()
	if err := b.ApplyUpdate(rawOrder(t, 1, "7245.2", "1"), rec.record); err != nil {
		t.Fatalf("move: %v", err)
	}
	want := []DepthEvent{
		{Bid: true, Price: 72453, Size: 5000},
		{Bid: true, Price: 72452, Size: 10000},
	}
	if len(rec.events) != len(want) {
		t.Fatalf("events = %v, want %v", rec.events, want)
	}
	for i := range want {
		if rec.events[i] != want[i] {
			t.Errorf("event %d = %v, want %v", i, rec.events[i], want[i])
		}
	}
}

func TestRawRemoveThenReaddIsFreshInsert(t *testing.T) {
	b := newTestRawBook(t)
	rec := &eventRecorder{}

	if err := b.ApplyUpdate(rawOrder(t, 1, "7245.3", "1"), rec.record); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := b.ApplyUpdate(rawOrder(t, 1, "0", "1"), rec.record); err != nil {
		t.Fatalf("remove: %v", err)
	}

	rec.reset()
	if err := b.ApplyUpdate(rawOrder(t, 1, "7245.5", "-2"), rec.record); err != nil {
		t.Fatalf("re-add: %v", err)
	}
	want := DepthEvent{Bid: false, Price: 72455, Size: 20000}
	if len(rec.events) != 1 || rec.events[0] != want {
		t.Fatalf("events = %v, want [%v]", rec.events, want)
	}
}

func TestRawAskRoundsAwayFromBook(t *testing.T) {
	b := newTestRawBook(t)
	rec := &eventRecorder{}

	if err := b.ApplyUpdate(rawOrder(t, 1, "7245.31", "-1"), rec.record); err != nil {
		t.Fatalf("ApplyUpdate: %v", err)
	}
	want := DepthEvent{Bid: false, Price: 72454, Size: 10000}
	if len(rec.events) != 1 || rec.events[0] != want {
		t.Fatalf("events = %v, want [%v]", rec.events, want)
	}
}

func TestRawSnapshotRetractsStaleLevelsAndResetsOrders(t *testing.T) {
	b := newTestRawBook(t)
	rec := &eventRecorder{}

	seed := []wire.RawOrder{
		rawOrder(t, 1, "7245.3", "1"),
		rawOrder(t, 2, "7245.2", "0.5"),
		rawOrder(t, 3, "7245.5", "-2"),
	}
	for _, order := range seed {
		if err := b.ApplyUpdate(order, rec.record); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	// Snapshot after reconnect: order 2's level is gone, order 1 was
	// replaced by a new order at the same price.
	snapshot := []wire.RawOrder{
		rawOrder(t, 10, "7245.3", "0.7"),
		rawOrder(t, 3, "7245.5", "-2"),
	}
	rec.reset()
	if err := b.ApplySnapshot(snapshot, rec.record); err != nil {
		t.Fatalf("ApplySnapshot: %v", err)
	}

	sawRetraction := false
	for _, ev := range rec.events {
		if ev == (DepthEvent{Bid: true, Price: 72452, Size: 0}) {
			sawRetraction = true
		}
	}
	if !sawRetraction {
		t.Errorf("no zero-size retraction for stale level, events = %v", rec.events)
	}
	if b.bidLevels[72453] != 7000 {
		t.Errorf("bid level = %d, want the snapshot aggregate 7000", b.bidLevels[72453])
	}

	// Order 1 was dropped by the snapshot, so its id arriving again is a
	// fresh insert, not a modification.
	rec.reset()
	if err := b.ApplyUpdate(rawOrder(t, 1, "7245.4", "1"), rec.record); err != nil {
		t.Fatalf("re-add: %v", err)
	}
	want := DepthEvent{Bid: true, Price: 72454, Size: 10000}
	if len(rec.events) != 1 || rec.events[0] != want {
		t.Fatalf("events = %v, want [%v]", rec.events, want)
	}
}
