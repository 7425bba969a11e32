package book

import (
	"github.com/BookmapAPI/bitfinex-adapter/internal/symbol"
	"github.com/BookmapAPI/bitfinex-adapter/internal/wire"
)

// rawOrderState is the resting state of one exchange order: the side and
// quantized coordinates it currently contributes to.
type rawOrderState struct {
	bid   bool
	price int
	size  int
}

// RawBook mirrors one raw order-by-order book. Individual orders are keyed
// by exchange order id; per-side level maps hold the aggregate size resting
// at each integer price so order changes can be republished as level
// updates.
//
// Not safe for concurrent use: the session feeds each book from its single
// read loop.
type RawBook struct {
	sym       symbol.RawBookSymbol
	prec      symbol.Precision
	conv      *Converter
	orders    map[int64]rawOrderState
	bidLevels map[int]int
	askLevels map[int]int
}

// NewRawBook builds a raw book quantized at the given aggregated precision,
// which selects the price step the raw prices are rounded onto.
func NewRawBook(sym symbol.RawBookSymbol, prec symbol.Precision, conv *Converter) *RawBook {
	return &RawBook{
		sym:       sym,
		prec:      prec,
		conv:      conv,
		orders:    make(map[int64]rawOrderState),
		bidLevels: make(map[int]int),
		askLevels: make(map[int]int),
	}
}

func (b *RawBook) levels(bid bool) map[int]int {
	if bid {
		return b.bidLevels
	}
	return b.askLevels
}

// removeFromLevel takes an order's size out of its level and emits the
// remaining aggregate, zero when the level empties.
func (b *RawBook) removeFromLevel(st rawOrderState, emit func(DepthEvent)) {
	lv := b.levels(st.bid)
	remaining := lv[st.price] - st.size
	if remaining <= 0 {
		delete(lv, st.price)
		remaining = 0
	} else {
		lv[st.price] = remaining
	}
	emit(DepthEvent{Bid: st.bid, Price: st.price, Size: remaining})
}

func (b *RawBook) addToLevel(st rawOrderState, emit func(DepthEvent)) {
	lv := b.levels(st.bid)
	lv[st.price] += st.size
	emit(DepthEvent{Bid: st.bid, Price: st.price, Size: lv[st.price]})
}

// ApplyUpdate applies one order change. Price zero removes the order;
// a known order id at a nonzero price is a modification, republished as a
// removal from the old level followed by an insertion at the new one.
// Removals of unknown order ids are ignored.
func (b *RawBook) ApplyUpdate(order wire.RawOrder, emit func(DepthEvent)) error {
	if order.Price.Sign() == 0 {
		b.remove(order.OrderID, emit)
		return nil
	}

	bid := order.Bid()
	price, err := b.conv.RoundToInteger(b.sym.CurrencyPair, b.prec, order.Price, bid)
	if err != nil {
		return err
	}
	if price == 0 {
		// Rounded below the coarsest representable level.
		b.remove(order.OrderID, emit)
		return nil
	}
	size, err := b.conv.AmountToInteger(b.sym.CurrencyPair, order.Amount)
	if err != nil {
		return err
	}

	if old, ok := b.orders[order.OrderID]; ok {
		b.removeFromLevel(old, emit)
	}
	st := rawOrderState{bid: bid, price: price, size: size}
	b.orders[order.OrderID] = st
	b.addToLevel(st, emit)
	return nil
}

func (b *RawBook) remove(orderID int64, emit func(DepthEvent)) {
	st, ok := b.orders[orderID]
	if !ok {
		return
	}
	delete(b.orders, orderID)
	b.removeFromLevel(st, emit)
}

// ApplySnapshot reconciles against a full snapshot: price levels present
// before but absent from the snapshot are retracted with zero-size events,
// the tracked order set is reset, and every snapshot order is inserted
// fresh. A removed order id reappearing later is treated as a new order.
func (b *RawBook) ApplySnapshot(orders []wire.RawOrder, emit func(DepthEvent)) error {
	inSnapshot := map[bool]map[int]bool{true: {}, false: {}}
	for _, order := range orders {
		if order.Price.Sign() == 0 {
			continue
		}
		bid := order.Bid()
		price, err := b.conv.RoundToInteger(b.sym.CurrencyPair, b.prec, order.Price, bid)
		if err != nil {
			return err
		}
		inSnapshot[bid][price] = true
	}

	for _, bid := range []bool{true, false} {
		for price := range b.levels(bid) {
			if !inSnapshot[bid][price] {
				emit(DepthEvent{Bid: bid, Price: price, Size: 0})
			}
		}
	}

	b.orders = make(map[int64]rawOrderState)
	b.bidLevels = make(map[int]int)
	b.askLevels = make(map[int]int)

	for _, order := range orders {
		if err := b.ApplyUpdate(order, emit); err != nil {
			return err
		}
	}
	return nil
}
