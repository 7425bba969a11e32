package book

import (
	"github.com/BookmapAPI/bitfinex-adapter/internal/symbol"
	"github.com/BookmapAPI/bitfinex-adapter/internal/wire"
)

// AggregatedBook mirrors one aggregated price-level book. Levels are keyed
// by their integer price coordinate; the stored value is the quantized
// aggregate size at that level.
//
// Not safe for concurrent use: the session feeds each book from its single
// read loop.
type AggregatedBook struct {
	sym  symbol.BookSymbol
	conv *Converter
	bids map[int]int
	asks map[int]int
}

func NewAggregatedBook(sym symbol.BookSymbol, conv *Converter) *AggregatedBook {
	return &AggregatedBook{
		sym:  sym,
		conv: conv,
		bids: make(map[int]int),
		asks: make(map[int]int),
	}
}

func (b *AggregatedBook) side(bid bool) map[int]int {
	if bid {
		return b.bids
	}
	return b.asks
}

// ApplyUpdate applies a single level change. Count zero removes the level;
// otherwise the level is set to the quantized size. One DepthEvent is
// emitted per applied change.
func (b *AggregatedBook) ApplyUpdate(level wire.AggregatedLevel, emit func(DepthEvent)) error {
	bid := level.Bid()
	price, err := b.conv.ToInteger(b.sym.CurrencyPair, b.sym.Precision, level.Price)
	if err != nil {
		return err
	}

	if level.Count == 0 {
		delete(b.side(bid), price)
		emit(DepthEvent{Bid: bid, Price: price, Size: 0})
		return nil
	}

	size, err := b.conv.AmountToInteger(b.sym.CurrencyPair, level.Amount)
	if err != nil {
		return err
	}
	b.side(bid)[price] = size
	emit(DepthEvent{Bid: bid, Price: price, Size: size})
	return nil
}

// ApplySnapshot reconciles the book against a full snapshot: levels present
// before but absent from the snapshot are retracted with a zero-size event,
// then every snapshot level is applied as an update. Replaying the same
// snapshot is a no-op apart from re-emitting its levels.
func (b *AggregatedBook) ApplySnapshot(levels []wire.AggregatedLevel, emit func(DepthEvent)) error {
	inSnapshot := map[bool]map[int]bool{true: {}, false: {}}
	for _, level := range levels {
		price, err := b.conv.ToInteger(b.sym.CurrencyPair, b.sym.Precision, level.Price)
		if err != nil {
			return err
		}
		inSnapshot[level.Bid()][price] = true
	}

	for _, bid := range []bool{true, false} {
		for price := range b.side(bid) {
			if !inSnapshot[bid][price] {
				delete(b.side(bid), price)
				emit(DepthEvent{Bid: bid, Price: price, Size: 0})
			}
		}
	}

	for _, level := range levels {
		if err := b.ApplyUpdate(level, emit); err != nil {
			return err
		}
	}
	return nil
}
