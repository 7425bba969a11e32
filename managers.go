package bitfinex

import (
	"fmt"

	"github.com/BookmapAPI/bitfinex-adapter/internal/book"
	"github.com/BookmapAPI/bitfinex-adapter/internal/symbol"
)

// TradesManager subscribes executed-trade streams.
type TradesManager struct {
	a *Adapter
}

// Subscribe starts delivering the pair's trades to fn. One trade
// subscription per pair.
func (m *TradesManager) Subscribe(pair string, fn TradeListener) error {
	if fn == nil {
		return fmt.Errorf("nil trade listener")
	}
	if !m.a.instruments.Contains(pair) {
		return fmt.Errorf("unknown pair %s", pair)
	}
	return m.a.addSubscription(&subscription{
		sym:     symbol.TradeSymbol{CurrencyPair: pair},
		onTrade: fn,
	})
}

func (m *TradesManager) Unsubscribe(pair string) error {
	return m.a.removeSubscription(symbol.KindTrade, pair)
}

// OrderbookManager subscribes aggregated price-level books.
type OrderbookManager struct {
	a *Adapter
}

// Subscribe starts an aggregated book stream. Precision selects the price
// bucketing, length the depth (25 to 100 levels per side).
func (m *OrderbookManager) Subscribe(pair string, prec symbol.Precision, freq symbol.Frequency, length int, fn DepthListener) error {
	if fn == nil {
		return fmt.Errorf("nil depth listener")
	}
	if !m.a.instruments.Contains(pair) {
		return fmt.Errorf("unknown pair %s", pair)
	}
	sym, err := symbol.NewBookSymbol(pair, prec, freq, length)
	if err != nil {
		return err
	}
	return m.a.addSubscription(&subscription{
		sym:     sym,
		aggBook: book.NewAggregatedBook(sym, m.a.conv),
		onDepth: fn,
	})
}

// SubscribeWithStep picks the precision whose price step is closest to the
// preferred step and subscribes with it.
func (m *OrderbookManager) SubscribeWithStep(pair string, preferredStep float64, freq symbol.Frequency, length int, fn DepthListener) error {
	prec, err := m.a.conv.ClosestPrecision(pair, preferredStep)
	if err != nil {
		return err
	}
	return m.Subscribe(pair, prec, freq, length, fn)
}

// PriceStep returns the price step the pair's events use at a precision.
// Listener prices are integer multiples of it.
func (m *OrderbookManager) PriceStep(pair string, prec symbol.Precision) (float64, error) {
	return m.a.conv.PriceStep(pair, prec)
}

func (m *OrderbookManager) Unsubscribe(pair string) error {
	return m.a.removeSubscription(symbol.KindBook, pair)
}

// RawOrderbookManager subscribes raw order-by-order books, republished as
// price-level aggregates quantized at the chosen precision.
type RawOrderbookManager struct {
	a *Adapter
}

func (m *RawOrderbookManager) Subscribe(pair string, prec symbol.Precision, fn DepthListener) error {
	if fn == nil {
		return fmt.Errorf("nil depth listener")
	}
	if !m.a.instruments.Contains(pair) {
		return fmt.Errorf("unknown pair %s", pair)
	}
	if _, ok := prec.Index(); !ok {
		return fmt.Errorf("invalid quantization precision %q", prec)
	}
	sym := symbol.RawBookSymbol{CurrencyPair: pair}
	return m.a.addSubscription(&subscription{
		sym:     sym,
		rawBook: book.NewRawBook(sym, prec, m.a.conv),
		onDepth: fn,
	})
}

func (m *RawOrderbookManager) Unsubscribe(pair string) error {
	return m.a.removeSubscription(symbol.KindRawBook, pair)
}
