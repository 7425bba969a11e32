// Package symbol defines the typed identities of websocket subscriptions.
// A StreamSymbol is a tagged variant: trade stream, aggregated book or raw
// (order-by-order) book. Values are small comparable structs so they can be
// used directly as map keys.
package symbol

import "fmt"

// Kind discriminates the StreamSymbol variants.
type Kind int

const (
	KindTrade Kind = iota
	KindBook
	KindRawBook
)

func (k Kind) String() string {
	switch k {
	case KindTrade:
		return "trade"
	case KindBook:
		return "book"
	case KindRawBook:
		return "raw_book"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Precision is the exchange-defined price bucketing granularity for
// aggregated books. PrecisionR0 selects the raw order-by-order feed.
type Precision string

const (
	PrecisionP0 Precision = "P0"
	PrecisionP1 Precision = "P1"
	PrecisionP2 Precision = "P2"
	PrecisionP3 Precision = "P3"
	PrecisionR0 Precision = "R0"
)

// Index returns the position of an aggregated precision in the per-pair
// price-step table. R0 has no step of its own.
func (p Precision) Index() (int, bool) {
	switch p {
	case PrecisionP0:
		return 0, true
	case PrecisionP1:
		return 1, true
	case PrecisionP2:
		return 2, true
	case PrecisionP3:
		return 3, true
	default:
		return 0, false
	}
}

func (p Precision) Valid() bool {
	if p == PrecisionR0 {
		return true
	}
	_, ok := p.Index()
	return ok
}

// Frequency selects the aggregated book update cadence: F0 is realtime,
// F1 is throttled by the exchange.
type Frequency string

const (
	FrequencyRealtime Frequency = "F0"
	FrequencyThrottle Frequency = "F1"
)

func (f Frequency) Valid() bool {
	return f == FrequencyRealtime || f == FrequencyThrottle
}

// StreamSymbol identifies one subscription. Implementations are immutable
// value types; equality is structural.
type StreamSymbol interface {
	Kind() Kind
	// Pair returns the currency pair key, e.g. BTC_USD.
	Pair() string
	String() string
}

// TradeSymbol subscribes the executed-trades channel of a pair.
type TradeSymbol struct {
	CurrencyPair string
}

func (s TradeSymbol) Kind() Kind    { return KindTrade }
func (s TradeSymbol) Pair() string  { return s.CurrencyPair }
func (s TradeSymbol) String() string { return fmt.Sprintf("trades[%s]", s.CurrencyPair) }

// BookSymbol subscribes an aggregated price-level book.
type BookSymbol struct {
	CurrencyPair string
	Precision    Precision
	Frequency    Frequency
	Length       int
}

func (s BookSymbol) Kind() Kind   { return KindBook }
func (s BookSymbol) Pair() string { return s.CurrencyPair }
func (s BookSymbol) String() string {
	return fmt.Sprintf("book[%s %s %s %d]", s.CurrencyPair, s.Precision, s.Frequency, s.Length)
}

// NewBookSymbol validates the aggregated book parameters the exchange
// accepts: one of the aggregated precisions and a depth between 25 and 100.
func NewBookSymbol(pair string, prec Precision, freq Frequency, length int) (BookSymbol, error) {
	if _, ok := prec.Index(); !ok {
		return BookSymbol{}, fmt.Errorf("invalid aggregated book precision %q", prec)
	}
	if !freq.Valid() {
		return BookSymbol{}, fmt.Errorf("invalid book frequency %q", freq)
	}
	if length < 25 || length > 100 {
		return BookSymbol{}, fmt.Errorf("book length %d outside 25..100", length)
	}
	return BookSymbol{CurrencyPair: pair, Precision: prec, Frequency: freq, Length: length}, nil
}

// RawBookSymbol subscribes the raw order-by-order book (precision R0).
type RawBookSymbol struct {
	CurrencyPair string
}

func (s RawBookSymbol) Kind() Kind    { return KindRawBook }
func (s RawBookSymbol) Pair() string  { return s.CurrencyPair }
func (s RawBookSymbol) String() string { return fmt.Sprintf("raw_book[%s]", s.CurrencyPair) }
