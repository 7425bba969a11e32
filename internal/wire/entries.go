package wire

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// AggregatedLevel is one price level of the aggregated book:
// [price, count, amount]. Count zero signals removal of the level; the sign
// of Amount selects the side.
type AggregatedLevel struct {
	Price  decimal.Decimal
	Count  int64
	Amount decimal.Decimal
}

// Bid reports the side derived from the amount sign.
func (l AggregatedLevel) Bid() bool { return l.Amount.Sign() > 0 }

// RawOrder is one order of the raw book: [orderId, price, amount]. Price
// zero signals removal of the order.
type RawOrder struct {
	OrderID int64
	Price   decimal.Decimal
	Amount  decimal.Decimal
}

// Bid reports the side derived from the amount sign.
func (o RawOrder) Bid() bool { return o.Amount.Sign() > 0 }

// Trade is one executed trade. Currency trades carry a price
// ([id, mts, amount, price]); funding trades carry a rate and period
// ([id, mts, amount, rate, period]).
type Trade struct {
	ID      int64
	MTS     int64
	Amount  decimal.Decimal
	Price   decimal.Decimal
	Rate    decimal.Decimal
	Period  int
	Funding bool
}

// BidAggressor reports whether the buyer was the aggressor.
func (t Trade) BidAggressor() bool { return t.Amount.Sign() > 0 }

// snapshotPayload reports whether the payload is an array of tuples rather
// than a single tuple: snapshots nest, updates do not.
func snapshotPayload(payload json.RawMessage) (bool, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return false, fmt.Errorf("payload is not an array")
	}
	inner := bytes.TrimSpace(trimmed[1:])
	if len(inner) == 0 {
		return false, fmt.Errorf("payload is an empty array")
	}
	return inner[0] == '[', nil
}

func tupleNumbers(tuple json.RawMessage, min int) ([]json.Number, error) {
	var nums []json.Number
	if err := json.Unmarshal(tuple, &nums); err != nil {
		return nil, fmt.Errorf("decode tuple: %w", err)
	}
	if len(nums) < min {
		return nil, fmt.Errorf("tuple has %d fields, want at least %d", len(nums), min)
	}
	return nums, nil
}

func tupleDecimal(n json.Number) (decimal.Decimal, error) {
	return decimal.NewFromString(n.String())
}

// ParseAggregatedLevels decodes an aggregated book payload. The snapshot
// flag is true when the payload was an array of level tuples.
func ParseAggregatedLevels(payload json.RawMessage) ([]AggregatedLevel, bool, error) {
	snapshot, err := snapshotPayload(payload)
	if err != nil {
		return nil, false, err
	}

	if !snapshot {
		level, err := parseAggregatedLevel(payload)
		if err != nil {
			return nil, false, err
		}
		return []AggregatedLevel{level}, false, nil
	}

	var tuples []json.RawMessage
	if err := json.Unmarshal(payload, &tuples); err != nil {
		return nil, false, fmt.Errorf("decode snapshot: %w", err)
	}
	levels := make([]AggregatedLevel, 0, len(tuples))
	for _, tuple := range tuples {
		level, err := parseAggregatedLevel(tuple)
		if err != nil {
			return nil, false, err
		}
		levels = append(levels, level)
	}
	return levels, true, nil
}

func parseAggregatedLevel(tuple json.RawMessage) (AggregatedLevel, error) {
	nums, err := tupleNumbers(tuple, 3)
	if err != nil {
		return AggregatedLevel{}, err
	}
	price, err := tupleDecimal(nums[0])
	if err != nil {
		return AggregatedLevel{}, fmt.Errorf("decode level price: %w", err)
	}
	count, err := nums[1].Int64()
	if err != nil {
		return AggregatedLevel{}, fmt.Errorf("decode level count: %w", err)
	}
	amount, err := tupleDecimal(nums[2])
	if err != nil {
		return AggregatedLevel{}, fmt.Errorf("decode level amount: %w", err)
	}
	return AggregatedLevel{Price: price, Count: count, Amount: amount}, nil
}

// ParseRawOrders decodes a raw book payload. The snapshot flag is true when
// the payload was an array of order tuples.
func ParseRawOrders(payload json.RawMessage) ([]RawOrder, bool, error) {
	snapshot, err := snapshotPayload(payload)
	if err != nil {
		return nil, false, err
	}

	if !snapshot {
		order, err := parseRawOrder(payload)
		if err != nil {
			return nil, false, err
		}
		return []RawOrder{order}, false, nil
	}

	var tuples []json.RawMessage
	if err := json.Unmarshal(payload, &tuples); err != nil {
		return nil, false, fmt.Errorf("decode snapshot: %w", err)
	}
	orders := make([]RawOrder, 0, len(tuples))
	for _, tuple := range tuples {
		order, err := parseRawOrder(tuple)
		if err != nil {
			return nil, false, err
		}
		orders = append(orders, order)
	}
	return orders, true, nil
}

func parseRawOrder(tuple json.RawMessage) (RawOrder, error) {
	nums, err := tupleNumbers(tuple, 3)
	if err != nil {
		return RawOrder{}, err
	}
	orderID, err := nums[0].Int64()
	if err != nil {
		return RawOrder{}, fmt.Errorf("decode order id: %w", err)
	}
	price, err := tupleDecimal(nums[1])
	if err != nil {
		return RawOrder{}, fmt.Errorf("decode order price: %w", err)
	}
	amount, err := tupleDecimal(nums[2])
	if err != nil {
		return RawOrder{}, fmt.Errorf("decode order amount: %w", err)
	}
	return RawOrder{OrderID: orderID, Price: price, Amount: amount}, nil
}

// ParseTrades decodes a trade payload: a single trade tuple for updates or
// an array of tuples for the snapshot sent right after subscription.
func ParseTrades(payload json.RawMessage) ([]Trade, bool, error) {
	snapshot, err := snapshotPayload(payload)
	if err != nil {
		return nil, false, err
	}

	if !snapshot {
		trade, err := parseTrade(payload)
		if err != nil {
			return nil, false, err
		}
		return []Trade{trade}, false, nil
	}

	var tuples []json.RawMessage
	if err := json.Unmarshal(payload, &tuples); err != nil {
		return nil, false, fmt.Errorf("decode snapshot: %w", err)
	}
	trades := make([]Trade, 0, len(tuples))
	for _, tuple := range tuples {
		trade, err := parseTrade(tuple)
		if err != nil {
			return nil, false, err
		}
		trades = append(trades, trade)
	}
	return trades, true, nil
}

func parseTrade(tuple json.RawMessage) (Trade, error) {
	nums, err := tupleNumbers(tuple, 4)
	if err != nil {
		return Trade{}, err
	}

	trade := Trade{}
	if trade.ID, err = nums[0].Int64(); err != nil {
		return Trade{}, fmt.Errorf("decode trade id: %w", err)
	}
	if trade.MTS, err = nums[1].Int64(); err != nil {
		return Trade{}, fmt.Errorf("decode trade timestamp: %w", err)
	}
	if trade.Amount, err = tupleDecimal(nums[2]); err != nil {
		return Trade{}, fmt.Errorf("decode trade amount: %w", err)
	}

	// Tuple length disambiguates currency trades from funding trades.
	if len(nums) >= 5 {
		trade.Funding = true
		if trade.Rate, err = tupleDecimal(nums[3]); err != nil {
			return Trade{}, fmt.Errorf("decode funding rate: %w", err)
		}
		period, err := nums[4].Int64()
		if err != nil {
			return Trade{}, fmt.Errorf("decode funding period: %w", err)
		}
		trade.Period = int(period)
		return trade, nil
	}

	if trade.Price, err = tupleDecimal(nums[3]); err != nil {
		return Trade{}, fmt.Errorf("decode trade price: %w", err)
	}
	return trade, nil
}
