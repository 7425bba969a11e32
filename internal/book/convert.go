// Package book reconstructs per-symbol order book state from decoded wire
// entries and quantizes prices and sizes into the integer coordinates the
// downstream host consumes.
package book

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/BookmapAPI/bitfinex-adapter/config"
	"github.com/BookmapAPI/bitfinex-adapter/internal/symbol"
)

// MaxIntegerSize caps quantized sizes so they stay clear of the host's
// fixed-width depth representation.
const MaxIntegerSize = 1_000_000_000

// DepthEvent is a normalized book change: the aggregate integer size now
// resting at an integer price coordinate. Size zero retracts the level.
type DepthEvent struct {
	Bid   bool
	Price int
	Size  int
}

// Converter quantizes prices and amounts using the static per-pair
// calibration table.
type Converter struct {
	table *config.InstrumentTable
}

func NewConverter(table *config.InstrumentTable) *Converter {
	return &Converter{table: table}
}

// PriceStep returns the price step of a pair at an aggregated precision.
func (c *Converter) PriceStep(pair string, prec symbol.Precision) (float64, error) {
	inst, ok := c.table.Lookup(pair)
	if !ok {
		return 0, fmt.Errorf("unknown pair %s", pair)
	}
	idx, ok := prec.Index()
	if !ok {
		return 0, fmt.Errorf("precision %s has no price step", prec)
	}
	if idx >= len(inst.PriceSteps) {
		return 0, fmt.Errorf("pair %s has no step for precision %s", pair, prec)
	}
	return inst.PriceSteps[idx], nil
}

func (c *Converter) stepDecimal(pair string, prec symbol.Precision) (decimal.Decimal, error) {
	step, err := c.PriceStep(pair, prec)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.NewFromFloat(step), nil
}

// ToInteger converts an aggregated book price to its integer coordinate.
// Aggregated prices arrive pre-bucketed by the exchange, so the division is
// rounded without directional bias.
func (c *Converter) ToInteger(pair string, prec symbol.Precision, price decimal.Decimal) (int, error) {
	step, err := c.stepDecimal(pair, prec)
	if err != nil {
		return 0, err
	}
	return int(price.Abs().Div(step).Round(0).IntPart()), nil
}

// RoundToInteger converts a raw book price to its integer coordinate with
// directional rounding: bids floor toward the book, asks ceil away from it,
// so rounding can never artificially cross the spread.
func (c *Converter) RoundToInteger(pair string, prec symbol.Precision, price decimal.Decimal, bid bool) (int, error) {
	step, err := c.stepDecimal(pair, prec)
	if err != nil {
		return 0, err
	}
	q := price.Abs().Div(step)
	if bid {
		q = q.Floor()
	} else {
		q = q.Ceil()
	}
	return int(q.IntPart()), nil
}

// ToFloat converts a price to the float coordinate used for trade events:
// the same price axis as the integer depth coordinates.
func (c *Converter) ToFloat(pair string, prec symbol.Precision, price decimal.Decimal) (float64, error) {
	step, err := c.PriceStep(pair, prec)
	if err != nil {
		return 0, err
	}
	f, _ := price.Float64()
	return f / step, nil
}

// AmountToInteger converts a signed amount to the integer size
// representation: absolute value scaled by the pair's multiplier, clamped
// to MaxIntegerSize.
func (c *Converter) AmountToInteger(pair string, amount decimal.Decimal) (int, error) {
	inst, ok := c.table.Lookup(pair)
	if !ok {
		return 0, fmt.Errorf("unknown pair %s", pair)
	}
	scaled := amount.Abs().Mul(decimal.NewFromInt(inst.AmountMultiplier)).IntPart()
	if scaled > MaxIntegerSize {
		scaled = MaxIntegerSize
	}
	return int(scaled), nil
}

// ClosestPrecision selects the aggregated precision whose price step is
// nearest to the host's preferred step.
func (c *Converter) ClosestPrecision(pair string, preferredStep float64) (symbol.Precision, error) {
	inst, ok := c.table.Lookup(pair)
	if !ok {
		return "", fmt.Errorf("unknown pair %s", pair)
	}
	precisions := []symbol.Precision{symbol.PrecisionP0, symbol.PrecisionP1, symbol.PrecisionP2, symbol.PrecisionP3}
	best := symbol.PrecisionP0
	bestDist := math.Inf(1)
	for i, prec := range precisions {
		if i >= len(inst.PriceSteps) {
			break
		}
		dist := math.Abs(inst.PriceSteps[i] - preferredStep)
		if dist < bestDist {
			bestDist = dist
			best = prec
		}
	}
	return best, nil
}
