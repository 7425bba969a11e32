package bitfinex

import "github.com/BookmapAPI/bitfinex-adapter/internal/symbol"

// Re-exported subscription parameters so callers never need the internal
// packages.
type (
	Precision = symbol.Precision
	Frequency = symbol.Frequency
)

const (
	PrecisionP0 = symbol.PrecisionP0
	PrecisionP1 = symbol.PrecisionP1
	PrecisionP2 = symbol.PrecisionP2
	PrecisionP3 = symbol.PrecisionP3

	FrequencyRealtime = symbol.FrequencyRealtime
	FrequencyThrottle = symbol.FrequencyThrottle
)
