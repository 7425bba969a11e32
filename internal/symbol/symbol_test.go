package symbol

import "testing"

func TestStreamSymbolsAreMapKeys(t *testing.T) {
	m := map[StreamSymbol]int{}
	m[TradeSymbol{CurrencyPair: "BTC_USD"}] = 1
	m[RawBookSymbol{CurrencyPair: "BTC_USD"}] = 2
	m[BookSymbol{CurrencyPair: "BTC_USD", Precision: PrecisionP1, Frequency: FrequencyRealtime, Length: 100}] = 3

	if len(m) != 3 {
		t.Fatalf("expected 3 distinct keys, got %d", len(m))
	}
	if m[TradeSymbol{CurrencyPair: "BTC_USD"}] != 1 {
		t.Errorf("structural equality broken for TradeSymbol")
	}
}

func TestNewBookSymbolValidation(t *testing.T) {
	cases := []struct {
		name   string
		prec   Precision
		freq   Frequency
		length int
		ok     bool
	}{
		{"valid", PrecisionP1, FrequencyRealtime, 100, true},
		{"min length", PrecisionP0, FrequencyThrottle, 25, true},
		{"raw precision rejected", PrecisionR0, FrequencyRealtime, 100, false},
		{"unknown precision", Precision("P9"), FrequencyRealtime, 100, false},
		{"bad frequency", PrecisionP1, Frequency("F7"), 100, false},
		{"too shallow", PrecisionP1, FrequencyRealtime, 10, false},
		{"too deep", PrecisionP1, FrequencyRealtime, 250, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewBookSymbol("BTC_USD", tc.prec, tc.freq, tc.length)
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestPrecisionIndex(t *testing.T) {
	if idx, ok := PrecisionP2.Index(); !ok || idx != 2 {
		t.Errorf("P2 index = %d %v", idx, ok)
	}
	if _, ok := PrecisionR0.Index(); ok {
		t.Errorf("R0 must not map to a step index")
	}
}
