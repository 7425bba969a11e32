package config

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed instruments.yaml
var defaultInstruments []byte

// Instrument is the static calibration record for one currency pair: the
// ordered price-step table indexed by aggregated book precision and the
// integer amount multiplier used for size quantization.
type Instrument struct {
	Pair             string    `yaml:"pair"`
	PriceSteps       []float64 `yaml:"price_steps"`
	AmountMultiplier int64     `yaml:"amount_multiplier"`
}

// WireSymbol returns the exchange representation of the pair, e.g. BTC_USD
// becomes tBTCUSD.
func (i Instrument) WireSymbol() string {
	return "t" + strings.ReplaceAll(i.Pair, "_", "")
}

// InstrumentTable is the read-only pair table loaded once at startup.
type InstrumentTable struct {
	byPair map[string]Instrument
}

// LoadInstruments reads the instrument table from path, or from the embedded
// default table when path is empty.
func LoadInstruments(path string) (*InstrumentTable, error) {
	data := defaultInstruments
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("cannot read instrument table: %w", err)
		}
	}

	raw := struct {
		Instruments []Instrument `yaml:"instruments"`
	}{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("cannot parse instrument table: %w", err)
	}
	if len(raw.Instruments) == 0 {
		return nil, fmt.Errorf("instrument table is empty")
	}

	table := &InstrumentTable{byPair: make(map[string]Instrument, len(raw.Instruments))}
	for _, inst := range raw.Instruments {
		if err := validateInstrument(inst); err != nil {
			return nil, err
		}
		if _, dup := table.byPair[inst.Pair]; dup {
			return nil, fmt.Errorf("duplicate instrument %s", inst.Pair)
		}
		table.byPair[inst.Pair] = inst
	}
	return table, nil
}

func validateInstrument(inst Instrument) error {
	if inst.Pair == "" {
		return fmt.Errorf("instrument without pair")
	}
	if len(inst.PriceSteps) == 0 {
		return fmt.Errorf("instrument %s has no price steps", inst.Pair)
	}
	for idx, step := range inst.PriceSteps {
		if step <= 0 {
			return fmt.Errorf("instrument %s has non-positive price step at precision %d", inst.Pair, idx)
		}
		if idx > 0 && step <= inst.PriceSteps[idx-1] {
			return fmt.Errorf("instrument %s price steps must be strictly increasing", inst.Pair)
		}
	}
	if inst.AmountMultiplier < 1 {
		return fmt.Errorf("instrument %s has amount multiplier below 1", inst.Pair)
	}
	return nil
}

// Lookup returns the instrument for a pair such as BTC_USD.
func (t *InstrumentTable) Lookup(pair string) (Instrument, bool) {
	inst, ok := t.byPair[pair]
	return inst, ok
}

// Contains reports whether the pair is known.
func (t *InstrumentTable) Contains(pair string) bool {
	_, ok := t.byPair[pair]
	return ok
}

// PairForWireSymbol resolves an exchange symbol like tBTCUSD back to its
// pair key. The table scan is fine at this size.
func (t *InstrumentTable) PairForWireSymbol(wire string) (string, bool) {
	for pair, inst := range t.byPair {
		if strings.EqualFold(inst.WireSymbol(), wire) {
			return pair, true
		}
	}
	return "", false
}

// Pairs lists the known pairs in deterministic order.
func (t *InstrumentTable) Pairs() []string {
	pairs := make([]string, 0, len(t.byPair))
	for pair := range t.byPair {
		pairs = append(pairs, pair)
	}
	sort.Strings(pairs)
	return pairs
}
