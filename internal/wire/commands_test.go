package wire

import (
	"encoding/json"
	"testing"

	"github.com/BookmapAPI/bitfinex-adapter/internal/symbol"
)

func encodeToMap(t *testing.T, cmd Command) map[string]interface{} {
	t.Helper()
	data, err := cmd.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return m
}

func TestSubscribeTradesCommand(t *testing.T) {
	m := encodeToMap(t, SubscribeTradesCommand{Sym: symbol.TradeSymbol{CurrencyPair: "BTC_USD"}})
	if m["event"] != "subscribe" || m["channel"] != "trades" || m["symbol"] != "tBTCUSD" {
		t.Errorf("unexpected command: %v", m)
	}
}

func TestSubscribeBookCommand(t *testing.T) {
	sym, err := symbol.NewBookSymbol("ETH_USD", symbol.PrecisionP2, symbol.FrequencyRealtime, 25)
	if err != nil {
		t.Fatalf("new symbol: %v", err)
	}
	m := encodeToMap(t, SubscribeBookCommand{Sym: sym})
	if m["channel"] != "book" || m["prec"] != "P2" || m["freq"] != "F0" || m["len"] != "25" {
		t.Errorf("unexpected command: %v", m)
	}
	if m["symbol"] != "tETHUSD" {
		t.Errorf("unexpected symbol: %v", m["symbol"])
	}
}

func TestSubscribeRawBookCommandUsesR0(t *testing.T) {
	m := encodeToMap(t, SubscribeRawBookCommand{Sym: symbol.RawBookSymbol{CurrencyPair: "BTC_USD"}})
	if m["prec"] != "R0" {
		t.Errorf("raw book must subscribe with R0: %v", m)
	}
}

func TestUnsubscribeCommand(t *testing.T) {
	m := encodeToMap(t, UnsubscribeCommand{ChanID: 33})
	if m["event"] != "unsubscribe" {
		t.Errorf("unexpected event: %v", m)
	}
	if id, ok := m["chanId"].(float64); !ok || int(id) != 33 {
		t.Errorf("unexpected chanId: %v", m["chanId"])
	}
}

func TestSubscribeCommandDispatchesOnKind(t *testing.T) {
	syms := []symbol.StreamSymbol{
		symbol.TradeSymbol{CurrencyPair: "BTC_USD"},
		symbol.RawBookSymbol{CurrencyPair: "BTC_USD"},
	}
	for _, sym := range syms {
		cmd, err := SubscribeCommand(sym)
		if err != nil {
			t.Fatalf("SubscribeCommand(%v): %v", sym, err)
		}
		if cmd == nil {
			t.Fatalf("nil command for %v", sym)
		}
	}
}
