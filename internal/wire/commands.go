package wire

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BookmapAPI/bitfinex-adapter/internal/symbol"
)

// Command is an outbound websocket payload.
type Command interface {
	Encode() ([]byte, error)
}

// WireSymbol converts a pair key such as BTC_USD to the exchange trading
// symbol tBTCUSD.
func WireSymbol(pair string) string {
	return "t" + strings.ReplaceAll(pair, "_", "")
}

// PingCommand keeps the connection warm; the exchange replies with a pong
// event which only matters as inbound traffic.
type PingCommand struct{}

func (PingCommand) Encode() ([]byte, error) {
	return json.Marshal(map[string]string{"event": "ping"})
}

// SubscribeTradesCommand subscribes the executed-trades channel of a pair.
type SubscribeTradesCommand struct {
	Sym symbol.TradeSymbol
}

func (c SubscribeTradesCommand) Encode() ([]byte, error) {
	return json.Marshal(map[string]string{
		"event":   "subscribe",
		"channel": "trades",
		"symbol":  WireSymbol(c.Sym.CurrencyPair),
	})
}

// SubscribeBookCommand subscribes an aggregated book channel.
type SubscribeBookCommand struct {
	Sym symbol.BookSymbol
}

func (c SubscribeBookCommand) Encode() ([]byte, error) {
	return json.Marshal(map[string]string{
		"event":   "subscribe",
		"channel": "book",
		"symbol":  WireSymbol(c.Sym.CurrencyPair),
		"prec":    string(c.Sym.Precision),
		"freq":    string(c.Sym.Frequency),
		"len":     fmt.Sprintf("%d", c.Sym.Length),
	})
}

// SubscribeRawBookCommand subscribes the raw order-by-order book (R0).
type SubscribeRawBookCommand struct {
	Sym symbol.RawBookSymbol
}

func (c SubscribeRawBookCommand) Encode() ([]byte, error) {
	return json.Marshal(map[string]string{
		"event":   "subscribe",
		"channel": "book",
		"symbol":  WireSymbol(c.Sym.CurrencyPair),
		"prec":    string(symbol.PrecisionR0),
		"freq":    string(symbol.FrequencyRealtime),
		"len":     "100",
	})
}

// UnsubscribeCommand releases a channel by its server-assigned id.
type UnsubscribeCommand struct {
	ChanID int
}

func (c UnsubscribeCommand) Encode() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"event":  "unsubscribe",
		"chanId": c.ChanID,
	})
}

// SubscribeCommand builds the subscribe command matching a stream symbol.
// Used directly by the managers and by the resubscription pass after a
// reconnect.
func SubscribeCommand(sym symbol.StreamSymbol) (Command, error) {
	switch s := sym.(type) {
	case symbol.TradeSymbol:
		return SubscribeTradesCommand{Sym: s}, nil
	case symbol.BookSymbol:
		return SubscribeBookCommand{Sym: s}, nil
	case symbol.RawBookSymbol:
		return SubscribeRawBookCommand{Sym: s}, nil
	default:
		return nil, fmt.Errorf("no subscribe command for symbol kind %s", sym.Kind())
	}
}
