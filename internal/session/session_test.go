package session

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BookmapAPI/bitfinex-adapter/config"
	"github.com/BookmapAPI/bitfinex-adapter/internal/symbol"
	"github.com/BookmapAPI/bitfinex-adapter/internal/wire"
)

type fakeConn struct {
	ws       *websocket.Conn
	commands chan map[string]interface{}
}

func (c *fakeConn) send(t *testing.T, raw string) {
	t.Helper()
	if err := c.ws.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		t.Fatalf("server write: %v", err)
	}
}

// waitCommand returns the next command with the wanted event, skipping
// pings and anything else in between.
func (c *fakeConn) waitCommand(t *testing.T, event string) map[string]interface{} {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case cmd := <-c.commands:
			if cmd["event"] == event {
				return cmd
			}
		case <-deadline:
			t.Fatalf("no %q command within deadline", event)
		}
	}
}

type fakeServer struct {
	srv   *httptest.Server
	conns chan *fakeConn
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{conns: make(chan *fakeConn, 4)}
	upgrader := websocket.Upgrader{}
	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fc := &fakeConn{ws: ws, commands: make(chan map[string]interface{}, 32)}
		fs.conns <- fc
		for {
			_, msg, err := ws.ReadMessage()
			if err != nil {
				return
			}
			var cmd map[string]interface{}
			if err := json.Unmarshal(msg, &cmd); err != nil {
				continue
			}
			fc.commands <- cmd
		}
	}))
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeServer) url() string {
	return "ws" + strings.TrimPrefix(fs.srv.URL, "http")
}

func (fs *fakeServer) waitConn(t *testing.T) *fakeConn {
	t.Helper()
	select {
	case fc := <-fs.conns:
		return fc
	case <-time.After(3 * time.Second):
		t.Fatal("no connection within deadline")
		return nil
	}
}

func resolveTestPair(wireSym string) (string, bool) {
	switch wireSym {
	case "tBTCUSD":
		return "BTC_USD", true
	case "tETHUSD":
		return "ETH_USD", true
	default:
		return "", false
	}
}

func testWebsocketConfig(url string) config.WebsocketConfig {
	return config.WebsocketConfig{
		URL:              url,
		TickInterval:     50 * time.Millisecond,
		MessageTimeout:   10 * time.Second,
		HandshakeTimeout: time.Second,
	}
}

func startTestSession(t *testing.T, cfg config.WebsocketConfig, onData DataHandler) *Session {
	t.Helper()
	if onData == nil {
		onData = func(symbol.StreamSymbol, wire.DataFrame) {}
	}
	s := NewSession(cfg, resolveTestPair, onData)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(s.Stop)
	return s
}

func TestSubscribeBindsChannelAndRoutesData(t *testing.T) {
	fs := newFakeServer(t)

	routed := make(chan symbol.StreamSymbol, 1)
	s := startTestSession(t, testWebsocketConfig(fs.url()), func(sym symbol.StreamSymbol, frame wire.DataFrame) {
		routed <- sym
	})
	fc := fs.waitConn(t)

	tradeSym := symbol.TradeSymbol{CurrencyPair: "BTC_USD"}
	if err := s.Subscribe(tradeSym); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	cmd := fc.waitCommand(t, "subscribe")
	if cmd["channel"] != "trades" || cmd["symbol"] != "tBTCUSD" {
		t.Fatalf("subscribe command = %v", cmd)
	}

	fc.send(t, `{"event":"subscribed","channel":"trades","chanId":17,"symbol":"tBTCUSD","pair":"BTCUSD"}`)
	fc.send(t, `[17,"te",[401597395,1574694478808,0.005,7245.3]]`)

	select {
	case sym := <-routed:
		if sym != tradeSym {
			t.Errorf("routed to %v, want %v", sym, tradeSym)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("data frame was not routed")
	}

	if id, ok := s.bindings.Channel(tradeSym); !ok || id != 17 {
		t.Errorf("binding = (%d, %v), want (17, true)", id, ok)
	}
}

func TestHeartbeatRefreshesMessageClock(t *testing.T) {
	fs := newFakeServer(t)
	s := startTestSession(t, testWebsocketConfig(fs.url()), nil)
	fc := fs.waitConn(t)

	before := s.LastMessageTime()
	time.Sleep(20 * time.Millisecond)
	fc.send(t, `[17,"hb"]`)

	deadline := time.Now().Add(3 * time.Second)
	for !s.LastMessageTime().After(before) {
		if time.Now().After(deadline) {
			t.Fatal("heartbeat did not refresh the message clock")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDroppedConnectionResubscribes(t *testing.T) {
	fs := newFakeServer(t)

	routed := make(chan symbol.StreamSymbol, 4)
	s := startTestSession(t, testWebsocketConfig(fs.url()), func(sym symbol.StreamSymbol, frame wire.DataFrame) {
		routed <- sym
	})
	fc := fs.waitConn(t)

	tradeSym := symbol.TradeSymbol{CurrencyPair: "BTC_USD"}
	if err := s.Subscribe(tradeSym); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	fc.waitCommand(t, "subscribe")
	fc.send(t, `{"event":"subscribed","channel":"trades","chanId":17,"symbol":"tBTCUSD"}`)

	// Kill the connection; the supervisor dials again on the next tick.
	fc.ws.Close()
	fc2 := fs.waitConn(t)

	// Exactly one subscribe per desired symbol on the new connection.
	cmd := fc2.waitCommand(t, "subscribe")
	if cmd["symbol"] != "tBTCUSD" {
		t.Fatalf("resubscribe command = %v", cmd)
	}
	select {
	case extra := <-fc2.commands:
		if extra["event"] == "subscribe" {
			t.Fatalf("duplicate subscribe after reconnect: %v", extra)
		}
	case <-time.After(200 * time.Millisecond):
	}

	// Old channel id must be unroutable until the new ack arrives.
	if s.bindings.Len() != 0 {
		t.Errorf("bindings survived the reconnect: %d entries", s.bindings.Len())
	}

	fc2.send(t, `{"event":"subscribed","channel":"trades","chanId":3,"symbol":"tBTCUSD"}`)
	fc2.send(t, `[3,"te",[401597396,1574694478909,0.01,7246.1]]`)
	select {
	case sym := <-routed:
		if sym != tradeSym {
			t.Errorf("routed to %v, want %v", sym, tradeSym)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("data frame on rebound channel was not routed")
	}

	if got := s.Stats().Reconnects; got != 1 {
		t.Errorf("Reconnects = %d, want 1", got)
	}
}

func TestInboundSilenceTriggersReconnect(t *testing.T) {
	fs := newFakeServer(t)
	cfg := testWebsocketConfig(fs.url())
	cfg.MessageTimeout = 120 * time.Millisecond

	startTestSession(t, cfg, nil)
	fs.waitConn(t)

	// The server stays silent, so the supervisor must dial again.
	fs.waitConn(t)
}

func TestUnsubscribeReleasesChannel(t *testing.T) {
	fs := newFakeServer(t)
	s := startTestSession(t, testWebsocketConfig(fs.url()), nil)
	fc := fs.waitConn(t)

	bookSym, err := symbol.NewBookSymbol("BTC_USD", symbol.PrecisionP0, symbol.FrequencyRealtime, 25)
	if err != nil {
		t.Fatalf("NewBookSymbol: %v", err)
	}
	if err := s.Subscribe(bookSym); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	fc.waitCommand(t, "subscribe")
	fc.send(t, `{"event":"subscribed","channel":"book","chanId":9,"symbol":"tBTCUSD","prec":"P0","freq":"F0","len":"25"}`)

	deadline := time.Now().Add(3 * time.Second)
	for s.bindings.Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscription ack was not bound")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := s.Unsubscribe(bookSym); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	cmd := fc.waitCommand(t, "unsubscribe")
	if fmt.Sprintf("%v", cmd["chanId"]) != "9" {
		t.Fatalf("unsubscribe command = %v", cmd)
	}
	fc.send(t, `{"event":"unsubscribed","chanId":9,"status":"OK"}`)

	if err := s.Unsubscribe(bookSym); err == nil {
		t.Error("second Unsubscribe did not fail")
	}
}

func TestSubscribeTwiceFails(t *testing.T) {
	fs := newFakeServer(t)
	s := startTestSession(t, testWebsocketConfig(fs.url()), nil)
	fs.waitConn(t)

	sym := symbol.TradeSymbol{CurrencyPair: "ETH_USD"}
	if err := s.Subscribe(sym); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := s.Subscribe(sym); err == nil {
		t.Error("duplicate Subscribe did not fail")
	}
}
