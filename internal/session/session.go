// Package session owns the websocket connection lifecycle: dialing,
// heartbeat supervision, reconnection with resubscription, and routing of
// inbound data frames to their stream symbols.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/BookmapAPI/bitfinex-adapter/config"
	"github.com/BookmapAPI/bitfinex-adapter/internal/symbol"
	"github.com/BookmapAPI/bitfinex-adapter/internal/wire"
	"github.com/BookmapAPI/bitfinex-adapter/logger"
)

// State is the connection lifecycle phase.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// infoCodeRestart is sent by the exchange when it is about to restart the
// websocket server.
const infoCodeRestart = 20051

// DataHandler receives routed data frames on the session's read goroutine.
// Implementations must not block.
type DataHandler func(sym symbol.StreamSymbol, frame wire.DataFrame)

// Stats are the session's monotonic counters.
type Stats struct {
	FramesReceived uint64
	DecodeErrors   uint64
	CommandsSent   uint64
	Reconnects     uint64
}

// Session supervises one websocket connection to the exchange. It keeps the
// desired subscription set across reconnects: every reconnect clears the
// channel bindings and replays one subscribe command per desired symbol.
type Session struct {
	cfg         config.WebsocketConfig
	onData      DataHandler
	resolvePair func(wireSymbol string) (string, bool)
	log         *logger.Entry
	limiter     *rate.Limiter
	bindings    *Bindings

	mu      sync.Mutex
	state   State
	ws      *websocket.Conn
	connID  string
	gen     uint64
	desired map[symbol.StreamSymbol]bool

	writeMu sync.Mutex

	lastMessage atomic.Int64

	framesReceived atomic.Uint64
	decodeErrors   atomic.Uint64
	commandsSent   atomic.Uint64
	reconnects     atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSession builds a session. resolvePair maps an exchange symbol such as
// tBTCUSD back to the pair key; subscription acks that fail to resolve are
// dropped with a warning.
func NewSession(cfg config.WebsocketConfig, resolvePair func(string) (string, bool), onData DataHandler) *Session {
	limit := rate.Inf
	burst := 1
	if cfg.CommandsPerSecond > 0 {
		limit = rate.Limit(cfg.CommandsPerSecond)
		burst = cfg.CommandBurst
		if burst <= 0 {
			burst = 1
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		cfg:         cfg,
		onData:      onData,
		resolvePair: resolvePair,
		log:         logger.GetLogger().WithComponent("session"),
		limiter:     rate.NewLimiter(limit, burst),
		bindings:    NewBindings(),
		desired:     make(map[symbol.StreamSymbol]bool),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start dials the exchange and launches the supervisory loop. The first
// dial failure is returned to the caller; later failures are retried by the
// supervisor.
func (s *Session) Start() error {
	if err := s.connect(); err != nil {
		return err
	}
	s.wg.Add(1)
	go s.supervise()
	return nil
}

// Stop tears the session down and waits for its goroutines.
func (s *Session) Stop() {
	s.cancel()
	s.mu.Lock()
	if s.ws != nil {
		s.ws.Close()
		s.ws = nil
	}
	s.state = StateDisconnected
	s.mu.Unlock()
	s.wg.Wait()
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsConnected reports whether the session currently holds a live socket.
func (s *Session) IsConnected() bool {
	return s.State() == StateConnected
}

// ConnID returns the id of the current connection, empty when disconnected.
func (s *Session) ConnID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connID
}

// LastMessageTime returns when the last inbound frame of any kind arrived.
func (s *Session) LastMessageTime() time.Time {
	nanos := s.lastMessage.Load()
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos)
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	return Stats{
		FramesReceived: s.framesReceived.Load(),
		DecodeErrors:   s.decodeErrors.Load(),
		CommandsSent:   s.commandsSent.Load(),
		Reconnects:     s.reconnects.Load(),
	}
}

// Subscribed reports whether the symbol is in the desired set.
func (s *Session) Subscribed(sym symbol.StreamSymbol) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.desired[sym]
}

// Subscribe adds the symbol to the desired set and, when connected, sends
// its subscribe command. The subscription survives reconnects until
// Unsubscribe is called.
func (s *Session) Subscribe(sym symbol.StreamSymbol) error {
	cmd, err := wire.SubscribeCommand(sym)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.desired[sym] {
		s.mu.Unlock()
		return fmt.Errorf("already subscribed to %s", sym)
	}
	s.desired[sym] = true
	connected := s.state == StateConnected
	s.mu.Unlock()

	if !connected {
		// The next successful connect replays the desired set.
		return nil
	}
	return s.Send(cmd)
}

// Unsubscribe removes the symbol from the desired set and releases its
// channel when one is bound.
func (s *Session) Unsubscribe(sym symbol.StreamSymbol) error {
	s.mu.Lock()
	if !s.desired[sym] {
		s.mu.Unlock()
		return fmt.Errorf("not subscribed to %s", sym)
	}
	delete(s.desired, sym)
	connected := s.state == StateConnected
	s.mu.Unlock()

	chanID, bound := s.bindings.Channel(sym)
	if !connected || !bound {
		return nil
	}
	return s.Send(wire.UnsubscribeCommand{ChanID: chanID})
}

// Send writes one command, serialized against concurrent senders and paced
// by the outbound rate limiter.
func (s *Session) Send(cmd wire.Command) error {
	payload, err := cmd.Encode()
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}
	if err := s.limiter.Wait(s.ctx); err != nil {
		return err
	}

	s.mu.Lock()
	ws := s.ws
	s.mu.Unlock()
	if ws == nil {
		return fmt.Errorf("not connected")
	}

	s.writeMu.Lock()
	err = ws.WriteMessage(websocket.TextMessage, payload)
	s.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("write command: %w", err)
	}
	s.commandsSent.Add(1)
	return nil
}

// supervise runs the heartbeat loop: on every tick it reconnects a dead
// session, or pings a live one and checks it for inbound silence.
func (s *Session) supervise() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}

		if s.State() != StateConnected {
			if err := s.connect(); err != nil {
				s.log.WithError(err).Warn("reconnect failed, will retry")
			}
			continue
		}

		silence := time.Since(s.LastMessageTime())
		if silence > s.cfg.MessageTimeout {
			s.log.WithFields(logger.Fields{
				"silence": silence.String(),
				"timeout": s.cfg.MessageTimeout.String(),
			}).Warn("no inbound messages, reconnecting")
			if err := s.reconnect(); err != nil {
				s.log.WithError(err).Warn("reconnect failed, will retry")
			}
			continue
		}

		if err := s.Send(wire.PingCommand{}); err != nil {
			s.log.WithError(err).Warn("ping failed")
		}
	}
}

// connect dials the exchange, installs the new connection and replays the
// desired subscription set. Stale channel bindings are discarded before the
// new read loop starts so old channel ids can never route again.
func (s *Session) connect() error {
	s.mu.Lock()
	if s.state == StateConnecting {
		s.mu.Unlock()
		return nil
	}
	s.state = StateConnecting
	if s.ws != nil {
		s.ws.Close()
		s.ws = nil
	}
	s.mu.Unlock()

	s.bindings.CaptureAndClear()

	dialer := websocket.Dialer{HandshakeTimeout: s.cfg.HandshakeTimeout}
	ws, _, err := dialer.DialContext(s.ctx, s.cfg.URL, nil)
	if err != nil {
		s.mu.Lock()
		s.state = StateDisconnected
		s.mu.Unlock()
		return fmt.Errorf("dial %s: %w", s.cfg.URL, err)
	}

	connID := uuid.NewString()
	s.lastMessage.Store(time.Now().UnixNano())

	s.mu.Lock()
	s.ws = ws
	s.connID = connID
	s.gen++
	gen := s.gen
	s.state = StateConnected
	symbols := make([]symbol.StreamSymbol, 0, len(s.desired))
	for sym := range s.desired {
		symbols = append(symbols, sym)
	}
	s.mu.Unlock()

	if gen > 1 {
		s.reconnects.Add(1)
	}
	s.log.WithFields(logger.Fields{
		"conn_id": connID,
		"url":     s.cfg.URL,
	}).Info("connected")

	s.wg.Add(1)
	go s.readLoop(ws, gen)

	for _, sym := range symbols {
		cmd, err := wire.SubscribeCommand(sym)
		if err != nil {
			s.log.WithError(err).WithField("symbol", sym.String()).Error("cannot resubscribe")
			continue
		}
		if err := s.Send(cmd); err != nil {
			s.log.WithError(err).WithField("symbol", sym.String()).Warn("resubscribe failed")
		}
	}
	return nil
}

// reconnect drops the current connection and dials again.
func (s *Session) reconnect() error {
	s.mu.Lock()
	if s.ws != nil {
		s.ws.Close()
		s.ws = nil
	}
	s.state = StateDisconnected
	s.mu.Unlock()
	return s.connect()
}

// markDisconnected flips the state only when gen still identifies the
// current connection, so a stale read loop cannot take down its successor.
func (s *Session) markDisconnected(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return
	}
	if s.ws != nil {
		s.ws.Close()
		s.ws = nil
	}
	s.state = StateDisconnected
}

func (s *Session) readLoop(ws *websocket.Conn, gen uint64) {
	defer s.wg.Done()
	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			if s.ctx.Err() == nil {
				s.log.WithError(err).Warn("read loop ended")
			}
			s.markDisconnected(gen)
			return
		}
		s.lastMessage.Store(time.Now().UnixNano())
		s.framesReceived.Add(1)
		s.handleFrame(msg)
	}
}

func (s *Session) handleFrame(msg []byte) {
	frame, err := wire.Decode(msg)
	if err != nil {
		s.decodeErrors.Add(1)
		s.log.WithError(err).WithField("frame", string(msg)).Warn("dropping undecodable frame")
		return
	}

	switch f := frame.(type) {
	case wire.Ack:
		s.handleAck(f)
	case wire.Heartbeat:
		// Already refreshed the message clock.
	case wire.DataFrame:
		if f.ChanID == 0 {
			// Channel 0 carries account signals, not market data.
			s.log.WithField("tag", f.Tag).Debug("skipping channel 0 frame")
			return
		}
		sym, ok := s.bindings.Symbol(f.ChanID)
		if !ok {
			s.log.WithField("chan_id", f.ChanID).Debug("data frame for unbound channel")
			return
		}
		s.onData(sym, f)
	}
}

func (s *Session) handleAck(ack wire.Ack) {
	switch ack.Event {
	case "info":
		if ack.Code == infoCodeRestart {
			s.log.WithField("code", ack.Code).Warn("exchange announced restart")
			return
		}
		s.log.WithFields(logger.Fields{
			"version": ack.Version,
			"code":    ack.Code,
		}).Info("info event")
	case "pong":
		// Traffic is all that matters; the clock is already updated.
	case "subscribed":
		sym, err := s.symbolFromAck(ack)
		if err != nil {
			s.log.WithError(err).WithFields(logger.Fields{
				"channel": ack.Channel,
				"symbol":  ack.Symbol,
			}).Warn("unresolvable subscription ack")
			return
		}
		s.bindings.Bind(ack.ChanID, sym)
		s.log.WithFields(logger.Fields{
			"chan_id": ack.ChanID,
			"symbol":  sym.String(),
		}).Info("channel bound")
	case "unsubscribed":
		if sym, ok := s.bindings.Unbind(ack.ChanID); ok {
			s.log.WithFields(logger.Fields{
				"chan_id": ack.ChanID,
				"symbol":  sym.String(),
			}).Info("channel released")
		}
	case "error":
		s.log.WithFields(logger.Fields{
			"code":   ack.Code,
			"msg":    ack.Msg,
			"symbol": ack.Symbol,
		}).Error("exchange rejected command")
	default:
		s.log.WithField("event", ack.Event).Debug("unhandled event")
	}
}

// symbolFromAck rebuilds the stream symbol a subscription ack refers to.
// Raw books acknowledge with prec R0 on the book channel.
func (s *Session) symbolFromAck(ack wire.Ack) (symbol.StreamSymbol, error) {
	pair, ok := s.resolvePair(ack.Symbol)
	if !ok {
		return nil, fmt.Errorf("unknown exchange symbol %q", ack.Symbol)
	}

	switch ack.Channel {
	case "trades":
		return symbol.TradeSymbol{CurrencyPair: pair}, nil
	case "book":
		if symbol.Precision(ack.Prec) == symbol.PrecisionR0 {
			return symbol.RawBookSymbol{CurrencyPair: pair}, nil
		}
		return symbol.BookSymbol{
			CurrencyPair: pair,
			Precision:    symbol.Precision(ack.Prec),
			Frequency:    symbol.Frequency(ack.Freq),
			Length:       ack.LenInt(),
		}, nil
	default:
		return nil, fmt.Errorf("unknown channel %q", ack.Channel)
	}
}
