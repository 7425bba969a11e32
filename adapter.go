// Package bitfinex is a market-data adapter for the Bitfinex v2 websocket
// API. It maintains one supervised connection, reconstructs aggregated and
// raw order books, quantizes prices and sizes into integer coordinates and
// delivers normalized events to per-symbol listeners.
package bitfinex

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/BookmapAPI/bitfinex-adapter/config"
	"github.com/BookmapAPI/bitfinex-adapter/internal/book"
	"github.com/BookmapAPI/bitfinex-adapter/internal/dispatch"
	"github.com/BookmapAPI/bitfinex-adapter/internal/metrics"
	"github.com/BookmapAPI/bitfinex-adapter/internal/session"
	"github.com/BookmapAPI/bitfinex-adapter/internal/symbol"
	"github.com/BookmapAPI/bitfinex-adapter/internal/wire"
	"github.com/BookmapAPI/bitfinex-adapter/logger"
)

// ErrNotSubscribed is returned when an operation refers to a pair with no
// active subscription of that kind.
var ErrNotSubscribed = errors.New("not subscribed")

// ErrAlreadySubscribed is returned when a pair already has an active
// subscription of that kind.
var ErrAlreadySubscribed = errors.New("already subscribed")

// DepthEvent is a quantized order book change delivered to listeners.
// Size zero retracts the level.
type DepthEvent struct {
	Pair  string
	Bid   bool
	Price int
	Size  int
}

// TradeEvent is one executed trade. Price is expressed on the same axis as
// the integer depth coordinates of the pair's finest precision.
type TradeEvent struct {
	Pair         string
	Price        float64
	Size         int
	BidAggressor bool
	Timestamp    int64
}

// DepthListener receives book events. Listeners run on a per-subscription
// worker; a slow listener delays only its own stream.
type DepthListener func(DepthEvent)

// TradeListener receives trade events.
type TradeListener func(TradeEvent)

type subKey struct {
	kind symbol.Kind
	pair string
}

type subscription struct {
	sym     symbol.StreamSymbol
	aggBook *book.AggregatedBook
	rawBook *book.RawBook
	onDepth DepthListener
	onTrade TradeListener
}

// Adapter owns the session, the book state and the listener registry.
type Adapter struct {
	cfg         *config.Config
	instruments *config.InstrumentTable
	conv        *book.Converter
	session     *session.Session
	dispatcher  *dispatch.Dispatcher
	reporter    *metrics.Reporter
	log         *logger.Entry

	mu     sync.Mutex
	subs   map[symbol.StreamSymbol]*subscription
	byPair map[subKey]symbol.StreamSymbol

	trades   *TradesManager
	books    *OrderbookManager
	rawBooks *RawOrderbookManager
}

// New builds an adapter from the configuration. The instrument table is
// loaded from the configured path, or the embedded default table when none
// is set.
func New(cfg *config.Config) (*Adapter, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if cfg.Logging.Level != "" {
		logger.SetLevel(cfg.Logging.Level)
	}
	if cfg.Logging.File != "" {
		logger.EnableFileOutput(cfg.Logging.File, cfg.Logging.MaxSizeMB, cfg.Logging.MaxBackups, cfg.Logging.MaxAgeDays)
	}

	instruments, err := config.LoadInstruments(cfg.Instruments.Path)
	if err != nil {
		return nil, fmt.Errorf("load instruments: %w", err)
	}

	a := &Adapter{
		cfg:         cfg,
		instruments: instruments,
		conv:        book.NewConverter(instruments),
		dispatcher:  dispatch.NewDispatcher(cfg.Dispatch.QueueBuffer),
		log:         logger.GetLogger().WithComponent("adapter"),
		subs:        make(map[symbol.StreamSymbol]*subscription),
		byPair:      make(map[subKey]symbol.StreamSymbol),
	}
	a.session = session.NewSession(cfg.Websocket, instruments.PairForWireSymbol, a.handleData)
	a.trades = &TradesManager{a: a}
	a.books = &OrderbookManager{a: a}
	a.rawBooks = &RawOrderbookManager{a: a}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.CloudWatch.Enabled {
			metrics.InitCloudWatch(cfg.Metrics.CloudWatch.Region, cfg.Metrics.CloudWatch.Namespace)
		}
		a.reporter = metrics.NewReporter("adapter", cfg.Metrics.Interval, a.statsSnapshot)
	}
	return a, nil
}

// Start connects to the exchange. Subscriptions made before Start are
// replayed once the connection is up.
func (a *Adapter) Start() error {
	if err := a.session.Start(); err != nil {
		return err
	}
	if a.reporter != nil {
		a.reporter.Start()
	}
	a.log.WithField("url", a.cfg.Websocket.URL).Info("adapter started")
	return nil
}

// Stop disconnects and drains the listener queues.
func (a *Adapter) Stop() {
	if a.reporter != nil {
		a.reporter.Stop()
	}
	a.session.Stop()
	a.dispatcher.Close()
	a.log.Info("adapter stopped")
}

// Trades returns the executed-trades manager.
func (a *Adapter) Trades() *TradesManager { return a.trades }

// Orderbooks returns the aggregated book manager.
func (a *Adapter) Orderbooks() *OrderbookManager { return a.books }

// RawOrderbooks returns the raw order-by-order book manager.
func (a *Adapter) RawOrderbooks() *RawOrderbookManager { return a.rawBooks }

// Instruments returns the loaded instrument table.
func (a *Adapter) Instruments() *config.InstrumentTable { return a.instruments }

// LastMessageTimestamp returns when the last inbound frame arrived. Hosts
// use it to display feed staleness.
func (a *Adapter) LastMessageTimestamp() time.Time {
	return a.session.LastMessageTime()
}

// SessionStats returns the session counters.
func (a *Adapter) SessionStats() session.Stats {
	return a.session.Stats()
}

func (a *Adapter) statsSnapshot() map[string]interface{} {
	stats := a.session.Stats()
	a.mu.Lock()
	subs := len(a.subs)
	a.mu.Unlock()
	return map[string]interface{}{
		"frames_received": stats.FramesReceived,
		"decode_errors":   stats.DecodeErrors,
		"commands_sent":   stats.CommandsSent,
		"reconnects":      stats.Reconnects,
		"subscriptions":   subs,
		"state":           a.session.State().String(),
	}
}

// addSubscription registers the record and subscribes the session. Rolls
// the registration back when the session refuses.
func (a *Adapter) addSubscription(sub *subscription) error {
	key := subKey{kind: sub.sym.Kind(), pair: sub.sym.Pair()}

	a.mu.Lock()
	if _, ok := a.byPair[key]; ok {
		a.mu.Unlock()
		return fmt.Errorf("%s %s: %w", key.kind, key.pair, ErrAlreadySubscribed)
	}
	a.subs[sub.sym] = sub
	a.byPair[key] = sub.sym
	a.mu.Unlock()

	if err := a.session.Subscribe(sub.sym); err != nil {
		a.mu.Lock()
		delete(a.subs, sub.sym)
		delete(a.byPair, key)
		a.mu.Unlock()
		return err
	}
	return nil
}

func (a *Adapter) removeSubscription(kind symbol.Kind, pair string) error {
	key := subKey{kind: kind, pair: pair}

	a.mu.Lock()
	sym, ok := a.byPair[key]
	if !ok {
		a.mu.Unlock()
		return fmt.Errorf("%s %s: %w", kind, pair, ErrNotSubscribed)
	}
	delete(a.subs, sym)
	delete(a.byPair, key)
	a.mu.Unlock()

	a.dispatcher.DropQueue(sym)
	if err := a.session.Unsubscribe(sym); err != nil {
		a.log.WithError(err).WithField("symbol", sym.String()).Warn("unsubscribe command failed")
	}
	return nil
}

func (a *Adapter) lookup(sym symbol.StreamSymbol) *subscription {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.subs[sym]
}

// handleData runs on the session read goroutine. Book state is mutated
// here synchronously; listener callbacks are handed to the dispatcher.
func (a *Adapter) handleData(sym symbol.StreamSymbol, frame wire.DataFrame) {
	sub := a.lookup(sym)
	if sub == nil {
		return
	}

	var err error
	switch sym.Kind() {
	case symbol.KindTrade:
		err = a.handleTrades(sub, frame)
	case symbol.KindBook:
		err = a.handleBook(sub, frame)
	case symbol.KindRawBook:
		err = a.handleRawBook(sub, frame)
	}
	if err != nil {
		a.log.WithError(err).WithField("symbol", sym.String()).Warn("dropping data frame")
	}
}

func (a *Adapter) handleTrades(sub *subscription, frame wire.DataFrame) error {
	// "tu" repeats a trade already delivered as "te" with its final id.
	if frame.Tag == "tu" {
		return nil
	}

	trades, _, err := wire.ParseTrades(frame.Payload)
	if err != nil {
		return err
	}

	pair := sub.sym.Pair()
	events := make([]TradeEvent, 0, len(trades))
	for _, trade := range trades {
		if trade.Funding {
			continue
		}
		price, err := a.conv.ToFloat(pair, symbol.PrecisionP0, trade.Price)
		if err != nil {
			return err
		}
		size, err := a.conv.AmountToInteger(pair, trade.Amount)
		if err != nil {
			return err
		}
		events = append(events, TradeEvent{
			Pair:         pair,
			Price:        price,
			Size:         size,
			BidAggressor: trade.BidAggressor(),
			Timestamp:    trade.MTS,
		})
	}
	if len(events) == 0 {
		return nil
	}

	fn := sub.onTrade
	a.dispatcher.Submit(sub.sym, func() {
		for _, ev := range events {
			fn(ev)
		}
	})
	return nil
}

func (a *Adapter) handleBook(sub *subscription, frame wire.DataFrame) error {
	// Tagged frames on book channels (e.g. "cs" checksums) carry no levels.
	if frame.Tag != "" {
		return nil
	}
	levels, snapshot, err := wire.ParseAggregatedLevels(frame.Payload)
	if err != nil {
		return err
	}

	pair := sub.sym.Pair()
	var events []DepthEvent
	emit := func(ev book.DepthEvent) {
		events = append(events, DepthEvent{Pair: pair, Bid: ev.Bid, Price: ev.Price, Size: ev.Size})
	}

	if snapshot {
		err = sub.aggBook.ApplySnapshot(levels, emit)
	} else {
		for _, level := range levels {
			if err = sub.aggBook.ApplyUpdate(level, emit); err != nil {
				break
			}
		}
	}
	if err != nil {
		return err
	}

	a.dispatchDepth(sub, events)
	return nil
}

func (a *Adapter) handleRawBook(sub *subscription, frame wire.DataFrame) error {
	if frame.Tag != "" {
		return nil
	}
	orders, snapshot, err := wire.ParseRawOrders(frame.Payload)
	if err != nil {
		return err
	}

	pair := sub.sym.Pair()
	var events []DepthEvent
	emit := func(ev book.DepthEvent) {
		events = append(events, DepthEvent{Pair: pair, Bid: ev.Bid, Price: ev.Price, Size: ev.Size})
	}

	if snapshot {
		err = sub.rawBook.ApplySnapshot(orders, emit)
	} else {
		for _, order := range orders {
			if err = sub.rawBook.ApplyUpdate(order, emit); err != nil {
				break
			}
		}
	}
	if err != nil {
		return err
	}

	a.dispatchDepth(sub, events)
	return nil
}

func (a *Adapter) dispatchDepth(sub *subscription, events []DepthEvent) {
	if len(events) == 0 {
		return
	}
	fn := sub.onDepth
	a.dispatcher.Submit(sub.sym, func() {
		for _, ev := range events {
			fn(ev)
		}
	})
}
