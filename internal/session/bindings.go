package session

import (
	"sync"

	"github.com/BookmapAPI/bitfinex-adapter/internal/symbol"
)

// Bindings is the channel-id table: the mapping between server-assigned
// channel ids and the stream symbols they carry. One instance lives for the
// whole session; reconnects clear it and the new subscription acks refill
// it.
type Bindings struct {
	mu        sync.Mutex
	byChannel map[int]symbol.StreamSymbol
	bySymbol  map[symbol.StreamSymbol]int
}

func NewBindings() *Bindings {
	return &Bindings{
		byChannel: make(map[int]symbol.StreamSymbol),
		bySymbol:  make(map[symbol.StreamSymbol]int),
	}
}

// Bind records a subscription ack. A symbol rebinding to a new channel id
// drops its old binding first.
func (b *Bindings) Bind(chanID int, sym symbol.StreamSymbol) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if old, ok := b.bySymbol[sym]; ok {
		delete(b.byChannel, old)
	}
	b.byChannel[chanID] = sym
	b.bySymbol[sym] = chanID
}

// Unbind removes a channel binding and returns the symbol it carried.
func (b *Bindings) Unbind(chanID int) (symbol.StreamSymbol, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sym, ok := b.byChannel[chanID]
	if !ok {
		return nil, false
	}
	delete(b.byChannel, chanID)
	delete(b.bySymbol, sym)
	return sym, true
}

// Symbol resolves a channel id to its stream symbol.
func (b *Bindings) Symbol(chanID int) (symbol.StreamSymbol, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sym, ok := b.byChannel[chanID]
	return sym, ok
}

// Channel resolves a stream symbol to its bound channel id.
func (b *Bindings) Channel(sym symbol.StreamSymbol) (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.bySymbol[sym]
	return id, ok
}

// CaptureAndClear empties the table and returns the symbols that were
// bound. Data frames for the old channel ids become unroutable from this
// point on, which is exactly what a reconnect needs.
func (b *Bindings) CaptureAndClear() []symbol.StreamSymbol {
	b.mu.Lock()
	defer b.mu.Unlock()
	symbols := make([]symbol.StreamSymbol, 0, len(b.bySymbol))
	for sym := range b.bySymbol {
		symbols = append(symbols, sym)
	}
	b.byChannel = make(map[int]symbol.StreamSymbol)
	b.bySymbol = make(map[symbol.StreamSymbol]int)
	return symbols
}

// Len returns the number of bound channels.
func (b *Bindings) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.byChannel)
}
