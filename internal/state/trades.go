package state

import (
	"math/big"

	"github.com/google/uuid"
)

// Trade is a player's single active leveraged position.
type Trade struct {
	ID                   uint64
	PlayerID             uuid.UUID
	IsLong               bool
	EntryPrice           *big.Int
	TakeProfit           *big.Int
	StopLoss             *big.Int
	Margin               *big.Int
	Leverage             uint32
	ManualCloseRequested bool
}

// Clone returns a deep copy.
func (t *Trade) Clone() *Trade {
	c := *t
	c.EntryPrice = new(big.Int).Set(t.EntryPrice)
	c.TakeProfit = new(big.Int).Set(t.TakeProfit)
	c.StopLoss = new(big.Int).Set(t.StopLoss)
	c.Margin = new(big.Int).Set(t.Margin)
	return &c
}

// TradeBook tracks active trades, at most one per player. Resolved
// trades are removed outright rather than flagged.
type TradeBook struct {
	trades  map[uuid.UUID]*Trade
	counter uint64
}

func NewTradeBook() *TradeBook {
	return &TradeBook{
		trades: make(map[uuid.UUID]*Trade),
	}
}

// Get returns the player's active trade or nil.
func (tb *TradeBook) Get(player uuid.UUID) *Trade {
	return tb.trades[player]
}

// Open creates a new trade for the player. Returns nil if a trade is
// already active. Trade IDs start at 1 and never repeat.
func (tb *TradeBook) Open(player uuid.UUID, isLong bool, entryPrice, takeProfit, stopLoss, margin *big.Int, leverage uint32) *Trade {
	if _, ok := tb.trades[player]; ok {
		return nil
	}
	tb.counter++
	t := &Trade{
		ID:         tb.counter,
		PlayerID:   player,
		IsLong:     isLong,
		EntryPrice: new(big.Int).Set(entryPrice),
		TakeProfit: new(big.Int).Set(takeProfit),
		StopLoss:   new(big.Int).Set(stopLoss),
		Margin:     new(big.Int).Set(margin),
		Leverage:   leverage,
	}
	tb.trades[player] = t
	return t
}

// Remove deletes the player's trade record.
func (tb *TradeBook) Remove(player uuid.UUID) {
	delete(tb.trades, player)
}

// Counter returns the last assigned trade ID.
func (tb *TradeBook) Counter() uint64 {
	return tb.counter
}

// RestoreCounter directly sets the trade ID counter (used for restore).
func (tb *TradeBook) RestoreCounter(counter uint64) {
	tb.counter = counter
}

// SetTrade directly installs a trade (used for restore).
func (tb *TradeBook) SetTrade(t *Trade) {
	tb.trades[t.PlayerID] = t.Clone()
}

// All returns a copy of all active trades.
func (tb *TradeBook) All() map[uuid.UUID]*Trade {
	out := make(map[uuid.UUID]*Trade, len(tb.trades))
	for k, v := range tb.trades {
		out[k] = v.Clone()
	}
	return out
}
