package engine

import (
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"PaperPerps/internal/event"
	"PaperPerps/internal/fixedpoint"
	"PaperPerps/internal/observability"
	"PaperPerps/internal/state"
)

const (
	MinLeverage = 1
	MaxLeverage = 500
)

// StateDelta describes the durable state changed by one operation.
// Nil fields mean "unchanged".
type StateDelta struct {
	Player       uuid.UUID
	Balance      *big.Int
	Trade        *state.Trade
	TradeRemoved bool
	TradeCounter uint64
	Roles        *Roles
}

// Output is what the engine hands to the persistence and publish
// sides for each applied operation. Event is nil for role changes.
type Output struct {
	Sequence int64
	Event    event.Event
	Delta    StateDelta
}

// OpenParams are the caller-supplied parameters for opening a trade.
type OpenParams struct {
	IsLong     bool
	Margin     *big.Int
	EntryPrice *big.Int
	TakeProfit *big.Int
	StopLoss   *big.Int
	Leverage   uint32
}

// Settlement is the outcome of a resolution that closed a trade.
type Settlement struct {
	TradeID   uint64
	ExitPrice *big.Int
	PnL       *big.Int
	Balance   *big.Int
	Reason    string
}

// RestoreState seeds the engine from a persisted snapshot.
type RestoreState struct {
	Balances map[uuid.UUID]*big.Int
	Trades   []*state.Trade
	Counter  uint64
	Sequence int64
	Roles    Roles
}

// Engine applies all account and trade operations under one mutex, so
// every operation observes and produces a consistent state. Applied
// operations are assigned a monotonic sequence and emitted on the
// persist channel (blocking, backpressure) and the publish channel
// (non-blocking, drop on full).
type Engine struct {
	mu       sync.Mutex
	accounts *state.AccountBook
	trades   *state.TradeBook
	roles    Roles
	sequence int64

	log     zerolog.Logger
	metrics *observability.Metrics

	persistChan chan<- Output
	publishChan chan<- Output
}

func New(roles Roles, persistChan, publishChan chan<- Output, log zerolog.Logger, metrics *observability.Metrics) *Engine {
	return &Engine{
		accounts:    state.NewAccountBook(),
		trades:      state.NewTradeBook(),
		roles:       roles,
		log:         log.With().Str("component", "engine").Logger(),
		metrics:     metrics,
		persistChan: persistChan,
		publishChan: publishChan,
	}
}

// Restore seeds state from a snapshot. Call before serving traffic.
func (e *Engine) Restore(rs RestoreState) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for player, bal := range rs.Balances {
		e.accounts.SetBalance(player, bal)
	}
	for _, t := range rs.Trades {
		e.trades.SetTrade(t)
	}
	e.trades.RestoreCounter(rs.Counter)
	e.sequence = rs.Sequence
	if rs.Roles.PriceAuthority != uuid.Nil {
		e.roles.PriceAuthority = rs.Roles.PriceAuthority
	}
	if rs.Roles.Administrator != uuid.Nil {
		e.roles.Administrator = rs.Roles.Administrator
	}

	if e.metrics != nil {
		e.metrics.EngineSequence.Set(float64(e.sequence))
		e.metrics.OpenTrades.Set(float64(len(e.trades.All())))
	}
}

// Register grants the one-time paper balance. A player whose balance
// has been drained to zero counts as unregistered and may register
// again.
func (e *Engine) Register(player uuid.UUID) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := time.Now()

	if !e.accounts.Register(player) {
		e.reject("register", "already_registered")
		return nil, ErrAlreadyRegistered
	}
	balance := e.accounts.Balance(player)

	e.emit(&event.AccountRegistered{
		PlayerID: player,
		Balance:  balance,
	}, StateDelta{Player: player, Balance: balance})

	e.applied("register", start)
	e.log.Info().Stringer("player", player).Msg("account registered")
	return balance, nil
}

// OpenTrade opens the player's single active trade. Margin is checked
// against the balance but not deducted; settlement happens entirely
// at resolution.
func (e *Engine) OpenTrade(player uuid.UUID, p OpenParams) (*state.Trade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := time.Now()

	if !e.accounts.IsRegistered(player) {
		e.reject("open_trade", "not_registered")
		return nil, ErrNotRegistered
	}
	if e.trades.Get(player) != nil {
		e.reject("open_trade", "trade_active")
		return nil, ErrTradeAlreadyActive
	}
	if p.Margin == nil || p.Margin.Sign() <= 0 || p.Margin.Cmp(e.accounts.Balance(player)) > 0 {
		e.reject("open_trade", "invalid_margin")
		return nil, ErrInvalidMargin
	}
	if p.Leverage < MinLeverage || p.Leverage > MaxLeverage {
		e.reject("open_trade", "invalid_leverage")
		return nil, ErrInvalidLeverage
	}

	t := e.trades.Open(player, p.IsLong, p.EntryPrice, p.TakeProfit, p.StopLoss, p.Margin, p.Leverage)

	e.emit(&event.TradeOpened{
		PlayerID:   player,
		TradeID:    t.ID,
		IsLong:     t.IsLong,
		Margin:     new(big.Int).Set(t.Margin),
		Leverage:   t.Leverage,
		EntryPrice: new(big.Int).Set(t.EntryPrice),
		TakeProfit: new(big.Int).Set(t.TakeProfit),
		StopLoss:   new(big.Int).Set(t.StopLoss),
	}, StateDelta{Player: player, Trade: t.Clone(), TradeCounter: e.trades.Counter()})

	e.applied("open_trade", start)
	if e.metrics != nil {
		e.metrics.TradesOpened.Inc()
		e.metrics.OpenTrades.Inc()
	}
	e.log.Info().
		Stringer("player", player).
		Uint64("trade_id", t.ID).
		Bool("is_long", t.IsLong).
		Uint32("leverage", t.Leverage).
		Msg("trade opened")
	return t.Clone(), nil
}

// CloseTrade flags the active trade for manual close. The trade stays
// open at unchanged terms until the next price resolution settles it.
func (e *Engine) CloseTrade(player uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := time.Now()

	t := e.trades.Get(player)
	if t == nil {
		e.reject("close_trade", "no_trade")
		return ErrNoActiveTrade
	}
	if t.ManualCloseRequested {
		e.reject("close_trade", "already_requested")
		return ErrCloseAlreadyRequested
	}
	t.ManualCloseRequested = true

	e.emit(&event.TradeClosed{
		PlayerID: player,
		TradeID:  t.ID,
		Reason:   event.ReasonManualCloseRequested,
	}, StateDelta{Player: player, Trade: t.Clone()})

	e.applied("close_trade", start)
	e.log.Info().Stringer("player", player).Uint64("trade_id", t.ID).Msg("manual close requested")
	return nil
}

// Resolve settles the player's trade against currentPrice. Only the
// price authority may call it. When neither a trigger nor a manual
// close request fires, the trade is left untouched and Resolve
// returns (nil, nil).
func (e *Engine) Resolve(caller, player uuid.UUID, currentPrice *big.Int) (*Settlement, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := time.Now()

	if !e.roles.IsPriceAuthority(caller) {
		e.reject("resolve", "unauthorized")
		return nil, ErrUnauthorized
	}
	t := e.trades.Get(player)
	if t == nil {
		e.reject("resolve", "no_trade")
		return nil, ErrNoActiveTrade
	}

	exitPrice, reason := resolutionOutcome(t, currentPrice)
	if reason == "" {
		return nil, nil
	}

	pnl, err := fixedpoint.PnL(t.EntryPrice, exitPrice, t.Margin, t.Leverage, t.IsLong)
	if err != nil {
		e.reject("resolve", "amount_range")
		return nil, err
	}

	var balance *big.Int
	if pnl.Sign() >= 0 {
		balance = e.accounts.Credit(player, pnl)
	} else {
		balance = e.accounts.DebitClamped(player, new(big.Int).Neg(pnl))
	}
	e.trades.Remove(player)

	e.emit(&event.TradeResolved{
		PlayerID:   player,
		TradeID:    t.ID,
		IsLong:     t.IsLong,
		EntryPrice: new(big.Int).Set(t.EntryPrice),
		ExitPrice:  new(big.Int).Set(exitPrice),
		Margin:     new(big.Int).Set(t.Margin),
		Leverage:   t.Leverage,
		PnL:        pnl,
		Balance:    balance,
		Reason:     reason,
	}, StateDelta{Player: player, Balance: balance, TradeRemoved: true})

	e.applied("resolve", start)
	if e.metrics != nil {
		e.metrics.TradesResolved.WithLabelValues(reason).Inc()
		e.metrics.OpenTrades.Dec()
	}
	e.log.Info().
		Stringer("player", player).
		Uint64("trade_id", t.ID).
		Str("reason", reason).
		Str("pnl", pnl.String()).
		Msg("trade resolved")

	return &Settlement{
		TradeID:   t.ID,
		ExitPrice: new(big.Int).Set(exitPrice),
		PnL:       pnl,
		Balance:   new(big.Int).Set(balance),
		Reason:    reason,
	}, nil
}

// resolutionOutcome decides whether the trade settles at currentPrice
// and at which price. A manual close request always settles at the
// current price, even when a take-profit or stop-loss level was also
// crossed. Returns reason "" when nothing fires.
func resolutionOutcome(t *state.Trade, currentPrice *big.Int) (*big.Int, string) {
	var exit *big.Int
	var reason string

	if t.IsLong {
		if currentPrice.Cmp(t.TakeProfit) >= 0 {
			exit, reason = t.TakeProfit, event.ReasonTakeProfit
		} else if currentPrice.Cmp(t.StopLoss) <= 0 {
			exit, reason = t.StopLoss, event.ReasonStopLoss
		}
	} else {
		if currentPrice.Cmp(t.TakeProfit) <= 0 {
			exit, reason = t.TakeProfit, event.ReasonTakeProfit
		} else if currentPrice.Cmp(t.StopLoss) >= 0 {
			exit, reason = t.StopLoss, event.ReasonStopLoss
		}
	}

	if t.ManualCloseRequested {
		exit, reason = currentPrice, event.ReasonManualClose
	}
	return exit, reason
}

// SetPriceAuthority reassigns the price authority. Administrator only.
func (e *Engine) SetPriceAuthority(caller, next uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := time.Now()

	if !e.roles.IsAdministrator(caller) {
		e.reject("set_price_authority", "unauthorized")
		return ErrUnauthorized
	}
	e.roles.PriceAuthority = next

	roles := e.roles
	e.emit(nil, StateDelta{Roles: &roles})

	e.applied("set_price_authority", start)
	e.log.Info().Stringer("price_authority", next).Msg("price authority reassigned")
	return nil
}

// Balance returns the player's balance.
func (e *Engine) Balance(player uuid.UUID) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.accounts.IsRegistered(player) {
		return nil, ErrNotRegistered
	}
	return e.accounts.Balance(player), nil
}

// Trade returns a copy of the player's active trade.
func (e *Engine) Trade(player uuid.UUID) (*state.Trade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t := e.trades.Get(player)
	if t == nil {
		return nil, ErrNoActiveTrade
	}
	return t.Clone(), nil
}

// Roles returns the current role assignments.
func (e *Engine) Roles() Roles {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.roles
}

// Sequence returns the last assigned operation sequence.
func (e *Engine) Sequence() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sequence
}

// emit assigns the next sequence and hands the output downstream.
// The persist send blocks so no applied operation is ever lost; the
// publish send drops on a full channel since subscribers can rebuild
// from the event log.
func (e *Engine) emit(evt event.Event, delta StateDelta) {
	e.sequence++
	out := Output{Sequence: e.sequence, Event: evt, Delta: delta}

	if e.persistChan != nil {
		e.persistChan <- out
	}
	if e.publishChan != nil {
		select {
		case e.publishChan <- out:
		default:
			if e.metrics != nil {
				e.metrics.PublishDrops.Inc()
			}
		}
	}

	if e.metrics != nil {
		e.metrics.EngineSequence.Set(float64(e.sequence))
	}
}

func (e *Engine) applied(op string, start time.Time) {
	if e.metrics == nil {
		return
	}
	e.metrics.OpsApplied.WithLabelValues(op).Inc()
	e.metrics.OpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (e *Engine) reject(op, reason string) {
	if e.metrics == nil {
		return
	}
	e.metrics.OpsRejected.WithLabelValues(op, reason).Inc()
}
