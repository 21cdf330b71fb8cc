package event

import (
	"math/big"

	"github.com/google/uuid"
)

// Kind discriminator for event payloads
type Kind int32

const (
	KindUnknown Kind = iota
	KindAccountRegistered
	KindTradeOpened
	KindTradeClosed
	KindTradeResolved
)

func (k Kind) String() string {
	switch k {
	case KindAccountRegistered:
		return "AccountRegistered"
	case KindTradeOpened:
		return "TradeOpened"
	case KindTradeClosed:
		return "TradeClosed"
	case KindTradeResolved:
		return "TradeResolved"
	default:
		return "Unknown"
	}
}

// Close reasons recorded on TradeResolved and TradeClosed events.
const (
	ReasonTakeProfit           = "Take Profit"
	ReasonStopLoss             = "Stop Loss"
	ReasonManualClose          = "Manual Close"
	ReasonManualCloseRequested = "Manual close requested"
)

// Event is the interface all event payloads implement
type Event interface {
	// Kind returns the discriminator
	Kind() Kind

	// Player returns the account the event belongs to
	Player() uuid.UUID
}

type AccountRegistered struct {
	PlayerID uuid.UUID `json:"player_id"`
	Balance  *big.Int  `json:"balance"`
}

func (e *AccountRegistered) Kind() Kind        { return KindAccountRegistered }
func (e *AccountRegistered) Player() uuid.UUID { return e.PlayerID }

type TradeOpened struct {
	PlayerID   uuid.UUID `json:"player_id"`
	TradeID    uint64    `json:"trade_id"`
	IsLong     bool      `json:"is_long"`
	Margin     *big.Int  `json:"margin"`
	Leverage   uint32    `json:"leverage"`
	EntryPrice *big.Int  `json:"entry_price"`
	TakeProfit *big.Int  `json:"take_profit"`
	StopLoss   *big.Int  `json:"stop_loss"`
}

func (e *TradeOpened) Kind() Kind        { return KindTradeOpened }
func (e *TradeOpened) Player() uuid.UUID { return e.PlayerID }

// TradeClosed records a manual close request. The trade stays active
// until the next resolution.
type TradeClosed struct {
	PlayerID uuid.UUID `json:"player_id"`
	TradeID  uint64    `json:"trade_id"`
	Reason   string    `json:"reason"`
}

func (e *TradeClosed) Kind() Kind        { return KindTradeClosed }
func (e *TradeClosed) Player() uuid.UUID { return e.PlayerID }

type TradeResolved struct {
	PlayerID   uuid.UUID `json:"player_id"`
	TradeID    uint64    `json:"trade_id"`
	IsLong     bool      `json:"is_long"`
	EntryPrice *big.Int  `json:"entry_price"`
	ExitPrice  *big.Int  `json:"exit_price"`
	Margin     *big.Int  `json:"margin"`
	Leverage   uint32    `json:"leverage"`
	PnL        *big.Int  `json:"pnl"`
	Balance    *big.Int  `json:"balance"`
	Reason     string    `json:"reason"`
}

func (e *TradeResolved) Kind() Kind        { return KindTradeResolved }
func (e *TradeResolved) Player() uuid.UUID { return e.PlayerID }
