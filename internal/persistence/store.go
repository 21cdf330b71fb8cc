package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"strconv"

	"github.com/google/uuid"
)

// TradeRow mirrors a row in paper.trades.
type TradeRow struct {
	TradeID              uint64
	PlayerID             uuid.UUID
	IsLong               bool
	EntryPrice           *big.Int
	TakeProfit           *big.Int
	StopLoss             *big.Int
	Margin               *big.Int
	Leverage             uint32
	ManualCloseRequested bool
}

// StateSnapshot is everything needed to seed the engine on startup.
type StateSnapshot struct {
	Balances       map[uuid.UUID]*big.Int
	Trades         []*TradeRow
	TradeCounter   uint64
	Sequence       int64
	Administrator  uuid.UUID
	PriceAuthority uuid.UUID
}

// Meta keys in paper.meta.
const (
	metaLastSequence   = "last_sequence"
	metaTradeCounter   = "trade_counter"
	metaAdministrator  = "administrator"
	metaPriceAuthority = "price_authority"
)

// LoadState reads the full durable state. Balances and prices are
// stored as numeric(78,0) and scanned through strings since they do
// not fit int64.
func LoadState(ctx context.Context, db *sql.DB) (*StateSnapshot, error) {
	snap := &StateSnapshot{
		Balances: make(map[uuid.UUID]*big.Int),
	}

	rows, err := db.QueryContext(ctx, `SELECT player_id, balance FROM paper.accounts`)
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var playerID uuid.UUID
		var balanceStr string
		if err := rows.Scan(&playerID, &balanceStr); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		balance, err := parseNumeric(balanceStr)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", playerID, err)
		}
		snap.Balances[playerID] = balance
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}

	tradeRows, err := db.QueryContext(ctx, `
		SELECT trade_id, player_id, is_long, entry_price, take_profit, stop_loss,
		       margin, leverage, manual_close_requested
		FROM paper.trades`)
	if err != nil {
		return nil, fmt.Errorf("load trades: %w", err)
	}
	defer tradeRows.Close()
	for tradeRows.Next() {
		var tr TradeRow
		var entry, tp, sl, margin string
		var leverage int32
		if err := tradeRows.Scan(&tr.TradeID, &tr.PlayerID, &tr.IsLong,
			&entry, &tp, &sl, &margin, &leverage, &tr.ManualCloseRequested); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		if tr.EntryPrice, err = parseNumeric(entry); err != nil {
			return nil, fmt.Errorf("trade %d entry_price: %w", tr.TradeID, err)
		}
		if tr.TakeProfit, err = parseNumeric(tp); err != nil {
			return nil, fmt.Errorf("trade %d take_profit: %w", tr.TradeID, err)
		}
		if tr.StopLoss, err = parseNumeric(sl); err != nil {
			return nil, fmt.Errorf("trade %d stop_loss: %w", tr.TradeID, err)
		}
		if tr.Margin, err = parseNumeric(margin); err != nil {
			return nil, fmt.Errorf("trade %d margin: %w", tr.TradeID, err)
		}
		tr.Leverage = uint32(leverage)
		snap.Trades = append(snap.Trades, &tr)
	}
	if err := tradeRows.Err(); err != nil {
		return nil, fmt.Errorf("load trades: %w", err)
	}

	meta, err := loadMeta(ctx, db)
	if err != nil {
		return nil, err
	}
	if v, ok := meta[metaLastSequence]; ok {
		if snap.Sequence, err = strconv.ParseInt(v, 10, 64); err != nil {
			return nil, fmt.Errorf("meta %s: %w", metaLastSequence, err)
		}
	}
	if v, ok := meta[metaTradeCounter]; ok {
		if snap.TradeCounter, err = strconv.ParseUint(v, 10, 64); err != nil {
			return nil, fmt.Errorf("meta %s: %w", metaTradeCounter, err)
		}
	}
	if v, ok := meta[metaAdministrator]; ok {
		if snap.Administrator, err = uuid.Parse(v); err != nil {
			return nil, fmt.Errorf("meta %s: %w", metaAdministrator, err)
		}
	}
	if v, ok := meta[metaPriceAuthority]; ok {
		if snap.PriceAuthority, err = uuid.Parse(v); err != nil {
			return nil, fmt.Errorf("meta %s: %w", metaPriceAuthority, err)
		}
	}

	return snap, nil
}

func loadMeta(ctx context.Context, db *sql.DB) (map[string]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT key, value FROM paper.meta`)
	if err != nil {
		return nil, fmt.Errorf("load meta: %w", err)
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan meta: %w", err)
		}
		meta[k] = v
	}
	return meta, rows.Err()
}

func parseNumeric(s string) (*big.Int, error) {
	x, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("bad numeric value %q", s)
	}
	return x, nil
}
