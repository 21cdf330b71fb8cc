package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"PaperPerps/internal/observability"
)

// EventRow is a row destined for paper.events.
type EventRow struct {
	Sequence  int64
	EventType string
	PlayerID  uuid.UUID
	Payload   []byte
	Timestamp time.Time
}

// Delta mirrors the engine's state delta to avoid an import cycle.
// The orchestrator in cmd bridges between the two. Nil fields mean
// "unchanged".
type Delta struct {
	PlayerID       uuid.UUID
	Balance        *big.Int
	Trade          *TradeRow
	TradeRemoved   bool
	TradeCounter   uint64
	Administrator  *uuid.UUID
	PriceAuthority *uuid.UUID
}

// Output is one applied operation ready for durable storage.
// Event is nil for role-only changes.
type Output struct {
	Sequence int64
	Event    *EventRow
	Delta    Delta
}

// Worker drains the persist channel and writes each output in its own
// transaction. The channel uses blocking sends from the engine, so if
// this worker falls behind, the engine stalls and no operation is
// lost.
type Worker struct {
	db        *sql.DB
	inputChan <-chan Output
	log       zerolog.Logger
	metrics   *observability.Metrics
}

func NewWorker(db *sql.DB, inputChan <-chan Output, log zerolog.Logger, metrics *observability.Metrics) *Worker {
	return &Worker{
		db:        db,
		inputChan: inputChan,
		log:       log.With().Str("component", "persistence").Logger(),
		metrics:   metrics,
	}
}

// Run starts the worker loop. Blocks until ctx is cancelled or the
// channel is closed.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			// Drain whatever is still buffered before exiting.
			for {
				select {
				case out, ok := <-w.inputChan:
					if !ok {
						return ctx.Err()
					}
					if err := w.writeWithRetry(context.Background(), out); err != nil {
						w.log.Error().Err(err).Int64("sequence", out.Sequence).Msg("final write failed")
					}
				default:
					return ctx.Err()
				}
			}

		case out, ok := <-w.inputChan:
			if !ok {
				return nil
			}
			if err := w.writeWithRetry(ctx, out); err != nil {
				w.log.Error().Err(err).Int64("sequence", out.Sequence).Msg("write failed after retries")
			}
		}
	}
}

// writeWithRetry retries with exponential backoff. The worker never
// drops an output; it retries until the write succeeds or the context
// is cancelled, in which case it makes one final attempt.
func (w *Worker) writeWithRetry(ctx context.Context, out Output) error {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			w.log.Warn().Int("attempt", attempt).Dur("backoff", backoff).
				Int64("sequence", out.Sequence).Msg("persistence retry")
			select {
			case <-ctx.Done():
				return w.write(context.Background(), out)
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		err := w.write(ctx, out)
		if err == nil {
			if attempt > 0 {
				w.log.Info().Int("attempts", attempt).Int64("sequence", out.Sequence).Msg("persistence recovered")
			}
			return nil
		}

		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("retry").Inc()
		}
	}
}

// write applies one output atomically: the event row plus every state
// change it caused commit together, so a replayed sequence is a clean
// no-op via ON CONFLICT DO NOTHING on the event log.
func (w *Worker) write(ctx context.Context, out Output) error {
	start := time.Now()

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("tx_begin").Inc()
		}
		return err
	}
	defer tx.Rollback()

	if out.Event != nil {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO paper.events (sequence, event_type, player_id, payload, created_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (sequence) DO NOTHING`,
			out.Event.Sequence, out.Event.EventType, out.Event.PlayerID,
			out.Event.Payload, out.Event.Timestamp,
		); err != nil {
			if w.metrics != nil {
				w.metrics.PersistErrors.WithLabelValues("write_event").Inc()
			}
			return fmt.Errorf("write event %d: %w", out.Sequence, err)
		}
	}

	if err := w.applyDelta(ctx, tx, out.Delta); err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("apply_delta").Inc()
		}
		return fmt.Errorf("apply delta %d: %w", out.Sequence, err)
	}

	if err := upsertMeta(ctx, tx, metaLastSequence, fmt.Sprintf("%d", out.Sequence)); err != nil {
		return fmt.Errorf("update sequence %d: %w", out.Sequence, err)
	}

	if err := tx.Commit(); err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("tx_commit").Inc()
		}
		return err
	}

	if w.metrics != nil {
		w.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
		if out.Event != nil {
			w.metrics.PersistEventsWritten.Inc()
		}
	}
	return nil
}

func (w *Worker) applyDelta(ctx context.Context, tx *sql.Tx, d Delta) error {
	if d.Balance != nil {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO paper.accounts (player_id, balance)
			VALUES ($1, $2)
			ON CONFLICT (player_id) DO UPDATE SET balance = EXCLUDED.balance`,
			d.PlayerID, d.Balance.String(),
		); err != nil {
			return fmt.Errorf("upsert account: %w", err)
		}
	}

	if d.Trade != nil {
		t := d.Trade
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO paper.trades
				(player_id, trade_id, is_long, entry_price, take_profit, stop_loss,
				 margin, leverage, manual_close_requested)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (player_id) DO UPDATE SET
				trade_id = EXCLUDED.trade_id,
				is_long = EXCLUDED.is_long,
				entry_price = EXCLUDED.entry_price,
				take_profit = EXCLUDED.take_profit,
				stop_loss = EXCLUDED.stop_loss,
				margin = EXCLUDED.margin,
				leverage = EXCLUDED.leverage,
				manual_close_requested = EXCLUDED.manual_close_requested`,
			t.PlayerID, int64(t.TradeID), t.IsLong,
			t.EntryPrice.String(), t.TakeProfit.String(), t.StopLoss.String(),
			t.Margin.String(), int32(t.Leverage), t.ManualCloseRequested,
		); err != nil {
			return fmt.Errorf("upsert trade: %w", err)
		}
	}

	if d.TradeRemoved {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM paper.trades WHERE player_id = $1`, d.PlayerID,
		); err != nil {
			return fmt.Errorf("delete trade: %w", err)
		}
	}

	if d.TradeCounter != 0 {
		if err := upsertMeta(ctx, tx, metaTradeCounter, fmt.Sprintf("%d", d.TradeCounter)); err != nil {
			return fmt.Errorf("update trade counter: %w", err)
		}
	}
	if d.Administrator != nil {
		if err := upsertMeta(ctx, tx, metaAdministrator, d.Administrator.String()); err != nil {
			return fmt.Errorf("update administrator: %w", err)
		}
	}
	if d.PriceAuthority != nil {
		if err := upsertMeta(ctx, tx, metaPriceAuthority, d.PriceAuthority.String()); err != nil {
			return fmt.Errorf("update price authority: %w", err)
		}
	}

	return nil
}

func upsertMeta(ctx context.Context, tx *sql.Tx, key, value string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO paper.meta (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		key, value)
	return err
}

// MarshalPayload JSON-encodes an event payload for the events table.
func MarshalPayload(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
