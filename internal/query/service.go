package query

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Service provides read-only access to the event log. State queries
// (balance, active trade) go to the engine directly; history comes
// from here.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// HistoryEntry is one settled trade from the event log.
type HistoryEntry struct {
	Sequence  int64           `json:"sequence"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// History returns a player's settled trades, oldest first. limit
// caps the result; pass afterSequence to page forward.
func (s *Service) History(ctx context.Context, player uuid.UUID, limit int, afterSequence int64) ([]HistoryEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sequence, event_type, payload, created_at
		FROM paper.events
		WHERE player_id = $1 AND event_type = 'TradeResolved' AND sequence > $2
		ORDER BY sequence
		LIMIT $3
	`, player, afterSequence, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.Sequence, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Events returns the raw event log for a player, all types, oldest
// first.
func (s *Service) Events(ctx context.Context, player uuid.UUID, limit int, afterSequence int64) ([]HistoryEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sequence, event_type, payload, created_at
		FROM paper.events
		WHERE player_id = $1 AND sequence > $2
		ORDER BY sequence
		LIMIT $3
	`, player, afterSequence, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.Sequence, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
