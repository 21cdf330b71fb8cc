package ingestion

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"PaperPerps/internal/fixedpoint"
)

// PriceUpdate is a validated price observation for one player's trade.
// AuthorityID travels in the payload; the engine decides whether the
// sender actually holds the price authority role.
type PriceUpdate struct {
	AuthorityID   uuid.UUID
	PlayerID      uuid.UUID
	Price         *big.Int
	PriceSequence int64
	Timestamp     time.Time
}

// priceUpdateJSON is the wire format on paper.prices.{player_id}.
// Prices are decimal strings so producers never deal in raw 1e18
// integers.
type priceUpdateJSON struct {
	AuthorityID   string `json:"authority_id"`
	PlayerID      string `json:"player_id"`
	Price         string `json:"price"`
	PriceSequence int64  `json:"price_sequence"`
	TimestampUs   int64  `json:"timestamp_us"`
}

// ParsePriceUpdate converts a RawUpdate into a typed PriceUpdate.
func ParsePriceUpdate(raw RawUpdate) (*PriceUpdate, error) {
	var j priceUpdateJSON
	if err := json.Unmarshal(raw.Data, &j); err != nil {
		return nil, fmt.Errorf("parse price update: %w", err)
	}

	authorityID, err := uuid.Parse(j.AuthorityID)
	if err != nil {
		return nil, fmt.Errorf("parse authority_id: %w", err)
	}
	playerID, err := uuid.Parse(j.PlayerID)
	if err != nil {
		return nil, fmt.Errorf("parse player_id: %w", err)
	}
	price, err := fixedpoint.Parse(j.Price)
	if err != nil {
		return nil, fmt.Errorf("parse price: %w", err)
	}

	return &PriceUpdate{
		AuthorityID:   authorityID,
		PlayerID:      playerID,
		Price:         price,
		PriceSequence: j.PriceSequence,
		Timestamp:     time.UnixMicro(j.TimestampUs),
	}, nil
}
