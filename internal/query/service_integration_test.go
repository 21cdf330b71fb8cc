package query_test

import (
	"PaperPerps/internal/persistence"
	"PaperPerps/internal/query"
	"PaperPerps/internal/testutil"
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func setupDB(t *testing.T) (*sql.DB, func()) {
	t.Helper()
	testutil.RequireIntegration(t)

	db, cleanup := testutil.SetupTestDB(t)

	migrator := persistence.NewMigrator(db, "../../migrations", zerolog.Nop())
	if err := migrator.Up(context.Background()); err != nil {
		cleanup()
		t.Fatalf("migrate up: %v", err)
	}
	return db, cleanup
}

func insertEvent(t *testing.T, db *sql.DB, seq int64, eventType string, player uuid.UUID) {
	t.Helper()
	_, err := db.Exec(`
		INSERT INTO paper.events (sequence, event_type, player_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		seq, eventType, player, fmt.Sprintf(`{"sequence":%d}`, seq), time.Now().UTC())
	if err != nil {
		t.Fatalf("insert event: %v", err)
	}
}

func TestHistory_ReturnsOnlyResolvedTrades(t *testing.T) {
	db, cleanup := setupDB(t)
	defer cleanup()

	player := uuid.New()
	other := uuid.New()

	insertEvent(t, db, 1, "AccountRegistered", player)
	insertEvent(t, db, 2, "TradeOpened", player)
	insertEvent(t, db, 3, "TradeResolved", player)
	insertEvent(t, db, 4, "TradeResolved", other)
	insertEvent(t, db, 5, "TradeOpened", player)
	insertEvent(t, db, 6, "TradeResolved", player)

	svc := query.NewService(db)
	entries, err := svc.History(context.Background(), player, 0, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}

	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Sequence != 3 || entries[1].Sequence != 6 {
		t.Errorf("sequences = %d, %d, want 3, 6", entries[0].Sequence, entries[1].Sequence)
	}
	for _, e := range entries {
		if e.EventType != "TradeResolved" {
			t.Errorf("event type = %s, want TradeResolved", e.EventType)
		}
	}
}

func TestHistory_PagesForwardFromSequence(t *testing.T) {
	db, cleanup := setupDB(t)
	defer cleanup()

	player := uuid.New()
	for i := int64(1); i <= 5; i++ {
		insertEvent(t, db, i, "TradeResolved", player)
	}

	svc := query.NewService(db)
	entries, err := svc.History(context.Background(), player, 2, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != 2 || entries[1].Sequence != 2 {
		t.Fatalf("first page = %+v", entries)
	}

	entries, err = svc.History(context.Background(), player, 2, entries[1].Sequence)
	if err != nil {
		t.Fatalf("history page 2: %v", err)
	}
	if len(entries) != 2 || entries[0].Sequence != 3 {
		t.Fatalf("second page = %+v", entries)
	}
}

func TestEvents_ReturnsAllTypes(t *testing.T) {
	db, cleanup := setupDB(t)
	defer cleanup()

	player := uuid.New()
	insertEvent(t, db, 1, "AccountRegistered", player)
	insertEvent(t, db, 2, "TradeOpened", player)
	insertEvent(t, db, 3, "TradeClosed", player)

	svc := query.NewService(db)
	entries, err := svc.Events(context.Background(), player, 0, 0)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	if entries[0].EventType != "AccountRegistered" || entries[2].EventType != "TradeClosed" {
		t.Errorf("order = %s, %s, %s", entries[0].EventType, entries[1].EventType, entries[2].EventType)
	}
}
