package httpapi_test

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PaperPerps/internal/httpapi"
)

func newWSServer(t *testing.T) (*httptest.Server, *httpapi.Bus) {
	t.Helper()
	bus := httpapi.NewBus()
	srv := httptest.NewServer(httpapi.NewEventsWS(bus, "*", nil))
	t.Cleanup(srv.Close)
	return srv, bus
}

func dialWS(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) httpapi.BusEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var evt httpapi.BusEvent
	require.NoError(t, conn.ReadJSON(&evt))
	return evt
}

func TestEventsWS_DeliversPublishedEvents(t *testing.T) {
	srv, bus := newWSServer(t)
	conn := dialWS(t, srv, "")

	player := uuid.New().String()
	// The subscriber channel is registered after the upgrade; give the
	// handler a moment to finish it.
	time.Sleep(100 * time.Millisecond)
	bus.Publish(httpapi.BusEvent{Type: "TradeOpened", Player: player})

	evt := readEvent(t, conn)
	assert.Equal(t, "TradeOpened", evt.Type)
	assert.Equal(t, player, evt.Player)
}

func TestEventsWS_PlayerFilter(t *testing.T) {
	srv, bus := newWSServer(t)

	wanted := uuid.New()
	other := uuid.New()
	conn := dialWS(t, srv, "?player="+wanted.String())

	time.Sleep(100 * time.Millisecond)
	bus.Publish(httpapi.BusEvent{Type: "TradeOpened", Player: other.String()})
	bus.Publish(httpapi.BusEvent{Type: "TradeResolved", Player: wanted.String()})

	evt := readEvent(t, conn)
	assert.Equal(t, "TradeResolved", evt.Type)
	assert.Equal(t, wanted.String(), evt.Player)
}
