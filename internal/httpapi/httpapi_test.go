package httpapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PaperPerps/internal/engine"
	"PaperPerps/internal/httpapi"
)

type testAPI struct {
	server    *httptest.Server
	roles     engine.Roles
	authority uuid.UUID
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	roles := engine.Roles{
		Administrator:  uuid.New(),
		PriceAuthority: uuid.New(),
	}
	persistChan := make(chan engine.Output, 1024)
	publishChan := make(chan engine.Output, 1024)
	eng := engine.New(roles, persistChan, publishChan, zerolog.Nop(), nil)

	handler := httpapi.NewHandler(eng, nil, zerolog.Nop())
	router := httpapi.NewRouter(httpapi.RouterDeps{Handler: handler})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testAPI{server: srv, roles: roles, authority: roles.PriceAuthority}
}

func (a *testAPI) do(t *testing.T, method, path string, caller uuid.UUID, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, a.server.URL+path, &buf)
	require.NoError(t, err)
	if caller != uuid.Nil {
		req.Header.Set("X-Caller-ID", caller.String())
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func (a *testAPI) register(t *testing.T) uuid.UUID {
	t.Helper()
	player := uuid.New()
	resp, _ := a.do(t, http.MethodPost, "/v1/accounts/register", player, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return player
}

func (a *testAPI) openTrade(t *testing.T, player uuid.UUID) {
	t.Helper()
	resp, _ := a.do(t, http.MethodPost, "/v1/trades/open", player, map[string]any{
		"is_long":     true,
		"margin":      "1000",
		"entry_price": "100",
		"take_profit": "120",
		"stop_loss":   "90",
		"leverage":    10,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestRegisterEndpoint(t *testing.T) {
	api := newTestAPI(t)
	player := uuid.New()

	resp, body := api.do(t, http.MethodPost, "/v1/accounts/register", player, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, player.String(), body["player_id"])
	assert.Equal(t, "10000", body["balance"])

	resp, body = api.do(t, http.MethodPost, "/v1/accounts/register", player, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, body["error"], "registered")
}

func TestRegisterEndpoint_MissingCallerHeader(t *testing.T) {
	api := newTestAPI(t)

	resp, _ := api.do(t, http.MethodPost, "/v1/accounts/register", uuid.Nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAccountEndpoint(t *testing.T) {
	api := newTestAPI(t)
	player := api.register(t)

	resp, body := api.do(t, http.MethodGet, "/v1/accounts/"+player.String(), uuid.Nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "10000", body["balance"])

	resp, _ = api.do(t, http.MethodGet, "/v1/accounts/"+uuid.NewString(), uuid.Nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = api.do(t, http.MethodGet, "/v1/accounts/not-a-uuid", uuid.Nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOpenTradeEndpoint(t *testing.T) {
	api := newTestAPI(t)
	player := api.register(t)

	resp, body := api.do(t, http.MethodPost, "/v1/trades/open", player, map[string]any{
		"is_long":     true,
		"margin":      "1000",
		"entry_price": "100",
		"take_profit": "120",
		"stop_loss":   "90",
		"leverage":    10,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, float64(1), body["trade_id"])
	assert.Equal(t, "100", body["entry_price"])
	assert.Equal(t, false, body["manual_close_requested"])

	// Second open conflicts.
	resp, _ = api.do(t, http.MethodPost, "/v1/trades/open", player, map[string]any{
		"is_long": true, "margin": "1", "entry_price": "100",
		"take_profit": "120", "stop_loss": "90", "leverage": 2,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestOpenTradeEndpoint_Validation(t *testing.T) {
	api := newTestAPI(t)
	player := api.register(t)

	cases := []struct {
		name string
		body map[string]any
	}{
		{"bad margin string", map[string]any{
			"margin": "abc", "entry_price": "100", "take_profit": "120", "stop_loss": "90", "leverage": 2,
		}},
		{"negative margin", map[string]any{
			"margin": "-5", "entry_price": "100", "take_profit": "120", "stop_loss": "90", "leverage": 2,
		}},
		{"margin above balance", map[string]any{
			"margin": "10001", "entry_price": "100", "take_profit": "120", "stop_loss": "90", "leverage": 2,
		}},
		{"leverage too high", map[string]any{
			"margin": "100", "entry_price": "100", "take_profit": "120", "stop_loss": "90", "leverage": 501,
		}},
	}

	for _, tc := range cases {
		resp, _ := api.do(t, http.MethodPost, "/v1/trades/open", player, tc.body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, tc.name)
	}

	resp, _ := api.do(t, http.MethodPost, "/v1/trades/open", uuid.New(), map[string]any{
		"margin": "100", "entry_price": "100", "take_profit": "120", "stop_loss": "90", "leverage": 2,
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "unregistered caller")
}

func TestCloseTradeEndpoint(t *testing.T) {
	api := newTestAPI(t)
	player := api.register(t)
	api.openTrade(t, player)

	resp, body := api.do(t, http.MethodPost, "/v1/trades/close", player, nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "close_requested", body["status"])

	resp, _ = api.do(t, http.MethodPost, "/v1/trades/close", player, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// The trade is still active, now flagged.
	resp, tr := api.do(t, http.MethodGet, "/v1/trades/"+player.String(), uuid.Nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, tr["manual_close_requested"])
}

func TestResolveEndpoint(t *testing.T) {
	api := newTestAPI(t)
	player := api.register(t)
	api.openTrade(t, player)

	// Unauthorized caller.
	resp, _ := api.do(t, http.MethodPost, "/v1/resolve", uuid.New(), map[string]any{
		"player_id": player.String(), "price": "120",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// No trigger crossed: settled=false, trade untouched.
	resp, body := api.do(t, http.MethodPost, "/v1/resolve", api.authority, map[string]any{
		"player_id": player.String(), "price": "105",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["settled"])

	// Take profit.
	resp, body = api.do(t, http.MethodPost, "/v1/resolve", api.authority, map[string]any{
		"player_id": player.String(), "price": "120",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["settled"])
	assert.Equal(t, "Take Profit", body["reason"])
	assert.Equal(t, "2000", body["pnl"])
	assert.Equal(t, "12000", body["balance"])

	// Trade is gone.
	resp, _ = api.do(t, http.MethodPost, "/v1/resolve", api.authority, map[string]any{
		"player_id": player.String(), "price": "120",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSetPriceAuthorityEndpoint(t *testing.T) {
	api := newTestAPI(t)
	next := uuid.New()

	resp, _ := api.do(t, http.MethodPost, "/v1/admin/price-authority", uuid.New(), map[string]any{
		"authority_id": next.String(),
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body := api.do(t, http.MethodPost, "/v1/admin/price-authority", api.roles.Administrator, map[string]any{
		"authority_id": next.String(),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, next.String(), body["price_authority"])

	// Old authority can no longer resolve.
	player := api.register(t)
	api.openTrade(t, player)
	resp, _ = api.do(t, http.MethodPost, "/v1/resolve", api.authority, map[string]any{
		"player_id": player.String(), "price": "120",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
