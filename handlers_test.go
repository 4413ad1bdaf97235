package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"queueforge/pkg/clock"
	"queueforge/pkg/config"
	"queueforge/pkg/events"
	"queueforge/pkg/game"
	"queueforge/pkg/queue"
	"queueforge/pkg/store"
	"queueforge/pkg/types"
)

type testEnv struct {
	app    *App
	store  *store.SQLiteStore
	clock  *clock.Manual
	events *events.Recorder
	planet int64
	h      http.Handler
}

// setupTestEnv builds the server over an in-memory database holding one planet.
func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	InfoLog = log.New(io.Discard, "INFO: ", 0)
	ErrorLog = log.New(io.Discard, "ERROR: ", 0)
	configureLimiter(1000, 1000)

	st, err := store.Open(store.DriverModernc, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	p, err := st.CreatePlanet(context.Background(), game.GeneratePlanet("u-1", "Homeworld", 1, 42, 7), types.PlanetState{
		Buildings: map[string]int{"metal_mine": 3, "robotics_factory": 2, "shipyard": 2, "research_lab": 1},
		Research:  map[string]int{"energy_technology": 1, "combustion_drive": 2},
		Ships:     map[string]int{},
		Resources: types.Resources{"metal": 50000, "crystal": 50000, "deuterium": 10000},
	})
	require.NoError(t, err)

	clk := clock.NewManual(1_700_000_000)
	rec := &events.Recorder{}
	app := newApp(config.Default(), st, rec, clk)
	return &testEnv{app: app, store: st, clock: clk, events: rec, planet: p.ID, h: app.routes()}
}

func (e *testEnv) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.h.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) overview(t *testing.T) OverviewResponse {
	t.Helper()
	rr := e.do(t, http.MethodGet, "/api/overview?planet_id="+itoa(e.planet), nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp OverviewResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp
}

func (e *testEnv) order(t *testing.T, category, kind string, amount int) OrderResponse {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/api/order", OrderRequest{PlanetID: e.planet, Category: category, Kind: kind, Amount: amount})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var resp OrderResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }

func TestOverviewEmptyPlanet(t *testing.T) {
	env := setupTestEnv(t)
	resp := env.overview(t)

	assert.Equal(t, "Homeworld", resp.Planet.Name)
	assert.Equal(t, "1:42:7", resp.Planet.Coordinates)
	assert.Equal(t, 8, resp.Planet.BuildingCount)
	assert.Nil(t, resp.BuildActive)
	assert.Nil(t, resp.ShipActive)
	assert.Empty(t, resp.BuildQueue)
	assert.Zero(t, resp.ShipQueueTimeCountdown)
	assert.Equal(t, int64(1_700_000_000), resp.ServerTime)
	assert.Equal(t, int64(50000), resp.Resources["metal"])
}

func TestOrderFlowThroughOverview(t *testing.T) {
	env := setupTestEnv(t)

	mine := env.order(t, "building", "metal_mine", 0)
	assert.Equal(t, 4, mine.Item.LevelOrQuantity)
	assert.Equal(t, mine.Item.EndTime(), mine.QueueEndTime)
	next := env.order(t, "building", "metal_mine", 0)
	assert.Equal(t, 5, next.Item.LevelOrQuantity)

	ships := env.order(t, "ship", "light_fighter", 2)
	research := env.order(t, "research", "energy_technology", 0)
	assert.Equal(t, 2, research.Item.LevelOrQuantity)

	resp := env.overview(t)
	require.NotNil(t, resp.BuildActive)
	assert.Equal(t, mine.Item.ID, resp.BuildActive.ID)
	require.Len(t, resp.BuildQueue, 1)
	assert.Equal(t, next.Item.ID, resp.BuildQueue[0].ID)
	require.NotNil(t, resp.ResearchActive)
	require.NotNil(t, resp.ShipActive)
	assert.Equal(t, ships.Item.Duration, resp.ShipQueueTimeCountdown)

	// let the first mine level finish
	env.clock.Advance(time.Duration(mine.Item.Duration) * time.Second)
	resp = env.overview(t)
	require.NotNil(t, resp.BuildActive)
	assert.Equal(t, next.Item.ID, resp.BuildActive.ID)
	assert.Empty(t, resp.BuildQueue)
	assert.Equal(t, 9, resp.Planet.BuildingCount)
	assert.Equal(t, ships.Item.Duration-mine.Item.Duration, resp.ShipQueueTimeCountdown)

	assert.Len(t, env.events.OfType(events.TypeSettled), 1)
	assert.Len(t, env.events.OfType(events.TypeEnqueued), 4)
}

func TestOverviewShowsStuckQueue(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	// metal_mine is level 3, so level 9 cannot be applied
	stuck := types.QueueItem{ID: "stuck-1", Category: types.CategoryBuilding, PlanetID: env.planet, TargetKind: "metal_mine",
		LevelOrQuantity: 9, Active: true, StartTime: 1_699_999_000, Duration: 10}
	require.NoError(t, env.store.Save(ctx, env.planet, types.CategoryBuilding, []types.QueueItem{stuck}, 0))
	ships := env.order(t, "ship", "light_fighter", 1)

	resp := env.overview(t)
	require.NotNil(t, resp.BuildActive)
	assert.Equal(t, "stuck-1", resp.BuildActive.ID)
	require.NotNil(t, resp.ShipActive)
	assert.Equal(t, ships.Item.ID, resp.ShipActive.ID)
	require.Contains(t, resp.Stuck, types.CategoryBuilding)
	assert.Contains(t, resp.Stuck[types.CategoryBuilding], "effect_application")
	assert.NotContains(t, resp.Stuck, types.CategoryShip)
	assert.Len(t, env.events.OfType(events.TypeEffectFailed), 1)

	rr := env.do(t, http.MethodGet, "/api/queue?planet_id="+itoa(env.planet)+"&category=building", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestQueueEndpoint(t *testing.T) {
	env := setupTestEnv(t)
	env.order(t, "building", "solar_plant", 0)

	rr := env.do(t, http.MethodGet, "/api/queue?planet_id="+itoa(env.planet)+"&category=building", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var view struct {
		Category string            `json:"category"`
		Active   *types.QueueItem  `json:"active"`
		Queued   []types.QueueItem `json:"queued"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	assert.Equal(t, "building", view.Category)
	require.NotNil(t, view.Active)
	assert.Equal(t, "solar_plant", view.Active.TargetKind)
	assert.Empty(t, view.Queued)
}

func TestCancelEndpoint(t *testing.T) {
	env := setupTestEnv(t)
	first := env.order(t, "ship", "light_fighter", 1)
	second := env.order(t, "ship", "light_fighter", 4)

	rr := env.do(t, http.MethodPost, "/api/cancel", CancelRequest{PlanetID: env.planet, Category: "ship", ItemID: first.Item.ID})
	assert.Equal(t, http.StatusConflict, rr.Code)

	before, err := env.store.State(context.Background(), env.planet)
	require.NoError(t, err)

	rr = env.do(t, http.MethodPost, "/api/cancel", CancelRequest{PlanetID: env.planet, Category: "ship", ItemID: second.Item.ID})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp CancelResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, second.Cost, resp.Refund)

	after, err := env.store.State(context.Background(), env.planet)
	require.NoError(t, err)
	assert.Equal(t, before.Resources["metal"]+second.Cost["metal"], after.Resources["metal"])

	rr = env.do(t, http.MethodPost, "/api/cancel", CancelRequest{PlanetID: env.planet, Category: "ship", ItemID: "missing"})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestErrorStatusCodes(t *testing.T) {
	env := setupTestEnv(t)
	cases := []struct {
		name   string
		method string
		target string
		body   any
		want   int
	}{
		{"missing planet id", http.MethodGet, "/api/overview", nil, http.StatusBadRequest},
		{"unknown planet", http.MethodGet, "/api/overview?planet_id=999", nil, http.StatusNotFound},
		{"bad category", http.MethodGet, "/api/queue?planet_id=1&category=defense", nil, http.StatusBadRequest},
		{"unknown kind", http.MethodPost, "/api/order", OrderRequest{PlanetID: env.planet, Category: "building", Kind: "death_star"}, http.StatusBadRequest},
		{"requirements", http.MethodPost, "/api/order", OrderRequest{PlanetID: env.planet, Category: "ship", Kind: "colony_ship", Amount: 1}, http.StatusBadRequest},
		{"too expensive", http.MethodPost, "/api/order", OrderRequest{PlanetID: env.planet, Category: "ship", Kind: "light_fighter", Amount: 500}, http.StatusPaymentRequired},
		{"unknown planet order", http.MethodPost, "/api/order", OrderRequest{PlanetID: 999, Category: "building", Kind: "metal_mine"}, http.StatusNotFound},
		{"wrong method", http.MethodDelete, "/api/order", nil, http.StatusMethodNotAllowed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := env.do(t, tc.method, tc.target, tc.body)
			assert.Equal(t, tc.want, rr.Code, rr.Body.String())
		})
	}
}

func TestRejectsBadContentAndJSON(t *testing.T) {
	env := setupTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/order", strings.NewReader("kind=metal_mine"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	env.h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rr.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/order", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rr = httptest.NewRecorder()
	env.h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestWriteErrorConflictSetsRetryAfter(t *testing.T) {
	ErrorLog = log.New(io.Discard, "", 0)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/queue", nil)

	writeError(rr, req, queue.NewError(queue.KindConcurrencyConflict, "retrieve queue", 1, types.CategoryBuilding, errors.New("busy")))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))

	rr = httptest.NewRecorder()
	writeError(rr, req, queue.NewError(queue.KindEffectApplication, "settle", 1, types.CategoryBuilding, game.ErrEffectRejected))
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = httptest.NewRecorder()
	writeError(rr, req, queue.NewError(queue.KindPersistence, "save queue", 1, types.CategoryBuilding, errors.New("disk")))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestStatusAndMetrics(t *testing.T) {
	env := setupTestEnv(t)
	env.order(t, "building", "metal_mine", 0)

	rr := env.do(t, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var status StatusResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	assert.Equal(t, AppName, status.Name)
	assert.Equal(t, "ok", status.Database)
	assert.Equal(t, "disabled", status.Events)

	rr = env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `queueforge_items_enqueued_total{category="building"} 1`)
}

func TestRateLimitAndCORS(t *testing.T) {
	env := setupTestEnv(t)
	configureLimiter(1, 1)

	rr := env.do(t, http.MethodGet, "/api/status", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))

	rr = env.do(t, http.MethodGet, "/api/status", nil)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	rr = env.do(t, http.MethodOptions, "/api/order", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}
