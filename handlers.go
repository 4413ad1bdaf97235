package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"queueforge/pkg/game"
	"queueforge/pkg/types"
)

// --- Queue Handlers ---

func (a *App) handleQueue(w http.ResponseWriter, r *http.Request) {
	planetID, err := parsePlanetID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	category, err := types.ParseCategory(r.URL.Query().Get("category"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	q, err := a.engine.RetrieveQueue(r.Context(), planetID, category)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (a *App) handleOrder(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad JSON", http.StatusBadRequest)
		return
	}
	category, err := types.ParseCategory(req.Category)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	item, cost, err := a.orders.Place(r.Context(), game.Order{
		PlanetID: req.PlanetID,
		Category: category,
		Kind:     req.Kind,
		Amount:   req.Amount,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	end, err := a.engine.RetrieveQueueTimeEnd(r.Context(), req.PlanetID, category)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, OrderResponse{Item: item, Cost: cost, QueueEndTime: end})
}

func (a *App) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad JSON", http.StatusBadRequest)
		return
	}
	category, err := types.ParseCategory(req.Category)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.ItemID == "" {
		http.Error(w, "item_id is required", http.StatusBadRequest)
		return
	}

	item, refund, err := a.orders.Cancel(r.Context(), req.PlanetID, category, req.ItemID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CancelResponse{Item: item, Refund: refund})
}

// --- Status ---

func (a *App) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Name:     AppName,
		Version:  AppVersion,
		Time:     a.engine.Now(),
		Uptime:   time.Since(a.started).Truncate(time.Second).String(),
		Database: "ok",
		Events:   a.eventsMode,
	}
	if err := a.db.PingContext(r.Context()); err != nil {
		resp.Database = fmt.Sprintf("error: %v", err)
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
