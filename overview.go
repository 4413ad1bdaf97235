package main

import (
	"context"
	"errors"
	"net/http"
	"slices"

	"golang.org/x/sync/errgroup"

	"queueforge/pkg/queue"
	"queueforge/pkg/types"
)

func (a *App) handleOverview(w http.ResponseWriter, r *http.Request) {
	planetID, err := parsePlanetID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	resp, err := a.buildOverview(r.Context(), planetID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// buildOverview settles the three queues of a planet in parallel and reads its
// header data once they are done, so the header reflects finished items.
// A queue whose head cannot be applied is still shown and listed under Stuck.
func (a *App) buildOverview(ctx context.Context, planetID int64) (*OverviewResponse, error) {
	now := a.engine.Now()

	queues := make([]*queue.Queue, len(types.Categories))
	stuck := make([]error, len(types.Categories))
	g, gctx := errgroup.WithContext(ctx)
	for i, category := range types.Categories {
		g.Go(func() error {
			q, err := a.engine.RetrieveQueueAt(gctx, planetID, category, now)
			if errors.Is(err, queue.ErrEffectApplication) {
				stuck[i], err = err, nil
			}
			queues[i] = q
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	planet, err := a.planets.Planet(ctx, planetID)
	if err != nil {
		return nil, err
	}
	state, err := a.planets.State(ctx, planetID)
	if err != nil {
		return nil, err
	}

	buildings := 0
	for _, lvl := range state.Buildings {
		buildings += lvl
	}

	resp := &OverviewResponse{
		Planet: PlanetHeader{
			ID:               planet.ID,
			HeaderFilename:   planet.Type,
			Name:             planet.Name,
			Diameter:         planet.Diameter,
			TempMin:          planet.TempMin,
			TempMax:          planet.TempMax,
			Coordinates:      planet.Coordinates(),
			BuildingCount:    buildings,
			MaxBuildingCount: planet.FieldsMax,
		},
		Resources:  state.Resources,
		ServerTime: now,
	}
	resp.BuildActive, resp.BuildQueue = split(queues[0])
	resp.ResearchActive, resp.ResearchQueue = split(queues[1])
	resp.ShipActive, resp.ShipQueue = split(queues[2])

	if end := queues[2].QueueEndTime(); end > 0 {
		resp.ShipQueueTimeCountdown = end - now
	}
	for i, err := range stuck {
		if err == nil {
			continue
		}
		if resp.Stuck == nil {
			resp.Stuck = make(map[types.Category]string)
		}
		resp.Stuck[types.Categories[i]] = err.Error()
		ErrorLog.Printf("OVERVIEW: planet %d %s queue stuck: %v", planetID, types.Categories[i], err)
	}
	return resp, nil
}

func split(q *queue.Queue) (*types.QueueItem, []types.QueueItem) {
	waiting := slices.Collect(q.Queued())
	if waiting == nil {
		waiting = []types.QueueItem{}
	}
	if active, ok := q.CurrentlyBuilding(); ok {
		return &active, waiting
	}
	return nil, waiting
}
