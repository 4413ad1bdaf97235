package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"queueforge/pkg/config"
	"queueforge/pkg/game"
	"queueforge/pkg/store"
	"queueforge/pkg/types"
)

func initDB(ctx context.Context, cfg config.DatabaseConfig, seed bool) (*store.SQLiteStore, error) {
	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	st, err := store.Open(cfg.Driver, cfg.Path)
	if err != nil {
		return nil, err
	}
	if seed {
		if err := seedHomeworld(ctx, st); err != nil {
			_ = st.Close()
			return nil, err
		}
	}
	return st, nil
}

// seedHomeworld gives an empty database one planet to play with.
func seedHomeworld(ctx context.Context, st *store.SQLiteStore) error {
	planets, err := st.Planets(ctx)
	if err != nil {
		return err
	}
	if len(planets) > 0 {
		return nil
	}

	InfoLog.Println("FIRST BOOT: Seeding homeworld...")
	p, err := st.CreatePlanet(ctx, game.GeneratePlanet("", "Homeworld", 1, 1, 8), starterState())
	if err != nil {
		return fmt.Errorf("seed homeworld: %w", err)
	}
	InfoLog.Printf("Homeworld %d created at [%s]", p.ID, p.Coordinates())
	return nil
}

func starterState() types.PlanetState {
	return types.PlanetState{
		Buildings: map[string]int{},
		Research:  map[string]int{},
		Ships:     map[string]int{},
		Resources: types.Resources{"metal": 500, "crystal": 500, "deuterium": 0},
	}
}
