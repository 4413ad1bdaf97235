package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"queueforge/pkg/queue"
	"queueforge/pkg/types"
)

// backend is what both stores offer to the rest of the server.
type backend interface {
	queue.Repository
	queue.Transactor
	Planet(ctx context.Context, planetID int64) (types.Planet, error)
	Planets(ctx context.Context) ([]types.Planet, error)
	State(ctx context.Context, planetID int64) (types.PlanetState, error)
	UpdateState(ctx context.Context, planetID int64, fn func(*types.PlanetState) error) error
	Queues(ctx context.Context) ([]QueueInfo, error)
}

func seedState() types.PlanetState {
	return types.PlanetState{
		Buildings: map[string]int{"metal_mine": 3, "robotics_factory": 1},
		Research:  map[string]int{},
		Ships:     map[string]int{},
		Resources: types.Resources{"metal": 5000, "crystal": 2500, "deuterium": 100},
	}
}

func homeworld() types.Planet {
	return types.Planet{OwnerUUID: "u-1", Name: "Homeworld", Type: "desert", Diameter: 12800,
		TempMin: 10, TempMax: 50, Galaxy: 1, System: 42, Position: 7, FieldsMax: 163}
}

func backends(t *testing.T) map[string]func(t *testing.T) (backend, int64) {
	return map[string]func(t *testing.T) (backend, int64){
		"memory": func(t *testing.T) (backend, int64) {
			m := NewMemoryStore()
			p := m.AddPlanet(homeworld(), seedState())
			return m, p.ID
		},
		"sqlite": func(t *testing.T) (backend, int64) {
			s, err := Open(DriverModernc, ":memory:")
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			p, err := s.CreatePlanet(context.Background(), homeworld(), seedState())
			require.NoError(t, err)
			return s, p.ID
		},
	}
}

func TestRepositoryContract(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s, id := open(t)

			snap, err := s.Load(ctx, id, types.CategoryBuilding)
			require.NoError(t, err)
			assert.Empty(t, snap.Items)
			assert.Equal(t, int64(0), snap.Version)

			items := []types.QueueItem{
				{ID: "a", Category: types.CategoryBuilding, PlanetID: id, TargetKind: "metal_mine", LevelOrQuantity: 4, StartTime: 1000, Duration: 60},
				{ID: "b", Category: types.CategoryBuilding, PlanetID: id, TargetKind: "solar_plant", LevelOrQuantity: 1, Duration: 30},
			}
			require.NoError(t, s.Save(ctx, id, types.CategoryBuilding, items, 0))

			snap, err = s.Load(ctx, id, types.CategoryBuilding)
			require.NoError(t, err)
			assert.Equal(t, items, snap.Items)
			assert.Equal(t, int64(1), snap.Version)

			// stale writers lose
			err = s.Save(ctx, id, types.CategoryBuilding, items[:1], 0)
			assert.ErrorIs(t, err, queue.ErrConcurrencyConflict)
			err = s.Save(ctx, id, types.CategoryBuilding, items[:1], 7)
			assert.ErrorIs(t, err, queue.ErrConcurrencyConflict)

			require.NoError(t, s.Save(ctx, id, types.CategoryBuilding, nil, 1))
			snap, err = s.Load(ctx, id, types.CategoryBuilding)
			require.NoError(t, err)
			assert.Empty(t, snap.Items)
			assert.Equal(t, int64(2), snap.Version)

			other, err := s.Load(ctx, id, types.CategoryShip)
			require.NoError(t, err)
			assert.Equal(t, int64(0), other.Version)

			qs, err := s.Queues(ctx)
			require.NoError(t, err)
			require.Len(t, qs, 1)
			assert.Equal(t, types.CategoryBuilding, qs[0].Category)
		})
	}
}

func TestUnknownPlanet(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s, _ := open(t)

			_, err := s.Load(ctx, 999, types.CategoryResearch)
			assert.ErrorIs(t, err, queue.ErrNotFound)
			err = s.Save(ctx, 999, types.CategoryResearch, nil, 0)
			assert.ErrorIs(t, err, queue.ErrNotFound)
			_, err = s.Planet(ctx, 999)
			assert.ErrorIs(t, err, queue.ErrNotFound)
			_, err = s.State(ctx, 999)
			assert.ErrorIs(t, err, queue.ErrNotFound)
		})
	}
}

func TestStateUpdates(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s, id := open(t)

			p, err := s.Planet(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, "Homeworld", p.Name)
			assert.Equal(t, "1:42:7", p.Coordinates())

			err = s.UpdateState(ctx, id, func(st *types.PlanetState) error {
				st.Buildings["metal_mine"] = 4
				st.Ships["light_fighter"] = 12
				st.Resources["metal"] -= 1000
				return nil
			})
			require.NoError(t, err)

			// a failing update leaves nothing behind
			boom := errors.New("boom")
			err = s.UpdateState(ctx, id, func(st *types.PlanetState) error {
				st.Buildings["metal_mine"] = 99
				return boom
			})
			assert.ErrorIs(t, err, boom)

			st, err := s.State(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, 4, st.Buildings["metal_mine"])
			assert.Equal(t, 12, st.Ships["light_fighter"])
			assert.Equal(t, int64(4000), st.Resources["metal"])

			// returned state is a copy
			st.Buildings["metal_mine"] = 50
			again, err := s.State(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, 4, again.Buildings["metal_mine"])

			planets, err := s.Planets(ctx)
			require.NoError(t, err)
			assert.Len(t, planets, 1)
		})
	}
}

func TestTransactionsCommitOrRollBackTogether(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s, id := open(t)
			items := []types.QueueItem{{ID: "a", TargetKind: "light_fighter", LevelOrQuantity: 5, Active: true, StartTime: 1000, Duration: 100}}

			boom := errors.New("disk I/O error")
			err := s.InTx(ctx, func(ctx context.Context) error {
				require.NoError(t, s.UpdateState(ctx, id, func(st *types.PlanetState) error {
					st.Ships["light_fighter"] += 5
					return nil
				}))
				require.NoError(t, s.Save(ctx, id, types.CategoryShip, items, 0))
				return boom
			})
			assert.ErrorIs(t, err, boom)

			st, err := s.State(ctx, id)
			require.NoError(t, err)
			assert.Zero(t, st.Ships["light_fighter"])
			snap, err := s.Load(ctx, id, types.CategoryShip)
			require.NoError(t, err)
			assert.Empty(t, snap.Items)
			assert.Zero(t, snap.Version)

			err = s.InTx(ctx, func(ctx context.Context) error {
				if err := s.UpdateState(ctx, id, func(st *types.PlanetState) error {
					st.Ships["light_fighter"] += 5
					return nil
				}); err != nil {
					return err
				}
				return s.Save(ctx, id, types.CategoryShip, items, 0)
			})
			require.NoError(t, err)

			st, err = s.State(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, 5, st.Ships["light_fighter"])
			snap, err = s.Load(ctx, id, types.CategoryShip)
			require.NoError(t, err)
			assert.Equal(t, items, snap.Items)
			assert.Equal(t, int64(1), snap.Version)
		})
	}
}

func TestMemoryStoreCopiesItems(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	p := m.AddPlanet(homeworld(), seedState())

	items := []types.QueueItem{{ID: "a", TargetKind: "metal_mine", LevelOrQuantity: 1, Duration: 10, StartTime: 5}}
	require.NoError(t, m.Save(ctx, p.ID, types.CategoryBuilding, items, 0))
	items[0].ID = "mutated"

	snap, err := m.Load(ctx, p.ID, types.CategoryBuilding)
	require.NoError(t, err)
	assert.Equal(t, "a", snap.Items[0].ID)

	q := m.AddPlanet(types.Planet{ID: 10, Name: "Colony"}, types.PlanetState{})
	r := m.AddPlanet(types.Planet{Name: "Next"}, types.PlanetState{})
	assert.Equal(t, int64(10), q.ID)
	assert.Equal(t, int64(11), r.ID)
}

func TestSQLiteChecksumMismatch(t *testing.T) {
	ctx := context.Background()
	s, err := Open(DriverModernc, ":memory:")
	require.NoError(t, err)
	defer s.Close()
	p, err := s.CreatePlanet(ctx, homeworld(), seedState())
	require.NoError(t, err)

	items := []types.QueueItem{{ID: "a", TargetKind: "metal_mine", LevelOrQuantity: 1, Duration: 10, StartTime: 5}}
	require.NoError(t, s.Save(ctx, p.ID, types.CategoryBuilding, items, 0))

	_, err = s.DB().ExecContext(ctx, "UPDATE production_queues SET checksum = 'deadbeef'")
	require.NoError(t, err)

	_, err = s.Load(ctx, p.ID, types.CategoryBuilding)
	assert.ErrorIs(t, err, queue.ErrPersistence)
	assert.Contains(t, err.Error(), "checksum mismatch")
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("postgres", "x")
	assert.Error(t, err)
}
