package store

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"

	"queueforge/pkg/queue"
	"queueforge/pkg/types"
)

type queueKey struct {
	planetID int64
	category types.Category
}

// MemoryStore keeps planets and queues in process memory. Every value crossing
// its boundary is copied, so callers never share slices or maps with it.
type MemoryStore struct {
	mu      sync.Mutex
	planets map[int64]types.Planet
	states  map[int64]types.PlanetState
	queues  map[queueKey]queue.Snapshot
	nextID  int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		planets: make(map[int64]types.Planet),
		states:  make(map[int64]types.PlanetState),
		queues:  make(map[queueKey]queue.Snapshot),
	}
}

// AddPlanet registers a planet. A zero ID gets the next free one.
func (m *MemoryStore) AddPlanet(p types.Planet, st types.PlanetState) types.Planet {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == 0 {
		m.nextID++
		p.ID = m.nextID
	} else if p.ID > m.nextID {
		m.nextID = p.ID
	}
	st.PlanetID = p.ID
	m.planets[p.ID] = p
	m.states[p.ID] = cloneState(st)
	return p
}

// --- Transactions ---

type memTxKey struct{ store *MemoryStore }

// memTx holds the values a transaction replaced, first write wins.
type memTx struct {
	states map[int64]types.PlanetState
	queues map[queueKey]*queue.Snapshot // nil: no queue before
}

// InTx runs fn holding the store lock. Writes made with the context fn
// receives are undone when fn fails; a nested InTx joins the outer one.
func (m *MemoryStore) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.txFrom(ctx) != nil {
		return fn(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{states: make(map[int64]types.PlanetState), queues: make(map[queueKey]*queue.Snapshot)}
	if err := fn(context.WithValue(ctx, memTxKey{m}, tx)); err != nil {
		maps.Copy(m.states, tx.states)
		for k, snap := range tx.queues {
			if snap == nil {
				delete(m.queues, k)
				continue
			}
			m.queues[k] = *snap
		}
		return err
	}
	return nil
}

func (m *MemoryStore) txFrom(ctx context.Context) *memTx {
	tx, _ := ctx.Value(memTxKey{m}).(*memTx)
	return tx
}

// lock takes the store lock unless ctx already runs inside InTx, which holds it.
func (m *MemoryStore) lock(ctx context.Context) func() {
	if m.txFrom(ctx) != nil {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

// --- queue.Repository ---

func (m *MemoryStore) Load(ctx context.Context, planetID int64, category types.Category) (queue.Snapshot, error) {
	defer m.lock(ctx)()
	if _, ok := m.planets[planetID]; !ok {
		return queue.Snapshot{}, errUnknownPlanet("load queue", planetID, category)
	}
	snap := m.queues[queueKey{planetID, category}]
	return queue.Snapshot{Items: slices.Clone(snap.Items), Version: snap.Version}, nil
}

func (m *MemoryStore) Save(ctx context.Context, planetID int64, category types.Category, items []types.QueueItem, expectedVersion int64) error {
	defer m.lock(ctx)()
	if _, ok := m.planets[planetID]; !ok {
		return errUnknownPlanet("save queue", planetID, category)
	}
	key := queueKey{planetID, category}
	prev, existed := m.queues[key]
	if prev.Version != expectedVersion {
		return errVersionMoved(planetID, category, expectedVersion, prev.Version)
	}
	if tx := m.txFrom(ctx); tx != nil {
		if _, seen := tx.queues[key]; !seen {
			if existed {
				tx.queues[key] = &prev
			} else {
				tx.queues[key] = nil
			}
		}
	}
	m.queues[key] = queue.Snapshot{Items: slices.Clone(items), Version: expectedVersion + 1}
	return nil
}

// --- Planet state ---

func (m *MemoryStore) Planet(ctx context.Context, planetID int64) (types.Planet, error) {
	defer m.lock(ctx)()
	p, ok := m.planets[planetID]
	if !ok {
		return types.Planet{}, errUnknownPlanet("load planet", planetID, "")
	}
	return p, nil
}

func (m *MemoryStore) Planets(ctx context.Context) ([]types.Planet, error) {
	defer m.lock(ctx)()
	out := slices.Collect(maps.Values(m.planets))
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) State(ctx context.Context, planetID int64) (types.PlanetState, error) {
	defer m.lock(ctx)()
	st, ok := m.states[planetID]
	if !ok {
		return types.PlanetState{}, errUnknownPlanet("load state", planetID, "")
	}
	return cloneState(st), nil
}

// UpdateState runs fn on a copy of the planet state and keeps the copy only
// when fn succeeds.
func (m *MemoryStore) UpdateState(ctx context.Context, planetID int64, fn func(*types.PlanetState) error) error {
	defer m.lock(ctx)()
	st, ok := m.states[planetID]
	if !ok {
		return errUnknownPlanet("update state", planetID, "")
	}
	work := cloneState(st)
	if err := fn(&work); err != nil {
		return err
	}
	if tx := m.txFrom(ctx); tx != nil {
		if _, seen := tx.states[planetID]; !seen {
			tx.states[planetID] = st
		}
	}
	m.states[planetID] = work
	return nil
}

// Queues lists every stored queue, ordered by planet then category.
func (m *MemoryStore) Queues(ctx context.Context) ([]QueueInfo, error) {
	defer m.lock(ctx)()
	out := make([]QueueInfo, 0, len(m.queues))
	for k, snap := range m.queues {
		out = append(out, QueueInfo{PlanetID: k.planetID, Category: k.category, Items: len(snap.Items), Version: snap.Version})
	}
	sortQueueInfo(out)
	return out, nil
}

func cloneState(st types.PlanetState) types.PlanetState {
	return types.PlanetState{
		PlanetID:  st.PlanetID,
		Buildings: cloneLevels(st.Buildings),
		Research:  cloneLevels(st.Research),
		Ships:     cloneLevels(st.Ships),
		Resources: cloneResources(st.Resources),
	}
}

func cloneLevels(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	maps.Copy(out, in)
	return out
}

func cloneResources(in types.Resources) types.Resources {
	out := make(types.Resources, len(in))
	maps.Copy(out, in)
	return out
}
