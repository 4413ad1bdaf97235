package game

import (
	"context"
	"errors"
	"fmt"

	"queueforge/pkg/queue"
	"queueforge/pkg/types"
)

// ErrEffectRejected is returned by a completion port when planet state cannot
// take the finished item. The engine keeps the item queued.
var ErrEffectRejected = errors.New("effect rejected")

// StateStore reads and atomically edits planet state.
type StateStore interface {
	Planet(ctx context.Context, planetID int64) (types.Planet, error)
	State(ctx context.Context, planetID int64) (types.PlanetState, error)
	UpdateState(ctx context.Context, planetID int64, fn func(*types.PlanetState) error) error
}

// NewPorts returns one completion port per category over store.
func NewPorts(store StateStore) queue.Ports {
	return queue.Ports{
		types.CategoryBuilding: &levelPort{store: store, category: types.CategoryBuilding},
		types.CategoryResearch: &levelPort{store: store, category: types.CategoryResearch},
		types.CategoryShip:     &shipPort{store: store},
	}
}

// levelPort raises a building or research level. A target at or below the
// current level has already been applied and is accepted as is.
type levelPort struct {
	store    StateStore
	category types.Category
}

func (p *levelPort) Apply(ctx context.Context, planetID int64, kind string, target int) error {
	entry, ok := Lookup(p.category, kind)
	if !ok {
		return fmt.Errorf("%w: unknown %s %q", ErrEffectRejected, p.category, kind)
	}
	return p.store.UpdateState(ctx, planetID, func(st *types.PlanetState) error {
		levels := st.Buildings
		if p.category == types.CategoryResearch {
			levels = st.Research
		}
		cur := levels[kind]
		switch {
		case target <= cur:
			return nil
		case target != cur+1:
			return fmt.Errorf("%w: %s is level %d, cannot jump to %d", ErrEffectRejected, kind, cur, target)
		case entry.MaxLevel > 0 && target > entry.MaxLevel:
			return fmt.Errorf("%w: %s max level is %d", ErrEffectRejected, kind, entry.MaxLevel)
		}
		levels[kind] = target
		return nil
	})
}

// shipPort adds finished units to the planet's fleet.
type shipPort struct {
	store StateStore
}

func (p *shipPort) Apply(ctx context.Context, planetID int64, kind string, quantity int) error {
	if _, ok := Lookup(types.CategoryShip, kind); !ok {
		return fmt.Errorf("%w: unknown ship %q", ErrEffectRejected, kind)
	}
	return p.store.UpdateState(ctx, planetID, func(st *types.PlanetState) error {
		if st.Ships[kind]+quantity > MaxShipsPerKind {
			return fmt.Errorf("%w: %s would exceed %d ships", ErrEffectRejected, kind, MaxShipsPerKind)
		}
		st.Ships[kind] += quantity
		return nil
	})
}
