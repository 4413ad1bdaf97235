package game

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"queueforge/pkg/queue"
	"queueforge/pkg/types"
)

// Order rejections. The HTTP layer maps these to client errors.
var (
	ErrUnknownKind           = errors.New("unknown kind for category")
	ErrInvalidAmount         = errors.New("amount must be positive")
	ErrMaxLevel              = errors.New("maximum level reached")
	ErrRequirementsNotMet    = errors.New("requirements not met")
	ErrInsufficientResources = errors.New("insufficient resources")
	ErrLaterLevelQueued      = errors.New("a higher level of this kind is queued after it")
)

// Order is a player request to build, research or produce something.
type Order struct {
	PlanetID int64          `json:"planet_id"`
	Category types.Category `json:"category"`
	Kind     string         `json:"kind"`
	Amount   int            `json:"amount"` // ships only
}

// Service checks orders against planet state, charges for them and hands them
// to the queue engine. Orders on one queue are serialised so target levels
// computed from the queue stay valid until the item is enqueued.
type Service struct {
	engine  *queue.Engine
	store   StateStore
	speed   float64
	locks   *queue.KeyedLocker
	timeout time.Duration
	infoLog *log.Logger
}

// NewService builds an order service. A nil logger discards output and a
// lockTimeout <= 0 falls back to queue.DefaultLockTimeout.
func NewService(engine *queue.Engine, store StateStore, speed float64, lockTimeout time.Duration, infoLog *log.Logger) *Service {
	if infoLog == nil {
		infoLog = log.New(io.Discard, "", 0)
	}
	if lockTimeout <= 0 {
		lockTimeout = queue.DefaultLockTimeout
	}
	return &Service{
		engine:  engine,
		store:   store,
		speed:   speed,
		locks:   queue.NewKeyedLocker(),
		timeout: lockTimeout,
		infoLog: infoLog,
	}
}

// Place validates o, deducts its cost and enqueues it. The returned resources
// are what was charged.
func (s *Service) Place(ctx context.Context, o Order) (types.QueueItem, types.Resources, error) {
	entry, ok := Lookup(o.Category, o.Kind)
	if !ok {
		return types.QueueItem{}, nil, fmt.Errorf("%w: %s %q", ErrUnknownKind, o.Category, o.Kind)
	}
	if entry.Category == types.CategoryShip && o.Amount <= 0 {
		return types.QueueItem{}, nil, ErrInvalidAmount
	}

	unlock, err := s.locks.Lock(ctx, o.PlanetID, o.Category, s.timeout)
	if err != nil {
		return types.QueueItem{}, nil, queue.NewError(queue.KindConcurrencyConflict, "place order", o.PlanetID, o.Category, err)
	}
	defer unlock()

	now := s.engine.Now()
	q, err := s.engine.RetrieveQueueAt(ctx, o.PlanetID, o.Category, now)
	if err != nil {
		return types.QueueItem{}, nil, err
	}
	st, err := s.store.State(ctx, o.PlanetID)
	if err != nil {
		return types.QueueItem{}, nil, err
	}

	amount := o.Amount
	if entry.Category != types.CategoryShip {
		amount = nextLevel(q, st, entry)
		if entry.MaxLevel > 0 && amount > entry.MaxLevel {
			return types.QueueItem{}, nil, fmt.Errorf("%w: %s is capped at %d", ErrMaxLevel, entry.Kind, entry.MaxLevel)
		}
	} else if st.Ships[entry.Kind]+queuedShips(q, entry.Kind)+amount > MaxShipsPerKind {
		return types.QueueItem{}, nil, fmt.Errorf("%w: %s is capped at %d", ErrMaxLevel, entry.Kind, MaxShipsPerKind)
	}
	if missing := MissingRequirements(entry, st); len(missing) > 0 {
		return types.QueueItem{}, nil, fmt.Errorf("%w: %s needs %v", ErrRequirementsNotMet, entry.Kind, missing)
	}

	cost := CostAt(entry, amount)
	duration := Duration(entry, amount, st, s.speed)

	if err := s.charge(ctx, o.PlanetID, cost); err != nil {
		return types.QueueItem{}, nil, err
	}
	item, err := s.engine.Enqueue(ctx, o.PlanetID, o.Category, entry.Kind, amount, duration, now)
	if err != nil {
		if rerr := s.refund(ctx, o.PlanetID, cost); rerr != nil {
			return types.QueueItem{}, nil, errors.Join(err, fmt.Errorf("refund failed: %w", rerr))
		}
		return types.QueueItem{}, nil, err
	}

	s.infoLog.Printf("ORDER: planet %d %s %s -> %d for %v (%ds)", o.PlanetID, o.Category, entry.Kind, amount, cost, duration)
	return item, cost, nil
}

// Cancel removes a waiting item and refunds its full cost. Only the highest
// queued level of a building or research can be cancelled.
func (s *Service) Cancel(ctx context.Context, planetID int64, category types.Category, itemID string) (types.QueueItem, types.Resources, error) {
	unlock, err := s.locks.Lock(ctx, planetID, category, s.timeout)
	if err != nil {
		return types.QueueItem{}, nil, queue.NewError(queue.KindConcurrencyConflict, "cancel order", planetID, category, err)
	}
	defer unlock()

	now := s.engine.Now()
	q, err := s.engine.RetrieveQueueAt(ctx, planetID, category, now)
	if err != nil {
		return types.QueueItem{}, nil, err
	}
	if category != types.CategoryShip {
		if err := checkLastLevel(q, itemID); err != nil {
			return types.QueueItem{}, nil, err
		}
	}

	removed, err := s.engine.Cancel(ctx, planetID, category, itemID, now)
	if err != nil {
		return types.QueueItem{}, nil, err
	}

	var refund types.Resources
	if entry, ok := Lookup(category, removed.TargetKind); ok {
		refund = CostAt(entry, removed.LevelOrQuantity)
		if err := s.refund(ctx, planetID, refund); err != nil {
			return removed, nil, fmt.Errorf("refund for %s: %w", removed.ID, err)
		}
	}
	s.infoLog.Printf("ORDER: planet %d %s cancelled %s -> %d, refunded %v", planetID, category, removed.TargetKind, removed.LevelOrQuantity, refund)
	return removed, refund, nil
}

func (s *Service) charge(ctx context.Context, planetID int64, cost types.Resources) error {
	return s.store.UpdateState(ctx, planetID, func(st *types.PlanetState) error {
		if !st.Resources.Covers(cost) {
			return fmt.Errorf("%w: need %v, have %v", ErrInsufficientResources, cost, st.Resources)
		}
		for res, v := range cost {
			st.Resources[res] -= v
		}
		return nil
	})
}

func (s *Service) refund(ctx context.Context, planetID int64, cost types.Resources) error {
	return s.store.UpdateState(ctx, planetID, func(st *types.PlanetState) error {
		if st.Resources == nil {
			st.Resources = types.Resources{}
		}
		for res, v := range cost {
			st.Resources[res] += v
		}
		return nil
	})
}

// nextLevel is the level the next order of entry would produce: current level
// plus every level of it already in the queue.
func nextLevel(q *queue.Queue, st types.PlanetState, entry Entry) int {
	lvl := levelOf(st, entry.Kind)
	for _, it := range q.Items() {
		if it.TargetKind == entry.Kind && it.LevelOrQuantity > lvl {
			lvl = it.LevelOrQuantity
		}
	}
	return lvl + 1
}

func queuedShips(q *queue.Queue, kind string) int {
	n := 0
	for _, it := range q.Items() {
		if it.TargetKind == kind {
			n += it.LevelOrQuantity
		}
	}
	return n
}

func checkLastLevel(q *queue.Queue, itemID string) error {
	items := q.Items()
	for i, it := range items {
		if it.ID != itemID {
			continue
		}
		if i == 0 {
			// the engine refuses the active item itself
			return nil
		}
		for _, later := range items[i+1:] {
			if later.TargetKind == it.TargetKind {
				return fmt.Errorf("%w: cancel %s level %d first", ErrLaterLevelQueued, later.TargetKind, later.LevelOrQuantity)
			}
		}
		return nil
	}
	return nil
}
