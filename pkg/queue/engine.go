// Package queue settles and mutates per-planet production queues.
//
// Settlement is pull-based: nothing runs between calls. Every read or write
// takes the (planet, category) lock, loads the stored items, applies the
// effects of items whose end time has passed, saves, and releases the lock.
package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"queueforge/pkg/clock"
	"queueforge/pkg/core"
	"queueforge/pkg/events"
	"queueforge/pkg/metrics"
	"queueforge/pkg/types"
)

// DefaultLockTimeout bounds the wait for a busy queue when no timeout is set.
const DefaultLockTimeout = 2 * time.Second

// Engine owns the settle-on-read cycle for every queue in a repository.
// When the repository is a Transactor, completion effects and the queue save
// of one cycle commit or roll back together.
type Engine struct {
	repo        Repository
	ports       Ports
	clock       clock.Clock
	locks       *KeyedLocker
	lockTimeout time.Duration
	recorder    metrics.Recorder
	publisher   events.Publisher
	infoLog     *log.Logger
	errorLog    *log.Logger
	newID       func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLockTimeout bounds how long a call waits for a busy queue. Values <= 0
// keep DefaultLockTimeout.
func WithLockTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.lockTimeout = d
		}
	}
}

// WithRecorder injects a metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

// WithPublisher injects an event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) {
		if p != nil {
			e.publisher = p
		}
	}
}

// WithLoggers sets the info and error loggers. Nil keeps the discard logger.
func WithLoggers(info, errLog *log.Logger) Option {
	return func(e *Engine) {
		if info != nil {
			e.infoLog = info
		}
		if errLog != nil {
			e.errorLog = errLog
		}
	}
}

// WithIDGenerator replaces the item id source.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

// NewEngine wires an engine over repo. ports must hold one port per category
// that will be settled.
func NewEngine(repo Repository, ports Ports, opts ...Option) *Engine {
	if repo == nil {
		panic("queue.NewEngine: repository is required")
	}
	discard := log.New(io.Discard, "", 0)
	e := &Engine{
		repo:        repo,
		ports:       ports,
		clock:       clock.System{},
		locks:       NewKeyedLocker(),
		lockTimeout: DefaultLockTimeout,
		recorder:    metrics.NoopRecorder{},
		publisher:   events.NoopPublisher{},
		infoLog:     discard,
		errorLog:    discard,
		newID:       core.NewID,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Now returns the engine clock in unix seconds.
func (e *Engine) Now() int64 {
	return clock.Unix(e.clock)
}

// --- Reads ---

// RetrieveQueue settles and returns the queue as of the engine clock.
func (e *Engine) RetrieveQueue(ctx context.Context, planetID int64, category types.Category) (*Queue, error) {
	return e.RetrieveQueueAt(ctx, planetID, category, e.Now())
}

// RetrieveQueueAt settles every active item that finished by now and returns
// the resulting queue. A port failure leaves the failing item active and is
// returned as ErrEffectApplication together with the queue as saved, so the
// caller can still show it. Items settled before the failure stay settled.
func (e *Engine) RetrieveQueueAt(ctx context.Context, planetID int64, category types.Category, now int64) (*Queue, error) {
	items, err := e.withQueue(ctx, "retrieve queue", planetID, category, now, nil)
	if err != nil && !errors.Is(err, ErrEffectApplication) {
		return nil, err
	}
	out := NewQueue(planetID, category, items)
	e.recorder.ObserveQueueLength(category, out.Len())
	return out, err
}

// RetrieveQueueTimeEnd returns when the settled queue will be empty, or 0.
func (e *Engine) RetrieveQueueTimeEnd(ctx context.Context, planetID int64, category types.Category) (int64, error) {
	return e.RetrieveQueueTimeEndAt(ctx, planetID, category, e.Now())
}

// RetrieveQueueTimeEndAt is RetrieveQueueTimeEnd with an explicit time.
func (e *Engine) RetrieveQueueTimeEndAt(ctx context.Context, planetID int64, category types.Category, now int64) (int64, error) {
	q, err := e.RetrieveQueueAt(ctx, planetID, category, now)
	if err != nil {
		return 0, err
	}
	return q.QueueEndTime(), nil
}

// --- Writes ---

// Enqueue settles the queue, then appends a new item. The item becomes active
// with StartTime now when the queue is empty, otherwise it waits.
func (e *Engine) Enqueue(ctx context.Context, planetID int64, category types.Category, targetKind string, levelOrQuantity int, duration int64, now int64) (types.QueueItem, error) {
	const op = "enqueue"

	if err := validateOrder(targetKind, levelOrQuantity, duration); err != nil {
		return types.QueueItem{}, NewError(KindInvalidItem, op, planetID, category, err)
	}

	item := types.QueueItem{
		ID:              e.newID(),
		Category:        category,
		PlanetID:        planetID,
		TargetKind:      targetKind,
		LevelOrQuantity: levelOrQuantity,
		Duration:        duration,
		CreatedAt:       now,
	}
	_, err := e.withQueue(ctx, op, planetID, category, now, func(items []types.QueueItem) ([]types.QueueItem, bool, error) {
		if len(items) == 0 {
			item.StartTime = now
			item.Active = true
		}
		return append(items, item), true, nil
	})
	if err != nil {
		return types.QueueItem{}, err
	}

	e.recorder.IncEnqueued(category)
	e.publish(ctx, []events.Event{events.FromItem(events.TypeEnqueued, item, now)})
	e.infoLog.Printf("QUEUE: planet %d %s enqueued %s -> %d (%ds)", planetID, category, targetKind, levelOrQuantity, duration)
	return item, nil
}

// Cancel settles the queue, then removes the waiting item itemID. The active
// item cannot be cancelled. Refunds are up to the caller.
func (e *Engine) Cancel(ctx context.Context, planetID int64, category types.Category, itemID string, now int64) (types.QueueItem, error) {
	const op = "cancel"

	var removed types.QueueItem
	_, err := e.withQueue(ctx, op, planetID, category, now, func(items []types.QueueItem) ([]types.QueueItem, bool, error) {
		for i, it := range items {
			if it.ID != itemID {
				continue
			}
			if i == 0 {
				return nil, false, &Error{Kind: KindNotCancellable, Op: op, PlanetID: planetID, Category: category, ItemID: itemID,
					Err: errors.New("item is already in production")}
			}
			removed = it
			return append(items[:i:i], items[i+1:]...), true, nil
		}
		return nil, false, &Error{Kind: KindNotFound, Op: op, PlanetID: planetID, Category: category, ItemID: itemID,
			Err: errors.New("no such queue item")}
	})
	if err != nil {
		return types.QueueItem{}, err
	}

	e.recorder.IncCancelled(category)
	e.publish(ctx, []events.Event{events.FromItem(events.TypeCancelled, removed, now)})
	e.infoLog.Printf("QUEUE: planet %d %s cancelled %s (%s)", planetID, category, removed.TargetKind, removed.ID)
	return removed, nil
}

// --- Settlement ---

// mutateFunc edits a settled item list. changed=false skips the save unless
// settlement already changed something.
type mutateFunc func(items []types.QueueItem) (out []types.QueueItem, changed bool, err error)

// withQueue runs the lock-load-settle-mutate-save cycle for one queue and
// returns the resulting items. A nil mutate only settles. Events gathered
// while locked are published after the lock is released.
func (e *Engine) withQueue(ctx context.Context, op string, planetID int64, category types.Category, now int64, mutate mutateFunc) ([]types.QueueItem, error) {
	if !category.Valid() {
		return nil, NewError(KindNotFound, op, planetID, category, fmt.Errorf("unknown category %q", category))
	}

	waitStart := time.Now()
	unlock, err := e.locks.Lock(ctx, planetID, category, e.lockTimeout)
	if err != nil {
		e.recorder.IncConflict(category)
		return nil, NewError(KindConcurrencyConflict, op, planetID, category, err)
	}
	e.recorder.ObserveLockWait(category, time.Since(waitStart))

	items, pending, err := e.settleLocked(ctx, op, planetID, category, now, mutate)
	unlock()

	e.publish(ctx, pending)
	return items, err
}

// settleLocked runs one cycle, inside a repository transaction when the
// repository offers one. A failed save then also undoes the effects applied
// by the same cycle, so the items left at the head are applied exactly once.
func (e *Engine) settleLocked(ctx context.Context, op string, planetID int64, category types.Category, now int64, mutate mutateFunc) ([]types.QueueItem, []events.Event, error) {
	var (
		items     []types.QueueItem
		pending   []events.Event
		effectErr error
	)
	run := func(ctx context.Context) error {
		var err error
		items, pending, effectErr, err = e.cycle(ctx, op, planetID, category, now, mutate)
		return err
	}

	var err error
	if tx, ok := e.repo.(Transactor); ok {
		err = tx.InTx(ctx, run)
	} else {
		err = run(ctx)
	}
	if err != nil {
		return nil, nil, classify(err, KindPersistence, op, planetID, category)
	}
	return items, pending, effectErr
}

// cycle loads, settles, mutates and saves. err is a load or save failure;
// effectErr is a port or mutate refusal that still lets the cycle save.
func (e *Engine) cycle(ctx context.Context, op string, planetID int64, category types.Category, now int64, mutate mutateFunc) (items []types.QueueItem, pending []events.Event, effectErr, err error) {
	snap, err := e.repo.Load(ctx, planetID, category)
	if err != nil {
		return nil, nil, nil, classify(err, KindPersistence, op, planetID, category)
	}

	items, pending, dirty, effectErr := e.settle(ctx, planetID, category, snap.Items, now)

	if effectErr == nil && mutate != nil {
		out, changed, mutErr := mutate(items)
		if mutErr != nil {
			effectErr = mutErr
		} else {
			items = out
			dirty = dirty || changed
		}
	}

	if dirty {
		if err := e.repo.Save(ctx, planetID, category, items, snap.Version); err != nil {
			err = classify(err, KindPersistence, op, planetID, category)
			if errors.Is(err, ErrConcurrencyConflict) {
				e.recorder.IncConflict(category)
			}
			e.errorLog.Printf("QUEUE: planet %d %s save failed after %d settlements: %v", planetID, category, countType(pending, events.TypeSettled), err)
			return nil, nil, nil, err
		}
	}
	return items, pending, effectErr, nil
}

// settle applies finished items one at a time. It stops at the first item
// that is still running or whose port refuses the effect. changed reports
// whether the returned list differs from the stored one.
func (e *Engine) settle(ctx context.Context, planetID int64, category types.Category, stored []types.QueueItem, now int64) (items []types.QueueItem, pending []events.Event, changed bool, err error) {
	items, changed = normalizeHead(stored, now)

	for len(items) > 0 && now >= items[0].EndTime() {
		active := items[0]

		port, ok := e.ports[category]
		if !ok {
			return items, pending, changed, NewError(KindNotFound, "settle", planetID, category, errors.New("no completion port for category"))
		}
		if err := port.Apply(ctx, planetID, active.TargetKind, active.LevelOrQuantity); err != nil {
			e.recorder.IncEffectFailure(category)
			pending = append(pending, events.FromItem(events.TypeEffectFailed, active, now))
			e.errorLog.Printf("QUEUE: planet %d %s item %s (%s -> %d) stuck: %v", planetID, category, active.ID, active.TargetKind, active.LevelOrQuantity, err)
			return items, pending, changed, &Error{Kind: KindEffectApplication, Op: "settle", PlanetID: planetID, Category: category, ItemID: active.ID, Err: err}
		}

		e.recorder.IncSettled(category)
		pending = append(pending, events.FromItem(events.TypeSettled, active, now))
		e.infoLog.Printf("QUEUE: planet %d %s settled %s -> %d", planetID, category, active.TargetKind, active.LevelOrQuantity)

		changed = true
		items = items[1:]
		if len(items) > 0 {
			next := items[0]
			next.StartTime = max(active.EndTime(), now)
			next.Active = true
			items[0] = next
			pending = append(pending, events.FromItem(events.TypePromoted, next, now))
		}
	}
	return items, pending, changed, nil
}

// normalizeHead copies items and marks the head active, so a list written
// outside the engine still has an active item. A head that was never started
// starts now; changed reports that.
func normalizeHead(items []types.QueueItem, now int64) ([]types.QueueItem, bool) {
	out := make([]types.QueueItem, len(items))
	copy(out, items)
	if len(out) == 0 || out[0].IsActive() {
		return out, false
	}
	out[0].Active = true
	if out[0].StartTime == 0 {
		out[0].StartTime = now
		return out, true
	}
	return out, false
}

func validateOrder(targetKind string, levelOrQuantity int, duration int64) error {
	switch {
	case targetKind == "":
		return errors.New("target kind is required")
	case levelOrQuantity <= 0:
		return fmt.Errorf("level or quantity must be positive, got %d", levelOrQuantity)
	case duration <= 0:
		return fmt.Errorf("duration must be positive, got %d", duration)
	}
	return nil
}

func (e *Engine) publish(ctx context.Context, evs []events.Event) {
	for _, ev := range evs {
		if err := e.publisher.Publish(ctx, ev); err != nil {
			e.errorLog.Printf("QUEUE: publish %s for item %s failed: %v", ev.Type, ev.ItemID, err)
		}
	}
}

func countType(evs []events.Event, t events.Type) int {
	n := 0
	for _, ev := range evs {
		if ev.Type == t {
			n++
		}
	}
	return n
}
