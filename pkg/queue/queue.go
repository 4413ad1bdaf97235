package queue

import (
	"encoding/json"
	"iter"
	"slices"

	"queueforge/pkg/types"
)

// Queue is a settled, read-only view of one planet's queue for one category.
// The first item, if any, is active; the rest wait in FIFO order.
type Queue struct {
	planetID int64
	category types.Category
	items    []types.QueueItem
}

// NewQueue wraps items without settling them. The slice is copied.
func NewQueue(planetID int64, category types.Category, items []types.QueueItem) *Queue {
	return &Queue{planetID: planetID, category: category, items: slices.Clone(items)}
}

func (q *Queue) PlanetID() int64 { return q.planetID }
func (q *Queue) Category() types.Category { return q.category }
func (q *Queue) Len() int { return len(q.items) }
func (q *Queue) Items() []types.QueueItem { return slices.Clone(q.items) }

// CurrentlyBuilding returns the active item, or false when the queue is empty.
func (q *Queue) CurrentlyBuilding() (types.QueueItem, bool) {
	if len(q.items) == 0 {
		return types.QueueItem{}, false
	}
	return q.items[0], true
}

// Queued yields the waiting items in insertion order. Each range over the
// returned sequence starts again from the first waiting item.
func (q *Queue) Queued() iter.Seq[types.QueueItem] {
	return func(yield func(types.QueueItem) bool) {
		if len(q.items) < 2 {
			return
		}
		for _, item := range q.items[1:] {
			if !yield(item) {
				return
			}
		}
	}
}

// QueueEndTime is the unix second at which every item will have finished,
// or 0 for an empty queue.
func (q *Queue) QueueEndTime() int64 {
	active, ok := q.CurrentlyBuilding()
	if !ok {
		return 0
	}
	end := active.EndTime()
	for item := range q.Queued() {
		end += item.Duration
	}
	return end
}

type queueView struct {
	PlanetID     int64             `json:"planet_id"`
	Category     types.Category    `json:"category"`
	Active       *types.QueueItem  `json:"active"`
	Queued       []types.QueueItem `json:"queued"`
	QueueEndTime int64             `json:"queue_end_time"`
}

// MarshalJSON renders the active/waiting split used by the overview screen.
func (q *Queue) MarshalJSON() ([]byte, error) {
	v := queueView{
		PlanetID:     q.planetID,
		Category:     q.category,
		Queued:       slices.Collect(q.Queued()),
		QueueEndTime: q.QueueEndTime(),
	}
	if v.Queued == nil {
		v.Queued = []types.QueueItem{}
	}
	if active, ok := q.CurrentlyBuilding(); ok {
		v.Active = &active
	}
	return json.Marshal(v)
}
