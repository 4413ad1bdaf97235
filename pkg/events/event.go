// Package events carries queue lifecycle notifications out of the engine.
package events

import (
	"context"
	"sync"

	"queueforge/pkg/types"
)

// Type names the lifecycle step an Event reports.
type Type string

const (
	TypeEnqueued     Type = "enqueued"
	TypePromoted     Type = "promoted"
	TypeSettled      Type = "settled"
	TypeCancelled    Type = "cancelled"
	TypeEffectFailed Type = "effect_failed"
)

// Event describes something that happened to one queue item.
type Event struct {
	Type            Type           `json:"type"`
	PlanetID        int64          `json:"planet_id"`
	Category        types.Category `json:"category"`
	ItemID          string         `json:"item_id"`
	TargetKind      string         `json:"target_kind"`
	LevelOrQuantity int            `json:"level_or_quantity"`
	At              int64          `json:"at"`
}

// FromItem fills an Event from a queue item.
func FromItem(t Type, item types.QueueItem, at int64) Event {
	return Event{
		Type:            t,
		PlanetID:        item.PlanetID,
		Category:        item.Category,
		ItemID:          item.ID,
		TargetKind:      item.TargetKind,
		LevelOrQuantity: item.LevelOrQuantity,
		At:              at,
	}
}

// Publisher delivers events. Publish is called after the queue lock is released.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// NoopPublisher drops every event.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }

// Recorder keeps events in memory; used by tests and the admin console.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	return nil
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the recorded events of type t.
func (r *Recorder) OfType(t Type) []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}
