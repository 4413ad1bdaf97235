// Package metrics exposes observability hooks for the production queue engine.
package metrics

import (
	"time"

	"queueforge/pkg/types"
)

// Recorder receives queue engine measurements. Implementations must be safe
// for concurrent use.
type Recorder interface {
	IncSettled(category types.Category)
	IncEffectFailure(category types.Category)
	IncEnqueued(category types.Category)
	IncCancelled(category types.Category)
	IncConflict(category types.Category)
	ObserveLockWait(category types.Category, d time.Duration)
	ObserveQueueLength(category types.Category, n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) IncSettled(types.Category)                     {}
func (NoopRecorder) IncEffectFailure(types.Category)               {}
func (NoopRecorder) IncEnqueued(types.Category)                    {}
func (NoopRecorder) IncCancelled(types.Category)                   {}
func (NoopRecorder) IncConflict(types.Category)                    {}
func (NoopRecorder) ObserveLockWait(types.Category, time.Duration) {}
func (NoopRecorder) ObserveQueueLength(types.Category, int)        {}
