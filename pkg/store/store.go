// Package store persists planets and their production queues.
package store

import (
	"errors"
	"fmt"
	"sort"

	"queueforge/pkg/queue"
	"queueforge/pkg/types"
)

var errNoPlanet = errors.New("no such planet")

// QueueInfo summarises one stored queue for listings.
type QueueInfo struct {
	PlanetID  int64
	Category  types.Category
	Items     int
	Version   int64
	UpdatedAt int64
}

func sortQueueInfo(qs []QueueInfo) {
	sort.Slice(qs, func(i, j int) bool {
		if qs[i].PlanetID != qs[j].PlanetID {
			return qs[i].PlanetID < qs[j].PlanetID
		}
		return qs[i].Category < qs[j].Category
	})
}

func errUnknownPlanet(op string, planetID int64, category types.Category) error {
	return queue.NewError(queue.KindNotFound, op, planetID, category, errNoPlanet)
}

func errVersionMoved(planetID int64, category types.Category, expected, current int64) error {
	return queue.NewError(queue.KindConcurrencyConflict, "save queue", planetID, category,
		fmt.Errorf("expected version %d, found %d", expected, current))
}
