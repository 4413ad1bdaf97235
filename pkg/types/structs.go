package types

import "fmt"

// --- Production Categories ---

// Category selects which production queue an order lives in.
type Category string

const (
	CategoryBuilding Category = "building"
	CategoryResearch Category = "research"
	CategoryShip     Category = "ship"
)

// Categories lists every queue a planet owns, in overview order.
var Categories = []Category{CategoryBuilding, CategoryResearch, CategoryShip}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryBuilding, CategoryResearch, CategoryShip:
		return true
	}
	return false
}

func (c Category) String() string { return string(c) }

// ParseCategory maps a request value onto a Category.
func ParseCategory(raw string) (Category, error) {
	c := Category(raw)
	if !c.Valid() {
		return "", fmt.Errorf("unknown category %q", raw)
	}
	return c, nil
}

// --- Queue Items ---

// QueueItem is one accepted construction, research or unit order.
// Times are unix seconds. A waiting item has Active false and StartTime 0
// until it is promoted; StartTime 0 alone does not mean waiting.
type QueueItem struct {
	ID              string   `json:"id"`
	Category        Category `json:"category"`
	PlanetID        int64    `json:"planet_id"`
	TargetKind      string   `json:"target_kind"`       // metal_mine, laser_technology, light_fighter
	LevelOrQuantity int      `json:"level_or_quantity"` // resulting level, or ship count
	Active          bool     `json:"active"`
	StartTime       int64    `json:"start_time"`
	Duration        int64    `json:"duration"`
	CreatedAt       int64    `json:"created_at"`
}

// EndTime is only meaningful once the item is active.
func (q QueueItem) EndTime() int64 {
	return q.StartTime + q.Duration
}

// IsActive reports whether the item has been promoted to production.
func (q QueueItem) IsActive() bool {
	return q.Active
}

// Remaining returns the seconds left on an active item, never negative.
func (q QueueItem) Remaining(now int64) int64 {
	if !q.IsActive() {
		return q.Duration
	}
	left := q.EndTime() - now
	if left < 0 {
		return 0
	}
	return left
}

// --- Planets ---

// Planet is the header data shown above a planet's queues.
type Planet struct {
	ID          int64  `json:"id"`
	OwnerUUID   string `json:"owner_uuid"`
	Name        string `json:"name"`
	Type        string `json:"type"` // header image: desert, ice, gas, ...
	Diameter    int    `json:"diameter"`
	TempMin     int    `json:"temp_min"`
	TempMax     int    `json:"temp_max"`
	Galaxy      int    `json:"galaxy"`
	System      int    `json:"system"`
	Position    int    `json:"position"`
	FieldsMax   int    `json:"fields_max"`
	FieldsTaken int    `json:"fields_taken"`
}

// Coordinates renders the planet position as galaxy:system:position.
func (p Planet) Coordinates() string {
	return fmt.Sprintf("%d:%d:%d", p.Galaxy, p.System, p.Position)
}

// Resources is a bag of spendable stock keyed by resource name.
type Resources map[string]int64

// Covers reports whether r holds at least cost of every resource.
func (r Resources) Covers(cost Resources) bool {
	for k, v := range cost {
		if r[k] < v {
			return false
		}
	}
	return true
}

// PlanetState is the mutable game state the completion ports write to.
type PlanetState struct {
	PlanetID  int64          `json:"planet_id"`
	Buildings map[string]int `json:"buildings"`
	Research  map[string]int `json:"research"`
	Ships     map[string]int `json:"ships"`
	Resources Resources      `json:"resources"`
}
