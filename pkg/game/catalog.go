// Package game holds the rules around production queues: what can be built,
// what it costs, how long it takes, and what finishing it does to a planet.
package game

import (
	"queueforge/pkg/types"
)

// Entry describes one buildable kind.
type Entry struct {
	Kind     string
	Category types.Category
	Cost     types.Resources // level 1, or one unit for ships
	Factor   float64         // cost growth per level; ships ignore it
	MaxLevel int             // 0 = unbounded
	Requires map[string]int  // kind -> minimum level
}

// --- Game Constants ---

var Catalog = map[string]Entry{
	// buildings
	"metal_mine":            {Category: types.CategoryBuilding, Cost: types.Resources{"metal": 60, "crystal": 15}, Factor: 1.5, MaxLevel: 40},
	"crystal_mine":          {Category: types.CategoryBuilding, Cost: types.Resources{"metal": 48, "crystal": 24}, Factor: 1.6, MaxLevel: 40},
	"deuterium_synthesizer": {Category: types.CategoryBuilding, Cost: types.Resources{"metal": 225, "crystal": 75}, Factor: 1.5, MaxLevel: 40},
	"solar_plant":           {Category: types.CategoryBuilding, Cost: types.Resources{"metal": 75, "crystal": 30}, Factor: 1.5, MaxLevel: 40},
	"robotics_factory":      {Category: types.CategoryBuilding, Cost: types.Resources{"metal": 400, "crystal": 120, "deuterium": 200}, Factor: 2, MaxLevel: 20},
	"shipyard":              {Category: types.CategoryBuilding, Cost: types.Resources{"metal": 400, "crystal": 200, "deuterium": 100}, Factor: 2, MaxLevel: 20, Requires: map[string]int{"robotics_factory": 2}},
	"research_lab":          {Category: types.CategoryBuilding, Cost: types.Resources{"metal": 200, "crystal": 400, "deuterium": 200}, Factor: 2, MaxLevel: 20},
	"metal_storage":         {Category: types.CategoryBuilding, Cost: types.Resources{"metal": 1000}, Factor: 2, MaxLevel: 20},

	// research
	"energy_technology":    {Category: types.CategoryResearch, Cost: types.Resources{"crystal": 800, "deuterium": 400}, Factor: 2, MaxLevel: 20, Requires: map[string]int{"research_lab": 1}},
	"combustion_drive":     {Category: types.CategoryResearch, Cost: types.Resources{"metal": 400, "deuterium": 600}, Factor: 2, MaxLevel: 20, Requires: map[string]int{"research_lab": 1, "energy_technology": 1}},
	"laser_technology":     {Category: types.CategoryResearch, Cost: types.Resources{"metal": 200, "crystal": 100}, Factor: 2, MaxLevel: 20, Requires: map[string]int{"research_lab": 1, "energy_technology": 2}},
	"espionage_technology": {Category: types.CategoryResearch, Cost: types.Resources{"metal": 200, "crystal": 1000, "deuterium": 200}, Factor: 2, MaxLevel: 20, Requires: map[string]int{"research_lab": 3}},

	// ships
	"light_fighter":   {Category: types.CategoryShip, Cost: types.Resources{"metal": 3000, "crystal": 1000}, Requires: map[string]int{"shipyard": 1, "combustion_drive": 1}},
	"heavy_fighter":   {Category: types.CategoryShip, Cost: types.Resources{"metal": 6000, "crystal": 4000}, Requires: map[string]int{"shipyard": 3, "combustion_drive": 2}},
	"small_cargo":     {Category: types.CategoryShip, Cost: types.Resources{"metal": 2000, "crystal": 2000}, Requires: map[string]int{"shipyard": 2, "combustion_drive": 2}},
	"espionage_probe": {Category: types.CategoryShip, Cost: types.Resources{"crystal": 1000}, Requires: map[string]int{"shipyard": 3, "combustion_drive": 3, "espionage_technology": 2}},
	"colony_ship":     {Category: types.CategoryShip, Cost: types.Resources{"metal": 10000, "crystal": 20000, "deuterium": 10000}, Requires: map[string]int{"shipyard": 4}},
}

// MaxShipsPerKind caps how many ships of one kind a planet may hold.
const MaxShipsPerKind = 1_000_000

// Lookup returns the catalog entry for kind in category.
func Lookup(category types.Category, kind string) (Entry, bool) {
	e, ok := Catalog[kind]
	if !ok || e.Category != category {
		return Entry{}, false
	}
	e.Kind = kind
	return e, true
}

// levelOf reads the current level of kind from whichever map its category uses.
func levelOf(st types.PlanetState, kind string) int {
	e, ok := Catalog[kind]
	if !ok {
		return 0
	}
	switch e.Category {
	case types.CategoryBuilding:
		return st.Buildings[kind]
	case types.CategoryResearch:
		return st.Research[kind]
	case types.CategoryShip:
		return st.Ships[kind]
	}
	return 0
}
