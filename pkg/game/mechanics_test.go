package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"queueforge/pkg/types"
)

func TestCostAtGrowsPerLevel(t *testing.T) {
	mine, ok := Lookup(types.CategoryBuilding, "metal_mine")
	require.True(t, ok)

	assert.Equal(t, types.Resources{"metal": 60, "crystal": 15}, CostAt(mine, 1))
	assert.Equal(t, types.Resources{"metal": 90, "crystal": 22}, CostAt(mine, 2))
	assert.Equal(t, types.Resources{"metal": 202, "crystal": 50}, CostAt(mine, 4))

	fighter, ok := Lookup(types.CategoryShip, "light_fighter")
	require.True(t, ok)
	assert.Equal(t, types.Resources{"metal": 15000, "crystal": 5000}, CostAt(fighter, 5))
}

func TestLookupChecksCategory(t *testing.T) {
	_, ok := Lookup(types.CategoryResearch, "metal_mine")
	assert.False(t, ok)
	_, ok = Lookup(types.CategoryBuilding, "death_star")
	assert.False(t, ok)
	e, ok := Lookup(types.CategoryResearch, "laser_technology")
	require.True(t, ok)
	assert.Equal(t, "laser_technology", e.Kind)
}

func TestDuration(t *testing.T) {
	st := types.PlanetState{Buildings: map[string]int{"robotics_factory": 2, "shipyard": 1, "research_lab": 1}}

	mine, _ := Lookup(types.CategoryBuilding, "metal_mine")
	// (202+50) / (2500*3) hours
	assert.Equal(t, int64(120), Duration(mine, 4, st, 1))
	assert.Equal(t, int64(60), Duration(mine, 4, st, 2))
	assert.Equal(t, int64(1), Duration(mine, 1, st, 1000))

	laser, _ := Lookup(types.CategoryResearch, "laser_technology")
	// 300 / 2000 hours
	assert.Equal(t, int64(540), Duration(laser, 1, st, 1))

	fighter, _ := Lookup(types.CategoryShip, "light_fighter")
	// 4000 / 5000 hours per unit
	assert.Equal(t, int64(2880), Duration(fighter, 1, st, 1))
	assert.Equal(t, int64(8640), Duration(fighter, 3, st, 1))

	// zero speed is treated as normal speed
	assert.Equal(t, Duration(fighter, 1, st, 1), Duration(fighter, 1, st, 0))
}

func TestMissingRequirements(t *testing.T) {
	shipyard, _ := Lookup(types.CategoryBuilding, "shipyard")
	st := types.PlanetState{Buildings: map[string]int{"robotics_factory": 1}, Research: map[string]int{}}
	assert.Equal(t, map[string]int{"robotics_factory": 2}, MissingRequirements(shipyard, st))

	st.Buildings["robotics_factory"] = 2
	assert.Empty(t, MissingRequirements(shipyard, st))

	fighter, _ := Lookup(types.CategoryShip, "light_fighter")
	st.Buildings["shipyard"] = 1
	assert.Equal(t, map[string]int{"combustion_drive": 1}, MissingRequirements(fighter, st))
}

func TestGeneratePlanetIsDeterministic(t *testing.T) {
	a := GeneratePlanet("u-1", "Homeworld", 1, 42, 7)
	b := GeneratePlanet("u-2", "Other", 1, 42, 7)
	c := GeneratePlanet("u-1", "Homeworld", 1, 42, 8)

	assert.Equal(t, a.Diameter, b.Diameter)
	assert.Equal(t, a.Type, b.Type)
	assert.Equal(t, a.TempMax, b.TempMax)
	assert.Equal(t, "1:42:7", a.Coordinates())
	assert.Equal(t, a.TempMax-40, a.TempMin)
	assert.Greater(t, a.FieldsMax, 0)
	assert.NotEqual(t, a.Coordinates(), c.Coordinates())
	assert.Contains(t, planetTypes, a.Type)
}
