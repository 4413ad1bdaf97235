package game

import (
	"fmt"
	"math"
	"strconv"

	"queueforge/pkg/core"
	"queueforge/pkg/types"
)

// --- World Generation ---

var planetTypes = []string{"desert", "dry", "jungle", "normal", "water", "ice", "gas"}

// GeneratePlanet derives the physical traits of a slot from its coordinates,
// so the same slot always produces the same world.
func GeneratePlanet(owner, name string, galaxy, system, position int) types.Planet {
	hashStr := core.Hash([]byte(fmt.Sprintf("%d:%d:%d", galaxy, system, position)))
	roll := func(i int) int {
		v, _ := strconv.ParseUint(hashStr[i*2:i*2+2], 16, 8)
		return int(v)
	}

	// inner slots are hot and small, outer slots cold
	maxTemp := 240 - position*17 + roll(0)%40 - 20
	diameter := 8000 + roll(1)*40 + (8-abs(position-8))*300
	fields := int(math.Pow(float64(diameter)/1000, 2))

	return types.Planet{
		OwnerUUID: owner,
		Name:      name,
		Type:      planetTypes[roll(2)%len(planetTypes)],
		Diameter:  diameter,
		TempMax:   maxTemp,
		TempMin:   maxTemp - 40,
		Galaxy:    galaxy,
		System:    system,
		Position:  position,
		FieldsMax: fields,
	}
}

// --- Economy ---

// CostAt returns the price of raising kind to level. Ships are priced per unit.
func CostAt(e Entry, level int) types.Resources {
	out := make(types.Resources, len(e.Cost))
	if e.Category == types.CategoryShip {
		for res, v := range e.Cost {
			out[res] = v * int64(level)
		}
		return out
	}
	mult := math.Pow(e.Factor, float64(level-1))
	for res, v := range e.Cost {
		out[res] = int64(math.Floor(float64(v) * mult))
	}
	return out
}

// --- Production Time ---

// Duration returns build seconds for an order, never less than one.
// speed scales the whole universe; values <= 0 are treated as 1.
func Duration(e Entry, levelOrQuantity int, st types.PlanetState, speed float64) int64 {
	if speed <= 0 {
		speed = 1
	}
	var hours float64
	switch e.Category {
	case types.CategoryBuilding:
		c := CostAt(e, levelOrQuantity)
		hours = float64(c["metal"]+c["crystal"]) / (2500 * float64(1+st.Buildings["robotics_factory"]))
	case types.CategoryResearch:
		c := CostAt(e, levelOrQuantity)
		hours = float64(c["metal"]+c["crystal"]) / (1000 * float64(1+st.Buildings["research_lab"]))
	case types.CategoryShip:
		perUnit := float64(e.Cost["metal"]+e.Cost["crystal"]) / (2500 * float64(1+st.Buildings["shipyard"]))
		hours = perUnit * float64(levelOrQuantity)
	}
	secs := int64(hours * 3600 / speed)
	return max(secs, 1)
}

// --- Requirements ---

// MissingRequirements lists the prerequisites of e that st does not meet yet.
func MissingRequirements(e Entry, st types.PlanetState) map[string]int {
	var missing map[string]int
	for kind, lvl := range e.Requires {
		if levelOf(st, kind) < lvl {
			if missing == nil {
				missing = make(map[string]int)
			}
			missing[kind] = lvl
		}
	}
	return missing
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
