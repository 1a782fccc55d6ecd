package game

import (
	"sort"

	"astro-arena/internal/config"
)

// Map is the arena that exclusively owns all entities. Ships are held in a
// per-player table keyed by ship index; membership in the table equals
// "alive". All cross-references between entities travel as EntityIDs, never
// as pointers held across event resolution.
type Map struct {
	Width   float64
	Height  float64
	Planets []*Planet
	Ships   []map[int]*Ship

	constants *config.GameConstants

	// nextShipIndex is a per-player counter; ship indices are never reused.
	nextShipIndex []int

	// killed collects entities dropped by UnsafeKillEntity until
	// CleanupEntities commits the removals.
	killed []EntityID
}

// NewMap creates an empty arena for the given dimensions and player count.
func NewMap(width, height float64, numPlayers int, constants *config.GameConstants) *Map {
	ships := make([]map[int]*Ship, numPlayers)
	for i := range ships {
		ships[i] = make(map[int]*Ship)
	}
	return &Map{
		Width:         width,
		Height:        height,
		Ships:         ships,
		constants:     constants,
		nextShipIndex: make([]int, numPlayers),
	}
}

// NumPlayers returns the number of player slots.
func (m *Map) NumPlayers() int {
	return len(m.Ships)
}

// Constants returns the rule set the map was built with.
func (m *Map) Constants() *config.GameConstants {
	return m.constants
}

// GetShip returns the ship at (player, index), or nil if it does not exist.
func (m *Map) GetShip(player, index int) *Ship {
	if player < 0 || player >= len(m.Ships) {
		return nil
	}
	return m.Ships[player][index]
}

// GetShipByID resolves a ship EntityID.
func (m *Map) GetShipByID(id EntityID) *Ship {
	if id.Type != ShipEntity {
		return nil
	}
	return m.GetShip(id.Player, id.Index)
}

// GetEntity resolves any EntityID to its common read surface, or nil.
func (m *Map) GetEntity(id EntityID) Entity {
	switch id.Type {
	case ShipEntity:
		if ship := m.GetShipByID(id); ship != nil {
			return ship
		}
	case PlanetEntity:
		if planet := m.GetPlanet(id.Index); planet != nil {
			return planet
		}
	}
	return nil
}

// GetPlanet returns the planet at index, or nil if out of range.
func (m *Map) GetPlanet(index int) *Planet {
	if index < 0 || index >= len(m.Planets) {
		return nil
	}
	return m.Planets[index]
}

// IsValid reports whether id refers to a live entity.
func (m *Map) IsValid(id EntityID) bool {
	switch id.Type {
	case ShipEntity:
		ship := m.GetShipByID(id)
		return ship != nil && ship.IsAlive()
	case PlanetEntity:
		planet := m.GetPlanet(id.Index)
		return planet != nil && planet.IsAlive()
	default:
		return false
	}
}

// ShipIndices returns the live ship indices of a player in ascending order.
// Iteration order matters: it feeds the spawn-site tie-break and the
// transcript, so it must be reproducible.
func (m *Map) ShipIndices(player int) []int {
	indices := make([]int, 0, len(m.Ships[player]))
	for idx := range m.Ships[player] {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	return indices
}

// UnsafeKillEntity drops an entity without running any side effects (no
// explosion, no undocking, no events). Removal from the ship table is
// deferred until CleanupEntities.
func (m *Map) UnsafeKillEntity(id EntityID) {
	switch id.Type {
	case ShipEntity:
		if ship := m.GetShipByID(id); ship != nil {
			if ship.Health > 0 {
				m.killed = append(m.killed, id)
			}
			ship.Health = 0
		}
	case PlanetEntity:
		if planet := m.GetPlanet(id.Index); planet != nil {
			planet.Health = 0
		}
	}
}

// CleanupEntities commits deferred ship removals.
func (m *Map) CleanupEntities() {
	for _, id := range m.killed {
		delete(m.Ships[id.Player], id.Index)
	}
	m.killed = m.killed[:0]
}

// SpawnShip creates a full-health ship for player at loc and returns its
// index.
func (m *Map) SpawnShip(loc Location, player int) int {
	index := m.nextShipIndex[player]
	m.nextShipIndex[player]++
	m.Ships[player][index] = &Ship{
		Location: loc,
		Health:   m.constants.MaxShipHealth,
		Radius:   m.constants.ShipRadius,
	}
	return index
}

// WithinBounds reports whether loc lies inside the map rectangle.
func (m *Map) WithinBounds(loc Location) bool {
	return loc.X >= 0 && loc.X < m.Width && loc.Y >= 0 && loc.Y < m.Height
}

// LocationWithDelta offsets base by (dx, dy) and reports whether the result
// stays in bounds.
func (m *Map) LocationWithDelta(base Location, dx, dy float64) (Location, bool) {
	loc := Location{X: base.X + dx, Y: base.Y + dy}
	return loc, m.WithinBounds(loc)
}

// Test returns the IDs of all live entities whose body overlaps the disk
// (loc, radius). Exact linear scan; used off the hot path (spawn-site
// occupancy, explosion blast lists). Order is deterministic: planets first,
// then ships by (player, index).
func (m *Map) Test(loc Location, radius float64) []EntityID {
	var out []EntityID
	for i, planet := range m.Planets {
		if !planet.IsAlive() {
			continue
		}
		if loc.DistanceTo(planet.Location) <= radius+planet.Radius {
			out = append(out, PlanetID(i))
		}
	}
	for player := range m.Ships {
		for _, idx := range m.ShipIndices(player) {
			ship := m.Ships[player][idx]
			if !ship.IsAlive() {
				continue
			}
			if loc.DistanceTo(ship.Location) <= radius+ship.Radius {
				out = append(out, ShipID(player, idx))
			}
		}
	}
	return out
}

// Clone deep-copies the arena. Snapshots handed to move providers and the
// transcript are clones; the engine's live map is never shared.
func (m *Map) Clone() *Map {
	clone := &Map{
		Width:         m.Width,
		Height:        m.Height,
		Planets:       make([]*Planet, len(m.Planets)),
		Ships:         make([]map[int]*Ship, len(m.Ships)),
		constants:     m.constants,
		nextShipIndex: append([]int(nil), m.nextShipIndex...),
	}
	for i, planet := range m.Planets {
		p := *planet
		p.DockedShips = append([]int(nil), planet.DockedShips...)
		clone.Planets[i] = &p
	}
	for player, ships := range m.Ships {
		clone.Ships[player] = make(map[int]*Ship, len(ships))
		for idx, ship := range ships {
			s := *ship
			clone.Ships[player][idx] = &s
		}
	}
	return clone
}
