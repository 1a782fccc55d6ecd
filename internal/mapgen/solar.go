// Package mapgen produces initial world layouts. Generation is fully
// deterministic in the seed so matches are reproducible.
package mapgen

import (
	"math"
	"math/rand"

	"astro-arena/internal/config"
	"astro-arena/internal/game"
)

const (
	initialShipsPerPlayer = 3

	minPlanetRadius = 4.0
	maxPlanetRadius = 8.0

	minDockingSpots = 2
	maxDockingSpots = 6

	// productionPerRadius scales a planet's resource pool by its size.
	productionPerRadius = 144
)

// SolarSystem places a large central planet, a ring of orbit planets, and a
// symmetric starting cluster of ships per player.
type SolarSystem struct {
	seed int64
	rng  *rand.Rand
}

// NewSolarSystem creates a generator for the given seed.
func NewSolarSystem(seed int64) *SolarSystem {
	return &SolarSystem{
		seed: seed,
		rng:  rand.New(rand.NewSource(seed)),
	}
}

// Name identifies the generator in the replay header.
func (g *SolarSystem) Name() string {
	return "solar_system"
}

// Generate builds the world for numPlayers players and returns a
// points-of-interest note for the replay header.
func Generate(seed int64, width, height float64, numPlayers int, constants *config.GameConstants) (*game.Map, string) {
	g := NewSolarSystem(seed)
	m := game.NewMap(width, height, numPlayers, constants)
	poi := g.populate(m, numPlayers)
	return m, poi
}

func (g *SolarSystem) populate(m *game.Map, numPlayers int) string {
	center := game.Location{X: m.Width / 2.0, Y: m.Height / 2.0}
	shorter := math.Min(m.Width, m.Height)

	// Central sun: largest planet, most docking spots.
	sunRadius := shorter / 12.0
	g.addPlanet(m, center, sunRadius, maxDockingSpots)

	// Orbit ring: the same ring offset for every player keeps the start
	// symmetric. Two planets per player.
	orbitRadius := shorter / 3.0
	ringCount := 2 * numPlayers
	ringPhase := g.rng.Float64() * 2 * math.Pi
	for i := 0; i < ringCount; i++ {
		angle := ringPhase + 2*math.Pi*float64(i)/float64(ringCount)
		loc := game.Location{
			X: center.X + orbitRadius*math.Cos(angle),
			Y: center.Y + orbitRadius*math.Sin(angle),
		}
		radius := minPlanetRadius + g.rng.Float64()*(maxPlanetRadius-minPlanetRadius)
		spots := minDockingSpots + g.rng.Intn(maxDockingSpots-minDockingSpots+1)
		g.addPlanet(m, loc, radius, spots)
	}

	// Starting ships: a short column per player, rotated around the
	// center so every player gets the same geometry.
	startRadius := shorter / 2.0 * 0.85
	for player := 0; player < numPlayers; player++ {
		angle := 2 * math.Pi * float64(player) / float64(numPlayers)
		base := game.Location{
			X: center.X + startRadius*math.Cos(angle),
			Y: center.Y + startRadius*math.Sin(angle),
		}
		for i := 0; i < initialShipsPerPlayer; i++ {
			loc := game.Location{X: base.X, Y: base.Y + float64(i-1)*2.0}
			loc = clampInside(loc, m)
			m.SpawnShip(loc, player)
		}
	}

	return "orbits"
}

// addPlanet inserts a planet if it fits inside the map; undersized maps
// silently get fewer planets.
func (g *SolarSystem) addPlanet(m *game.Map, loc game.Location, radius float64, spots int) {
	if loc.X-radius < 0 || loc.X+radius >= m.Width ||
		loc.Y-radius < 0 || loc.Y+radius >= m.Height {
		return
	}
	m.Planets = append(m.Planets, &game.Planet{
		Location:            loc,
		Radius:              radius,
		Health:              int(radius) * productionPerRadius,
		DockingSpots:        spots,
		RemainingProduction: int(radius) * productionPerRadius,
	})
}

func clampInside(loc game.Location, m *game.Map) game.Location {
	margin := 1.0
	if loc.X < margin {
		loc.X = margin
	}
	if loc.X > m.Width-margin {
		loc.X = m.Width - margin
	}
	if loc.Y < margin {
		loc.Y = margin
	}
	if loc.Y > m.Height-margin {
		loc.Y = m.Height - margin
	}
	return loc
}
