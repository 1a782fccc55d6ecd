package game

import (
	"context"
	"encoding/json"
	"testing"

	"astro-arena/internal/config"
)

// runTurn advances the engine one full turn, the way RunGame would.
func runTurn(e *Engine, alive []bool) []bool {
	e.turnNumber++
	return e.ProcessTurn(context.Background(), alive)
}

// TestDockingLifecycle walks the full docking state machine:
// Undocked -> Docking -> Docked -> Undocking -> Undocked, with each
// transition taking exactly DockTurns docking ticks.
func TestDockingLifecycle(t *testing.T) {
	constants := config.DefaultConstants()
	scripts := []scriptFunc{func(_, turn int, _ *Map) []MoveSet {
		switch turn {
		case 1:
			return []MoveSet{{0: Move{Type: MoveDock, ShipIndex: 0, DockTo: 0}}}
		case 2 + constants.DockTurns:
			return []MoveSet{{0: Move{Type: MoveUndock, ShipIndex: 0}}}
		}
		return nil
	}}
	e := newTestEngine(1, constants, scripts, func(m *Map) {
		m.Planets = append(m.Planets, &Planet{
			Location:            Location{X: 60, Y: 80},
			Radius:              5,
			Health:              500,
			DockingSpots:        2,
			RemainingProduction: 500,
		})
		m.SpawnShip(Location{X: 67, Y: 80}, 0)
	})
	ship := e.gameMap.GetShip(0, 0)
	planet := e.gameMap.GetPlanet(0)

	// A lone player owning every planet ends the match, so each turn gets
	// a fresh alive vector here: this test exercises the state machine,
	// not termination.
	runTurn(e, allAlive(1)) // turn 1: dock command applies
	if ship.DockingStatus != Docking || ship.DockingProgress != constants.DockTurns {
		t.Fatalf("after dock command: %v/%d", ship.DockingStatus, ship.DockingProgress)
	}
	if !planet.Owned || planet.Owner != 0 {
		t.Fatal("dock command should claim the unowned planet")
	}

	for i := 0; i < constants.DockTurns; i++ {
		runTurn(e, allAlive(1))
	}
	if ship.DockingStatus != Docked {
		t.Fatalf("after %d docking ticks: %v", constants.DockTurns, ship.DockingStatus)
	}
	if planet.NumDockedShips(e.gameMap) != 1 {
		t.Error("completed docking should count toward the planet")
	}

	runTurn(e, allAlive(1)) // undock command applies
	if ship.DockingStatus != Undocking {
		t.Fatalf("after undock command: %v", ship.DockingStatus)
	}

	for i := 0; i < constants.DockTurns; i++ {
		runTurn(e, allAlive(1))
	}
	if ship.DockingStatus != Undocked {
		t.Fatalf("after %d undocking ticks: %v", constants.DockTurns, ship.DockingStatus)
	}
	if len(planet.DockedShips) != 0 {
		t.Error("undocked ship should leave the planet's docked list")
	}
}

// TestDockedShipHasZeroVelocity verifies the docking precondition: a moving
// ship cannot dock, and a docked ship ignores thrust.
func TestDockedShipHasZeroVelocity(t *testing.T) {
	constants := config.DefaultConstants()
	e := newTestEngine(1, constants, nil, func(m *Map) {
		m.Planets = append(m.Planets, &Planet{
			Location: Location{X: 60, Y: 80}, Radius: 5, Health: 500, DockingSpots: 2,
		})
		m.SpawnShip(Location{X: 67, Y: 80}, 0)
	})
	ship := e.gameMap.GetShip(0, 0)
	ship.Velocity = Velocity{VX: 1}

	e.transcript.BeginTurn()
	e.playerMoves[0][0] = MoveSet{0: Move{Type: MoveDock, ShipIndex: 0, DockTo: 0}}
	e.processMoves(allAlive(1), 0)
	if ship.DockingStatus != Undocked {
		t.Fatal("a moving ship must not dock")
	}

	ship.Velocity = Velocity{}
	ship.DockingStatus = Docked
	e.playerMoves[0][0] = MoveSet{0: Move{Type: MoveThrust, ShipIndex: 0, Thrust: 7, Angle: 0}}
	e.processMoves(allAlive(1), 0)
	if ship.Velocity != (Velocity{}) {
		t.Fatal("a docked ship must ignore thrust")
	}
}

// TestDockingContention verifies the same-turn contested dock: the planet
// freezes, nobody keeps a spot, and the freeze clears on the next docking
// tick.
func TestDockingContention(t *testing.T) {
	constants := config.DefaultConstants()
	scripts := []scriptFunc{
		dockMove(0, 0, 1),
		dockMove(0, 0, 1),
	}
	e := newTestEngine(2, constants, scripts, func(m *Map) {
		m.Planets = append(m.Planets, &Planet{
			Location:     Location{X: 50, Y: 50},
			Radius:       5,
			Health:       500,
			DockingSpots: 1,
		})
		m.SpawnShip(Location{X: 50, Y: 44}, 0)
		m.SpawnShip(Location{X: 50, Y: 56}, 1)
	})
	alive := allAlive(2)
	planet := e.gameMap.GetPlanet(0)

	alive = runTurn(e, alive)

	if !planet.Frozen {
		t.Fatal("contested planet should freeze")
	}
	if planet.Owned {
		t.Error("contested planet should end unowned")
	}
	if len(planet.DockedShips) != 0 {
		t.Error("contested planet should have no docked ships")
	}
	for player := 0; player < 2; player++ {
		if e.gameMap.GetShip(player, 0).DockingStatus != Undocked {
			t.Errorf("player %d ship should be reset to undocked", player)
		}
	}

	// The freeze lasts exactly one turn: the next docking tick clears it.
	runTurn(e, alive)
	if planet.Frozen {
		t.Error("freeze should clear on the next docking tick")
	}
}

// TestProductionSpawnsShips verifies production accrual, spawning, and the
// spawn exclusion zone.
func TestProductionSpawnsShips(t *testing.T) {
	constants := config.DefaultConstants()
	constants.ProductionPerShip = 6 // one spawn per turn at base productivity
	e := newTestEngine(1, constants, nil, func(m *Map) {
		m.Planets = append(m.Planets, &Planet{
			Location:            Location{X: 60, Y: 40},
			Radius:              5,
			Health:              500,
			DockingSpots:        2,
			RemainingProduction: 500,
			Owned:               true,
			Owner:               0,
		})
		idx := m.SpawnShip(Location{X: 66, Y: 40}, 0)
		m.Ships[0][idx].DockingStatus = Docked
		m.GetPlanet(0).AddShip(idx)
	})

	for i := 0; i < 3; i++ {
		runTurn(e, allAlive(1))
	}

	if len(e.gameMap.Ships[0]) != 4 {
		t.Fatalf("expected 3 spawned ships plus the docked one, got %d", len(e.gameMap.Ships[0]))
	}
	if e.totalShipCount[0] != 3 {
		t.Errorf("total ship count = %d, want 3", e.totalShipCount[0])
	}

	spawns := 0
	for _, events := range e.transcript.FrameEvents {
		for _, ev := range events {
			if ev.Kind == FrameEventSpawn {
				spawns++
			}
		}
	}
	if spawns != 3 {
		t.Errorf("expected 3 spawn records, got %d", spawns)
	}

	// Spawn exclusion: no two ships within a ship diameter of each other.
	indices := e.gameMap.ShipIndices(0)
	for i := 0; i < len(indices); i++ {
		for j := i + 1; j < len(indices); j++ {
			a := e.gameMap.Ships[0][indices[i]]
			b := e.gameMap.Ships[0][indices[j]]
			if d := a.Location.DistanceTo(b.Location); d < 2*constants.ShipRadius {
				t.Errorf("ships %d and %d overlap: distance %v", indices[i], indices[j], d)
			}
		}
	}
}

// TestProductionCarriesWhenBlocked verifies stock is banked when no spawn
// site is free.
func TestProductionCarriesWhenBlocked(t *testing.T) {
	constants := config.DefaultConstants()
	constants.ProductionPerShip = 6
	constants.SpawnRadius = 0 // only the degenerate on-planet site, never free
	e := newTestEngine(1, constants, nil, func(m *Map) {
		m.Planets = append(m.Planets, &Planet{
			Location:            Location{X: 60, Y: 40},
			Radius:              5,
			Health:              500,
			DockingSpots:        2,
			RemainingProduction: 500,
			Owned:               true,
			Owner:               0,
		})
		idx := m.SpawnShip(Location{X: 66, Y: 40}, 0)
		m.Ships[0][idx].DockingStatus = Docked
		m.GetPlanet(0).AddShip(idx)
	})

	for i := 0; i < 3; i++ {
		runTurn(e, allAlive(1))
	}

	if len(e.gameMap.Ships[0]) != 1 {
		t.Fatal("no ships should spawn when every site is occupied")
	}
	if got := e.gameMap.GetPlanet(0).CurrentProduction; got != 18 {
		t.Errorf("banked production = %d, want 18", got)
	}
}

// TestDrag verifies deceleration: slow ships stop dead, fast ships shed
// exactly the drag magnitude.
func TestDrag(t *testing.T) {
	constants := config.DefaultConstants()
	e := newTestEngine(1, constants, nil, func(m *Map) {
		m.SpawnShip(Location{X: 50, Y: 50}, 0)
		m.SpawnShip(Location{X: 100, Y: 50}, 0)
	})
	slow := e.gameMap.GetShip(0, 0)
	fast := e.gameMap.GetShip(0, 1)
	slow.Velocity = Velocity{VX: 7}
	fast.Velocity = Velocity{VX: 15}

	e.processDrag()

	if slow.Velocity != (Velocity{}) {
		t.Errorf("slow ship velocity = %+v, want zero", slow.Velocity)
	}
	if got := fast.Velocity.Magnitude(); got < 4.999 || got > 5.001 {
		t.Errorf("fast ship speed = %v, want 5", got)
	}
}

// TestCooldownTick verifies weapon cooldowns decrement to zero and stop.
func TestCooldownTick(t *testing.T) {
	constants := config.DefaultConstants()
	e := newTestEngine(1, constants, nil, func(m *Map) {
		m.SpawnShip(Location{X: 50, Y: 50}, 0)
	})
	ship := e.gameMap.GetShip(0, 0)
	ship.WeaponCooldown = 2

	e.processCooldowns()
	e.processCooldowns()
	e.processCooldowns()

	if ship.WeaponCooldown != 0 {
		t.Errorf("cooldown = %d, want 0", ship.WeaponCooldown)
	}
}

// TestFindLivingPlayersPlanetDomination verifies the immediate-win rule:
// owning every living planet that hosts a completed docking kills off the
// other players even if they still have ships.
func TestFindLivingPlayersPlanetDomination(t *testing.T) {
	constants := config.DefaultConstants()
	e := newTestEngine(2, constants, nil, func(m *Map) {
		m.Planets = append(m.Planets, &Planet{
			Location:     Location{X: 60, Y: 80},
			Radius:       5,
			Health:       500,
			DockingSpots: 2,
			Owned:        true,
			Owner:        0,
		})
		idx := m.SpawnShip(Location{X: 67, Y: 80}, 0)
		m.Ships[0][idx].DockingStatus = Docked
		m.GetPlanet(0).AddShip(idx)
		m.SpawnShip(Location{X: 200, Y: 80}, 1)
	})

	alive := e.findLivingPlayers()
	if !alive[0] || alive[1] {
		t.Errorf("alive = %v, want [true false]", alive)
	}
}

// TestKillPlayerIdempotent verifies kill_player drops ships silently, frees
// planets, and can run twice.
func TestKillPlayerIdempotent(t *testing.T) {
	constants := config.DefaultConstants()
	e := newTestEngine(2, constants, nil, func(m *Map) {
		m.Planets = append(m.Planets, &Planet{
			Location: Location{X: 60, Y: 80}, Radius: 5, Health: 500, DockingSpots: 2,
			Owned: true, Owner: 0, DockedShips: []int{0},
		})
		m.SpawnShip(Location{X: 67, Y: 80}, 0)
		m.SpawnShip(Location{X: 100, Y: 80}, 0)
	})
	e.transcript.BeginTurn()

	e.killPlayer(0)
	e.killPlayer(0)

	if len(e.gameMap.Ships[0]) != 0 {
		t.Error("killed player should have no ships")
	}
	planet := e.gameMap.GetPlanet(0)
	if planet.Owned || len(planet.DockedShips) != 0 {
		t.Error("killed player's planet should be unowned and empty")
	}
	if !e.timeoutTags[0] {
		t.Error("killed player should be tagged")
	}
	if len(e.transcript.FrameEvents[0]) != 0 {
		t.Error("kill_player must not record destruction events")
	}
}

// TestTimeoutKillsPlayer verifies a -1 move response removes the player
// mid-match.
func TestTimeoutKillsPlayer(t *testing.T) {
	constants := config.DefaultConstants()
	m := NewMap(240, 160, 2, constants)
	m.SpawnShip(Location{X: 50, Y: 80}, 0)
	m.SpawnShip(Location{X: 200, Y: 80}, 1)
	e := NewEngine(m, &timeoutSource{timedOut: map[int]bool{1: true}}, constants, EngineOptions{})

	runTurn(e, allAlive(2))

	if len(e.gameMap.Ships[1]) != 0 {
		t.Error("timed-out player should lose all ships")
	}
	if len(e.gameMap.Ships[0]) != 1 {
		t.Error("responsive player should be unaffected")
	}
	if !e.timeoutTags[1] {
		t.Error("timed-out player should be tagged")
	}
}

// TestOnSimEventHook verifies the metrics hook fires once per resolved
// event with its kind.
func TestOnSimEventHook(t *testing.T) {
	constants := config.DefaultConstants()
	m := NewMap(240, 160, 2, constants)
	m.SpawnShip(Location{X: 100, Y: 80}, 0)   // collides with its neighbor
	m.SpawnShip(Location{X: 100.9, Y: 80}, 0) // at t=0
	deserter := m.SpawnShip(Location{X: 238, Y: 40}, 1)
	m.Ships[1][deserter].Velocity = Velocity{VX: 5}

	var kinds []string
	e := NewEngine(m, &stubSource{}, constants, EngineOptions{
		OnSimEvent: func(eventType string) { kinds = append(kinds, eventType) },
	})

	e.transcript.BeginTurn()
	e.processEvents()

	counts := make(map[string]int)
	for _, kind := range kinds {
		counts[kind]++
	}
	if counts["collision"] != 1 {
		t.Errorf("collision events = %d, want 1", counts["collision"])
	}
	if counts["desertion"] != 1 {
		t.Errorf("desertion events = %d, want 1", counts["desertion"])
	}
}

// TestHealthBoundsInvariant runs a skirmish and checks every surviving ship
// stays within (0, MaxShipHealth] with docked ships at zero velocity.
func TestHealthBoundsInvariant(t *testing.T) {
	constants := config.DefaultConstants()
	e := newTestEngine(2, constants, skirmishScripts(), skirmishSetup)
	alive := allAlive(2)

	for turn := 0; turn < 12; turn++ {
		alive = runTurn(e, alive)
		for player := 0; player < 2; player++ {
			for _, idx := range e.gameMap.ShipIndices(player) {
				ship := e.gameMap.Ships[player][idx]
				if ship.Health <= 0 || ship.Health > constants.MaxShipHealth {
					t.Fatalf("turn %d: ship (%d,%d) health %d out of bounds",
						turn, player, idx, ship.Health)
				}
				if ship.DockingStatus != Undocked && ship.Velocity != (Velocity{}) {
					t.Fatalf("turn %d: docked ship (%d,%d) has velocity %+v",
						turn, player, idx, ship.Velocity)
				}
			}
		}
	}
}

// TestDeterministicTranscript runs the same skirmish twice and requires
// bitwise-identical transcripts.
func TestDeterministicTranscript(t *testing.T) {
	run := func() []byte {
		constants := config.DefaultConstants()
		e := newTestEngine(2, constants, skirmishScripts(), skirmishSetup)
		alive := allAlive(2)
		for turn := 0; turn < 15; turn++ {
			alive = runTurn(e, alive)
		}
		data, err := json.Marshal(map[string]any{
			"frames": e.transcript.Frames,
			"events": e.transcript.FrameEvents,
		})
		if err != nil {
			t.Fatalf("marshal transcript: %v", err)
		}
		return data
	}

	first := run()
	second := run()
	if string(first) != string(second) {
		t.Fatal("identical runs produced different transcripts")
	}
}

// skirmishSetup builds a symmetric two-player battle line with a planet in
// the middle.
func skirmishSetup(m *Map) {
	m.Planets = append(m.Planets, &Planet{
		Location:            Location{X: 120, Y: 80},
		Radius:              6,
		Health:              300,
		DockingSpots:        3,
		RemainingProduction: 300,
	})
	for i := 0; i < 3; i++ {
		m.SpawnShip(Location{X: 50, Y: 70 + float64(i)*10}, 0)
		m.SpawnShip(Location{X: 190, Y: 70 + float64(i)*10}, 1)
	}
}

// skirmishScripts drives both battle lines toward each other at full
// thrust.
func skirmishScripts() []scriptFunc {
	charge := func(angle int) scriptFunc {
		return func(player, turn int, m *Map) []MoveSet {
			set := make(MoveSet)
			for _, idx := range m.ShipIndices(player) {
				set[idx] = Move{Type: MoveThrust, ShipIndex: idx, Thrust: 7, Angle: angle}
			}
			return []MoveSet{set}
		}
	}
	return []scriptFunc{charge(0), charge(180)}
}
