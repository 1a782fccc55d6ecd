package game

import (
	"context"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"astro-arena/internal/config"
	"astro-arena/internal/game/spatial"
)

// shipRef pairs a ship with its ID for the duration of one detection pass;
// the broadphase grid stores indices into the engine's shipRefs slice.
type shipRef struct {
	id   EntityID
	ship *Ship
}

// EngineOptions carries the optional collaborators of the engine.
type EngineOptions struct {
	// MoveTimeout bounds each player's per-frame response. Zero means no
	// timeout (useful under a debugger and in tests).
	MoveTimeout time.Duration

	// InitTimeout bounds the pre-game handshake.
	InitTimeout time.Duration

	// Tracer, when non-nil, receives rate-limited NDJSON diagnostics.
	Tracer *TraceLog

	// OnFrame, when non-nil, is called with the end-of-turn snapshot
	// after it is committed to the transcript.
	OnFrame func(turn int, snapshot *Map)

	// OnSimEvent, when non-nil, is called once per resolved simulation
	// event with its kind ("attack", "collision", "desertion"). Used to
	// feed metrics; must not touch world state.
	OnSimEvent func(eventType string)
}

// Engine advances the world one turn at a time. It is single-threaded
// cooperative: one goroutine owns all world state, and the only concurrency
// is the per-player fan-out while retrieving moves, which is joined before
// any mutation.
type Engine struct {
	constants  *config.GameConstants
	gameMap    *Map
	numPlayers int
	turnNumber int
	source     MoveSource
	opts       EngineOptions
	transcript *Transcript

	grid     *spatial.Grid
	shipRefs []shipRef

	// playerMoves[player][moveNo] is the queue delivered this turn.
	playerMoves [][]MoveSet

	// dying guards killEntity against re-entry while an explosion chain
	// is still dealing damage for the same entity.
	dying map[EntityID]bool

	playerNames             []string
	aliveFrameCount         []int
	initResponseTimes       []int
	totalFrameResponseTimes []int
	totalShipCount          []int
	damageDealt             []int
	lastShipCount           []int
	timeoutTags             map[int]bool
}

// NewEngine wraps a generated map and a move source into a runnable match.
func NewEngine(m *Map, source MoveSource, constants *config.GameConstants, opts EngineOptions) *Engine {
	numPlayers := m.NumPlayers()
	playerMoves := make([][]MoveSet, numPlayers)
	for player := range playerMoves {
		playerMoves[player] = make([]MoveSet, constants.MaxQueuedMoves)
	}

	aliveFrameCount := make([]int, numPlayers)
	for i := range aliveFrameCount {
		aliveFrameCount[i] = 1
	}

	return &Engine{
		constants:               constants,
		gameMap:                 m,
		numPlayers:              numPlayers,
		source:                  source,
		opts:                    opts,
		transcript:              NewTranscript(m, numPlayers, constants.MaxQueuedMoves),
		grid:                    spatial.NewGrid(m.Width, m.Height, constants.CellSize),
		playerMoves:             playerMoves,
		dying:                   make(map[EntityID]bool),
		playerNames:             make([]string, numPlayers),
		aliveFrameCount:         aliveFrameCount,
		initResponseTimes:       make([]int, numPlayers),
		totalFrameResponseTimes: make([]int, numPlayers),
		totalShipCount:          make([]int, numPlayers),
		damageDealt:             make([]int, numPlayers),
		lastShipCount:           make([]int, numPlayers),
		timeoutTags:             make(map[int]bool),
	}
}

// Transcript returns the recorded transcript.
func (e *Engine) Transcript() *Transcript {
	return e.transcript
}

// Map returns the live arena. Callers must not retain entity pointers
// across turns.
func (e *Engine) Map() *Map {
	return e.gameMap
}

// TurnNumber returns the number of completed turns.
func (e *Engine) TurnNumber() int {
	return e.turnNumber
}

// PlayerNames returns the names reported during the init handshake.
func (e *Engine) PlayerNames() []string {
	return e.playerNames
}

// killPlayer removes a player from the game: all their ships die with no
// side effects, their planets become unowned, and the player is tagged as
// timed out. Idempotent.
func (e *Engine) killPlayer(player int) {
	e.timeoutTags[player] = true

	for _, idx := range e.gameMap.ShipIndices(player) {
		e.gameMap.UnsafeKillEntity(ShipID(player, idx))
	}
	e.gameMap.CleanupEntities()

	for _, planet := range e.gameMap.Planets {
		if planet.Owned && planet.Owner == player {
			planet.Owned = false
			planet.DockedShips = nil
		}
	}

	if e.opts.Tracer != nil {
		e.opts.Tracer.Emit("player_killed", e.turnNumber, map[string]any{"player": player})
	}
}

// retrieveMoves fans out one request per living player and joins all of
// them before any world mutation. A -1 elapsed time kills the player.
func (e *Engine) retrieveMoves(ctx context.Context, alive []bool) {
	for player := range e.playerMoves {
		for moveNo := range e.playerMoves[player] {
			e.playerMoves[player][moveNo] = nil
		}
	}

	snapshot := e.gameMap.Clone()
	elapsed := make([]int, e.numPlayers)
	queues := make([][]MoveSet, e.numPlayers)

	var wg sync.WaitGroup
	for player := 0; player < e.numPlayers; player++ {
		if !alive[player] {
			continue
		}
		wg.Add(1)
		go func(player int) {
			defer wg.Done()
			reqCtx := ctx
			if e.opts.MoveTimeout > 0 {
				var cancel context.CancelFunc
				reqCtx, cancel = context.WithTimeout(ctx, e.opts.MoveTimeout)
				defer cancel()
			}
			queues[player], elapsed[player] = e.source.RetrieveMoves(reqCtx, player, e.turnNumber, snapshot)
		}(player)
	}
	wg.Wait()

	for player := 0; player < e.numPlayers; player++ {
		if !alive[player] {
			continue
		}
		if elapsed[player] == -1 {
			log.Printf("player %d timed out on turn %d", player, e.turnNumber)
			e.killPlayer(player)
			continue
		}
		e.totalFrameResponseTimes[player] += elapsed[player]
		for moveNo := 0; moveNo < e.constants.MaxQueuedMoves && moveNo < len(queues[player]); moveNo++ {
			e.playerMoves[player][moveNo] = queues[player][moveNo]
		}
	}
}

// processDocking advances the docking state machine of every ship and then
// unfreezes all planets. The unfreeze writes through to the planets (a
// contested planet is frozen for exactly one turn).
func (e *Engine) processDocking() {
	for player := 0; player < e.numPlayers; player++ {
		for _, idx := range e.gameMap.ShipIndices(player) {
			ship := e.gameMap.Ships[player][idx]
			switch ship.DockingStatus {
			case Docking:
				ship.DockingProgress--
				if ship.DockingProgress == 0 {
					ship.DockingStatus = Docked
				}
			case Undocking:
				ship.DockingProgress--
				if ship.DockingProgress == 0 {
					ship.DockingStatus = Undocked
					if planet := e.gameMap.GetPlanet(ship.DockedPlanet); planet != nil {
						planet.RemoveShip(idx)
					}
				}
			case Docked:
				ship.Heal(e.constants.DockedShipRegeneration, e.constants.MaxShipHealth)
			}
		}
	}

	for _, planet := range e.gameMap.Planets {
		planet.Frozen = false
	}
}

// processMoves applies the queued moves of micro-step moveNo. Illegal moves
// are ignored (optionally warned); applied moves are recorded into the
// transcript.
func (e *Engine) processMoves(alive []bool, moveNo int) {
	for player := 0; player < e.numPlayers; player++ {
		if !alive[player] {
			continue
		}
		moves := e.playerMoves[player][moveNo]
		for _, shipIdx := range e.gameMap.ShipIndices(player) {
			move, ok := moves[shipIdx]
			if !ok {
				continue
			}
			ship := e.gameMap.Ships[player][shipIdx]

			switch move.Type {
			case MoveNoop, MoveError:
				// Ignored.

			case MoveThrust:
				if ship.DockingStatus != Undocked {
					break
				}
				angle := float64(move.Angle) * math.Pi / 180.0
				ship.Velocity.AccelerateBy(float64(move.Thrust), angle)

			case MoveDock:
				if ship.DockingStatus != Undocked ||
					ship.Velocity.VX != 0 || ship.Velocity.VY != 0 {
					break
				}
				planet := e.gameMap.GetPlanet(move.DockTo)
				if planet == nil {
					break
				}
				if !planet.IsAlive() || !ship.CanDock(planet, e.constants.DockRadius) || planet.Frozen {
					if !ship.CanDock(planet, e.constants.DockRadius) {
						log.Printf("warning: player %d ship %d too far to dock planet %d",
							player, shipIdx, move.DockTo)
					}
					break
				}

				if !planet.Owned {
					planet.Owned = true
					planet.Owner = player
				}

				if planet.Owner == player && len(planet.DockedShips) < planet.DockingSpots {
					ship.DockedPlanet = move.DockTo
					ship.DockingStatus = Docking
					ship.DockingProgress = e.constants.DockTurns
					planet.AddShip(shipIdx)
				} else if planet.Owner != player {
					// If every occupant just started docking, two
					// players contested the planet this very turn:
					// nobody gets it and the planet freezes.
					contested := true
					for _, dockedIdx := range planet.DockedShips {
						docked := e.gameMap.GetShip(planet.Owner, dockedIdx)
						if docked == nil || docked.DockingStatus != Docking ||
							docked.DockingProgress != e.constants.DockTurns {
							contested = false
							break
						}
					}
					if contested {
						planet.Frozen = true
						for _, dockedIdx := range planet.DockedShips {
							if docked := e.gameMap.GetShip(planet.Owner, dockedIdx); docked != nil {
								docked.ResetDockingStatus()
							}
						}
						planet.DockedShips = nil
						planet.Owned = false
						planet.Owner = 0
					}
				}

			case MoveUndock:
				if ship.DockingStatus != Docked {
					break
				}
				ship.DockingStatus = Undocking
				ship.DockingProgress = e.constants.DockTurns
			}

			e.transcript.RecordMove(player, moveNo, move)
		}
	}
}

// processProduction accrues production on every owned planet with at least
// one fully docked ship and spawns ships while the stock covers the cost.
// The spawn-site scan prefers the candidate closest to the map center; when
// no free site exists, production carries over.
func (e *Engine) processProduction() {
	center := Location{X: e.gameMap.Width / 2.0, Y: e.gameMap.Height / 2.0}

	for planetIdx, planet := range e.gameMap.Planets {
		if !planet.IsAlive() || !planet.Owned {
			continue
		}
		numDocked := planet.NumDockedShips(e.gameMap)
		if numDocked == 0 {
			continue
		}

		production := e.constants.BaseProductivity +
			(numDocked-1)*e.constants.AdditionalProductivity
		if production > planet.RemainingProduction {
			production = planet.RemainingProduction
		}
		planet.RemainingProduction -= production
		planet.CurrentProduction += production

		for planet.CurrentProduction >= e.constants.ProductionPerShip {
			best := Location{}
			bestFound := false
			bestDistance := math.Inf(1)
			openRadius := e.constants.ShipRadius * 2

			maxDelta := e.constants.SpawnRadius
			for dx := -maxDelta; dx <= maxDelta; dx++ {
				for dy := -maxDelta; dy <= maxDelta; dy++ {
					offsetAngle := math.Atan2(float64(dy), float64(dx))
					offsetX := float64(dx) + planet.Radius*math.Cos(offsetAngle)
					offsetY := float64(dy) + planet.Radius*math.Sin(offsetAngle)
					loc, inBounds := e.gameMap.LocationWithDelta(planet.Location, offsetX, offsetY)
					if !inBounds {
						continue
					}
					distance := loc.DistanceTo(center)
					if distance < bestDistance && len(e.gameMap.Test(loc, openRadius)) == 0 {
						bestDistance = distance
						best = loc
						bestFound = true
					}
				}
			}

			if !bestFound {
				// No free site; keep the production banked.
				break
			}

			planet.CurrentProduction -= e.constants.ProductionPerShip
			shipIdx := e.gameMap.SpawnShip(best, planet.Owner)
			e.totalShipCount[planet.Owner]++
			e.transcript.RecordEvent(FrameEvent{
				Kind:           FrameEventSpawn,
				Entity:         ShipID(planet.Owner, shipIdx),
				Location:       best,
				PlanetLocation: planet.Location,
			})
			if e.opts.Tracer != nil {
				e.opts.Tracer.Emit("spawn", e.turnNumber, map[string]any{
					"player": planet.Owner, "ship": shipIdx, "planet": planetIdx,
				})
			}
		}
	}
}

// processDrag decelerates every ship by the drag magnitude, snapping slow
// ships to a full stop.
func (e *Engine) processDrag() {
	for player := 0; player < e.numPlayers; player++ {
		for _, idx := range e.gameMap.ShipIndices(player) {
			ship := e.gameMap.Ships[player][idx]
			magnitude := ship.Velocity.Magnitude()
			if magnitude <= e.constants.Drag {
				ship.Velocity = Velocity{}
			} else {
				ship.Velocity.AccelerateBy(e.constants.Drag, ship.Velocity.Angle()+math.Pi)
			}
		}
	}
}

// processCooldowns ticks down every positive weapon cooldown.
func (e *Engine) processCooldowns() {
	for player := 0; player < e.numPlayers; player++ {
		for _, idx := range e.gameMap.ShipIndices(player) {
			ship := e.gameMap.Ships[player][idx]
			if ship.WeaponCooldown > 0 {
				ship.WeaponCooldown--
			}
		}
	}
}

// processMovement commits one second of motion for every ship.
func (e *Engine) processMovement() {
	for player := 0; player < e.numPlayers; player++ {
		for _, idx := range e.gameMap.ShipIndices(player) {
			ship := e.gameMap.Ships[player][idx]
			ship.Location.MoveBy(ship.Velocity, 1.0)
		}
	}
}

// findLivingPlayers reports which players remain alive. A player is alive
// iff they have at least one ship; additionally, a player owning every
// living planet that hosts a fully docked ship wins immediately and every
// other player is marked dead this frame.
func (e *Engine) findLivingPlayers() []bool {
	stillAlive := make([]bool, e.numPlayers)
	for i := range e.lastShipCount {
		e.lastShipCount[i] = 0
	}
	ownedPlanets := make([]int, e.numPlayers)
	totalPlanets := 0

	for player := 0; player < e.numPlayers; player++ {
		for range e.gameMap.Ships[player] {
			stillAlive[player] = true
			e.lastShipCount[player]++
		}
	}

	for _, planet := range e.gameMap.Planets {
		if !planet.IsAlive() {
			continue
		}
		totalPlanets++
		if planet.Owned && len(planet.DockedShips) > 0 && planet.NumDockedShips(e.gameMap) > 0 {
			ownedPlanets[planet.Owner]++
		}
	}

	for player := 0; player < e.numPlayers; player++ {
		if ownedPlanets[player] == totalPlanets {
			// End the game by killing off the other players. In a
			// single-player game, let the game end instead.
			for i := range stillAlive {
				stillAlive[i] = false
			}
			if e.numPlayers > 1 {
				stillAlive[player] = true
			}
		}
	}
	return stillAlive
}

// ProcessTurn advances the world exactly one turn and returns the updated
// liveness vector.
func (e *Engine) ProcessTurn(ctx context.Context, alive []bool) []bool {
	for player := 0; player < e.numPlayers; player++ {
		if alive[player] {
			e.aliveFrameCount[player]++
		}
	}

	e.transcript.BeginTurn()

	e.retrieveMoves(ctx, alive)
	e.processDocking()

	for moveNo := 0; moveNo < e.constants.MaxQueuedMoves; moveNo++ {
		e.processMoves(alive, moveNo)
		e.processEvents()
		e.processMovement()
	}

	e.processProduction()
	e.processDrag()
	e.processCooldowns()

	e.transcript.SnapshotMap(e.gameMap)
	if e.opts.OnFrame != nil {
		e.opts.OnFrame(e.turnNumber, e.transcript.Frames[len(e.transcript.Frames)-1])
	}

	return e.findLivingPlayers()
}

// compareRankings orders players worst-first: fewer ships produced ranks
// lower, with damage dealt breaking ties.
func (e *Engine) compareRankings(p1, p2 int) bool {
	if e.totalShipCount[p1] == e.totalShipCount[p2] {
		return e.damageDealt[p1] < e.damageDealt[p2]
	}
	return e.totalShipCount[p1] < e.totalShipCount[p2]
}

// MaxTurns returns the turn cap for the map size.
func (e *Engine) MaxTurns() int {
	return 100 + int(math.Sqrt(e.gameMap.Width*e.gameMap.Height))
}

// RunGame drives a match from the init handshake to completion and returns
// the final statistics.
func (e *Engine) RunGame(ctx context.Context) *GameStats {
	livingPlayers := make([]bool, e.numPlayers)
	for i := range livingPlayers {
		livingPlayers[i] = true
	}
	var rankings []int

	// Init handshake: fan out, join, kill anyone who failed it.
	initElapsed := make([]int, e.numPlayers)
	names := make([]string, e.numPlayers)
	var wg sync.WaitGroup
	for player := 0; player < e.numPlayers; player++ {
		wg.Add(1)
		go func(player int) {
			defer wg.Done()
			initCtx := ctx
			if e.opts.InitTimeout > 0 {
				var cancel context.CancelFunc
				initCtx, cancel = context.WithTimeout(ctx, e.opts.InitTimeout)
				defer cancel()
			}
			names[player], initElapsed[player] = e.source.Init(initCtx, player, e.gameMap)
		}(player)
	}
	wg.Wait()

	for player := 0; player < e.numPlayers; player++ {
		if initElapsed[player] == -1 {
			log.Printf("player %d failed the init handshake", player)
			e.killPlayer(player)
			livingPlayers[player] = false
			rankings = append(rankings, player)
			continue
		}
		e.initResponseTimes[player] = initElapsed[player]
		e.playerNames[player] = truncateName(names[player])
	}

	maxTurns := e.MaxTurns()
	gameComplete := func() bool {
		numLiving := 0
		for _, alive := range livingPlayers {
			if alive {
				numLiving++
			}
		}
		return e.turnNumber >= maxTurns ||
			(numLiving <= 1 && e.numPlayers > 1) ||
			(numLiving == 0 && e.numPlayers == 1)
	}

	for !gameComplete() {
		e.turnNumber++
		if e.opts.Tracer != nil {
			e.opts.Tracer.Emit("turn", e.turnNumber, nil)
		}

		newLiving := e.ProcessTurn(ctx, livingPlayers)

		var newlyDead []int
		for player := 0; player < e.numPlayers; player++ {
			if livingPlayers[player] && !newLiving[player] {
				newlyDead = append(newlyDead, player)
			}
		}
		sort.SliceStable(newlyDead, func(i, j int) bool {
			return e.compareRankings(newlyDead[i], newlyDead[j])
		})
		rankings = append(rankings, newlyDead...)

		livingPlayers = newLiving
	}

	var survivors []int
	for player := 0; player < e.numPlayers; player++ {
		if livingPlayers[player] {
			survivors = append(survivors, player)
		}
	}
	sort.SliceStable(survivors, func(i, j int) bool {
		return e.compareRankings(survivors[i], survivors[j])
	})
	rankings = append(rankings, survivors...)

	// Best player first.
	for i, j := 0, len(rankings)-1; i < j; i, j = i+1, j-1 {
		rankings[i], rankings[j] = rankings[j], rankings[i]
	}

	return e.buildStats(rankings, livingPlayers)
}

func (e *Engine) buildStats(rankings []int, livingPlayers []bool) *GameStats {
	stats := &GameStats{}
	for player := 0; player < e.numPlayers; player++ {
		rank := 0
		for i, p := range rankings {
			if p == player {
				rank = i + 1
				break
			}
		}
		lastAlive := e.aliveFrameCount[player] - 2
		if livingPlayers[player] {
			lastAlive++
		}
		stats.PlayerStatistics = append(stats.PlayerStatistics, PlayerStats{
			Tag:              player,
			Rank:             rank,
			LastFrameAlive:   lastAlive,
			InitResponseTime: e.initResponseTimes[player],
			AverageFrameResponseTime: float64(e.totalFrameResponseTimes[player]) /
				float64(e.aliveFrameCount[player]),
			TotalShipCount: e.totalShipCount[player],
			DamageDealt:    e.damageDealt[player],
		})
	}
	for player := 0; player < e.numPlayers; player++ {
		if e.timeoutTags[player] {
			stats.TimeoutTags = append(stats.TimeoutTags, player)
		}
	}
	return stats
}

func truncateName(name string) string {
	if len(name) > 30 {
		return name[:30]
	}
	return name
}
