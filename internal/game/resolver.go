package game

import (
	"fmt"
	"math"
	"sort"
)

// damageMap accumulates fractional attack damage per target ship:
// player -> ship index -> damage. Fractions are kept until application,
// where the total truncates to an integer.
type damageMap map[int]map[int]float64

func (d damageMap) add(player, index int, damage float64) {
	if d[player] == nil {
		d[player] = make(map[int]float64)
	}
	d[player][index] += damage
}

// attackRecord collects one attacker's targets within a batch; it becomes
// the transcript's Attack event.
type attackRecord struct {
	attacker EntityID
	location Location
	time     float64
	targets  []EntityID
	targetLocations []Location
}

// computeDamage returns the symmetric damage of a collision between self
// and other: in a ship-ship contact each ship is dealt its own current
// health, so both always die; a ship hitting a planet dies and deals its own
// health to the planet.
func (e *Engine) computeDamage(selfID, otherID EntityID) (int, int) {
	switch selfID.Type {
	case PlanetEntity:
		other := e.gameMap.GetShipByID(otherID)
		return other.Health, other.Health
	case ShipEntity:
		self := e.gameMap.GetShipByID(selfID)
		if otherID.Type == ShipEntity {
			return self.Health, e.gameMap.GetShipByID(otherID).Health
		}
		return self.Health, self.Health
	default:
		panic("cannot compute damage against an invalid entity")
	}
}

// planetExplosionDamage computes blast damage at the given distance from
// the planet center. Inside the crust the hit is instantly lethal; outside,
// damage falls off linearly from MaxShipHealth at the crust to half of it
// at the blast edge.
func (e *Engine) planetExplosionDamage(planet *Planet, distance float64) int {
	if distance < planet.Radius {
		return math.MaxInt32
	}
	fromCrust := distance - planet.Radius
	if fromCrust <= e.constants.ExplosionRadius {
		max := float64(e.constants.MaxShipHealth)
		return int(max - (fromCrust/(2*e.constants.ExplosionRadius))*max)
	}
	return 0
}

// damageEntity applies damage to an entity at the given event time, killing
// it when the damage meets or exceeds its health.
func (e *Engine) damageEntity(id EntityID, damage int, time float64) {
	switch id.Type {
	case ShipEntity:
		ship := e.gameMap.GetShipByID(id)
		if ship == nil {
			return
		}
		if ship.Health <= damage {
			e.killEntity(id, time)
		} else {
			ship.Health -= damage
		}
	case PlanetEntity:
		planet := e.gameMap.GetPlanet(id.Index)
		if planet == nil {
			return
		}
		if planet.Health <= damage {
			e.killEntity(id, time)
		} else {
			planet.Health -= damage
		}
	}
}

// killEntity destroys an entity with full side effects: the death is
// recorded in the transcript, docked ships are detached, and a dying planet
// deals area blast damage over a candidate list snapshotted before any of
// that damage lands.
func (e *Engine) killEntity(id EntityID, time float64) {
	if e.dying[id] {
		return
	}

	switch id.Type {
	case ShipEntity:
		ship := e.gameMap.GetShipByID(id)
		if ship == nil || !ship.IsAlive() {
			return
		}
		e.dying[id] = true

		// The destruction location reflects the position at time of
		// death, not start of frame.
		location := ship.Location
		location.MoveBy(ship.Velocity, time)
		e.transcript.RecordEvent(FrameEvent{
			Kind:     FrameEventDestroyed,
			Entity:   id,
			Location: location,
			Radius:   ship.Radius,
			Time:     time,
		})

		if ship.DockingStatus != Undocked {
			if planet := e.gameMap.GetPlanet(ship.DockedPlanet); planet != nil {
				planet.RemoveShip(id.Index)
			}
			ship.ResetDockingStatus()
		}

	case PlanetEntity:
		planet := e.gameMap.GetPlanet(id.Index)
		if planet == nil || !planet.IsAlive() {
			return
		}
		e.dying[id] = true

		e.transcript.RecordEvent(FrameEvent{
			Kind:     FrameEventDestroyed,
			Entity:   id,
			Location: planet.Location,
			Radius:   planet.Radius,
			Time:     time,
		})

		for _, shipIdx := range planet.DockedShips {
			if ship := e.gameMap.GetShip(planet.Owner, shipIdx); ship != nil {
				ship.ResetDockingStatus()
			}
		}

		// Snapshot the blast list before applying damage: the blast
		// may kill ships or chain into other planets, and those
		// deaths must not mutate the candidate set mid-iteration.
		caught := e.gameMap.Test(planet.Location, planet.Radius+e.constants.ExplosionRadius)
		for _, targetID := range caught {
			if targetID == id {
				continue
			}
			target := e.gameMap.GetEntity(targetID)
			distance := planet.Location.DistanceTo(target.Position())
			damage := e.planetExplosionDamage(planet, distance-target.BodyRadius())
			e.damageEntity(targetID, damage, time)
		}
	}

	e.gameMap.UnsafeKillEntity(id)
	delete(e.dying, id)
}

// processEvents runs one micro-step of event detection and resolution:
// rebuild the broadphase, detect Attack/Collision/Desertion events, then
// consume them in ascending quantized-time batches.
func (e *Engine) processEvents() {
	set := make(eventSet)

	// Rebuild the broadphase over live ships. shipRefs gives the grid its
	// compact integer index space for this pass.
	e.shipRefs = e.shipRefs[:0]
	e.grid.Clear()
	for player := 0; player < e.numPlayers; player++ {
		for _, idx := range e.gameMap.ShipIndices(player) {
			ship := e.gameMap.Ships[player][idx]
			e.grid.Insert(uint32(len(e.shipRefs)), ship.Location.X, ship.Location.Y)
			e.shipRefs = append(e.shipRefs, shipRef{id: ShipID(player, idx), ship: ship})
		}
	}

	var candidates []uint32
	for _, ref1 := range e.shipRefs {
		ship1 := ref1.ship

		// Query out to ship1's reach this micro-step (hull, speed, weapon)
		// so pairs in neighboring cells within attack range are tested.
		reach := ship1.Radius + ship1.Velocity.Magnitude() + e.constants.WeaponRadius
		candidates = e.grid.Query(ship1.Location.X, ship1.Location.Y, reach, candidates[:0])
		for _, idx2 := range candidates {
			ref2 := e.shipRefs[idx2]
			e.findShipEvents(set, ref1.id, ref2.id, ship1, ref2.ship)
		}

		// Ship-planet collisions: planets are few and may be larger
		// than a grid cell, so they are scanned linearly.
		for planetIdx, planet := range e.gameMap.Planets {
			if !planet.IsAlive() {
				continue
			}
			distance := ship1.Location.DistanceTo(planet.Location)
			if distance > ship1.Velocity.Magnitude()+ship1.Radius+planet.Radius {
				continue
			}
			collisionRadius := ship1.Radius + planet.Radius
			hit, t := ShipPlanetCollisionTime(collisionRadius, ship1, planet)
			if hit {
				if t >= 0 && t <= 1 {
					set.add(SimEvent{
						Type: EventCollision,
						ID1:  ref1.id, ID2: PlanetID(planetIdx),
						Time: RoundEventTime(t, e.constants.EventTimePrecision),
					})
				}
			} else if distance <= collisionRadius {
				panic(fmt.Sprintf("ship %v overlaps planet %d with no solver contact", ref1.id, planetIdx))
			}
		}

		e.findDesertion(set, ref1.id, ship1)
	}

	e.resolveEvents(set)
}

// findDesertion emits a Desertion event for a ship whose projected
// end-of-tick position exits the map. Only positive velocity components are
// considered when locating the boundary crossing; a ship drifting out
// purely along a negative axis produces no event this frame. That asymmetry
// is observable in replays and is kept deliberately.
func (e *Engine) findDesertion(set eventSet, id EntityID, ship *Ship) {
	final := ship.Location
	final.MoveBy(ship.Velocity, 1.0)
	if e.gameMap.WithinBounds(final) {
		return
	}

	time := math.Inf(1)
	if ship.Velocity.VX > 0 {
		t1 := -ship.Location.X / ship.Velocity.VX
		if t1 >= 0 && t1 < time {
			time = t1
		}
		t2 := (e.gameMap.Width - ship.Location.X) / ship.Velocity.VX
		if t2 >= 0 && t2 < time {
			time = t2
		}
	}
	if ship.Velocity.VY > 0 {
		t3 := -ship.Location.Y / ship.Velocity.VY
		if t3 >= 0 && t3 < time {
			time = t3
		}
		t4 := (e.gameMap.Height - ship.Location.Y) / ship.Velocity.VY
		if t4 >= 0 && t4 < time {
			time = t4
		}
	}

	if math.IsInf(time, 1) || time > 1.0 {
		return
	}

	set.add(SimEvent{
		Type: EventDesertion,
		ID1:  id, ID2: id,
		Time: RoundEventTime(time, e.constants.EventTimePrecision),
	})
}

// resolveEvents consumes detected events in ascending quantized-time
// batches. Within a batch, collisions and desertions apply inline first,
// then attack damage aggregates via the two-pass accounting that splits
// each attacker's damage across its simultaneous targets.
func (e *Engine) resolveEvents(set eventSet) {
	events := make([]SimEvent, 0, len(set))
	for _, ev := range set {
		events = append(events, ev)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].less(events[j]) })

	for start := 0; start < len(events); {
		end := start + 1
		for end < len(events) && events[end].Time == events[start].Time {
			end++
		}
		batch := events[start:end]
		start = end

		// Drop events that reference entities killed by an earlier
		// batch this micro-step.
		live := batch[:0]
		for _, ev := range batch {
			if e.gameMap.IsValid(ev.ID1) && e.gameMap.IsValid(ev.ID2) {
				live = append(live, ev)
			}
		}
		if len(live) == 0 {
			continue
		}
		batchTime := live[len(live)-1].Time

		if e.opts.OnSimEvent != nil {
			for _, ev := range live {
				e.opts.OnSimEvent(ev.Type.String())
			}
		}

		damage := make(damageMap)
		targetCount := make(map[EntityID]int)
		attackers := make(map[EntityID]*attackRecord)
		var attackerOrder []EntityID

		updateTargets := func(src, target EntityID, time float64) {
			attacker := e.gameMap.GetShipByID(src)
			if attacker == nil || !attacker.IsAlive() ||
				attacker.WeaponCooldown > 0 || attacker.DockingStatus != Undocked {
				return
			}
			rec, ok := attackers[src]
			if !ok {
				rec = &attackRecord{attacker: src, location: attacker.Location, time: time}
				attackers[src] = rec
				attackerOrder = append(attackerOrder, src)
			}
			rec.targets = append(rec.targets, target)
			rec.targetLocations = append(rec.targetLocations, e.gameMap.GetShipByID(target).Location)
			targetCount[src]++
			e.damageDealt[src.Player] += e.constants.WeaponDamage
		}

		// Pass 1: collect attack targets; collisions and desertions
		// apply inline.
		for _, ev := range live {
			switch ev.Type {
			case EventCollision:
				selfDamage, otherDamage := e.computeDamage(ev.ID1, ev.ID2)
				e.damageEntity(ev.ID1, selfDamage, ev.Time)
				e.damageEntity(ev.ID2, otherDamage, ev.Time)
			case EventDesertion:
				ship := e.gameMap.GetShipByID(ev.ID1)
				if ship != nil {
					e.damageEntity(ev.ID1, ship.Health, ev.Time)
				}
			case EventAttack:
				updateTargets(ev.ID1, ev.ID2, ev.Time)
				updateTargets(ev.ID2, ev.ID1, ev.Time)
			}
		}

		// Pass 2: split each attacker's damage budget across its
		// targets. The cooldown is set once per attacker per batch; an
		// attacker killed inline during pass 1 no longer fires.
		cooldownSet := make(map[EntityID]bool)
		updateDamage := func(src, target EntityID) {
			if _, ok := attackers[src]; !ok {
				return
			}
			attacker := e.gameMap.GetShipByID(src)
			if attacker == nil || !attacker.IsAlive() || attacker.DockingStatus != Undocked {
				return
			}
			if !cooldownSet[src] {
				attacker.WeaponCooldown = e.constants.WeaponCooldown
				cooldownSet[src] = true
			}
			damage.add(target.Player, target.Index,
				float64(e.constants.WeaponDamage)/float64(targetCount[src]))
		}
		for _, ev := range live {
			if ev.Type != EventAttack {
				continue
			}
			updateDamage(ev.ID1, ev.ID2)
			updateDamage(ev.ID2, ev.ID1)
		}

		for _, src := range attackerOrder {
			rec := attackers[src]
			e.transcript.RecordEvent(FrameEvent{
				Kind:            FrameEventAttack,
				Entity:          rec.attacker,
				Location:        rec.location,
				Time:            rec.time,
				Targets:         rec.targets,
				TargetLocations: rec.targetLocations,
			})
		}

		e.processDamage(damage, batchTime)
		e.gameMap.CleanupEntities()
	}
}

// processDamage applies the batch's accumulated attack damage. Fractional
// damage truncates to an integer only here, at application time. Iteration
// is by ascending player then ship index for reproducibility.
func (e *Engine) processDamage(damage damageMap, time float64) {
	for player := 0; player < e.numPlayers; player++ {
		perShip := damage[player]
		if len(perShip) == 0 {
			continue
		}
		indices := make([]int, 0, len(perShip))
		for idx := range perShip {
			indices = append(indices, idx)
		}
		sort.Ints(indices)
		for _, idx := range indices {
			e.damageEntity(ShipID(player, idx), int(perShip[idx]), time)
		}
	}
}
