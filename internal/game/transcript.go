package game

import (
	"encoding/json"
	"fmt"
)

// FrameEventKind tags a transcript event record.
type FrameEventKind uint8

const (
	FrameEventDestroyed FrameEventKind = iota
	FrameEventAttack
	FrameEventSpawn
)

// FrameEvent is a tagged-variant transcript record. A single MarshalJSON
// dispatch replaces the subclass-per-event shape of older engines: each
// variant uses the fields relevant to it and ignores the rest.
//
//	Destroyed: Entity, Location (position at death), Radius, Time
//	Attack:    Entity (attacker), Location, Time, Targets, TargetLocations
//	Spawn:     Entity (new ship), Location, PlanetLocation
type FrameEvent struct {
	Kind            FrameEventKind
	Entity          EntityID
	Location        Location
	Radius          float64
	Time            float64
	Targets         []EntityID
	TargetLocations []Location
	PlanetLocation  Location
}

func entityIDJSON(id EntityID) map[string]any {
	switch id.Type {
	case ShipEntity:
		return map[string]any{"type": "ship", "owner": id.Player, "id": id.Index}
	case PlanetEntity:
		return map[string]any{"type": "planet", "id": id.Index}
	default:
		return map[string]any{"type": "invalid"}
	}
}

// MarshalJSON serializes the record in the replay wire shape.
func (ev FrameEvent) MarshalJSON() ([]byte, error) {
	switch ev.Kind {
	case FrameEventDestroyed:
		return json.Marshal(map[string]any{
			"event":  "destroyed",
			"entity": entityIDJSON(ev.Entity),
			"x":      ev.Location.X,
			"y":      ev.Location.Y,
			"radius": ev.Radius,
			"time":   ev.Time,
		})
	case FrameEventAttack:
		targets := make([]map[string]any, len(ev.Targets))
		for i, id := range ev.Targets {
			targets[i] = entityIDJSON(id)
		}
		locations := make([][2]float64, len(ev.TargetLocations))
		for i, loc := range ev.TargetLocations {
			locations[i] = [2]float64{loc.X, loc.Y}
		}
		return json.Marshal(map[string]any{
			"event":            "attack",
			"entity":           entityIDJSON(ev.Entity),
			"x":                ev.Location.X,
			"y":                ev.Location.Y,
			"time":             ev.Time,
			"targets":          targets,
			"target_locations": locations,
		})
	case FrameEventSpawn:
		return json.Marshal(map[string]any{
			"event":    "spawned",
			"entity":   entityIDJSON(ev.Entity),
			"x":        ev.Location.X,
			"y":        ev.Location.Y,
			"planet_x": ev.PlanetLocation.X,
			"planet_y": ev.PlanetLocation.Y,
		})
	default:
		return nil, fmt.Errorf("unknown frame event kind %d", ev.Kind)
	}
}

// TurnMoves records the moves actually applied during one turn:
// [player][moveNo] -> MoveSet.
type TurnMoves [][]MoveSet

// Transcript captures everything the external replay serializer needs: one
// map snapshot per frame (frame 0 is the initial world), one event bucket
// per turn, and one applied-moves record per player per micro-step. The
// recorder does not interpret the records.
type Transcript struct {
	Frames      []*Map
	FrameEvents [][]FrameEvent
	Moves       []TurnMoves

	numPlayers     int
	maxQueuedMoves int
}

// NewTranscript creates a transcript seeded with the initial map snapshot.
func NewTranscript(initial *Map, numPlayers, maxQueuedMoves int) *Transcript {
	return &Transcript{
		Frames:         []*Map{initial.Clone()},
		numPlayers:     numPlayers,
		maxQueuedMoves: maxQueuedMoves,
	}
}

// BeginTurn appends an empty frame-event bucket and an empty moves bucket.
func (t *Transcript) BeginTurn() {
	t.FrameEvents = append(t.FrameEvents, nil)
	turnMoves := make(TurnMoves, t.numPlayers)
	for player := range turnMoves {
		turnMoves[player] = make([]MoveSet, t.maxQueuedMoves)
		for moveNo := range turnMoves[player] {
			turnMoves[player][moveNo] = make(MoveSet)
		}
	}
	t.Moves = append(t.Moves, turnMoves)
}

// RecordEvent appends an event record to the current turn's bucket.
func (t *Transcript) RecordEvent(ev FrameEvent) {
	last := len(t.FrameEvents) - 1
	t.FrameEvents[last] = append(t.FrameEvents[last], ev)
}

// RecordMove records a move applied for a player at the given micro-step.
func (t *Transcript) RecordMove(player, moveNo int, move Move) {
	last := len(t.Moves) - 1
	t.Moves[last][player][moveNo][move.ShipIndex] = move
}

// SnapshotMap appends an end-of-turn deep copy of the arena.
func (t *Transcript) SnapshotMap(m *Map) {
	t.Frames = append(t.Frames, m.Clone())
}

// NumFrames returns the number of recorded frames (turns + 1).
func (t *Transcript) NumFrames() int {
	return len(t.Frames)
}
