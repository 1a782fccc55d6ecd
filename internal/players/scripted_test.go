package players

import (
	"context"
	"testing"

	"astro-arena/internal/config"
	"astro-arena/internal/game"
)

// TestScriptedSource verifies scripts drive moves and idle players return
// empty queues.
func TestScriptedSource(t *testing.T) {
	constants := config.DefaultConstants()
	m := game.NewMap(240, 160, 2, constants)
	m.SpawnShip(game.Location{X: 50, Y: 50}, 0)

	thrustAll := func(player, turn int, m *game.Map) []game.MoveSet {
		set := make(game.MoveSet)
		for _, idx := range m.ShipIndices(player) {
			set[idx] = game.Move{Type: game.MoveThrust, ShipIndex: idx, Thrust: 7, Angle: 45}
		}
		return []game.MoveSet{set}
	}
	source := NewScripted(thrustAll, Idle())

	name, elapsed := source.Init(context.Background(), 0, m)
	if name != "scripted-0" || elapsed != 0 {
		t.Errorf("init = %q/%d", name, elapsed)
	}

	queue, elapsed := source.RetrieveMoves(context.Background(), 0, 1, m)
	if elapsed != 0 {
		t.Errorf("elapsed = %d, want 0", elapsed)
	}
	if len(queue) != 1 || len(queue[0]) != 1 {
		t.Fatalf("queue = %+v, want one move for one ship", queue)
	}
	if move := queue[0][0]; move.Type != game.MoveThrust || move.Thrust != 7 {
		t.Errorf("move = %+v", move)
	}

	queue, elapsed = source.RetrieveMoves(context.Background(), 1, 1, m)
	if queue != nil || elapsed != 0 {
		t.Errorf("idle player should return an empty queue, got %+v", queue)
	}
}
