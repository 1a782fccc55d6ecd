package players

import (
	"context"
	"testing"
	"time"

	"astro-arena/internal/config"
	"astro-arena/internal/game"
)

// echoBot answers every request line with a fixed JSON reply, which is
// valid for both the init handshake and the per-turn move exchange.
const echoBot = `while read line; do echo '{"name":"shbot","moves":[{"ship":0,"type":"thrust","thrust":7,"angle":90}]}'; done`

// silentBot consumes input and never answers.
const silentBot = `cat > /dev/null`

// TestSubprocessExchange verifies the JSON-lines handshake and move
// retrieval against a real shell subprocess.
func TestSubprocessExchange(t *testing.T) {
	constants := config.DefaultConstants()
	m := game.NewMap(240, 160, 1, constants)
	m.SpawnShip(game.Location{X: 50, Y: 50}, 0)

	source, err := NewSubprocess([]string{echoBot})
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	defer source.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	name, elapsed := source.Init(ctx, 0, m)
	if elapsed == -1 {
		t.Fatal("init timed out")
	}
	if name != "shbot" {
		t.Errorf("name = %q, want shbot", name)
	}

	queue, elapsed := source.RetrieveMoves(ctx, 0, 1, m)
	if elapsed == -1 {
		t.Fatal("move retrieval timed out")
	}
	if len(queue) != 1 {
		t.Fatalf("queue length = %d, want 1", len(queue))
	}
	move, ok := queue[0][0]
	if !ok {
		t.Fatal("expected a move for ship 0")
	}
	if move.Type != game.MoveThrust || move.Thrust != 7 || move.Angle != 90 {
		t.Errorf("move = %+v", move)
	}
}

// TestSubprocessTimeout verifies an unresponsive bot reports -1 under a
// deadline.
func TestSubprocessTimeout(t *testing.T) {
	constants := config.DefaultConstants()
	m := game.NewMap(240, 160, 1, constants)

	source, err := NewSubprocess([]string{silentBot})
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	defer source.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	if _, elapsed := source.Init(ctx, 0, m); elapsed != -1 {
		t.Errorf("elapsed = %d, want -1 for a silent bot", elapsed)
	}
}
