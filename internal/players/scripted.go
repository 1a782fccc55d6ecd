// Package players supplies implementations of the engine's MoveSource
// contract: in-process scripted agents for tests and demos, and a
// JSON-lines subprocess client for external bots.
package players

import (
	"context"
	"fmt"

	"astro-arena/internal/game"
)

// ScriptFunc computes one player's move queue for a turn from a read-only
// map snapshot.
type ScriptFunc func(player, turn int, m *game.Map) []game.MoveSet

// Scripted is an in-process MoveSource driven by per-player script
// functions. Response times are reported as zero; scripts never time out.
type Scripted struct {
	Names   []string
	Scripts []ScriptFunc
}

// NewScripted builds a scripted source. A nil script plays idle.
func NewScripted(scripts ...ScriptFunc) *Scripted {
	names := make([]string, len(scripts))
	for i := range names {
		names[i] = fmt.Sprintf("scripted-%d", i)
	}
	return &Scripted{Names: names, Scripts: scripts}
}

// Init implements game.MoveSource.
func (s *Scripted) Init(_ context.Context, player int, _ *game.Map) (string, int) {
	if player < len(s.Names) {
		return s.Names[player], 0
	}
	return fmt.Sprintf("scripted-%d", player), 0
}

// RetrieveMoves implements game.MoveSource.
func (s *Scripted) RetrieveMoves(_ context.Context, player, turn int, m *game.Map) ([]game.MoveSet, int) {
	if player >= len(s.Scripts) || s.Scripts[player] == nil {
		return nil, 0
	}
	return s.Scripts[player](player, turn, m), 0
}

// Idle returns a script that issues no moves.
func Idle() ScriptFunc {
	return func(int, int, *game.Map) []game.MoveSet { return nil }
}
