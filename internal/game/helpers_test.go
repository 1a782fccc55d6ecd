package game

import (
	"context"

	"astro-arena/internal/config"
)

// scriptFunc computes one player's move queue for a turn.
type scriptFunc func(player, turn int, m *Map) []MoveSet

// stubSource is an in-process MoveSource for tests: instant responses,
// optional per-player scripts.
type stubSource struct {
	scripts []scriptFunc
}

func (s *stubSource) Init(_ context.Context, player int, _ *Map) (string, int) {
	return "stub", 0
}

func (s *stubSource) RetrieveMoves(_ context.Context, player, turn int, m *Map) ([]MoveSet, int) {
	if player >= len(s.scripts) || s.scripts[player] == nil {
		return nil, 0
	}
	return s.scripts[player](player, turn, m), 0
}

// timeoutSource reports a timeout for the listed players.
type timeoutSource struct {
	timedOut map[int]bool
}

func (s *timeoutSource) Init(_ context.Context, player int, _ *Map) (string, int) {
	return "stub", 0
}

func (s *timeoutSource) RetrieveMoves(_ context.Context, player, turn int, _ *Map) ([]MoveSet, int) {
	if s.timedOut[player] {
		return nil, -1
	}
	return nil, 0
}

// newTestEngine builds an engine over an empty map, applying setup to
// populate the world before the first turn.
func newTestEngine(numPlayers int, constants *config.GameConstants, scripts []scriptFunc, setup func(m *Map)) *Engine {
	m := NewMap(240, 160, numPlayers, constants)
	if setup != nil {
		setup(m)
	}
	return NewEngine(m, &stubSource{scripts: scripts}, constants, EngineOptions{})
}

// dockMove scripts a single Dock command for one ship on one turn.
func dockMove(shipIdx, planetIdx, onTurn int) scriptFunc {
	return func(_, turn int, _ *Map) []MoveSet {
		if turn != onTurn {
			return nil
		}
		return []MoveSet{{shipIdx: Move{Type: MoveDock, ShipIndex: shipIdx, DockTo: planetIdx}}}
	}
}

func allAlive(n int) []bool {
	alive := make([]bool, n)
	for i := range alive {
		alive[i] = true
	}
	return alive
}
