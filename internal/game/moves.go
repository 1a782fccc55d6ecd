package game

import "context"

// MoveType enumerates the commands a player can issue to a ship.
type MoveType uint8

const (
	MoveNoop MoveType = iota
	MoveThrust
	MoveDock
	MoveUndock
	MoveError
)

func (t MoveType) String() string {
	switch t {
	case MoveNoop:
		return "noop"
	case MoveThrust:
		return "thrust"
	case MoveDock:
		return "dock"
	case MoveUndock:
		return "undock"
	case MoveError:
		return "error"
	default:
		return "unknown"
	}
}

// Move is one command for one ship. Thrust magnitude and angle are integers
// in game units (degrees for the angle).
type Move struct {
	Type      MoveType
	ShipIndex int
	Thrust    int
	Angle     int
	DockTo    int
}

// MoveSet maps ship index to the move it issued this micro-step.
type MoveSet map[int]Move

// MoveSource is the contract with the external networking collaborator: it
// delivers each player's move queue for a turn and reports how long the
// player took, or -1 for a timeout/error (which kills the player).
//
// RetrieveMoves is invoked concurrently, one goroutine per living player;
// the map passed in is a read-only snapshot, never the live arena.
type MoveSource interface {
	// Init performs the pre-game handshake and returns the player's name
	// and elapsed milliseconds, or -1 on timeout/error.
	Init(ctx context.Context, player int, m *Map) (string, int)

	// RetrieveMoves returns one MoveSet per queued micro-step (length
	// MAX_QUEUED_MOVES; missing trailing sets are treated as empty) and
	// elapsed milliseconds, or -1 on timeout/error.
	RetrieveMoves(ctx context.Context, player, turn int, m *Map) ([]MoveSet, int)
}
