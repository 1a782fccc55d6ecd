package players

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os/exec"
	"time"

	"astro-arena/internal/game"
)

// Subprocess runs one agent process per player and exchanges newline-
// delimited JSON over stdin/stdout: the server writes a state line, the
// agent answers with a moves line. A player that misses its deadline is
// reported with elapsed -1, which kills it in the engine.
type Subprocess struct {
	procs []*agentProc
}

type agentProc struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	reader *bufio.Reader
}

// initMessage is the handshake sent before turn 1.
type initMessage struct {
	Player int        `json:"player"`
	Width  float64    `json:"width"`
	Height float64    `json:"height"`
	State  *stateJSON `json:"state"`
}

// frameMessage is sent once per turn.
type frameMessage struct {
	Turn  int        `json:"turn"`
	State *stateJSON `json:"state"`
}

type stateJSON struct {
	Planets []planetJSON          `json:"planets"`
	Ships   map[string][]shipJSON `json:"ships"`
}

type planetJSON struct {
	ID                  int     `json:"id"`
	X                   float64 `json:"x"`
	Y                   float64 `json:"y"`
	Radius              float64 `json:"radius"`
	Health              int     `json:"health"`
	DockingSpots        int     `json:"docking_spots"`
	RemainingProduction int     `json:"remaining_production"`
	Owned               bool    `json:"owned"`
	Owner               int     `json:"owner"`
	DockedShips         []int   `json:"docked_ships"`
}

type shipJSON struct {
	ID            int     `json:"id"`
	X             float64 `json:"x"`
	Y             float64 `json:"y"`
	VX            float64 `json:"vx"`
	VY            float64 `json:"vy"`
	Health        int     `json:"health"`
	DockingStatus string  `json:"docking_status"`
	DockedPlanet  int     `json:"docked_planet"`
}

// wireMove is one agent command on the wire.
type wireMove struct {
	Ship   int    `json:"ship"`
	Type   string `json:"type"`
	Thrust int    `json:"thrust,omitempty"`
	Angle  int    `json:"angle,omitempty"`
	Planet int    `json:"planet,omitempty"`
}

// initReply is the agent's handshake answer.
type initReply struct {
	Name string `json:"name"`
}

// movesReply is the agent's per-turn answer.
type movesReply struct {
	Moves []wireMove `json:"moves"`
}

// NewSubprocess launches one shell command per player. The processes stay
// attached for the whole match; Close terminates them.
func NewSubprocess(commands []string) (*Subprocess, error) {
	s := &Subprocess{}
	for i, command := range commands {
		cmd := exec.Command("/bin/sh", "-c", command)
		stdin, err := cmd.StdinPipe()
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("player %d stdin: %w", i, err)
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("player %d stdout: %w", i, err)
		}
		if err := cmd.Start(); err != nil {
			s.Close()
			return nil, fmt.Errorf("player %d start: %w", i, err)
		}
		s.procs = append(s.procs, &agentProc{
			cmd:    cmd,
			stdin:  stdin,
			reader: bufio.NewReader(stdout),
		})
	}
	return s, nil
}

// Close terminates every agent process.
func (s *Subprocess) Close() {
	for _, proc := range s.procs {
		if proc == nil {
			continue
		}
		proc.stdin.Close()
		if proc.cmd.Process != nil {
			proc.cmd.Process.Kill()
		}
		proc.cmd.Wait()
	}
}

// Init implements game.MoveSource.
func (s *Subprocess) Init(ctx context.Context, player int, m *game.Map) (string, int) {
	proc := s.procs[player]
	msg := initMessage{Player: player, Width: m.Width, Height: m.Height, State: encodeState(m)}

	line, elapsed := proc.exchange(ctx, msg)
	if elapsed == -1 {
		return "", -1
	}
	var reply initReply
	if err := json.Unmarshal(line, &reply); err != nil {
		log.Printf("player %d sent a malformed init reply: %v", player, err)
		return "", -1
	}
	return reply.Name, elapsed
}

// RetrieveMoves implements game.MoveSource. All commands land in the first
// queued micro-step; agents issuing multiple commands for a ship keep only
// the last one.
func (s *Subprocess) RetrieveMoves(ctx context.Context, player, turn int, m *game.Map) ([]game.MoveSet, int) {
	proc := s.procs[player]
	msg := frameMessage{Turn: turn, State: encodeState(m)}

	line, elapsed := proc.exchange(ctx, msg)
	if elapsed == -1 {
		return nil, -1
	}
	var reply movesReply
	if err := json.Unmarshal(line, &reply); err != nil {
		log.Printf("player %d sent malformed moves: %v", player, err)
		return nil, -1
	}

	set := make(game.MoveSet)
	for _, wm := range reply.Moves {
		set[wm.Ship] = decodeMove(wm)
	}
	return []game.MoveSet{set}, elapsed
}

// exchange writes one request line and reads one reply line under the
// caller's deadline. Elapsed covers only the agent's thinking time.
func (p *agentProc) exchange(ctx context.Context, request any) ([]byte, int) {
	data, err := json.Marshal(request)
	if err != nil {
		return nil, -1
	}
	if _, err := p.stdin.Write(append(data, '\n')); err != nil {
		return nil, -1
	}
	sentAt := time.Now()

	type result struct {
		line []byte
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := p.reader.ReadBytes('\n')
		ch <- result{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, -1
	case res := <-ch:
		if res.err != nil {
			return nil, -1
		}
		return res.line, int(time.Since(sentAt).Milliseconds())
	}
}

func decodeMove(wm wireMove) game.Move {
	switch wm.Type {
	case "thrust":
		return game.Move{Type: game.MoveThrust, ShipIndex: wm.Ship, Thrust: wm.Thrust, Angle: wm.Angle}
	case "dock":
		return game.Move{Type: game.MoveDock, ShipIndex: wm.Ship, DockTo: wm.Planet}
	case "undock":
		return game.Move{Type: game.MoveUndock, ShipIndex: wm.Ship}
	case "noop":
		return game.Move{Type: game.MoveNoop, ShipIndex: wm.Ship}
	default:
		return game.Move{Type: game.MoveError, ShipIndex: wm.Ship}
	}
}

func encodeState(m *game.Map) *stateJSON {
	state := &stateJSON{Ships: make(map[string][]shipJSON)}
	for i, planet := range m.Planets {
		if !planet.IsAlive() {
			continue
		}
		state.Planets = append(state.Planets, planetJSON{
			ID:                  i,
			X:                   planet.Location.X,
			Y:                   planet.Location.Y,
			Radius:              planet.Radius,
			Health:              planet.Health,
			DockingSpots:        planet.DockingSpots,
			RemainingProduction: planet.RemainingProduction,
			Owned:               planet.Owned,
			Owner:               planet.Owner,
			DockedShips:         planet.DockedShips,
		})
	}
	for player := 0; player < m.NumPlayers(); player++ {
		var ships []shipJSON
		for _, idx := range m.ShipIndices(player) {
			ship := m.Ships[player][idx]
			ships = append(ships, shipJSON{
				ID:            idx,
				X:             ship.Location.X,
				Y:             ship.Location.Y,
				VX:            ship.Velocity.VX,
				VY:            ship.Velocity.VY,
				Health:        ship.Health,
				DockingStatus: ship.DockingStatus.String(),
				DockedPlanet:  ship.DockedPlanet,
			})
		}
		state.Ships[fmt.Sprintf("%d", player)] = ships
	}
	return state
}
