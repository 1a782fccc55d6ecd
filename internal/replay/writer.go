// Package replay serializes a finished match transcript into a compressed
// JSON artifact. The document layout (header, frames, moves, stats) is
// stable and versioned; the file body is an lz4 frame, with an optional
// blake3 checksum sidecar for integrity checks in archives.
package replay

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pierrec/lz4/v4"
	"lukechampine.com/blake3"

	"astro-arena/internal/config"
	"astro-arena/internal/game"
)

// Version identifies the document layout.
const Version = 31

// Header carries the static match description.
type Header struct {
	Seed         int64
	MapGenerator string
	PlayerNames  []string
	Constants    *config.GameConstants
	POI          string
}

// Writer builds and writes replay artifacts.
type Writer struct {
	cfg config.ReplayConfig
}

// NewWriter creates a writer with the given configuration.
func NewWriter(cfg config.ReplayConfig) *Writer {
	return &Writer{cfg: cfg}
}

// Build assembles the full replay document from the transcript.
func Build(t *game.Transcript, hdr Header, stats *game.GameStats) (map[string]any, error) {
	if t.NumFrames() == 0 {
		return nil, fmt.Errorf("transcript has no frames")
	}
	initial := t.Frames[0]

	doc := map[string]any{
		"version":       Version,
		"seed":          hdr.Seed,
		"map_generator": hdr.MapGenerator,
		"width":         initial.Width,
		"height":        initial.Height,
		"num_players":   initial.NumPlayers(),
		"num_frames":    t.NumFrames(),
		"player_names":  hdr.PlayerNames,
		"constants":     hdr.Constants,
		"poi":           hdr.POI,
	}

	// The planet map does not change shape between frames, so the static
	// part is encoded once in the header.
	planets := make([]map[string]any, 0, len(initial.Planets))
	for i, planet := range initial.Planets {
		planets = append(planets, map[string]any{
			"id":            i,
			"x":             planet.Location.X,
			"y":             planet.Location.Y,
			"r":             planet.Radius,
			"health":        planet.Health,
			"docking_spots": planet.DockingSpots,
			"production":    planet.RemainingProduction,
		})
	}
	doc["planets"] = planets

	frames := make([]map[string]any, 0, t.NumFrames())
	for _, frame := range t.Frames {
		frames = append(frames, encodeFrame(frame))
	}
	for i, events := range t.FrameEvents {
		if events == nil {
			events = []game.FrameEvent{}
		}
		// Frame 0 is the initial world; turn i's events land on frame
		// i+1 alongside the state they produced.
		if i+1 < len(frames) {
			frames[i+1]["events"] = events
		}
	}
	doc["frames"] = frames

	moves := make([]map[string]any, 0, len(t.Moves))
	for _, turnMoves := range t.Moves {
		moves = append(moves, encodeTurnMoves(turnMoves))
	}
	doc["moves"] = moves

	if stats != nil {
		perPlayer := make(map[string]any, len(stats.PlayerStatistics))
		for _, ps := range stats.PlayerStatistics {
			perPlayer[strconv.Itoa(ps.Tag)] = ps
		}
		doc["stats"] = map[string]any{
			"player_statistics": perPlayer,
			"timeout_tags":      stats.TimeoutTags,
		}
	}

	return doc, nil
}

// Write serializes the document, compresses it, and writes the artifact.
// Returns the artifact path and the compressed size.
func (w *Writer) Write(name string, doc map[string]any) (string, int64, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return "", 0, fmt.Errorf("marshal replay: %w", err)
	}

	if err := os.MkdirAll(w.cfg.Dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("replay dir: %w", err)
	}
	path := filepath.Join(w.cfg.Dir, name)

	file, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("create replay: %w", err)
	}
	zw := lz4.NewWriter(file)
	if _, err := zw.Write(data); err != nil {
		file.Close()
		return "", 0, fmt.Errorf("compress replay: %w", err)
	}
	if err := zw.Close(); err != nil {
		file.Close()
		return "", 0, fmt.Errorf("flush replay: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return "", 0, err
	}
	if err := file.Close(); err != nil {
		return "", 0, err
	}

	if w.cfg.Checksum {
		sum := blake3.Sum256(data)
		checksum := hex.EncodeToString(sum[:]) + "\n"
		if err := os.WriteFile(path+".b3", []byte(checksum), 0o644); err != nil {
			return "", 0, fmt.Errorf("write checksum: %w", err)
		}
	}

	return path, info.Size(), nil
}

// Read loads and decompresses a replay artifact back into raw JSON.
func Read(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	zr := lz4.NewReader(file)
	out, err := io.ReadAll(zr)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return out, nil
}

func encodeFrame(m *game.Map) map[string]any {
	ships := make(map[string]any, m.NumPlayers())
	for player := 0; player < m.NumPlayers(); player++ {
		playerShips := make(map[string]any)
		for _, idx := range m.ShipIndices(player) {
			ship := m.Ships[player][idx]
			playerShips[strconv.Itoa(idx)] = map[string]any{
				"x":                ship.Location.X,
				"y":                ship.Location.Y,
				"vx":               ship.Velocity.VX,
				"vy":               ship.Velocity.VY,
				"health":           ship.Health,
				"cooldown":         ship.WeaponCooldown,
				"docking_status":   ship.DockingStatus.String(),
				"docking_progress": ship.DockingProgress,
				"docked_planet":    ship.DockedPlanet,
			}
		}
		ships[strconv.Itoa(player)] = playerShips
	}

	planets := make(map[string]any)
	for i, planet := range m.Planets {
		if !planet.IsAlive() {
			continue
		}
		planets[strconv.Itoa(i)] = map[string]any{
			"id":                   i,
			"health":               planet.Health,
			"owned":                planet.Owned,
			"owner":                planet.Owner,
			"docked_ships":         planet.DockedShips,
			"current_production":   planet.CurrentProduction,
			"remaining_production": planet.RemainingProduction,
		}
	}

	return map[string]any{
		"ships":   ships,
		"planets": planets,
	}
}

func encodeTurnMoves(turnMoves game.TurnMoves) map[string]any {
	out := make(map[string]any, len(turnMoves))
	for player, queue := range turnMoves {
		allMoves := make([]map[string]any, 0, len(queue))
		for _, moveSet := range queue {
			stepMoves := make(map[string]any)
			for shipIdx, move := range moveSet {
				if move.Type == game.MoveNoop {
					continue
				}
				stepMoves[strconv.Itoa(shipIdx)] = encodeMove(move)
			}
			allMoves = append(allMoves, stepMoves)
		}
		out[strconv.Itoa(player)] = allMoves
	}
	return out
}

func encodeMove(move game.Move) map[string]any {
	encoded := map[string]any{
		"type": move.Type.String(),
		"ship": move.ShipIndex,
	}
	switch move.Type {
	case game.MoveThrust:
		encoded["thrust"] = move.Thrust
		encoded["angle"] = move.Angle
	case game.MoveDock:
		encoded["planet"] = move.DockTo
	}
	return encoded
}
