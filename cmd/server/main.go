package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"astro-arena/internal/api"
	"astro-arena/internal/config"
	"astro-arena/internal/game"
	"astro-arena/internal/mapgen"
	"astro-arena/internal/players"
	"astro-arena/internal/replay"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("no .env file found, using environment variables only")
	}

	cfg := config.Load()
	log.Printf("astro-arena match server")
	log.Printf("seed %d, map %.0fx%.0f", cfg.Match.Seed, cfg.Match.Width, cfg.Match.Height)

	// Move source: external bot subprocesses when configured, otherwise a
	// two-player idle match (useful to smoke-test the pipeline).
	var source game.MoveSource
	numPlayers := 2
	if len(cfg.Match.BotCommands) > 0 {
		numPlayers = len(cfg.Match.BotCommands)
		sub, err := players.NewSubprocess(cfg.Match.BotCommands)
		if err != nil {
			log.Fatalf("failed to launch bots: %v", err)
		}
		defer sub.Close()
		source = sub
		log.Printf("%d bot processes launched", numPlayers)
	} else {
		source = players.NewScripted(players.Idle(), players.Idle())
		log.Printf("no BOT_COMMANDS set, running built-in idle agents")
	}

	worldMap, poi := mapgen.Generate(cfg.Match.Seed, cfg.Match.Width, cfg.Match.Height, numPlayers, cfg.Constants)
	log.Printf("generated %d planets, %d players", len(worldMap.Planets), numPlayers)

	var tracer *game.TraceLog
	if cfg.Server.TraceLogPath != "" {
		tracer = game.NewTraceLog()
		if err := tracer.Start(cfg.Server.TraceLogPath); err != nil {
			log.Printf("trace log disabled: %v", err)
			tracer = nil
		} else {
			defer tracer.Stop()
			log.Printf("trace log: %s", cfg.Server.TraceLogPath)
		}
	}

	// Optional live-state surface: metrics, state cache, spectator feed.
	var cache *api.StateCache
	var feed *api.FrameFeed
	if cfg.Server.APIEnabled {
		cache = api.NewStateCache()
		feed = api.NewFrameFeed()
		router := api.NewRouter(api.RouterConfig{Cache: cache, Feed: feed})
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		go func() {
			log.Printf("api server on http://localhost%s", addr)
			if err := http.ListenAndServe(addr, router); err != nil {
				log.Printf("api server error: %v", err)
			}
		}()
		if err := api.StartDebugServer(api.DefaultObservabilityConfig()); err != nil {
			log.Printf("debug server disabled: %v", err)
		}
	}

	var lastTurnStart time.Time
	engine := game.NewEngine(worldMap, source, cfg.Constants, game.EngineOptions{
		MoveTimeout: time.Duration(cfg.Server.MoveTimeoutMS) * time.Millisecond,
		InitTimeout: time.Duration(cfg.Server.InitTimeoutMS) * time.Millisecond,
		Tracer:      tracer,
		OnSimEvent:  api.CountSimEvent,
		OnFrame: func(turn int, snapshot *game.Map) {
			if !lastTurnStart.IsZero() {
				api.RecordTurn(time.Since(lastTurnStart))
			}
			lastTurnStart = time.Now()

			ships := 0
			for player := 0; player < snapshot.NumPlayers(); player++ {
				ships += len(snapshot.Ships[player])
			}
			planets := 0
			for _, planet := range snapshot.Planets {
				if planet.IsAlive() {
					planets++
				}
			}
			api.UpdateEntityCounts(ships, planets)

			if cache != nil {
				if data, err := api.EncodeFrame(turn, snapshot); err == nil {
					cache.Publish(turn, data)
					if feed != nil {
						feed.Broadcast(data)
					}
				}
			}
		},
	})

	stats := engine.RunGame(context.Background())
	log.Printf("match complete after %d turns", engine.TurnNumber())

	if cache != nil {
		if data, err := json.Marshal(stats); err == nil {
			cache.PublishStats(data)
		}
	}

	if cfg.Replay.Enabled {
		doc, err := replay.Build(engine.Transcript(), replay.Header{
			Seed:         cfg.Match.Seed,
			MapGenerator: "solar_system",
			PlayerNames:  engine.PlayerNames(),
			Constants:    cfg.Constants,
			POI:          poi,
		}, stats)
		if err != nil {
			log.Fatalf("failed to build replay: %v", err)
		}
		name := fmt.Sprintf("replay-%d-%d.hlt", cfg.Match.Seed, numPlayers)
		path, size, err := replay.NewWriter(cfg.Replay).Write(name, doc)
		if err != nil {
			log.Fatalf("failed to write replay: %v", err)
		}
		api.AddReplayBytes(size)
		log.Printf("replay written: %s (%d bytes)", path, size)
	}

	// Machine-readable results on stdout for match coordinators.
	results := map[string]any{
		"seed":         cfg.Match.Seed,
		"map_width":    cfg.Match.Width,
		"map_height":   cfg.Match.Height,
		"turns":        engine.TurnNumber(),
		"player_names": engine.PlayerNames(),
		"stats":        stats,
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	fmt.Fprintln(os.Stdout, string(out))
}
