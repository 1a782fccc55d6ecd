package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"astro-arena/internal/game"
)

// EncodeFrame renders one end-of-turn snapshot as the JSON payload served
// on /api/state and broadcast to websocket spectators.
func EncodeFrame(turn int, m *game.Map) ([]byte, error) {
	ships := make(map[string]any, m.NumPlayers())
	for player := 0; player < m.NumPlayers(); player++ {
		playerShips := make(map[string]any)
		for _, idx := range m.ShipIndices(player) {
			ship := m.Ships[player][idx]
			playerShips[strconv.Itoa(idx)] = map[string]any{
				"x":      ship.Location.X,
				"y":      ship.Location.Y,
				"vx":     ship.Velocity.VX,
				"vy":     ship.Velocity.VY,
				"health": ship.Health,
				"status": ship.DockingStatus.String(),
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
			"x":      planet.Location.X,
			"y":      planet.Location.Y,
			"r":      planet.Radius,
			"health": planet.Health,
			"owned":  planet.Owned,
			"owner":  planet.Owner,
		}
	}

	return json.Marshal(map[string]any{
		"turn":    turn,
		"width":   m.Width,
		"height":  m.Height,
		"ships":   ships,
		"planets": planets,
	})
}

// StateCache holds the most recently published frame for the HTTP surface.
// The engine thread publishes; handler goroutines read. Payloads are
// pre-encoded JSON so handlers never touch live simulation state.
type StateCache struct {
	mu    sync.RWMutex
	turn  int
	state []byte
	stats []byte
}

// NewStateCache creates an empty cache.
func NewStateCache() *StateCache {
	return &StateCache{}
}

// Publish replaces the cached frame.
func (c *StateCache) Publish(turn int, state []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turn = turn
	c.state = state
}

// PublishStats replaces the cached stats payload.
func (c *StateCache) PublishStats(stats []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats = stats
}

// Latest returns the cached turn number and frame payload.
func (c *StateCache) Latest() (int, []byte) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.turn, c.state
}

// Stats returns the cached stats payload.
func (c *StateCache) Stats() []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// RouterConfig contains the dependencies needed to construct the HTTP
// router. Designed for dependency injection: tests pass their own cache and
// feed and wrap the result in httptest.NewServer.
type RouterConfig struct {
	// Cache is the published frame store (required).
	Cache *StateCache

	// Feed is the websocket spectator hub; nil disables /ws.
	Feed *FrameFeed

	// RateLimiter is an optional pre-configured per-IP limiter. If nil,
	// one is created from RateLimitConfig.
	RateLimiter *IPRateLimiter

	// RateLimitConfig is optional limiter configuration, used only when
	// RateLimiter is nil. If both are nil, DefaultRateLimitConfig applies.
	RateLimitConfig *RateLimitConfig

	// CORSOrigins optionally overrides the allowed origins.
	CORSOrigins []string

	// DisableLogging disables the request logger middleware.
	DisableLogging bool
}

// NewRouter constructs the HTTP router. No listeners are opened, so the
// result is safe to wrap in httptest.NewServer; tests that care about the
// limiter's cleanup goroutine should pass their own RateLimiter and Stop it.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	if !cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)

	// Rate limiting before CORS: reject floods early and save CPU.
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rateLimitCfg := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			rateLimitCfg = *cfg.RateLimitConfig
		}
		rateLimiter = NewIPRateLimiter(rateLimitCfg)
	}
	r.Use(rateLimiter.Middleware)

	corsOrigins := cfg.CORSOrigins
	if corsOrigins == nil {
		corsOrigins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", func(w http.ResponseWriter, req *http.Request) {
			_, state := cfg.Cache.Latest()
			if state == nil {
				http.Error(w, `{"error":"no frame yet"}`, http.StatusServiceUnavailable)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write(state)
		})
		r.Get("/stats", func(w http.ResponseWriter, req *http.Request) {
			stats := cfg.Cache.Stats()
			if stats == nil {
				http.Error(w, `{"error":"match still running"}`, http.StatusServiceUnavailable)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write(stats)
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	if cfg.Feed != nil {
		r.Get("/ws", cfg.Feed.HandleWS)
	}

	return r
}
