// Package api provides the HTTP API for observing and steering the world.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/talgya/gridworld/internal/broadcast"
	"github.com/talgya/gridworld/internal/calendar"
	"github.com/talgya/gridworld/internal/demography"
	"github.com/talgya/gridworld/internal/engine"
	"github.com/talgya/gridworld/internal/lock"
	"github.com/talgya/gridworld/internal/people"
	"github.com/talgya/gridworld/internal/world"
)

// Server serves the world state over HTTP.
type Server struct {
	Map      *world.Map
	Store    *people.Store
	Clock    *calendar.Clock
	Runner   *engine.Runner
	Coord    *engine.Coordinator
	Hub      *broadcast.Hub
	Locks    *lock.Manager
	Registry *prometheus.Registry
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	// Reconciliation is expensive; throttle operator-triggered runs.
	targetLimiter := NewRateLimiter(30, time.Minute)

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only — anyone can check in on the world).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/calendar", s.handleCalendar)
	mux.HandleFunc("/api/v1/calendar/speeds", s.handleSpeeds)
	mux.HandleFunc("/api/v1/tiles", s.handleTiles)
	mux.HandleFunc("/api/v1/people", s.handlePeople)
	mux.HandleFunc("/api/v1/person/", s.handlePersonDetail)
	mux.HandleFunc("/api/v1/demographics", s.handleDemographics)
	mux.HandleFunc("/api/v1/events", s.handleEvents)

	// Detail + admin tile routes.
	mux.HandleFunc("/api/v1/tile/", s.adminOnly(RateLimitMiddleware(targetLimiter, s.handleTileRoutes)))

	// WebSocket streaming endpoint.
	mux.HandleFunc("/api/v1/stream", s.Hub.HandleWS)

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/calendar/start", s.adminOnly(s.handleStart))
	mux.HandleFunc("/api/v1/calendar/stop", s.adminOnly(s.handleStop))
	mux.HandleFunc("/api/v1/calendar/speed", s.adminOnly(s.handleSpeed))

	// Prometheus metrics.
	mux.Handle("/metrics", promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{}))

	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	go func() {
		handler := corsMiddleware(mux)
		if err := http.ListenAndServe(addr, handler); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS env var to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:4173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
// GET requests pass through (for endpoints that support both GET and POST).
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no GRIDWORLD_ADMIN_KEY set)", http.StatusForbidden)
				return
			}

			if !s.checkBearerToken(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}

		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	today := s.Clock.Today()

	population := 0
	if demo, err := s.Store.Demographics(); err == nil {
		population = demo.Population
	}

	writeJSON(w, map[string]any{
		"name":            "Gridworld",
		"date":            today.String(),
		"running":         s.Runner.Running(),
		"tick_interval":   s.Runner.Interval().String(),
		"population":      population,
		"tiles":           len(s.Map.Tiles),
		"habitable_tiles": len(s.Map.Habitable()),
		"lock_contention": s.Locks.Contention(),
		"stream_clients":  s.Hub.ClientCount(),
	})
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	today := s.Clock.Today()
	writeJSON(w, map[string]any{
		"date":    today.String(),
		"year":    today.Year,
		"month":   today.Month,
		"day":     today.Day,
		"running": s.Runner.Running(),
	})
}

func (s *Server) handleSpeeds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, calendar.Speeds())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.Runner.Start(s.Runner.Interval())
	writeJSON(w, map[string]any{"running": true, "date": s.Clock.Today().String()})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.Runner.Stop()
	writeJSON(w, map[string]any{"running": false, "date": s.Clock.Today().String()})
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var req struct {
			Speed string `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		interval, ok := calendar.SpeedInterval(req.Speed)
		if !ok {
			http.Error(w, "unknown speed mode", http.StatusBadRequest)
			return
		}
		s.Runner.SetInterval(interval)
		slog.Info("speed changed", "speed", req.Speed, "interval", interval)
	}

	writeJSON(w, map[string]any{
		"interval": s.Runner.Interval().String(),
		"running":  s.Runner.Running(),
	})
}

func (s *Server) handleTiles(w http.ResponseWriter, r *http.Request) {
	type tileSummary struct {
		ID         int    `json:"id"`
		Terrain    string `json:"terrain"`
		Biome      string `json:"biome"`
		Fertility  int    `json:"fertility"`
		Habitable  bool   `json:"habitable"`
		Target     int    `json:"target"`
		Population int    `json:"population"`
	}

	counts, err := s.Store.LivingByTile()
	if err != nil {
		slog.Error("population query failed", "error", err)
		http.Error(w, "population query failed", http.StatusInternalServerError)
		return
	}

	result := make([]tileSummary, 0, len(s.Map.Tiles))
	for _, t := range s.Map.Tiles {
		result = append(result, tileSummary{
			ID:         t.ID,
			Terrain:    t.Terrain,
			Biome:      t.Biome,
			Fertility:  t.Fertility,
			Habitable:  t.Habitable,
			Target:     t.Target(),
			Population: counts[t.ID],
		})
	}
	writeJSON(w, result)
}

// handleTileRoutes dispatches GET /api/v1/tile/:id and POST /api/v1/tile/:id/target.
func (s *Server) handleTileRoutes(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(r.URL.Path, "/")
	// /api/v1/tile/:id → parts[0]="" [1]="api" [2]="v1" [3]="tile" [4]=id
	if len(parts) < 5 {
		http.Error(w, "missing tile id", http.StatusBadRequest)
		return
	}
	id, err := strconv.Atoi(parts[4])
	if err != nil {
		http.Error(w, "invalid tile id", http.StatusBadRequest)
		return
	}
	tile := s.Map.Get(id)
	if tile == nil {
		http.Error(w, "tile not found", http.StatusNotFound)
		return
	}

	if len(parts) >= 6 && parts[5] == "target" {
		s.handleTileTarget(w, r, tile)
		return
	}
	s.handleTileDetail(w, r, tile)
}

func (s *Server) handleTileDetail(w http.ResponseWriter, r *http.Request, tile *world.Tile) {
	population, err := s.Store.LivingCount(tile.ID)
	if err != nil {
		slog.Error("population query failed", "tile_id", tile.ID, "error", err)
		http.Error(w, "population query failed", http.StatusInternalServerError)
		return
	}
	pending, err := s.Store.PendingDeliveries(tile.ID)
	if err != nil {
		slog.Error("pending delivery query failed", "tile_id", tile.ID, "error", err)
		pending = 0
	}

	writeJSON(w, map[string]any{
		"id":                 tile.ID,
		"terrain":            tile.Terrain,
		"biome":              tile.Biome,
		"fertility":          tile.Fertility,
		"habitable":          tile.Habitable,
		"target":             tile.Target(),
		"population":         population,
		"pending_deliveries": pending,
	})
}

// handleTileTarget sets a new population target and reconciles immediately.
// A tile already mid-reconciliation reports 409 rather than queueing.
func (s *Server) handleTileTarget(w http.ResponseWriter, r *http.Request, tile *world.Tile) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !tile.Habitable {
		http.Error(w, "tile is not habitable", http.StatusBadRequest)
		return
	}

	var req struct {
		Target int `json:"target"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Target < 0 || req.Target > 100000 {
		http.Error(w, "target must be 0-100000", http.StatusBadRequest)
		return
	}

	tile.SetTarget(req.Target)
	outcome, err := s.Coord.ReconcileTile(r.Context(), tile.ID, req.Target)
	if errors.Is(err, demography.ErrTileBusy) {
		http.Error(w, "tile reconciliation already in progress", http.StatusConflict)
		return
	}
	if err != nil {
		slog.Error("reconcile failed", "tile_id", tile.ID, "error", err)
		http.Error(w, "reconciliation failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, outcome)
}

func (s *Server) handlePeople(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("tile")
	if raw == "" {
		http.Error(w, "tile query parameter required", http.StatusBadRequest)
		return
	}
	tileID, err := strconv.Atoi(raw)
	if err != nil {
		http.Error(w, "invalid tile id", http.StatusBadRequest)
		return
	}

	residents, err := s.Store.PeopleByTile(tileID)
	if err != nil {
		slog.Error("people query failed", "tile_id", tileID, "error", err)
		http.Error(w, "people query failed", http.StatusInternalServerError)
		return
	}
	if residents == nil {
		residents = []people.Person{}
	}
	writeJSON(w, residents)
}

func (s *Server) handlePersonDetail(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(r.URL.Path, "/")
	if len(parts) < 5 {
		http.Error(w, "missing person id", http.StatusBadRequest)
		return
	}
	id, err := strconv.ParseInt(parts[4], 10, 64)
	if err != nil {
		http.Error(w, "invalid person id", http.StatusBadRequest)
		return
	}

	person, err := s.Store.GetPerson(people.PersonID(id))
	if errors.Is(err, people.ErrNotFound) {
		http.Error(w, "person not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("person query failed", "person_id", id, "error", err)
		http.Error(w, "person query failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{
		"person": person,
		"age":    person.Age(s.Clock.Today()),
	})
}

func (s *Server) handleDemographics(w http.ResponseWriter, r *http.Request) {
	demo, err := s.Store.Demographics()
	if err != nil {
		slog.Error("demographics query failed", "error", err)
		http.Error(w, "demographics query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, demo)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	events, err := s.Store.RecentEvents(limit)
	if err != nil {
		slog.Error("event query failed", "error", err)
		http.Error(w, "event query failed", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []people.EventRow{}
	}
	writeJSON(w, events)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "error", err)
	}
}
