// Command gridworld runs the demographic world simulation server.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/talgya/gridworld/internal/api"
	"github.com/talgya/gridworld/internal/broadcast"
	"github.com/talgya/gridworld/internal/calendar"
	"github.com/talgya/gridworld/internal/config"
	"github.com/talgya/gridworld/internal/demography"
	"github.com/talgya/gridworld/internal/engine"
	"github.com/talgya/gridworld/internal/entropy"
	"github.com/talgya/gridworld/internal/kvstore"
	"github.com/talgya/gridworld/internal/lock"
	"github.com/talgya/gridworld/internal/metrics"
	"github.com/talgya/gridworld/internal/people"
	"github.com/talgya/gridworld/internal/retry"
	"github.com/talgya/gridworld/internal/world"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	configPath := flag.String("config", "", "path to TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("configuration invalid", "error", err)
		os.Exit(1)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = entropy.CryptoSeed()
	}
	slog.Info("Gridworld — demographic world simulation", "seed", seed)

	// ── Database ──────────────────────────────────────────────────────
	store, err := people.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("database opened", "path", cfg.DBPath)

	// ── World Map (deterministic from seed) ───────────────────────────
	gen := world.DefaultGenConfig()
	gen.Tiles = cfg.World.Tiles
	gen.DefaultTarget = cfg.World.DefaultTarget
	gen.Seed = seed
	worldMap := world.Generate(gen)
	slog.Info("world generated",
		"tiles", len(worldMap.Tiles),
		"habitable", len(worldMap.Habitable()),
	)

	// ── Calendar ──────────────────────────────────────────────────────
	start := calendar.Date{Year: calendar.StartYear, Month: 1, Day: 1}
	if raw, err := store.GetMeta("calendar_date"); err == nil && raw != "" {
		if d, err := calendar.Parse(raw); err == nil {
			start = d
			slog.Info("calendar restored", "date", start)
		}
	}
	clock := calendar.NewClock(start)

	// ── Coordination layer ────────────────────────────────────────────
	reg := prometheus.NewRegistry()
	met := metrics.New(reg)

	kv := kvstore.NewMemory()
	locks := lock.NewManager(kv, met)
	retries := retry.NewScheduler(kv, met)
	rng := entropy.NewSource(seed)

	demCfg := cfg.Demography()
	forms := demography.NewOrchestrator(store, locks, rng, met, demCfg)
	delivery := demography.NewDeliveryProcessor(store, locks, retries, rng, met, demCfg)
	reconciler := demography.NewReconciler(store, locks, delivery, forms, nil, rng, met, demCfg)

	// ── Broadcast hub ─────────────────────────────────────────────────
	hub := broadcast.NewHub(met)
	go hub.Run()

	// ── Simulation loop ───────────────────────────────────────────────
	coord := engine.NewCoordinator(worldMap, store, clock, delivery, forms, reconciler, hub, met)
	runner := engine.NewRunner(clock, coord.DayChanged)

	interval, ok := calendar.SpeedInterval(cfg.Calendar.Speed)
	if !ok {
		slog.Warn("unknown speed in config, using 1_day", "speed", cfg.Calendar.Speed)
		interval, _ = calendar.SpeedInterval("1_day")
	}
	runner.SetInterval(interval)
	if cfg.Calendar.AutoStart {
		runner.Start(interval)
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	if cfg.AdminKey == "" {
		slog.Warn("GRIDWORLD_ADMIN_KEY not set — admin POST endpoints will be disabled")
	}

	apiServer := &api.Server{
		Map:      worldMap,
		Store:    store,
		Clock:    clock,
		Runner:   runner,
		Coord:    coord,
		Hub:      hub,
		Locks:    locks,
		Registry: reg,
		Port:     cfg.Port,
		AdminKey: cfg.AdminKey,
	}
	apiServer.Start()

	fmt.Printf("Gridworld is up: %d habitable tiles, date %s.\n",
		len(worldMap.Habitable()), clock.Today())
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.Port)

	// ── Shutdown ──────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("received signal, shutting down", "signal", sig)

	runner.Stop()
	if err := store.SaveMeta("calendar_date", clock.Today().String()); err != nil {
		slog.Error("final calendar save failed", "error", err)
	}
	fmt.Println("Simulation stopped. Calendar saved.")
}
