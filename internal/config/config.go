// Package config loads the server configuration from an optional TOML file
// with sane defaults for every field, plus environment overrides for
// secrets that should stay out of config files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/talgya/gridworld/internal/demography"
	"github.com/talgya/gridworld/internal/retry"
	"github.com/talgya/gridworld/internal/world"
)

// Config is the fully resolved server configuration.
type Config struct {
	Port     int    `toml:"port"`
	DBPath   string `toml:"db_path"`
	AdminKey string `toml:"admin_key"`
	Seed     int64  `toml:"seed"`

	World     WorldConfig     `toml:"world"`
	Calendar  CalendarConfig  `toml:"calendar"`
	Locks     LockConfig      `toml:"locks"`
	Retry     RetryConfig     `toml:"retry"`
	Formation FormationConfig `toml:"formation"`
}

type WorldConfig struct {
	Tiles         int `toml:"tiles"`
	DefaultTarget int `toml:"default_target"`
}

type CalendarConfig struct {
	Speed     string `toml:"speed"`
	AutoStart bool   `toml:"auto_start"`
}

type LockConfig struct {
	CoupleTTLMS          int64 `toml:"couple_ttl_ms"`
	AcquireTimeoutMS     int64 `toml:"acquire_timeout_ms"`
	RetryDelayMS         int64 `toml:"retry_delay_ms"`
	ReconcileTTLMS       int64 `toml:"reconcile_ttl_ms"`
	ReconcileTimeoutMS   int64 `toml:"reconcile_timeout_ms"`
}

type RetryConfig struct {
	MaxAttempts int     `toml:"max_attempts"`
	BaseDelayMS int64   `toml:"base_delay_ms"`
	Multiplier  float64 `toml:"multiplier"`
}

type FormationConfig struct {
	MaxFamiliesPerCycle int     `toml:"max_families_per_cycle"`
	PregnancyChance     float64 `toml:"pregnancy_chance"`
	TermMonths          int     `toml:"term_months"`
	AdultAge            int     `toml:"adult_age"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	dem := demography.DefaultConfig()
	gen := world.DefaultGenConfig()
	return Config{
		Port:   8080,
		DBPath: "gridworld.db",
		Seed:   0, // 0 means derive a crypto seed at startup
		World: WorldConfig{
			Tiles:         gen.Tiles,
			DefaultTarget: gen.DefaultTarget,
		},
		Calendar: CalendarConfig{
			Speed:     "1_day",
			AutoStart: false,
		},
		Locks: LockConfig{
			CoupleTTLMS:        dem.CoupleLockTTL.Milliseconds(),
			AcquireTimeoutMS:   dem.AcquireTimeout.Milliseconds(),
			RetryDelayMS:       dem.RetryDelay.Milliseconds(),
			ReconcileTTLMS:     dem.ReconcileLockTTL.Milliseconds(),
			ReconcileTimeoutMS: dem.ReconcileWaitTimeout.Milliseconds(),
		},
		Retry: RetryConfig{
			MaxAttempts: dem.Retry.MaxAttempts,
			BaseDelayMS: dem.Retry.BaseDelay.Milliseconds(),
			Multiplier:  dem.Retry.Multiplier,
		},
		Formation: FormationConfig{
			MaxFamiliesPerCycle: dem.MaxFamiliesPerCycle,
			PregnancyChance:     dem.PregnancyChance,
			TermMonths:          dem.TermMonths,
			AdultAge:            dem.AdultAge,
		},
	}
}

// Load reads the TOML file at path over the defaults. An empty path returns
// the defaults. Environment variables GRIDWORLD_ADMIN_KEY and GRIDWORLD_SEED
// override their file counterparts.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	if key := os.Getenv("GRIDWORLD_ADMIN_KEY"); key != "" {
		cfg.AdminKey = key
	}
	if raw := os.Getenv("GRIDWORLD_SEED"); raw != "" {
		seed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("parse GRIDWORLD_SEED: %w", err)
		}
		cfg.Seed = seed
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.World.Tiles <= 0 {
		return fmt.Errorf("world.tiles must be positive")
	}
	if c.World.DefaultTarget < 0 {
		return fmt.Errorf("world.default_target must not be negative")
	}
	if c.Formation.PregnancyChance < 0 || c.Formation.PregnancyChance > 1 {
		return fmt.Errorf("formation.pregnancy_chance must be within [0, 1]")
	}
	if c.Formation.MaxFamiliesPerCycle <= 0 {
		return fmt.Errorf("formation.max_families_per_cycle must be positive")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be positive")
	}
	if c.Retry.Multiplier < 1 {
		return fmt.Errorf("retry.multiplier must be at least 1")
	}
	return nil
}

// Demography maps the file-level knobs onto the coordination layer config.
func (c Config) Demography() demography.Config {
	return demography.Config{
		MaxFamiliesPerCycle:  c.Formation.MaxFamiliesPerCycle,
		PregnancyChance:      c.Formation.PregnancyChance,
		TermMonths:           c.Formation.TermMonths,
		AdultAge:             c.Formation.AdultAge,
		CoupleLockTTL:        time.Duration(c.Locks.CoupleTTLMS) * time.Millisecond,
		AcquireTimeout:       time.Duration(c.Locks.AcquireTimeoutMS) * time.Millisecond,
		RetryDelay:           time.Duration(c.Locks.RetryDelayMS) * time.Millisecond,
		ReconcileLockTTL:     time.Duration(c.Locks.ReconcileTTLMS) * time.Millisecond,
		ReconcileWaitTimeout: time.Duration(c.Locks.ReconcileTimeoutMS) * time.Millisecond,
		Retry: retry.Config{
			MaxAttempts: c.Retry.MaxAttempts,
			BaseDelay:   time.Duration(c.Retry.BaseDelayMS) * time.Millisecond,
			Multiplier:  c.Retry.Multiplier,
		},
	}
}
