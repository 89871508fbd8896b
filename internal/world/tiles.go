// Package world generates the tile map using layered simplex noise.
// Tiles carry terrain, biome, fertility, and a population target the
// reconciler steers toward.
package world

import (
	"math"
	"sync"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// Terrain classes derived from elevation.
const (
	TerrainOcean     = "ocean"
	TerrainMountains = "mountains"
	TerrainHills     = "hills"
	TerrainFlats     = "flats"
)

// Biome classes derived from latitude and moisture.
const (
	BiomeAlpine    = "alpine"
	BiomeTundra    = "tundra"
	BiomePlains    = "plains"
	BiomeGrassland = "grassland"
	BiomeDesert    = "desert"
)

// Tile is one spatial partition of the world holding its own population.
type Tile struct {
	ID        int    `json:"id"`
	Terrain   string `json:"terrain"`
	Biome     string `json:"biome,omitempty"`
	Fertility int    `json:"fertility"`
	Habitable bool   `json:"habitable"`

	mu     sync.Mutex
	target int
}

// Target returns the tile's current population target.
func (t *Tile) Target() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.target
}

// SetTarget updates the tile's population target.
func (t *Tile) SetTarget(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.target = n
}

// Map holds all tiles.
type Map struct {
	Tiles []*Tile
	byID  map[int]*Tile
}

// NewMap builds a map over the given tiles.
func NewMap(tiles []*Tile) *Map {
	m := &Map{Tiles: tiles, byID: make(map[int]*Tile, len(tiles))}
	for _, t := range tiles {
		m.byID[t.ID] = t
	}
	return m
}

// Get returns the tile with the given ID, or nil.
func (m *Map) Get(id int) *Tile {
	return m.byID[id]
}

// Habitable returns the tiles people can live on.
func (m *Map) Habitable() []*Tile {
	var out []*Tile
	for _, t := range m.Tiles {
		if t.Habitable {
			out = append(out, t)
		}
	}
	return out
}

// GenConfig holds map generation parameters.
type GenConfig struct {
	Tiles         int   // Number of tiles (grid of rows x columns)
	Seed          int64 // Noise seed
	DefaultTarget int   // Base population target for habitable tiles
}

// DefaultGenConfig returns a small map suitable for interactive runs.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Tiles:         64,
		Seed:          1,
		DefaultTarget: 100,
	}
}

// Generate creates the tile map. Tiles are laid out on a rows x columns
// grid; row position stands in for latitude when assigning biomes.
func Generate(cfg GenConfig) *Map {
	elevNoise := opensimplex.NewNormalized(cfg.Seed)
	moistNoise := opensimplex.NewNormalized(cfg.Seed + 1)

	cols := int(math.Ceil(math.Sqrt(float64(cfg.Tiles))))
	tiles := make([]*Tile, 0, cfg.Tiles)

	for id := 0; id < cfg.Tiles; id++ {
		x := float64(id % cols)
		y := float64(id / cols)

		elev := octaveNoise(elevNoise, x, y, 4, 0.18, 0.5)
		moist := octaveNoise(moistNoise, x, y, 3, 0.14, 0.5)

		// Latitude: 0 at the equator row, 1 at the poles.
		rows := float64((cfg.Tiles + cols - 1) / cols)
		latitude := math.Abs(y-rows/2) / (rows / 2)

		terrain := deriveTerrain(elev)
		biome := deriveBiome(terrain, latitude, moist)
		fertility := deriveFertility(terrain, biome, moist)
		habitable := isHabitable(terrain, biome)

		t := &Tile{
			ID:        id,
			Terrain:   terrain,
			Biome:     biome,
			Fertility: fertility,
			Habitable: habitable,
		}
		if habitable {
			// Fertile tiles support larger populations.
			t.target = cfg.DefaultTarget * (50 + fertility) / 100
		}
		tiles = append(tiles, t)
	}

	return NewMap(tiles)
}

func deriveTerrain(elev float64) string {
	switch {
	case elev < 0.35:
		return TerrainOcean
	case elev > 0.80:
		return TerrainMountains
	case elev > 0.60:
		return TerrainHills
	default:
		return TerrainFlats
	}
}

func deriveBiome(terrain string, latitude, moist float64) string {
	if terrain == TerrainOcean {
		return ""
	}
	if terrain == TerrainMountains {
		return BiomeAlpine
	}
	switch {
	case latitude > 0.8:
		return BiomeTundra
	case latitude > 0.55:
		return BiomePlains
	case moist < 0.35:
		return BiomeDesert
	default:
		return BiomeGrassland
	}
}

func deriveFertility(terrain, biome string, moist float64) int {
	if terrain == TerrainOcean || terrain == TerrainMountains {
		return 0
	}
	base := 50
	switch biome {
	case BiomeGrassland:
		base = 80
	case BiomePlains:
		base = 70
	case BiomeTundra:
		base = 30
	case BiomeDesert:
		base = 20
	case BiomeAlpine:
		base = 25
	}
	f := base + int((moist-0.5)*20)
	if f < 0 {
		f = 0
	}
	if f > 100 {
		f = 100
	}
	return f
}

func isHabitable(terrain, biome string) bool {
	if terrain == TerrainOcean || terrain == TerrainMountains {
		return false
	}
	switch biome {
	case BiomeDesert, BiomeTundra, BiomeAlpine:
		return false
	}
	return true
}

// octaveNoise layers multiple noise frequencies for natural variation.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
