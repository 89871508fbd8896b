package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateIsDeterministic(t *testing.T) {
	cfg := DefaultGenConfig()
	a := Generate(cfg)
	b := Generate(cfg)

	require.Equal(t, len(a.Tiles), len(b.Tiles))
	for i := range a.Tiles {
		assert.Equal(t, a.Tiles[i].Terrain, b.Tiles[i].Terrain)
		assert.Equal(t, a.Tiles[i].Biome, b.Tiles[i].Biome)
		assert.Equal(t, a.Tiles[i].Fertility, b.Tiles[i].Fertility)
		assert.Equal(t, a.Tiles[i].Target(), b.Tiles[i].Target())
	}
}

func TestGenerateDiffersAcrossSeeds(t *testing.T) {
	cfg := DefaultGenConfig()
	a := Generate(cfg)
	cfg.Seed = cfg.Seed + 1000
	b := Generate(cfg)

	different := false
	for i := range a.Tiles {
		if a.Tiles[i].Terrain != b.Tiles[i].Terrain || a.Tiles[i].Fertility != b.Tiles[i].Fertility {
			different = true
			break
		}
	}
	assert.True(t, different)
}

func TestHabitableTilesHaveTargets(t *testing.T) {
	m := Generate(DefaultGenConfig())
	for _, tile := range m.Tiles {
		if tile.Habitable {
			assert.Positive(t, tile.Target(), "habitable tile %d has no target", tile.ID)
			assert.NotEqual(t, TerrainOcean, tile.Terrain)
		} else {
			assert.Zero(t, tile.Target())
		}
	}
}

func TestMapGet(t *testing.T) {
	m := NewMap([]*Tile{
		{ID: 4, Terrain: TerrainFlats, Habitable: true},
		{ID: 9, Terrain: TerrainOcean},
	})
	require.NotNil(t, m.Get(4))
	assert.Equal(t, TerrainFlats, m.Get(4).Terrain)
	assert.Nil(t, m.Get(5))
	assert.Len(t, m.Habitable(), 1)
}

func TestTargetIsConcurrencySafe(t *testing.T) {
	tile := &Tile{ID: 1, Habitable: true}
	tile.SetTarget(12)
	assert.Equal(t, 12, tile.Target())
	tile.SetTarget(30)
	assert.Equal(t, 30, tile.Target())
}
