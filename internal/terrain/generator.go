// Package terrain holds the stock chunk generator: a seeded heightmap
// with hash-placed ore pockets. It is pure and deterministic per seed;
// the chunk service invokes it from a single worker, so no locking here.
package terrain

import (
	"math"

	"chunkserve.dev/internal/mathx"
	"chunkserve.dev/internal/world"
)

// Params tunes the generator. Zero values are replaced by defaults in New.
type Params struct {
	Seed int64

	// Ground surface = GroundLevel + HeightAmp * fbm(x,z).
	GroundLevel  int
	HeightAmp    float64
	FeatureScale float64 // noise wavelength in blocks
	Octaves      int
	Lacunarity   float64
	Persistence  float64

	SoilDepth int // dirt blocks under the grass layer

	// Ore pockets inside stone, teacher-style hash clusters per ore.
	OrePocketGrid   int
	OrePocketRadius int
	CoalPermille    uint64
	IronPermille    uint64
	CrystalPermille uint64
}

func defaults() Params {
	return Params{
		GroundLevel:     8,
		HeightAmp:       12,
		FeatureScale:    96,
		Octaves:         4,
		Lacunarity:      2.0,
		Persistence:     0.5,
		SoilDepth:       3,
		OrePocketGrid:   12,
		OrePocketRadius: 2,
		CoalPermille:    450,
		IronPermille:    250,
		CrystalPermille: 60,
	}
}

type Generator struct {
	p     Params
	noise *Perlin
}

func New(p Params) *Generator {
	d := defaults()
	if p.HeightAmp <= 0 {
		p.HeightAmp = d.HeightAmp
	}
	if p.FeatureScale <= 0 {
		p.FeatureScale = d.FeatureScale
	}
	if p.Octaves <= 0 {
		p.Octaves = d.Octaves
	}
	if p.Lacunarity <= 0 {
		p.Lacunarity = d.Lacunarity
	}
	if p.Persistence <= 0 {
		p.Persistence = d.Persistence
	}
	if p.SoilDepth <= 0 {
		p.SoilDepth = d.SoilDepth
	}
	if p.OrePocketGrid <= 0 {
		p.OrePocketGrid = d.OrePocketGrid
	}
	if p.OrePocketRadius <= 0 {
		p.OrePocketRadius = d.OrePocketRadius
	}
	if p.CoalPermille == 0 && p.IronPermille == 0 && p.CrystalPermille == 0 {
		p.CoalPermille = d.CoalPermille
		p.IronPermille = d.IronPermille
		p.CrystalPermille = d.CrystalPermille
	}
	return &Generator{p: p, noise: NewPerlin(p.Seed)}
}

// SurfaceHeight returns the ground height for a world column. Blocks with
// Y below the returned value are solid.
func (g *Generator) SurfaceHeight(wx, wz int) int {
	n := g.noise.OctaveNoise2D(
		float64(wx)/g.p.FeatureScale,
		float64(wz)/g.p.FeatureScale,
		g.p.Octaves, g.p.Lacunarity, g.p.Persistence,
	)
	return g.p.GroundLevel + int(math.Round(n*g.p.HeightAmp))
}

// Generate builds the chunk at coord. Never fails.
func (g *Generator) Generate(coord world.ChunkCoord) (*world.Chunk, error) {
	ch := world.NewChunk(coord)
	origin := coord.Origin()

	for z := 0; z < world.ChunkSize; z++ {
		for x := 0; x < world.ChunkSize; x++ {
			wx := origin.X + x
			wz := origin.Z + z
			surface := g.SurfaceHeight(wx, wz)

			for y := 0; y < world.ChunkSize; y++ {
				wy := origin.Y + y
				if wy >= surface {
					continue // air
				}
				var b uint16
				switch {
				case wy == surface-1:
					b = world.BlockGrass
				case wy >= surface-1-g.p.SoilDepth:
					b = world.BlockDirt
				default:
					b = g.stoneOrOre(wx, wy, wz)
				}
				ch.Set(x, y, z, b)
			}
		}
	}
	return ch, nil
}

func (g *Generator) stoneOrOre(wx, wy, wz int) uint16 {
	switch {
	case g.inPocket(g.p.Seed+101, wx, wy, wz, g.p.CrystalPermille):
		return world.BlockCrystalOre
	case g.inPocket(g.p.Seed+102, wx, wy, wz, g.p.IronPermille):
		return world.BlockIronOre
	case g.inPocket(g.p.Seed+103, wx, wy, wz, g.p.CoalPermille):
		return world.BlockCoalOre
	default:
		return world.BlockStone
	}
}

// inPocket tests whether (wx,wy,wz) falls inside a hash-placed spherical
// pocket. Each grid cell rolls once for a pocket and, if it has one,
// derives its center from the same hash.
func (g *Generator) inPocket(seed int64, wx, wy, wz int, probPermille uint64) bool {
	if probPermille == 0 {
		return false
	}
	grid := g.p.OrePocketGrid
	radius := g.p.OrePocketRadius
	r2 := radius * radius

	gx := mathx.FloorDiv(wx, grid)
	gy := mathx.FloorDiv(wy, grid)
	gz := mathx.FloorDiv(wz, grid)

	for dz := -1; dz <= 1; dz++ {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				cgx := gx + dx
				cgy := gy + dy
				cgz := gz + dz
				h := mathx.Hash3(seed, cgx, cgy, cgz)
				if h%1000 >= probPermille {
					continue
				}
				cx := cgx*grid + int((h>>10)%uint64(grid))
				cy := cgy*grid + int((h>>20)%uint64(grid))
				cz := cgz*grid + int((h>>30)%uint64(grid))

				ddx := wx - cx
				ddy := wy - cy
				ddz := wz - cz
				if ddx*ddx+ddy*ddy+ddz*ddz <= r2 {
					return true
				}
			}
		}
	}
	return false
}
