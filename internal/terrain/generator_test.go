package terrain

import (
	"testing"

	"chunkserve.dev/internal/world"
)

func TestGenerateDeterministic(t *testing.T) {
	a := New(Params{Seed: 1337})
	b := New(Params{Seed: 1337})
	coord := world.ChunkCoord{X: 2, Y: 0, Z: -3}

	ca, err := a.Generate(coord)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	cb, err := b.Generate(coord)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	for i := range ca.Blocks {
		if ca.Blocks[i] != cb.Blocks[i] {
			t.Fatalf("same seed diverged at index %d: %d != %d", i, ca.Blocks[i], cb.Blocks[i])
		}
	}
}

func TestGenerateSeedsDiffer(t *testing.T) {
	a := New(Params{Seed: 1})
	b := New(Params{Seed: 2})
	coord := world.ChunkCoord{X: 0, Y: 0, Z: 0}

	ca, _ := a.Generate(coord)
	cb, _ := b.Generate(coord)
	same := true
	for i := range ca.Blocks {
		if ca.Blocks[i] != cb.Blocks[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatalf("different seeds produced identical chunks")
	}
}

func TestGenerateColumnStructure(t *testing.T) {
	g := New(Params{Seed: 42})
	coord := world.ChunkCoord{X: 0, Y: 0, Z: 0}
	ch, _ := g.Generate(coord)
	origin := coord.Origin()

	for z := 0; z < world.ChunkSize; z++ {
		for x := 0; x < world.ChunkSize; x++ {
			surface := g.SurfaceHeight(origin.X+x, origin.Z+z)
			for y := 0; y < world.ChunkSize; y++ {
				wy := origin.Y + y
				got := ch.Get(x, y, z)
				switch {
				case wy >= surface:
					if got != world.BlockAir {
						t.Fatalf("block above surface at (%d,%d,%d) = %d, want air", x, y, z, got)
					}
				case wy == surface-1:
					if got != world.BlockGrass {
						t.Fatalf("surface block at (%d,%d,%d) = %d, want grass", x, y, z, got)
					}
				default:
					if got == world.BlockAir {
						t.Fatalf("block below surface at (%d,%d,%d) is air", x, y, z)
					}
				}
			}
		}
	}
}

func TestDeepChunkIsStoneWithOres(t *testing.T) {
	g := New(Params{Seed: 7})
	ch, _ := g.Generate(world.ChunkCoord{X: 0, Y: -8, Z: 0})
	for i, b := range ch.Blocks {
		switch b {
		case world.BlockStone, world.BlockCoalOre, world.BlockIronOre, world.BlockCrystalOre:
		default:
			t.Fatalf("deep block %d = %d, want stone or ore", i, b)
		}
	}
}

func TestNoiseRange(t *testing.T) {
	p := NewPerlin(99)
	for x := -50; x < 50; x++ {
		for y := -50; y < 50; y++ {
			n := p.OctaveNoise2D(float64(x)/13.0, float64(y)/13.0, 4, 2.0, 0.5)
			if n < -1.0001 || n > 1.0001 {
				t.Fatalf("noise out of range at (%d,%d): %v", x, y, n)
			}
		}
	}
}
