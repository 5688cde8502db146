package world

import "chunkserve.dev/internal/mathx"

// Chunk dimensions in blocks. Chunks are cubic.
const (
	ChunkSize   = 16
	ChunkVolume = ChunkSize * ChunkSize * ChunkSize
)

// ChunkCoord locates a chunk within the world's chunk grid.
type ChunkCoord struct {
	X, Y, Z int
}

// BlockCoord is an absolute block position in world space.
type BlockCoord struct {
	X, Y, Z int
}

// ChunkCoordForBlock returns the coordinate of the chunk containing b.
func ChunkCoordForBlock(b BlockCoord) ChunkCoord {
	return ChunkCoord{
		X: mathx.FloorDiv(b.X, ChunkSize),
		Y: mathx.FloorDiv(b.Y, ChunkSize),
		Z: mathx.FloorDiv(b.Z, ChunkSize),
	}
}

// Local returns b's offsets within its chunk, each in [0, ChunkSize).
func (b BlockCoord) Local() (x, y, z int) {
	return mathx.Mod(b.X, ChunkSize), mathx.Mod(b.Y, ChunkSize), mathx.Mod(b.Z, ChunkSize)
}

// Origin returns the world-space block position of the chunk's minimum corner.
func (c ChunkCoord) Origin() BlockCoord {
	return BlockCoord{X: c.X * ChunkSize, Y: c.Y * ChunkSize, Z: c.Z * ChunkSize}
}
