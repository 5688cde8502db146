package world

// Block ids used by the stock generator. Gameplay layers may define more;
// the service itself only cares that a block is a uint16.
const (
	BlockAir uint16 = iota
	BlockStone
	BlockDirt
	BlockGrass
	BlockSand
	BlockGravel
	BlockCoalOre
	BlockIronOre
	BlockCrystalOre
)

// Chunk is the generated content of one chunk. The resident store owns
// every published Chunk; callers get a shared pointer they may mutate in
// place but must never free or retain past service teardown.
type Chunk struct {
	Coord  ChunkCoord
	Blocks []uint16 // len = ChunkVolume, x + z*ChunkSize + y*ChunkSize*ChunkSize
}

func NewChunk(coord ChunkCoord) *Chunk {
	return &Chunk{
		Coord:  coord,
		Blocks: make([]uint16, ChunkVolume),
	}
}

func index(x, y, z int) int {
	return x + z*ChunkSize + y*ChunkSize*ChunkSize
}

// Get returns the block at local offsets (x, y, z), each in [0, ChunkSize).
func (c *Chunk) Get(x, y, z int) uint16 {
	return c.Blocks[index(x, y, z)]
}

// Set writes the block at local offsets (x, y, z).
func (c *Chunk) Set(x, y, z int, b uint16) {
	c.Blocks[index(x, y, z)] = b
}

// Solid reports whether the local block is anything but air.
func (c *Chunk) Solid(x, y, z int) bool {
	return c.Blocks[index(x, y, z)] != BlockAir
}
