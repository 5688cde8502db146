package world

import "testing"

func TestChunkGetSet(t *testing.T) {
	ch := NewChunk(ChunkCoord{X: 1, Y: 0, Z: -1})
	if len(ch.Blocks) != ChunkVolume {
		t.Fatalf("chunk volume = %d, want %d", len(ch.Blocks), ChunkVolume)
	}
	ch.Set(3, 7, 11, BlockStone)
	if got := ch.Get(3, 7, 11); got != BlockStone {
		t.Fatalf("Get after Set = %d, want %d", got, BlockStone)
	}
	if ch.Get(11, 7, 3) != BlockAir {
		t.Fatalf("transposed offsets must not alias")
	}
	if !ch.Solid(3, 7, 11) || ch.Solid(0, 0, 0) {
		t.Fatalf("Solid mismatch")
	}
}
