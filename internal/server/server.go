package server

import (
	"time"

	"chunkserve.dev/internal/world"
)

// Generator produces the content of one chunk. It may be arbitrarily slow;
// the service only ever invokes it from its single background worker, so
// implementations do not need to be reentrant.
type Generator interface {
	Generate(coord world.ChunkCoord) (*world.Chunk, error)
}

// Server is the capability surface game logic sees, independent of whether
// chunks come from an in-process worker or a remote authority. Chunk never
// blocks on generation: a miss with request=true enqueues the coordinate
// and returns absent; callers poll again on a later frame.
//
// Returned chunks are owned by the server. Callers may edit blocks in
// place but must never retain a chunk past Close.
type Server interface {
	Chunk(coord world.ChunkCoord, request bool) (*world.Chunk, bool)
	RaycastBlock(ray Ray, maxDist float64) (RayHit, bool)
}

// BatchEntry describes one completed worker cycle.
type BatchEntry struct {
	Start     time.Time          `json:"start"`
	Claimed   int                `json:"claimed"`
	Generated int                `json:"generated"`
	Failed    int                `json:"failed"`
	Micros    int64              `json:"micros"`
	Coords    []world.ChunkCoord `json:"coords,omitempty"`
}

// FailureEntry describes one generator failure. The coordinate is left
// absent and re-requestable.
type FailureEntry struct {
	At    time.Time        `json:"at"`
	Coord world.ChunkCoord `json:"coord"`
	Err   string           `json:"err"`
}

// BatchRecorder receives generation outcomes off the worker's critical
// path. Implementations must not block for long; they run on the worker
// goroutine between batches.
type BatchRecorder interface {
	RecordBatch(BatchEntry)
	RecordFailure(FailureEntry)
}
