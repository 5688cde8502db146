// sweep is an in-process load driver: it stands up a chunk service,
// requests an expanding square of chunks the way a moving player would,
// and reports how quickly the worker publishes them.
package main

import (
	"flag"
	"log"
	"os"
	"time"

	"chunkserve.dev/internal/server"
	"chunkserve.dev/internal/terrain"
	"chunkserve.dev/internal/world"
)

func main() {
	var (
		seed   = flag.Int64("seed", 1337, "world seed")
		radius = flag.Int("radius", 8, "chunk radius to sweep")
		pollMs = flag.Int("poll_ms", 25, "worker poll interval in ms")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[sweep] ", log.LstdFlags|log.Lmicroseconds)

	gen := terrain.New(terrain.Params{Seed: *seed})
	svc := server.NewLocal(gen, server.Config{
		PollInterval: time.Duration(*pollMs) * time.Millisecond,
		Logger:       logger,
	})
	defer svc.Close()

	start := time.Now()
	total := 0
	for r := 0; r <= *radius; r++ {
		// Request the ring at distance r, then poll until resident,
		// the way a render loop would across frames.
		ring := ringCoords(r)
		for _, c := range ring {
			svc.Chunk(c, true)
		}
		for _, c := range ring {
			for {
				if _, ok := svc.Chunk(c, false); ok {
					break
				}
				time.Sleep(time.Millisecond)
			}
		}
		total += len(ring)
		st := svc.Stats()
		logger.Printf("ring %d done: resident=%d batches=%d gen_time=%s", r, st.Resident, st.Batches, st.GenTime)
	}

	elapsed := time.Since(start)
	st := svc.Stats()
	logger.Printf("swept %d chunks in %s (%.0f chunks/s, %d batches, failed=%d)",
		total, elapsed, float64(total)/elapsed.Seconds(), st.Batches, st.Failed)

	// A parting sanity probe against the generated ground.
	if hit, ok := svc.RaycastBlock(server.Ray{
		Origin: server.Vec3{X: 0.5, Y: 100.5, Z: 0.5},
		Dir:    server.Vec3{Y: -1},
	}, 256); ok {
		logger.Printf("raycast: surface at y=%d (block id %d, dist %.1f)", hit.Block.Y, hit.ID, hit.Dist)
	}
}

// ringCoords lists the chunk coordinates on the square ring at distance r
// from the origin, at the ground layer.
func ringCoords(r int) []world.ChunkCoord {
	if r == 0 {
		return []world.ChunkCoord{{X: 0, Y: 0, Z: 0}}
	}
	var out []world.ChunkCoord
	for x := -r; x <= r; x++ {
		out = append(out, world.ChunkCoord{X: x, Y: 0, Z: -r}, world.ChunkCoord{X: x, Y: 0, Z: r})
	}
	for z := -r + 1; z <= r-1; z++ {
		out = append(out, world.ChunkCoord{X: -r, Y: 0, Z: z}, world.ChunkCoord{X: r, Y: 0, Z: z})
	}
	return out
}
