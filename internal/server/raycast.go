package server

import (
	"math"

	"chunkserve.dev/internal/world"
)

// Vec3 is a world-space position or direction.
type Vec3 struct {
	X, Y, Z float64
}

// Ray is a half-line in world space. Dir need not be normalized.
type Ray struct {
	Origin Vec3
	Dir    Vec3
}

// RayHit describes the first solid block a ray crossed.
type RayHit struct {
	Block  world.BlockCoord
	Chunk  world.ChunkCoord
	ID     uint16
	Dist   float64
	Normal [3]int // unit step into the face that was entered, zero if the origin block was solid
}

// RaycastBlock walks the voxel grid from ray.Origin up to maxDist and
// returns the first solid block. It only reads resident chunks: a ray
// crossing an unloaded chunk passes through it and never triggers a
// generation request.
func (s *Local) RaycastBlock(ray Ray, maxDist float64) (RayHit, bool) {
	length := math.Sqrt(ray.Dir.X*ray.Dir.X + ray.Dir.Y*ray.Dir.Y + ray.Dir.Z*ray.Dir.Z)
	if length == 0 || maxDist <= 0 {
		return RayHit{}, false
	}
	dir := Vec3{X: ray.Dir.X / length, Y: ray.Dir.Y / length, Z: ray.Dir.Z / length}

	pos := world.BlockCoord{
		X: int(math.Floor(ray.Origin.X)),
		Y: int(math.Floor(ray.Origin.Y)),
		Z: int(math.Floor(ray.Origin.Z)),
	}

	stepX, tMaxX, tDeltaX := axisInit(ray.Origin.X, dir.X, pos.X)
	stepY, tMaxY, tDeltaY := axisInit(ray.Origin.Y, dir.Y, pos.Y)
	stepZ, tMaxZ, tDeltaZ := axisInit(ray.Origin.Z, dir.Z, pos.Z)

	// Chunk cache: the walk crosses many blocks per chunk.
	var (
		cur      *world.Chunk
		curCoord world.ChunkCoord
		haveCur  bool
	)
	lookup := func(b world.BlockCoord) (uint16, bool) {
		cc := world.ChunkCoordForBlock(b)
		if !haveCur || cc != curCoord {
			ch, ok := s.residentChunk(cc)
			if !ok {
				haveCur = false
				return 0, false
			}
			cur, curCoord, haveCur = ch, cc, true
		}
		lx, ly, lz := b.Local()
		return cur.Get(lx, ly, lz), true
	}

	dist := 0.0
	var normal [3]int
	for dist <= maxDist {
		if id, ok := lookup(pos); ok && id != world.BlockAir {
			return RayHit{
				Block:  pos,
				Chunk:  world.ChunkCoordForBlock(pos),
				ID:     id,
				Dist:   dist,
				Normal: normal,
			}, true
		}
		switch {
		case tMaxX <= tMaxY && tMaxX <= tMaxZ:
			pos.X += stepX
			dist = tMaxX
			tMaxX += tDeltaX
			normal = [3]int{-stepX, 0, 0}
		case tMaxY <= tMaxZ:
			pos.Y += stepY
			dist = tMaxY
			tMaxY += tDeltaY
			normal = [3]int{0, -stepY, 0}
		default:
			pos.Z += stepZ
			dist = tMaxZ
			tMaxZ += tDeltaZ
			normal = [3]int{0, 0, -stepZ}
		}
	}
	return RayHit{}, false
}

// axisInit computes the grid-walk parameters for one axis: the step
// direction, the ray parameter at the first boundary crossing, and the
// parameter delta per cell.
func axisInit(origin, dir float64, cell int) (step int, tMax, tDelta float64) {
	switch {
	case dir > 0:
		step = 1
		tMax = (float64(cell+1) - origin) / dir
		tDelta = 1 / dir
	case dir < 0:
		step = -1
		tMax = (origin - float64(cell)) / -dir
		tDelta = 1 / -dir
	default:
		step = 0
		tMax = math.Inf(1)
		tDelta = math.Inf(1)
	}
	return step, tMax, tDelta
}
