package sim

import "math"

// Points of interest: helpers a viewer uses to pick a civilization to focus
// on. All pickers consider living civilizations only and return -1 when
// there are none.

// PickStrongest returns the living civilization with the highest tech.
// Ties go to the lower index.
func PickStrongest(e *Engine) int {
	best := -1
	bestT := float32(math.Inf(-1))
	for i := 0; i < e.CivCount; i++ {
		if e.CivAlive[i] && e.CivTech[i] > bestT {
			best, bestT = i, e.CivTech[i]
		}
	}
	return best
}

// PickFrontier returns the living civilization farthest from the origin
func PickFrontier(e *Engine) int {
	best := -1
	bestR2 := float32(-1)
	for i := 0; i < e.CivCount; i++ {
		if !e.CivAlive[i] {
			continue
		}
		x, y, z := e.CivPosition(i)
		if r2 := x*x + y*y + z*z; r2 > bestR2 {
			best, bestR2 = i, r2
		}
	}
	return best
}

// PickNearest returns the living civilization closest to (x, y, z)
func PickNearest(e *Engine, x, y, z float64) int {
	best := -1
	bestD2 := math.Inf(1)
	for i := 0; i < e.CivCount; i++ {
		if !e.CivAlive[i] {
			continue
		}
		cx, cy, cz := e.CivPosition(i)
		dx, dy, dz := float64(cx)-x, float64(cy)-y, float64(cz)-z
		if d2 := dx*dx + dy*dy + dz*dz; d2 < bestD2 {
			best, bestD2 = i, d2
		}
	}
	return best
}

// PickDensest buckets living civilizations into a cells³ grid over the
// survey cube and returns the middle member of the most populated cell.
func PickDensest(e *Engine, cells int) int {
	return PickDensestInto(e, NewVoxelGrid(cells, e.CivCount))
}

// PickDensestInto is PickDensest with a caller-owned grid, for per-frame use
func PickDensestInto(e *Engine, g *VoxelGrid) int {
	g.Reset(e.Radius)
	found := false
	for i := 0; i < e.CivCount; i++ {
		if !e.CivAlive[i] {
			continue
		}
		x, y, z := e.CivPosition(i)
		g.Insert(i, float64(x), float64(y), float64(z))
		found = true
	}
	if !found {
		return -1
	}
	cell := g.Cell(g.Densest())
	return int(cell[len(cell)/2])
}

// MapPoint is a civilization projected on the XZ plane
type MapPoint struct {
	Index int      `json:"i"`
	X     float32  `json:"x"`
	Z     float32  `json:"z"`
	Strat Strategy `json:"s"`
}

// SampleCivs down-samples living civilizations for a top-down map. It walks
// slots with a fixed stride of max(1, CivCount/limit), skipping tombstones,
// and stops after limit points. The same world always yields the same sample.
func SampleCivs(e *Engine, limit int) []MapPoint {
	return AppendSampleCivs(nil, e, limit)
}

// AppendSampleCivs appends the sample to dst and returns the extended slice
func AppendSampleCivs(dst []MapPoint, e *Engine, limit int) []MapPoint {
	n := e.CivCount
	if n == 0 || limit <= 0 {
		return dst
	}
	stride := max(1, n/limit)
	picked := 0
	for i := 0; i < n && picked < limit; i += stride {
		if !e.CivAlive[i] {
			continue
		}
		dst = append(dst, MapPoint{
			Index: i,
			X:     e.CivPos[i*3],
			Z:     e.CivPos[i*3+2],
			Strat: e.CivStrat[i],
		})
		picked++
	}
	return dst
}
