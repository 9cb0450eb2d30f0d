package sim

import "testing"

// placeCivs builds an engine holding civilizations at fixed positions
func placeCivs(t *testing.T, positions [][3]float32) *Engine {
	t.Helper()
	p := testParams()
	p.CivSpawnProb = 0
	p.RadiusStart = 10
	e := mustNew(t, p, 1)
	for i, pos := range positions {
		if idx := e.SpawnRandomCiv(); idx != i {
			t.Fatalf("Expected index %d, got %d", i, idx)
		}
		copy(e.CivPos[i*3:i*3+3], pos[:])
	}
	return e
}

// TestPickersEmpty verifies every picker reports -1 with no living civs
func TestPickersEmpty(t *testing.T) {
	e := placeCivs(t, [][3]float32{{1, 0, 0}})
	e.CivAlive[0] = false

	if got := PickStrongest(e); got != -1 {
		t.Errorf("PickStrongest = %d, want -1", got)
	}
	if got := PickFrontier(e); got != -1 {
		t.Errorf("PickFrontier = %d, want -1", got)
	}
	if got := PickNearest(e, 0, 0, 0); got != -1 {
		t.Errorf("PickNearest = %d, want -1", got)
	}
	if got := PickDensest(e, 8); got != -1 {
		t.Errorf("PickDensest = %d, want -1", got)
	}
	if pts := SampleCivs(e, 10); len(pts) != 0 {
		t.Errorf("SampleCivs returned %d points, want 0", len(pts))
	}
}

// TestPickStrongest skips tombstones even when they hold the highest tech
func TestPickStrongest(t *testing.T) {
	e := placeCivs(t, [][3]float32{{0, 0, 0}, {1, 0, 0}, {2, 0, 0}})
	e.CivTech[0] = 1
	e.CivTech[1] = 9
	e.CivTech[2] = 5
	e.CivAlive[1] = false

	if got := PickStrongest(e); got != 2 {
		t.Errorf("PickStrongest = %d, want 2", got)
	}
}

// TestPickFrontierAndNearest checks distance based pickers
func TestPickFrontierAndNearest(t *testing.T) {
	e := placeCivs(t, [][3]float32{{1, 0, 0}, {0, 5, 0}, {0, 0, -3}})

	if got := PickFrontier(e); got != 1 {
		t.Errorf("PickFrontier = %d, want 1", got)
	}

	tests := []struct {
		name    string
		x, y, z float64
		want    int
	}{
		{"origin", 0, 0, 0, 0},
		{"above", 0, 4, 0, 1},
		{"behind", 0, 0, -4, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PickNearest(e, tt.x, tt.y, tt.z); got != tt.want {
				t.Errorf("PickNearest = %d, want %d", got, tt.want)
			}
		})
	}
}

// TestPickDensest picks the middle member of the crowded cell
func TestPickDensest(t *testing.T) {
	e := placeCivs(t, [][3]float32{
		{-8, -8, -8},
		{5, 5, 5},
		{5.1, 5.1, 5.1},
		{5.2, 5.0, 5.1},
		{8, -8, 8},
	})

	if got := PickDensest(e, 4); got != 2 {
		t.Errorf("PickDensest = %d, want 2", got)
	}

	e.CivAlive[2] = false
	if got := PickDensest(e, 4); got != 3 {
		t.Errorf("PickDensest after tombstone = %d, want 3", got)
	}
}

// TestPickDensestTies verifies equally crowded cells resolve to the one
// holding the lowest civilization index
func TestPickDensestTies(t *testing.T) {
	tests := []struct {
		name string
		pos  [][3]float32
		want int
	}{
		{"singletons", [][3]float32{{8, 8, 8}, {-8, -8, -8}}, 0},
		{"pairs", [][3]float32{{8, 8, 8}, {8.1, 8, 8}, {-8, -8, -8}, {-8.1, -8, -8}}, 1},
		{"interleaved", [][3]float32{{8, 8, 8}, {-8, -8, -8}, {-8.1, -8, -8}, {8.1, 8, 8}}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := placeCivs(t, tt.pos)
			if got := PickDensest(e, 4); got != tt.want {
				t.Errorf("PickDensest = %d, want %d", got, tt.want)
			}
		})
	}
}

// TestVoxelGridClamps verifies out of range positions land in edge cells
func TestVoxelGridClamps(t *testing.T) {
	g := NewVoxelGrid(4, 16)
	g.Reset(1)

	if got, want := g.CellIndex(-5, -5, -5), 0; got != want {
		t.Errorf("CellIndex low = %d, want %d", got, want)
	}
	if got, want := g.CellIndex(5, 5, 5), 4*4*4-1; got != want {
		t.Errorf("CellIndex high = %d, want %d", got, want)
	}

	g.Insert(3, 0.9, 0.9, 0.9)
	g.Insert(4, 0.95, 0.95, 0.95)
	if d := g.Densest(); d != 63 || len(g.Cell(d)) != 2 {
		t.Errorf("Densest = %d with %d members", d, len(g.Cell(d)))
	}

	g.Reset(1)
	if g.Densest() != -1 {
		t.Error("Expected empty grid after reset")
	}
}

// TestSampleCivs verifies the stride sample is bounded and deterministic
func TestSampleCivs(t *testing.T) {
	p := testParams()
	p.MaxCivs = 100
	p.CivSpawnProb = 0
	e := mustNew(t, p, 3)
	for i := 0; i < 100; i++ {
		e.SpawnRandomCiv()
	}
	e.CivAlive[0] = false

	pts := SampleCivs(e, 10)
	if len(pts) != 9 {
		t.Fatalf("Expected 9 points (stride 10, first slot dead), got %d", len(pts))
	}
	for k, pt := range pts {
		if want := (k + 1) * 10; pt.Index != want {
			t.Errorf("Point %d index = %d, want %d", k, pt.Index, want)
		}
		if pt.X != e.CivPos[pt.Index*3] || pt.Z != e.CivPos[pt.Index*3+2] {
			t.Errorf("Point %d not projected on XZ", k)
		}
	}

	again := SampleCivs(e, 10)
	for i := range pts {
		if pts[i] != again[i] {
			t.Fatal("Sample is not deterministic")
		}
	}

	if all := SampleCivs(e, 1000); len(all) != 99 {
		t.Errorf("Expected every living civ with a large budget, got %d", len(all))
	}
}
