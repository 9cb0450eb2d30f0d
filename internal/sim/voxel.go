package sim

// VoxelGrid buckets civilization indices into a cubic grid spanning
// [-half, half] on each axis.
//
// Cells are preallocated slices of indices (not pointers) stored in
// x-major order (cells[(ix*n+iy)*n+iz]); Reset keeps their capacity so a
// grid can be rebuilt every frame without allocating.
type VoxelGrid struct {
	n     int
	half  float64
	inv   float64 // n / (2*half)
	cells [][]int32
	first []int // insertion sequence of each cell's first member
	seq   int
}

// NewVoxelGrid creates an n×n×n grid. expected sizes the initial capacity of
// each cell.
func NewVoxelGrid(n, expected int) *VoxelGrid {
	if n < 1 {
		n = 1
	}
	cells := make([][]int32, n*n*n)
	perCell := expected / len(cells)
	if perCell < 2 {
		perCell = 2
	}
	for i := range cells {
		cells[i] = make([]int32, 0, perCell)
	}
	return &VoxelGrid{n: n, cells: cells, first: make([]int, len(cells))}
}

// Size returns the number of cells along each axis
func (g *VoxelGrid) Size() int {
	return g.n
}

// Reset clears every cell and rescales the grid to [-half, half]
func (g *VoxelGrid) Reset(half float64) {
	for i := range g.cells {
		g.cells[i] = g.cells[i][:0]
	}
	g.seq = 0
	g.half = half
	if half > 0 {
		g.inv = float64(g.n) / (2 * half)
	} else {
		g.inv = 0
	}
}

// Insert adds index at (x, y, z). Positions outside the bounds clamp to the
// edge cells.
func (g *VoxelGrid) Insert(index int, x, y, z float64) {
	c := g.CellIndex(x, y, z)
	if len(g.cells[c]) == 0 {
		g.first[c] = g.seq
	}
	g.seq++
	g.cells[c] = append(g.cells[c], int32(index))
}

// CellIndex returns the flat cell index for a position
func (g *VoxelGrid) CellIndex(x, y, z float64) int {
	ix := g.axis(x)
	iy := g.axis(y)
	iz := g.axis(z)
	return (ix*g.n+iy)*g.n + iz
}

func (g *VoxelGrid) axis(v float64) int {
	i := int((v + g.half) * g.inv)
	if i < 0 {
		return 0
	}
	if i >= g.n {
		return g.n - 1
	}
	return i
}

// Cell returns the indices bucketed in cell c. The slice is owned by the grid
// and is only valid until the next Reset.
func (g *VoxelGrid) Cell(c int) []int32 {
	return g.cells[c]
}

// Densest returns the flat index of the most populated cell, or -1 if the grid
// is empty. Ties go to the cell that was filled first.
func (g *VoxelGrid) Densest() int {
	best, bestLen := -1, 0
	for i, cell := range g.cells {
		n := len(cell)
		if n > bestLen || (n == bestLen && n > 0 && g.first[i] < g.first[best]) {
			best, bestLen = i, n
		}
	}
	return best
}
