// Package spatial provides the broadphase uniform grid used for collision
// pair pruning.
//
// The grid stores integer entity indices (not pointers) to minimize GC
// pressure; the caller owns the index -> entity mapping and rebuilds the
// grid at the top of every detection pass.
package spatial

import "math"

// Grid hashes entities into fixed-size square cells. A query examines the
// owning cell plus the cardinal neighbors the query disk spills into, and
// the diagonal neighbors only where two spilling cardinals meet. This is
// sufficient as long as the configured cell size is at least
// 2*maxRadius + maxSpeed.
type Grid struct {
	cellSize float64
	cols     int
	rows     int
	cells    [][]uint32
}

// NewGrid creates a grid covering a width x height world.
func NewGrid(width, height, cellSize float64) *Grid {
	cols := int(math.Ceil(width / cellSize))
	rows := int(math.Ceil(height / cellSize))
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	return &Grid{
		cellSize: cellSize,
		cols:     cols,
		rows:     rows,
		cells:    make([][]uint32, cols*rows),
	}
}

// Clear resets all cells without deallocating underlying memory.
func (g *Grid) Clear() {
	for i := range g.cells {
		g.cells[i] = g.cells[i][:0]
	}
}

// Insert adds an entity index at position (x, y).
func (g *Grid) Insert(id uint32, x, y float64) {
	col := g.clampCol(int(x / g.cellSize))
	row := g.clampRow(int(y / g.cellSize))
	idx := row*g.cols + col
	g.cells[idx] = append(g.cells[idx], id)
}

// Query appends to out every entity index whose home cell overlaps the disk
// (x, y, radius) and returns the extended slice. Candidates may lie outside
// the disk; the caller performs the exact narrow-phase test.
func (g *Grid) Query(x, y, radius float64, out []uint32) []uint32 {
	col := g.clampCol(int(x / g.cellSize))
	row := g.clampRow(int(y / g.cellSize))
	cellX := g.cellSize * float64(col)
	cellY := g.cellSize * float64(row)

	spillLeft := x-radius < cellX && col > 0
	spillRight := x+radius >= cellX+g.cellSize && col < g.cols-1
	spillUp := y-radius < cellY && row > 0
	spillDown := y+radius >= cellY+g.cellSize && row < g.rows-1

	out = append(out, g.cells[row*g.cols+col]...)

	if spillLeft {
		out = append(out, g.cells[row*g.cols+col-1]...)
		if spillUp {
			out = append(out, g.cells[(row-1)*g.cols+col-1]...)
		}
		if spillDown {
			out = append(out, g.cells[(row+1)*g.cols+col-1]...)
		}
	}
	if spillUp {
		out = append(out, g.cells[(row-1)*g.cols+col]...)
	}
	if spillDown {
		out = append(out, g.cells[(row+1)*g.cols+col]...)
	}
	if spillRight {
		out = append(out, g.cells[row*g.cols+col+1]...)
		if spillUp {
			out = append(out, g.cells[(row-1)*g.cols+col+1]...)
		}
		if spillDown {
			out = append(out, g.cells[(row+1)*g.cols+col+1]...)
		}
	}

	return out
}

// Dimensions returns the grid dimensions.
func (g *Grid) Dimensions() (cols, rows int, cellSize float64) {
	return g.cols, g.rows, g.cellSize
}

func (g *Grid) clampCol(col int) int {
	if col < 0 {
		return 0
	}
	if col >= g.cols {
		return g.cols - 1
	}
	return col
}

func (g *Grid) clampRow(row int) int {
	if row < 0 {
		return 0
	}
	if row >= g.rows {
		return g.rows - 1
	}
	return row
}
