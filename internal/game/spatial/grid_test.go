package spatial

import "testing"

func contains(ids []uint32, id uint32) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// TestGridInsertQuery verifies that entities are found in their own cell.
func TestGridInsertQuery(t *testing.T) {
	g := NewGrid(240, 160, 8)

	g.Insert(1, 12, 12)
	g.Insert(2, 100, 100)

	got := g.Query(12, 12, 0.5, nil)
	if !contains(got, 1) {
		t.Error("expected entity 1 in its own cell")
	}
	if contains(got, 2) {
		t.Error("entity 2 is far away and must not be a candidate")
	}
}

// TestGridSpill verifies the cardinal and diagonal spill rules: a disk
// crossing a cell edge pulls in the neighbor, and a diagonal neighbor only
// joins when both touching cardinals spill.
func TestGridSpill(t *testing.T) {
	g := NewGrid(240, 160, 8)

	// Neighbors of the cell containing (12, 12) (cell 1,1).
	g.Insert(10, 4, 12)  // left cell
	g.Insert(11, 20, 12) // right cell
	g.Insert(12, 12, 4)  // cell above
	g.Insert(13, 4, 4)   // upper-left diagonal

	// Query near the left edge of cell (1,1): spills left only.
	got := g.Query(8.5, 12, 1.0, nil)
	if !contains(got, 10) {
		t.Error("left spill should include the left neighbor")
	}
	if contains(got, 11) {
		t.Error("left spill must not include the right neighbor")
	}
	if contains(got, 13) {
		t.Error("diagonal must not join without a vertical spill")
	}

	// Query near the upper-left corner: spills left and up, so the
	// diagonal joins too.
	got = g.Query(8.5, 8.5, 1.0, nil)
	if !contains(got, 10) || !contains(got, 12) {
		t.Error("corner spill should include both cardinal neighbors")
	}
	if !contains(got, 13) {
		t.Error("corner spill should include the shared diagonal")
	}
}

// TestGridClamping verifies that out-of-range positions clamp to edge
// cells instead of panicking.
func TestGridClamping(t *testing.T) {
	g := NewGrid(240, 160, 8)

	g.Insert(1, -5, -5)
	g.Insert(2, 10000, 10000)

	if got := g.Query(-5, -5, 1, nil); !contains(got, 1) {
		t.Error("clamped insert should be reachable from clamped query")
	}
	if got := g.Query(10000, 10000, 1, nil); !contains(got, 2) {
		t.Error("clamped insert should be reachable at the far corner")
	}
}

// TestGridClearKeepsCapacity verifies Clear empties all cells.
func TestGridClearKeepsCapacity(t *testing.T) {
	g := NewGrid(240, 160, 8)
	for i := uint32(0); i < 100; i++ {
		g.Insert(i, float64(i), float64(i))
	}
	g.Clear()
	if got := g.Query(50, 50, 100, nil); len(got) != 0 {
		t.Errorf("expected no candidates after Clear, got %d", len(got))
	}
}
