package board

import "testing"

func mustDrop(t *testing.T, b Board, col int, player Cell) (int, Board) {
	t.Helper()
	row, next, err := b.Drop(col, player)
	if err != nil {
		t.Fatalf("Drop(%d, %v): %v", col, player, err)
	}
	return row, next
}

func TestDropGravity(t *testing.T) {
	var b Board
	row, b := mustDrop(t, b, 3, PlayerA)
	if row != Rows-1 {
		t.Fatalf("first drop landed at row %d, want %d", row, Rows-1)
	}
	row, b = mustDrop(t, b, 3, PlayerB)
	if row != Rows-2 {
		t.Fatalf("second drop landed at row %d, want %d", row, Rows-2)
	}
	// No floating pieces: occupied cells form a contiguous run from the bottom.
	if b[Rows-1][3] != PlayerA || b[Rows-2][3] != PlayerB {
		t.Fatalf("unexpected column contents:\n%s", b)
	}
}

func TestColumnAcceptsExactlySixPieces(t *testing.T) {
	var b Board
	for i := 0; i < Rows; i++ {
		if !b.IsLegal(0) {
			t.Fatalf("column 0 illegal after %d pieces", i)
		}
		_, b = mustDrop(t, b, 0, PlayerA)
	}
	if b.IsLegal(0) {
		t.Fatalf("column 0 still legal after %d pieces", Rows)
	}
	before := b
	if _, _, err := b.Drop(0, PlayerB); err != ErrColumnFull {
		t.Fatalf("7th drop error = %v, want ErrColumnFull", err)
	}
	if b != before {
		t.Fatalf("failed drop mutated the board")
	}
}

func TestDropOutOfRange(t *testing.T) {
	var b Board
	for _, col := range []int{-1, Cols} {
		if b.IsLegal(col) {
			t.Fatalf("IsLegal(%d) = true", col)
		}
		if _, _, err := b.Drop(col, PlayerA); err != ErrColumnOutOfRange {
			t.Fatalf("Drop(%d) error = %v, want ErrColumnOutOfRange", col, err)
		}
	}
}

func TestVerticalWinAtColumn3(t *testing.T) {
	var b Board
	var row int
	for i := 0; i < 4; i++ {
		row, b = mustDrop(t, b, 3, PlayerA)
	}
	if row != 2 {
		t.Fatalf("4th drop landed at row %d, want 2", row)
	}
	if !b.DetectWin(row, 3, PlayerA) {
		t.Fatalf("vertical four not detected:\n%s", b)
	}
	for r := 2; r <= 5; r++ {
		if b[r][3] != PlayerA {
			t.Fatalf("expected PlayerA at row %d col 3", r)
		}
	}
}

func TestHorizontalWin(t *testing.T) {
	var b Board
	var row int
	for col := 0; col < 4; col++ {
		row, b = mustDrop(t, b, col, PlayerB)
	}
	if !b.DetectWin(row, 3, PlayerB) {
		t.Fatalf("horizontal four not detected:\n%s", b)
	}
	// Middle-of-line placement must also be detected.
	if !b.DetectWin(row, 1, PlayerB) {
		t.Fatalf("win through interior cell not detected")
	}
}

func TestDiagonalWins(t *testing.T) {
	var b Board
	// Supports so PlayerA lands on a rising diagonal across columns 0..3.
	for _, col := range []int{1, 2, 2, 3, 3, 3} {
		_, b = mustDrop(t, b, col, PlayerB)
	}
	var row int
	for col := 0; col < 4; col++ {
		row, b = mustDrop(t, b, col, PlayerA)
	}
	if !b.DetectWin(row, 3, PlayerA) {
		t.Fatalf("rising diagonal not detected:\n%s", b)
	}
}

func TestDetectWinRequiresMatchingCell(t *testing.T) {
	var b Board
	row, b := mustDrop(t, b, 0, PlayerA)
	if b.DetectWin(row, 0, PlayerB) {
		t.Fatalf("DetectWin accepted a cell owned by the other player")
	}
	if b.DetectWin(-1, 0, PlayerA) || b.DetectWin(0, Cols, PlayerA) {
		t.Fatalf("DetectWin accepted out-of-range coordinates")
	}
}

func TestIsFullTopRowOnly(t *testing.T) {
	var b Board
	for col := 0; col < Cols; col++ {
		for i := 0; i < Rows-1; i++ {
			_, b = mustDrop(t, b, col, Cell(1+(col+i)%2))
		}
	}
	if b.IsFull() {
		t.Fatalf("board reported full with empty top row")
	}
	for col := 0; col < Cols; col++ {
		_, b = mustDrop(t, b, col, Cell(1+col%2))
	}
	if !b.IsFull() {
		t.Fatalf("board not reported full")
	}
}

// Cross-check invariant: after any placement, DetectWin must agree with
// EnumerateWins restricted to lines through the placed cell.
func TestDetectWinMatchesEnumerateWins(t *testing.T) {
	var b Board
	drops := []struct {
		col    int
		player Cell
	}{
		{3, PlayerA}, {3, PlayerB}, {2, PlayerA}, {4, PlayerB},
		{4, PlayerA}, {5, PlayerB}, {1, PlayerA}, {6, PlayerB},
		{0, PlayerA}, {2, PlayerB}, {5, PlayerA}, {1, PlayerB},
	}
	for _, d := range drops {
		var row int
		row, b = mustDrop(t, b, d.col, d.player)

		detected := b.DetectWin(row, d.col, d.player)
		enumerated := false
		for _, w := range b.EnumerateWins() {
			if w.Player == d.player && w.Contains(row, d.col) {
				enumerated = true
				break
			}
		}
		if detected != enumerated {
			t.Fatalf("DetectWin=%v but EnumerateWins=%v after drop col %d:\n%s",
				detected, enumerated, d.col, b)
		}
		if detected {
			return
		}
	}
}

func TestEnumerateWinsFindsAllKinds(t *testing.T) {
	var b Board
	for col := 0; col < 4; col++ {
		_, b = mustDrop(t, b, col, PlayerA)
	}
	wins := b.EnumerateWins()
	if len(wins) != 1 {
		t.Fatalf("expected exactly one win line, got %d", len(wins))
	}
	w := wins[0]
	if w.Kind != "horizontal" || w.Player != PlayerA || w.StartRow != Rows-1 {
		t.Fatalf("unexpected win line: %+v", w)
	}
}

func TestValidMovesAscending(t *testing.T) {
	var b Board
	for i := 0; i < Rows; i++ {
		_, b = mustDrop(t, b, 2, PlayerA)
	}
	moves := b.ValidMoves()
	want := []int{0, 1, 3, 4, 5, 6}
	if len(moves) != len(want) {
		t.Fatalf("ValidMoves = %v, want %v", moves, want)
	}
	for i := range want {
		if moves[i] != want[i] {
			t.Fatalf("ValidMoves = %v, want %v", moves, want)
		}
	}
}
