package board

import (
	"errors"
	"strings"
)

// Fixed grid size. Row 0 is the top row; gravity fills from Rows-1 upward.
const (
	Rows = 6
	Cols = 7
)

const WinLength = 4

// Cell is the content of one grid position.
type Cell uint8

const (
	Empty Cell = iota
	PlayerA
	PlayerB
)

// Opponent returns the other player mark. Empty maps to Empty.
func (c Cell) Opponent() Cell {
	switch c {
	case PlayerA:
		return PlayerB
	case PlayerB:
		return PlayerA
	default:
		return Empty
	}
}

// Board is a value type; operations copy it rather than mutating shared state.
type Board [Rows][Cols]Cell

var (
	ErrColumnOutOfRange = errors.New("column out of range")
	ErrColumnFull       = errors.New("column is full")
)

// IsLegal reports whether a piece can be dropped into col.
func (b Board) IsLegal(col int) bool {
	return col >= 0 && col < Cols && b[0][col] == Empty
}

// NextRow returns the landing row for a drop into col, or -1 if full.
func (b Board) NextRow(col int) int {
	if col < 0 || col >= Cols {
		return -1
	}
	for row := Rows - 1; row >= 0; row-- {
		if b[row][col] == Empty {
			return row
		}
	}
	return -1
}

// Drop places player's piece into col and returns the landing row with the
// resulting board. The receiver is unchanged.
func (b Board) Drop(col int, player Cell) (int, Board, error) {
	if col < 0 || col >= Cols {
		return -1, b, ErrColumnOutOfRange
	}
	row := b.NextRow(col)
	if row < 0 {
		return -1, b, ErrColumnFull
	}
	b[row][col] = player
	return row, b, nil
}

// DetectWin checks only the four lines through the last-placed piece at
// (lastRow, lastCol), counting contiguous same-player cells in both
// directions. It is the authoritative win rule and must be called right
// after placing that piece.
func (b Board) DetectWin(lastRow, lastCol int, player Cell) bool {
	if lastRow < 0 || lastRow >= Rows || lastCol < 0 || lastCol >= Cols {
		return false
	}
	if b[lastRow][lastCol] != player || player == Empty {
		return false
	}
	dirs := [4][2]int{{0, 1}, {1, 0}, {1, 1}, {1, -1}}
	for _, d := range dirs {
		count := 1
		for r, c := lastRow+d[0], lastCol+d[1]; r >= 0 && r < Rows && c >= 0 && c < Cols && b[r][c] == player; r, c = r+d[0], c+d[1] {
			count++
		}
		for r, c := lastRow-d[0], lastCol-d[1]; r >= 0 && r < Rows && c >= 0 && c < Cols && b[r][c] == player; r, c = r-d[0], c-d[1] {
			count++
		}
		if count >= WinLength {
			return true
		}
	}
	return false
}

// IsFull reports the draw condition: no empty cell left in the top row.
func (b Board) IsFull() bool {
	for col := 0; col < Cols; col++ {
		if b[0][col] == Empty {
			return false
		}
	}
	return true
}

// WinLine describes one four-in-a-row found by the exhaustive scan.
type WinLine struct {
	Player   Cell
	Kind     string // horizontal | vertical | diagonal-right | diagonal-left
	StartRow int
	StartCol int
	EndRow   int
	EndCol   int
}

// Contains reports whether (row, col) lies on the line.
func (w WinLine) Contains(row, col int) bool {
	dr := sign(w.EndRow - w.StartRow)
	dc := sign(w.EndCol - w.StartCol)
	r, c := w.StartRow, w.StartCol
	for i := 0; i < WinLength; i++ {
		if r == row && c == col {
			return true
		}
		r += dr
		c += dc
	}
	return false
}

func sign(n int) int {
	switch {
	case n > 0:
		return 1
	case n < 0:
		return -1
	default:
		return 0
	}
}

// EnumerateWins scans every four-cell window on the whole board. Diagnostic
// only; DetectWin is the authoritative rule.
func (b Board) EnumerateWins() []WinLine {
	var wins []WinLine
	for row := 0; row < Rows; row++ {
		for col := 0; col < Cols; col++ {
			player := b[row][col]
			if player == Empty {
				continue
			}
			if col <= Cols-WinLength &&
				b[row][col+1] == player && b[row][col+2] == player && b[row][col+3] == player {
				wins = append(wins, WinLine{player, "horizontal", row, col, row, col + 3})
			}
			if row <= Rows-WinLength &&
				b[row+1][col] == player && b[row+2][col] == player && b[row+3][col] == player {
				wins = append(wins, WinLine{player, "vertical", row, col, row + 3, col})
			}
			if row <= Rows-WinLength && col <= Cols-WinLength &&
				b[row+1][col+1] == player && b[row+2][col+2] == player && b[row+3][col+3] == player {
				wins = append(wins, WinLine{player, "diagonal-right", row, col, row + 3, col + 3})
			}
			if row <= Rows-WinLength && col >= WinLength-1 &&
				b[row+1][col-1] == player && b[row+2][col-2] == player && b[row+3][col-3] == player {
				wins = append(wins, WinLine{player, "diagonal-left", row, col, row + 3, col - 3})
			}
		}
	}
	return wins
}

// ValidMoves returns the legal columns in ascending order.
func (b Board) ValidMoves() []int {
	moves := make([]int, 0, Cols)
	for col := 0; col < Cols; col++ {
		if b.IsLegal(col) {
			moves = append(moves, col)
		}
	}
	return moves
}

// String renders a compact ASCII view for logs.
func (b Board) String() string {
	var sb strings.Builder
	for row := 0; row < Rows; row++ {
		for col := 0; col < Cols; col++ {
			switch b[row][col] {
			case PlayerA:
				sb.WriteByte('O')
			case PlayerB:
				sb.WriteByte('X')
			default:
				sb.WriteByte('.')
			}
		}
		if row < Rows-1 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}
