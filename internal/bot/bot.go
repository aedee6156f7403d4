// Package bot selects moves for automated players: immediate win, then
// immediate block, then depth-bounded minimax with alpha-beta pruning.
package bot

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/trex-ayush/4-Dot-Game/internal/board"
)

const (
	DefaultDepth = 5

	// Terminal score; dominates every heuristic value.
	winScore = 100000

	centerWeight = 3
)

type Engine struct {
	depth  int
	randMu sync.Mutex
	rand   *rand.Rand
}

func New(depth int) *Engine {
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &Engine{
		depth: depth,
		rand:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ChooseMove returns the column to play for botPlayer. The board is a value
// snapshot, so concurrent calls for independent sessions are safe.
func (e *Engine) ChooseMove(b board.Board, botPlayer board.Cell) int {
	valid := b.ValidMoves()
	if len(valid) == 0 {
		return -1
	}
	opponent := botPlayer.Opponent()

	// Priority 1: take an immediate win.
	if col := findWinningMove(b, botPlayer); col >= 0 {
		return col
	}
	// Priority 2: block the opponent's immediate win.
	if col := findWinningMove(b, opponent); col >= 0 {
		return col
	}

	// Priority 3: minimax. Only the initial candidate is randomized so an
	// unexplored branch never silently defaults to column 0; the search
	// itself stays deterministic for a given board and depth.
	bestCol := valid[e.randIntn(len(valid))]
	bestScore := math.MinInt
	alpha, beta := math.MinInt, math.MaxInt
	for _, col := range valid {
		row, next, err := b.Drop(col, botPlayer)
		if err != nil {
			continue
		}
		var score int
		if next.DetectWin(row, col, botPlayer) {
			score = winScore
		} else {
			score = minimax(next, e.depth-1, alpha, beta, false, botPlayer)
		}
		if score > bestScore {
			bestScore = score
			bestCol = col
		}
		if score > alpha {
			alpha = score
		}
		if beta <= alpha {
			break
		}
	}
	return bestCol
}

func (e *Engine) randIntn(n int) int {
	e.randMu.Lock()
	defer e.randMu.Unlock()
	return e.rand.Intn(n)
}

// findWinningMove returns a column whose drop wins immediately for player,
// or -1 when none exists.
func findWinningMove(b board.Board, player board.Cell) int {
	for _, col := range b.ValidMoves() {
		row, next, err := b.Drop(col, player)
		if err != nil {
			continue
		}
		if next.DetectWin(row, col, player) {
			return col
		}
	}
	return -1
}

func minimax(b board.Board, depth, alpha, beta int, maximizing bool, botPlayer board.Cell) int {
	valid := b.ValidMoves()
	if depth == 0 || len(valid) == 0 {
		return evaluate(b, botPlayer)
	}
	opponent := botPlayer.Opponent()

	if maximizing {
		best := math.MinInt
		for _, col := range valid {
			row, next, err := b.Drop(col, botPlayer)
			if err != nil {
				continue
			}
			if next.DetectWin(row, col, botPlayer) {
				return winScore
			}
			score := minimax(next, depth-1, alpha, beta, false, botPlayer)
			if score > best {
				best = score
			}
			if score > alpha {
				alpha = score
			}
			if beta <= alpha {
				break
			}
		}
		return best
	}

	best := math.MaxInt
	for _, col := range valid {
		row, next, err := b.Drop(col, opponent)
		if err != nil {
			continue
		}
		if next.DetectWin(row, col, opponent) {
			return -winScore
		}
		score := minimax(next, depth-1, alpha, beta, true, botPlayer)
		if score < best {
			best = score
		}
		if score < beta {
			beta = score
		}
		if beta <= alpha {
			break
		}
	}
	return best
}

// evaluate scores the position from botPlayer's perspective: center-column
// occupancy plus every four-cell window on the board.
func evaluate(b board.Board, botPlayer board.Cell) int {
	score := 0

	center := board.Cols / 2
	for row := 0; row < board.Rows; row++ {
		if b[row][center] == botPlayer {
			score += centerWeight
		}
	}

	opponent := botPlayer.Opponent()
	scoreWindow := func(cells [4]board.Cell) {
		var botCount, oppCount, emptyCount int
		for _, c := range cells {
			switch c {
			case botPlayer:
				botCount++
			case opponent:
				oppCount++
			default:
				emptyCount++
			}
		}
		switch {
		case botCount == 4:
			score += 100
		case botCount == 3 && emptyCount == 1:
			score += 5
		case botCount == 2 && emptyCount == 2:
			score += 2
		}
		if oppCount == 3 && emptyCount == 1 {
			score -= 4
		}
	}

	for row := 0; row < board.Rows; row++ {
		for col := 0; col+3 < board.Cols; col++ {
			scoreWindow([4]board.Cell{b[row][col], b[row][col+1], b[row][col+2], b[row][col+3]})
		}
	}
	for col := 0; col < board.Cols; col++ {
		for row := 0; row+3 < board.Rows; row++ {
			scoreWindow([4]board.Cell{b[row][col], b[row+1][col], b[row+2][col], b[row+3][col]})
		}
	}
	for row := 0; row+3 < board.Rows; row++ {
		for col := 0; col+3 < board.Cols; col++ {
			scoreWindow([4]board.Cell{b[row][col], b[row+1][col+1], b[row+2][col+2], b[row+3][col+3]})
		}
	}
	for row := 3; row < board.Rows; row++ {
		for col := 0; col+3 < board.Cols; col++ {
			scoreWindow([4]board.Cell{b[row][col], b[row-1][col+1], b[row-2][col+2], b[row-3][col+3]})
		}
	}

	return score
}
