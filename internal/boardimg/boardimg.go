// Package boardimg renders board snapshots as PNG images for the REST
// surface. The board is built as an SVG document and rasterized.
package boardimg

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strings"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"

	"github.com/trex-ayush/4-Dot-Game/internal/board"
)

// RenderOptions controls decorations on top of the plain board.
type RenderOptions struct {
	// Wins highlights the cells of completed lines.
	Wins []board.WinLine
	// LastMove marks the most recently dropped piece.
	LastMove *image.Point // X = column, Y = row
}

type Renderer interface {
	RenderPNG(ctx context.Context, b board.Board, opts RenderOptions) ([]byte, error)
}

const (
	cellSize = 72
	margin   = 24
	radius   = 28
)

const (
	frameColor     = "#1f4e9c"
	emptyColor     = "#e8eef7"
	playerAColor   = "#d93838"
	playerBColor   = "#f2c138"
	winRingColor   = "#2ecc71"
	lastRingColor  = "#ffffff"
	ringWidthWin   = 5
	ringWidthLast  = 3
	cornerRounding = 18
)

type svgRenderer struct{}

func NewSVGRenderer() Renderer {
	return &svgRenderer{}
}

func (r *svgRenderer) RenderPNG(ctx context.Context, b board.Board, opts RenderOptions) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	width := board.Cols*cellSize + margin*2
	height := board.Rows*cellSize + margin*2
	svg := buildSVG(b, opts, width, height)

	icon, err := oksvg.ReadIconStream(strings.NewReader(svg))
	if err != nil {
		return nil, fmt.Errorf("parse board svg: %w", err)
	}
	icon.SetTarget(0, 0, float64(width), float64(height))

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	scanner := rasterx.NewScannerGV(width, height, img, img.Bounds())
	raster := rasterx.NewDasher(width, height, scanner)
	icon.Draw(raster, 1.0)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// buildSVG draws the grid in board orientation: row 0 at the top, pieces
// stacked from the bottom.
func buildSVG(b board.Board, opts RenderOptions, width, height int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`, width, height, width, height)
	fmt.Fprintf(&sb, `<rect x="0" y="0" width="%d" height="%d" rx="%d" fill="%s"/>`, width, height, cornerRounding, frameColor)

	winCells := make(map[[2]int]bool)
	for _, w := range opts.Wins {
		for row := 0; row < board.Rows; row++ {
			for col := 0; col < board.Cols; col++ {
				if w.Contains(row, col) {
					winCells[[2]int{row, col}] = true
				}
			}
		}
	}

	for row := 0; row < board.Rows; row++ {
		for col := 0; col < board.Cols; col++ {
			cx := margin + col*cellSize + cellSize/2
			cy := margin + row*cellSize + cellSize/2
			fill := emptyColor
			switch b[row][col] {
			case board.PlayerA:
				fill = playerAColor
			case board.PlayerB:
				fill = playerBColor
			}
			fmt.Fprintf(&sb, `<circle cx="%d" cy="%d" r="%d" fill="%s"/>`, cx, cy, radius, fill)
			if winCells[[2]int{row, col}] {
				fmt.Fprintf(&sb, `<circle cx="%d" cy="%d" r="%d" fill="none" stroke="%s" stroke-width="%d"/>`,
					cx, cy, radius+2, winRingColor, ringWidthWin)
			}
			if opts.LastMove != nil && opts.LastMove.X == col && opts.LastMove.Y == row {
				fmt.Fprintf(&sb, `<circle cx="%d" cy="%d" r="%d" fill="none" stroke="%s" stroke-width="%d"/>`,
					cx, cy, radius-6, lastRingColor, ringWidthLast)
			}
		}
	}
	sb.WriteString(`</svg>`)
	return sb.String()
}
