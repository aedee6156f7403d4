package boardimg

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"strings"
	"testing"

	"github.com/trex-ayush/4-Dot-Game/internal/board"
)

func TestRenderPNGProducesDecodableImage(t *testing.T) {
	var b board.Board
	for col := 0; col < 4; col++ {
		if _, nb, err := b.Drop(col, board.PlayerA); err != nil {
			t.Fatalf("Drop: %v", err)
		} else {
			b = nb
		}
	}

	r := NewSVGRenderer()
	raw, err := r.RenderPNG(context.Background(), b, RenderOptions{
		Wins:     b.EnumerateWins(),
		LastMove: &image.Point{X: 3, Y: board.Rows - 1},
	})
	if err != nil {
		t.Fatalf("RenderPNG: %v", err)
	}

	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	wantW := board.Cols*cellSize + margin*2
	wantH := board.Rows*cellSize + margin*2
	if got := img.Bounds().Size(); got.X != wantW || got.Y != wantH {
		t.Fatalf("image size = %v, want %dx%d", got, wantW, wantH)
	}
}

func TestRenderPNGHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var b board.Board
	if _, err := NewSVGRenderer().RenderPNG(ctx, b, RenderOptions{}); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

func TestBuildSVGPlacesPieces(t *testing.T) {
	var b board.Board
	_, b1, err := b.Drop(0, board.PlayerA)
	if err != nil {
		t.Fatalf("Drop: %v", err)
	}
	_, b2, err := b1.Drop(6, board.PlayerB)
	if err != nil {
		t.Fatalf("Drop: %v", err)
	}

	svg := buildSVG(b2, RenderOptions{}, 100, 100)
	if !strings.Contains(svg, playerAColor) || !strings.Contains(svg, playerBColor) {
		t.Fatal("svg missing piece colors")
	}
	if strings.Count(svg, "<circle") != board.Rows*board.Cols {
		t.Fatalf("circle count = %d, want %d", strings.Count(svg, "<circle"), board.Rows*board.Cols)
	}
}
