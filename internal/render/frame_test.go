package render

import (
	"bytes"
	"image/png"
	"testing"

	"collision-batcher/internal/collision"
	"collision-batcher/internal/sim"
)

// TestWritePNG verifies a frame encodes at the configured size
func TestWritePNG(t *testing.T) {
	world := sim.DefaultWorld()
	pop := sim.SpawnGrid(world)
	snap := &sim.TickSnapshot{
		Population: pop,
		Pairs: []collision.CollidingPair{{
			A: collision.CollidableMetadata{ID: pop[0].ID, X: pop[0].X, Y: pop[0].Y},
			B: collision.CollidableMetadata{ID: pop[1].ID, X: pop[1].X + 1, Y: pop[1].Y, IsSensor: true},
		}},
	}

	cfg := DefaultConfig(world)
	cfg.Width, cfg.Height = 320, 240
	r := NewRenderer(cfg)

	var buf bytes.Buffer
	if err := r.WritePNG(&buf, snap); err != nil {
		t.Fatalf("WritePNG: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 320 || b.Dy() != 240 {
		t.Errorf("Expected 320x240, got %dx%d", b.Dx(), b.Dy())
	}
}

// TestRenderNilSnapshot checks an empty frame before the first tick
func TestRenderNilSnapshot(t *testing.T) {
	r := NewRenderer(Config{Width: 16, Height: 16})
	img := r.Render(nil)
	if got := img.At(8, 8); got == nil {
		t.Fatal("Expected a background pixel")
	}
	red, green, blue, _ := img.At(8, 8).RGBA()
	if red>>8 != 12 || green>>8 != 12 || blue>>8 != 28 {
		t.Errorf("Expected background color, got %d,%d,%d", red>>8, green>>8, blue>>8)
	}
}

// TestToScreenFlipsY verifies world y grows upward on screen
func TestToScreenFlipsY(t *testing.T) {
	r := NewRenderer(Config{Width: 100, Height: 100, MinX: 0, MinY: 0, MaxX: 10, MaxY: 10})
	_, yLow := r.toScreen(0, 0)
	_, yHigh := r.toScreen(0, 10)
	if yHigh >= yLow {
		t.Errorf("Expected higher world y to be nearer the top, got %v vs %v", yHigh, yLow)
	}
	if x, _ := r.toScreen(10, 0); x != 100 {
		t.Errorf("Expected right edge at 100, got %v", x)
	}
}
