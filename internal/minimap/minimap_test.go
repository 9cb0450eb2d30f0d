package minimap

import (
	"bytes"
	"image/png"
	"testing"

	"dark-forest/internal/sim"
)

func TestProject(t *testing.T) {
	opts := DefaultOptions()
	opts.Size = 200
	opts.Margin = 0

	tests := []struct {
		name   string
		x, z   float32
		radius float64
		wantX  float64
		wantY  float64
	}{
		{"center", 0, 0, 5, 100, 100},
		{"east edge", 5, 0, 5, 200, 100},
		{"north edge", 0, 5, 5, 100, 0},
		{"zero radius", 3, 3, 0, 100, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y := Project(tt.x, tt.z, tt.radius, opts)
			if x != tt.wantX || y != tt.wantY {
				t.Errorf("Project(%v, %v) = (%v, %v), want (%v, %v)", tt.x, tt.z, x, y, tt.wantX, tt.wantY)
			}
		})
	}
}

func TestRenderColorsByStrategy(t *testing.T) {
	opts := DefaultOptions()
	opts.Size = 64
	opts.DotRadius = 2

	points := []sim.MapPoint{{Index: 0, X: 0, Z: 0, Strat: sim.StrategyPreemptive}}
	img := Render(points, 10, opts)

	if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 64 {
		t.Fatalf("Expected 64x64 image, got %v", b)
	}

	// Pixel fully covered by the dot
	r, g, b, _ := img.At(32, 32).RGBA()
	want := opts.Strategy[sim.StrategyPreemptive]
	if uint8(r>>8) != want.R || uint8(g>>8) != want.G || uint8(b>>8) != want.B {
		t.Errorf("Expected dot color %v at center, got (%d,%d,%d)", want, r>>8, g>>8, b>>8)
	}

	// Corners stay background
	r, g, b, _ = img.At(1, 1).RGBA()
	bg := opts.Background
	if uint8(r>>8) != bg.R || uint8(g>>8) != bg.G || uint8(b>>8) != bg.B {
		t.Errorf("Expected background in corner, got (%d,%d,%d)", r>>8, g>>8, b>>8)
	}
}

func TestEncodePNG(t *testing.T) {
	img := Render(nil, 1, DefaultOptions())

	var buf bytes.Buffer
	if err := EncodePNG(&buf, img); err != nil {
		t.Fatalf("EncodePNG failed: %v", err)
	}
	decoded, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("Output is not a PNG: %v", err)
	}
	if decoded.Bounds().Dx() != DefaultOptions().Size {
		t.Errorf("Expected width %d, got %d", DefaultOptions().Size, decoded.Bounds().Dx())
	}
}
