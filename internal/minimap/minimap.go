// Package minimap renders a top-down (x/z) view of the survey volume.
package minimap

import (
	"image"
	"image/color"
	"image/png"
	"io"

	"github.com/fogleman/gg"

	"dark-forest/internal/sim"
)

// Options controls the minimap look
type Options struct {
	Size       int
	Margin     float64
	DotRadius  float64
	Background color.RGBA
	Boundary   color.RGBA
	Grid       color.RGBA
	// Strategy colors indexed by sim.Strategy
	Strategy [4]color.RGBA
}

// DefaultOptions returns the viewer palette
func DefaultOptions() Options {
	return Options{
		Size:       256,
		Margin:     6,
		DotRadius:  1.5,
		Background: color.RGBA{12, 12, 28, 255},
		Boundary:   color.RGBA{90, 110, 160, 255},
		Grid:       color.RGBA{30, 30, 45, 255},
		Strategy: [4]color.RGBA{
			{160, 160, 180, 255}, // silent
			{255, 200, 60, 255},  // broadcast
			{80, 200, 255, 255},  // cautious
			{255, 70, 70, 255},   // preemptive
		},
	}
}

// Project maps a world x/z position to pixel coordinates. The survey
// sphere's equator touches the image margin.
func Project(x, z float32, radius float64, opts Options) (px, py float64) {
	half := float64(opts.Size) / 2
	scale := 0.0
	if radius > 0 {
		scale = (half - opts.Margin) / radius
	}
	return half + float64(x)*scale, half - float64(z)*scale
}

// Render draws the boundary circle and one dot per point
func Render(points []sim.MapPoint, radius float64, opts Options) image.Image {
	if opts.Size <= 0 {
		opts.Size = DefaultOptions().Size
	}
	size := float64(opts.Size)
	half := size / 2

	dc := gg.NewContext(opts.Size, opts.Size)
	dc.SetColor(opts.Background)
	dc.DrawRectangle(0, 0, size, size)
	dc.Fill()

	// Crosshair
	dc.SetColor(opts.Grid)
	dc.SetLineWidth(1)
	dc.DrawLine(half, 0, half, size)
	dc.Stroke()
	dc.DrawLine(0, half, size, half)
	dc.Stroke()

	dc.SetColor(opts.Boundary)
	dc.SetLineWidth(1.5)
	dc.DrawCircle(half, half, half-opts.Margin)
	dc.Stroke()

	for _, p := range points {
		px, py := Project(p.X, p.Z, radius, opts)
		if int(p.Strat) < len(opts.Strategy) {
			dc.SetColor(opts.Strategy[p.Strat])
		} else {
			dc.SetColor(color.White)
		}
		dc.DrawCircle(px, py, opts.DotRadius)
		dc.Fill()
	}

	return dc.Image()
}

// EncodePNG writes img with fast compression
func EncodePNG(w io.Writer, img image.Image) error {
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	return enc.Encode(w, img)
}
