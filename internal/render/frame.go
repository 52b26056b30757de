// Package render draws tick snapshots as debug frames.
package render

import (
	"image"
	"image/color"
	"io"

	"github.com/fogleman/gg"

	"collision-batcher/internal/sim"
)

// Config holds frame dimensions and the world rectangle to fit into them
type Config struct {
	Width, Height int

	// World-space rectangle drawn, padded by Margin world units
	MinX, MinY, MaxX, MaxY float64
	Margin                 float64

	// MaxPairLines caps how many pair lines are drawn per frame
	MaxPairLines int
}

// DefaultConfig frames a world with room for sensor radii around it
func DefaultConfig(world sim.WorldConfig) Config {
	return Config{
		Width:        800,
		Height:       800,
		MinX:         float64(world.MinX),
		MinY:         float64(world.MinY),
		MaxX:         float64(world.MaxX),
		MaxY:         float64(world.MaxY),
		Margin:       float64(world.SensorRadius),
		MaxPairLines: 5000,
	}
}

var (
	backgroundColor = color.RGBA{12, 12, 28, 255}
	bodyColor       = color.RGBA{80, 140, 255, 200} // Blue bodies
	sensorColor     = color.RGBA{90, 220, 120, 90}  // Green sensors, faint
	pairColor       = color.RGBA{255, 90, 90, 60}   // Red contact lines
	errorColor      = color.RGBA{255, 60, 60, 255}  // Failed tick border
)

// Renderer draws snapshots onto a reusable context. Not safe for concurrent use.
type Renderer struct {
	config Config
	dc     *gg.Context
	scale  float64
}

// NewRenderer creates a renderer
func NewRenderer(config Config) *Renderer {
	if config.Width <= 0 {
		config.Width = 800
	}
	if config.Height <= 0 {
		config.Height = 800
	}
	spanX := config.MaxX - config.MinX + 2*config.Margin
	spanY := config.MaxY - config.MinY + 2*config.Margin
	scale := 1.0
	if spanX > 0 && spanY > 0 {
		scale = min(float64(config.Width)/spanX, float64(config.Height)/spanY)
	}
	return &Renderer{
		config: config,
		dc:     gg.NewContext(config.Width, config.Height),
		scale:  scale,
	}
}

// toScreen maps world coordinates to pixels, y up
func (r *Renderer) toScreen(x, y float32) (float64, float64) {
	sx := (float64(x) - r.config.MinX + r.config.Margin) * r.scale
	sy := float64(r.config.Height) - (float64(y)-r.config.MinY+r.config.Margin)*r.scale
	return sx, sy
}

// Render draws snap and returns the frame. The image is reused by the next call.
func (r *Renderer) Render(snap *sim.TickSnapshot) image.Image {
	dc := r.dc
	dc.SetColor(backgroundColor)
	dc.DrawRectangle(0, 0, float64(r.config.Width), float64(r.config.Height))
	dc.Fill()

	if snap == nil {
		return dc.Image()
	}

	// Sensors under bodies
	dc.SetLineWidth(1)
	for _, c := range snap.Population {
		if !c.IsSensor {
			continue
		}
		x, y := r.toScreen(c.X, c.Y)
		dc.SetColor(sensorColor)
		dc.DrawCircle(x, y, float64(c.Radius)*r.scale)
		dc.Stroke()
	}

	dc.SetColor(pairColor)
	for i, p := range snap.Pairs {
		if r.config.MaxPairLines > 0 && i >= r.config.MaxPairLines {
			break
		}
		x1, y1 := r.toScreen(p.A.X, p.A.Y)
		x2, y2 := r.toScreen(p.B.X, p.B.Y)
		dc.DrawLine(x1, y1, x2, y2)
		dc.Stroke()
	}

	dc.SetColor(bodyColor)
	for _, c := range snap.Population {
		if c.IsSensor {
			continue
		}
		x, y := r.toScreen(c.X, c.Y)
		dc.DrawCircle(x, y, max(float64(c.Radius)*r.scale, 1))
		dc.Fill()
	}

	if snap.Failed() {
		dc.SetColor(errorColor)
		dc.SetLineWidth(6)
		dc.DrawRectangle(0, 0, float64(r.config.Width), float64(r.config.Height))
		dc.Stroke()
	}

	return dc.Image()
}

// WritePNG renders snap and encodes it as PNG
func (r *Renderer) WritePNG(w io.Writer, snap *sim.TickSnapshot) error {
	r.Render(snap)
	return r.dc.EncodePNG(w)
}
