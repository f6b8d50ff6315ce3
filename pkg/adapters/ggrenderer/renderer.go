// Package ggrenderer renders placeholder frames with the gg library.
// A placeholder stands in for a frame that could not be decoded in time,
// so it has to be cheap to draw and easy to recognize.
package ggrenderer

import (
	"fmt"
	"image"
	"image/color"

	"github.com/fogleman/gg"

	"github.com/user/frameline/pkg/ports"
)

// Renderer implements ports.PlaceholderRenderer using the gg library.
type Renderer struct {
	// Background fills the placeholder; defaults to near-black.
	Background color.Color
}

// New creates a renderer with default styling.
func New() *Renderer {
	return &Renderer{Background: color.RGBA{R: 24, G: 24, B: 28, A: 255}}
}

// RenderPlaceholder draws a labeled placeholder frame: dark background,
// a diagonal cross, and the clip name with the missing frame number.
func (r *Renderer) RenderPlaceholder(width, height int, clipName string, frameNum int64) image.Image {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}

	dc := gg.NewContext(width, height)
	dc.SetColor(r.Background)
	dc.Clear()

	// Diagonal cross marks the frame as synthetic.
	dc.SetColor(color.RGBA{R: 64, G: 64, B: 72, A: 255})
	dc.SetLineWidth(2)
	dc.DrawLine(0, 0, float64(width), float64(height))
	dc.DrawLine(0, float64(height), float64(width), 0)
	dc.Stroke()

	label := fmt.Sprintf("%s #%d", clipName, frameNum)
	dc.SetColor(color.RGBA{R: 200, G: 200, B: 208, A: 255})
	dc.DrawStringAnchored(label, float64(width)/2, float64(height)/2, 0.5, 0.5)

	return dc.Image()
}

var _ ports.PlaceholderRenderer = (*Renderer)(nil)
