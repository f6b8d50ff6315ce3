package ggrenderer

import "testing"

func TestRenderPlaceholderDimensions(t *testing.T) {
	r := New()
	img := r.RenderPlaceholder(320, 180, "clip-a", 42)

	bounds := img.Bounds()
	if bounds.Dx() != 320 || bounds.Dy() != 180 {
		t.Errorf("placeholder size = %dx%d, want 320x180", bounds.Dx(), bounds.Dy())
	}
}

func TestRenderPlaceholderClampsTinySizes(t *testing.T) {
	r := New()
	img := r.RenderPlaceholder(0, -5, "clip-a", 0)

	bounds := img.Bounds()
	if bounds.Dx() < 1 || bounds.Dy() < 1 {
		t.Errorf("placeholder collapsed to %dx%d", bounds.Dx(), bounds.Dy())
	}
}

func TestRenderPlaceholderDiffersFromBackground(t *testing.T) {
	r := New()
	img := r.RenderPlaceholder(64, 64, "clip-a", 7)

	// The cross runs through the center; (5,1) is off both diagonals.
	background := img.At(5, 1)
	center := img.At(32, 32)
	if background == center {
		t.Error("expected drawn content to differ from background")
	}
}
