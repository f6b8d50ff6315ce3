package ports

import "image"

// PlaceholderRenderer produces a substitute image for a clip/time pair
// whose decoded frame is not available. The render path substitutes the
// placeholder instead of stalling.
type PlaceholderRenderer interface {
	// RenderPlaceholder renders a width x height placeholder identifying
	// the clip and frame it stands in for.
	RenderPlaceholder(width, height int, clipName string, frameNum int64) image.Image
}
