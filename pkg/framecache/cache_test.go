package framecache

import (
	"image"
	"testing"
)

func testFrame(clipID string, frameNum int64) *CachedFrame {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	return &CachedFrame{
		ClipID:      clipID,
		FrameNumber: frameNum,
		Image:       img,
		ByteSize:    int64(len(img.Pix)),
	}
}

func TestPutGet(t *testing.T) {
	c := New("clip-1")

	if _, ok := c.Get(10); ok {
		t.Fatal("empty cache returned a frame")
	}

	c.Put(testFrame("clip-1", 10))
	f, ok := c.Get(10)
	if !ok {
		t.Fatal("frame 10 not found after Put")
	}
	if f.FrameNumber != 10 || f.Released() {
		t.Errorf("got frame %d released=%v", f.FrameNumber, f.Released())
	}
}

func TestPutReplacesAndReleasesOld(t *testing.T) {
	c := New("clip-1")

	old := testFrame("clip-1", 5)
	c.Put(old)
	c.Put(testFrame("clip-1", 5))

	if !old.Released() {
		t.Error("replaced frame was not released")
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestEvictOutsideWindow(t *testing.T) {
	c := New("clip-1")
	var frames []*CachedFrame
	for i := int64(0); i < 20; i++ {
		f := testFrame("clip-1", i)
		frames = append(frames, f)
		c.Put(f)
	}

	evicted := c.EvictOutside(5, 14)
	if evicted != 10 {
		t.Errorf("evicted %d frames, want 10", evicted)
	}
	if c.Len() != 10 {
		t.Errorf("Len() = %d, want 10", c.Len())
	}

	for i := int64(0); i < 20; i++ {
		inWindow := i >= 5 && i <= 14
		if _, ok := c.Get(i); ok != inWindow {
			t.Errorf("frame %d cached=%v, want %v", i, ok, inWindow)
		}
		if frames[i].Released() == inWindow {
			t.Errorf("frame %d released=%v, want %v", i, frames[i].Released(), !inWindow)
		}
	}
}

// Repeated window advances must never grow the cache beyond the window
// size, and every evicted frame must have its handle released.
func TestWindowAdvanceBoundsCache(t *testing.T) {
	const radius = 5
	c := New("clip-1")

	var all []*CachedFrame
	for center := int64(radius); center < 300; center++ {
		c.EvictOutside(center-radius, center+radius)
		for f := center - radius; f <= center+radius; f++ {
			if f < 0 || c.Contains(f) {
				continue
			}
			cf := testFrame("clip-1", f)
			all = append(all, cf)
			c.Put(cf)
		}
		if c.Len() > 2*radius+1 {
			t.Fatalf("cache grew to %d frames at center %d", c.Len(), center)
		}
	}

	c.Clear()
	for _, f := range all {
		if !f.Released() {
			t.Fatalf("frame %d leaked after Clear", f.FrameNumber)
		}
	}
}

func TestEvictFarthest(t *testing.T) {
	c := New("clip-1")
	for i := int64(0); i < 11; i++ {
		c.Put(testFrame("clip-1", i))
	}

	evicted := c.EvictFarthest(5, 3)
	if evicted != 8 {
		t.Errorf("evicted %d, want 8", evicted)
	}
	// The three closest to center 5 survive.
	for _, want := range []int64{4, 5, 6} {
		if !c.Contains(want) {
			t.Errorf("frame %d missing after EvictFarthest", want)
		}
	}
}

func TestClearReleasesEverything(t *testing.T) {
	c := New("clip-1")
	f1 := testFrame("clip-1", 1)
	f2 := testFrame("clip-1", 2)
	c.Put(f1)
	c.Put(f2)

	c.Clear()

	if c.Len() != 0 {
		t.Errorf("Len() = %d after Clear", c.Len())
	}
	if !f1.Released() || !f2.Released() {
		t.Error("Clear did not release all frames")
	}
	if c.ByteSize() != 0 {
		t.Errorf("ByteSize() = %d after Clear", c.ByteSize())
	}
}
