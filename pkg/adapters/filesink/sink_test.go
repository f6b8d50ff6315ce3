package filesink

import (
	"image"
	"strings"
	"testing"

	"github.com/user/frameline/pkg/mocks"
)

func TestSaveHealthJSON(t *testing.T) {
	fs := mocks.NewFileSystem()
	s := New("/diag", fs)

	if !s.Enabled() {
		t.Error("file sink should report enabled")
	}
	if err := s.SaveHealthJSON([]byte(`{"clips":[]}`)); err != nil {
		t.Fatalf("SaveHealthJSON: %v", err)
	}
	if string(fs.Files["/diag/health.json"]) != `{"clips":[]}` {
		t.Error("health.json not written")
	}
}

func TestResetClearsStaleFrameDumps(t *testing.T) {
	fs := mocks.NewFileSystem()
	fs.Files["/diag/frames/clip-a/frame-000001.png"] = []byte("old")
	fs.Files["/diag/health.json"] = []byte("{}")

	s := New("/diag", fs)
	if err := s.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	if _, ok := fs.Files["/diag/frames/clip-a/frame-000001.png"]; ok {
		t.Error("stale frame dump survived Reset")
	}
	// The health snapshot is overwritten, not cleared.
	if _, ok := fs.Files["/diag/health.json"]; !ok {
		t.Error("health.json should survive Reset")
	}
}

func TestSaveFrameWritesPNG(t *testing.T) {
	fs := mocks.NewFileSystem()
	s := New("/diag", fs)

	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	if err := s.SaveFrame("clip-a", 12, img); err != nil {
		t.Fatalf("SaveFrame: %v", err)
	}

	var found string
	for path := range fs.Files {
		if strings.Contains(path, "clip-a") {
			found = path
		}
	}
	if found != "/diag/frames/clip-a/frame-000012.png" {
		t.Errorf("unexpected frame path %q", found)
	}
	if len(fs.Files[found]) == 0 {
		t.Error("frame file is empty")
	}
}
