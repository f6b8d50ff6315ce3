package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.PrefetchRadius != 30 {
		t.Errorf("PrefetchRadius = %d, want 30", cfg.PrefetchRadius)
	}
	if cfg.ScrubScale != 0.5 {
		t.Errorf("ScrubScale = %v, want 0.5", cfg.ScrubScale)
	}
	if cfg.FPS != 30.0 {
		t.Errorf("FPS = %v, want 30", cfg.FPS)
	}
	if cfg.Helper.Addr == "" {
		t.Error("Helper.Addr should have a default")
	}
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	path := writeFile(t, "config.yml", `
output: /tmp/render.mp4
prefetch_radius: 12
scrub_scale: 0.25
fps: 24
helper:
  addr: 10.0.0.5:9317
  token: secret
`)

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.OutputPath != "/tmp/render.mp4" {
		t.Errorf("OutputPath = %q", cfg.OutputPath)
	}
	if cfg.PrefetchRadius != 12 {
		t.Errorf("PrefetchRadius = %d, want 12", cfg.PrefetchRadius)
	}
	if cfg.ScrubScale != 0.25 {
		t.Errorf("ScrubScale = %v, want 0.25", cfg.ScrubScale)
	}
	if cfg.Helper.Addr != "10.0.0.5:9317" || cfg.Helper.Token != "secret" {
		t.Errorf("Helper = %+v", cfg.Helper)
	}
	// Untouched keys keep their defaults.
	if cfg.Width != 1920 {
		t.Errorf("Width = %d, want 1920", cfg.Width)
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/config.yml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadTimeline(t *testing.T) {
	path := writeFile(t, "timeline.yml", `
clips:
  - id: a
    name: Intro
    source: /media/intro.mp4
    start_time: 0
    duration: 5
    in_point: 1
    out_point: 6
  - id: b
    source: /media/body.mp4
    start_time: 5
    duration: 10
    in_point: 0
    out_point: 10
    reversed: true
`)

	clips, err := LoadTimeline(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(clips) != 2 {
		t.Fatalf("len(clips) = %d, want 2", len(clips))
	}
	if clips[0].ClipID != "a" || clips[0].InPoint != 1 || clips[0].OutPoint != 6 {
		t.Errorf("clip a = %+v", clips[0])
	}
	if !clips[1].Reversed {
		t.Error("clip b should be reversed")
	}
}

func TestLoadTimelineRejectsInvalidClips(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			"empty list",
			"clips: []\n",
		},
		{
			"missing id",
			"clips:\n  - source: /a.mp4\n    duration: 1\n    out_point: 1\n",
		},
		{
			"duplicate id",
			"clips:\n  - {id: a, source: /a.mp4, duration: 1, out_point: 1}\n  - {id: a, source: /b.mp4, duration: 1, out_point: 1}\n",
		},
		{
			"inverted trim",
			"clips:\n  - {id: a, source: /a.mp4, duration: 1, in_point: 5, out_point: 2}\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "timeline.yml", tt.yaml)
			if _, err := LoadTimeline(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestToEncodeSettings(t *testing.T) {
	cfg := Defaults()
	cfg.OutputPath = "/tmp/out.mp4"
	cfg.Width = 1280
	cfg.Height = 720

	s := cfg.ToEncodeSettings()
	if s.Width != 1280 || s.Height != 720 || s.Output != "/tmp/out.mp4" {
		t.Errorf("settings = %+v", s)
	}
	if s.Codec != "h264" {
		t.Errorf("Codec = %q, want h264", s.Codec)
	}
}
