// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/user/frameline/pkg/ports"
	"github.com/user/frameline/pkg/timeline"
)

// Config represents the full configuration for frameline.
type Config struct {
	// Input/Output
	TimelinePath string `yaml:"timeline"`
	OutputPath   string `yaml:"output"`

	// Helper connection
	Helper HelperConfig `yaml:"helper"`

	// Scheduling
	PrefetchRadius  int     `yaml:"prefetch_radius"`
	ScrubScale      float64 `yaml:"scrub_scale"`
	DecodeTimeoutMs int     `yaml:"decode_timeout_ms"`

	// Decoding
	FFmpegPath    string `yaml:"ffmpeg_path"`
	CompressWire  bool   `yaml:"compress_wire"`
	ForceRemote   bool   `yaml:"force_remote"`
	DisableRemote bool   `yaml:"disable_remote"`

	// Export
	Width   int     `yaml:"width"`
	Height  int     `yaml:"height"`
	FPS     float64 `yaml:"fps"`
	Bitrate int     `yaml:"bitrate"`
	Codec   string  `yaml:"codec"`

	// Logging
	LogLevel string `yaml:"log_level"`
	Language string `yaml:"language"`

	// Debug
	Debug    bool   `yaml:"debug"`
	DebugDir string `yaml:"debug_dir"`
}

// HelperConfig represents helper process connection settings.
type HelperConfig struct {
	Addr             string `yaml:"addr"`
	Token            string `yaml:"token"`
	RequestTimeoutMs int    `yaml:"request_timeout_ms"`
	DecodeTimeoutMs  int    `yaml:"decode_timeout_ms"`
}

// TimelineConfig is the clip list loaded from a timeline YAML file.
// Clips are ordered top track first.
type TimelineConfig struct {
	Clips []ClipConfig `yaml:"clips"`
}

// ClipConfig represents one clip placement.
type ClipConfig struct {
	ID        string  `yaml:"id"`
	Name      string  `yaml:"name"`
	Source    string  `yaml:"source"`
	StartTime float64 `yaml:"start_time"`
	Duration  float64 `yaml:"duration"`
	InPoint   float64 `yaml:"in_point"`
	OutPoint  float64 `yaml:"out_point"`
	Reversed  bool    `yaml:"reversed"`
}

// Defaults returns a Config with default values.
func Defaults() Config {
	return Config{
		Helper: HelperConfig{
			Addr:             "127.0.0.1:9317",
			RequestTimeoutMs: 10000,
			DecodeTimeoutMs:  30000,
		},

		PrefetchRadius:  30,
		ScrubScale:      0.5,
		DecodeTimeoutMs: 10000,

		CompressWire: true,

		Width:   1920,
		Height:  1080,
		FPS:     30.0,
		Bitrate: 8_000_000,
		Codec:   "h264",

		LogLevel: "info",

		DebugDir: "./debug",
	}
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// LoadTimeline loads and validates a clip list from a YAML file.
func LoadTimeline(path string) ([]timeline.ClipDecodeInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var tc TimelineConfig
	if err := yaml.Unmarshal(data, &tc); err != nil {
		return nil, err
	}
	if len(tc.Clips) == 0 {
		return nil, fmt.Errorf("timeline %s contains no clips", path)
	}

	clips := make([]timeline.ClipDecodeInfo, 0, len(tc.Clips))
	seen := make(map[string]bool)
	for i, c := range tc.Clips {
		if c.ID == "" {
			return nil, fmt.Errorf("timeline clip %d has no id", i)
		}
		if seen[c.ID] {
			return nil, fmt.Errorf("timeline clip id %s duplicated", c.ID)
		}
		seen[c.ID] = true

		clip := timeline.ClipDecodeInfo{
			ClipID:     c.ID,
			ClipName:   c.Name,
			SourcePath: c.Source,
			StartTime:  c.StartTime,
			Duration:   c.Duration,
			InPoint:    c.InPoint,
			OutPoint:   c.OutPoint,
			Reversed:   c.Reversed,
		}
		if err := clip.Validate(); err != nil {
			return nil, err
		}
		clips = append(clips, clip)
	}
	return clips, nil
}

// DecodeTimeout returns the scheduler decode timeout as a duration.
func (c Config) DecodeTimeout() time.Duration {
	return time.Duration(c.DecodeTimeoutMs) * time.Millisecond
}

// ToEncodeSettings converts Config to export encode settings.
func (c Config) ToEncodeSettings() ports.EncodeSettings {
	return ports.EncodeSettings{
		Width:   c.Width,
		Height:  c.Height,
		FPS:     c.FPS,
		Bitrate: c.Bitrate,
		Codec:   c.Codec,
		Output:  c.OutputPath,
	}
}
