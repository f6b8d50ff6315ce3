// Package timeline models clips as placed on the global timeline and maps
// global timeline time to clip-local source time, honoring trim windows
// and reversal.
package timeline

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidTrim is returned when a clip's out point does not lie
	// strictly after its in point.
	ErrInvalidTrim = errors.New("timeline: out point must be greater than in point")

	// ErrInvalidDuration is returned when a clip's timeline duration is
	// not positive.
	ErrInvalidDuration = errors.New("timeline: duration must be positive")
)

// ClipDecodeInfo carries everything the decode scheduler needs to know
// about one clip. All times are in seconds; StartTime and Duration position
// the clip on the global timeline, InPoint and OutPoint trim the source.
type ClipDecodeInfo struct {
	ClipID     string
	ClipName   string // diagnostic only
	SourcePath string
	StartTime  float64
	Duration   float64
	InPoint    float64
	OutPoint   float64
	Reversed   bool
}

// Validate checks the clip invariants: OutPoint > InPoint and Duration > 0.
func (c ClipDecodeInfo) Validate() error {
	if c.Duration <= 0 {
		return fmt.Errorf("clip %s: %w (got %v)", c.ClipID, ErrInvalidDuration, c.Duration)
	}
	if c.OutPoint <= c.InPoint {
		return fmt.Errorf("clip %s: %w (in=%v out=%v)", c.ClipID, ErrInvalidTrim, c.InPoint, c.OutPoint)
	}
	return nil
}

// EndTime returns the clip's end position on the global timeline.
func (c ClipDecodeInfo) EndTime() float64 {
	return c.StartTime + c.Duration
}

// Overlaps reports whether the clip is active at global time t. The end
// boundary is exclusive, matching the half-open interval the clip occupies.
func (c ClipDecodeInfo) Overlaps(t float64) bool {
	return t >= c.StartTime && t < c.EndTime()
}

// LocalTime maps global timeline time to clip-local source time.
//
// Let elapsed = clamp(t - StartTime, 0, Duration). A forward clip resolves
// to InPoint + elapsed; a reversed clip to OutPoint - elapsed. The result
// is clamped to [InPoint, OutPoint], so a reversed clip resolves to exactly
// OutPoint at t == StartTime and exactly InPoint at t == StartTime+Duration.
func (c ClipDecodeInfo) LocalTime(t float64) float64 {
	elapsed := clamp(t-c.StartTime, 0, c.Duration)
	var local float64
	if c.Reversed {
		local = c.OutPoint - elapsed
	} else {
		local = c.InPoint + elapsed
	}
	return clamp(local, c.InPoint, c.OutPoint)
}

// LocalFrame maps global timeline time to a source frame number at the
// given frame rate.
func (c ClipDecodeInfo) LocalFrame(t, fps float64) int64 {
	return FrameForTime(c.LocalTime(t), fps)
}

// FrameRange returns the clip's trim window as source frame numbers.
func (c ClipDecodeInfo) FrameRange(fps float64) (lo, hi int64) {
	return FrameForTime(c.InPoint, fps), FrameForTime(c.OutPoint, fps)
}

// FrameForTime converts a source-local time to a frame number.
func FrameForTime(localTime, fps float64) int64 {
	return int64(math.Round(localTime * fps))
}

// TimeForFrame converts a frame number back to source-local time.
func TimeForFrame(frame int64, fps float64) float64 {
	return float64(frame) / fps
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
