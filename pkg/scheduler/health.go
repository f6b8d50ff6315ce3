package scheduler

import (
	"encoding/json"
	"sort"
	"time"
)

// ClipHealth is the health snapshot of one clip pipeline.
type ClipHealth struct {
	ClipID        string `json:"clip_id"`
	ClipName      string `json:"clip_name,omitempty"`
	State         string `json:"state"`
	Backend       string `json:"backend"`
	FramesDecoded int64  `json:"frames_decoded"`
	FramesMissing int64  `json:"frames_missing"`
	CachedFrames  int    `json:"cached_frames"`
	CacheBytes    int64  `json:"cache_bytes"`
	WindowLo      int64  `json:"window_lo"`
	WindowHi      int64  `json:"window_hi"`
	LastError     string `json:"last_error,omitempty"`
}

// HealthSnapshot captures the scheduler state at one instant.
type HealthSnapshot struct {
	Timestamp  time.Time    `json:"timestamp"`
	Playhead   float64      `json:"playhead"`
	ExportMode bool         `json:"export_mode"`
	Clips      []ClipHealth `json:"clips"`
}

// Health returns a snapshot of every clip pipeline, ordered by clip id.
func (s *Scheduler) Health() HealthSnapshot {
	s.mu.Lock()
	snap := HealthSnapshot{
		Timestamp:  time.Now(),
		Playhead:   s.playhead,
		ExportMode: s.exportMode,
	}
	pipelines := s.snapshotLocked()
	s.mu.Unlock()

	for _, p := range pipelines {
		p.mu.Lock()
		ch := ClipHealth{
			ClipID:        p.clip.ClipID,
			ClipName:      p.clip.ClipName,
			State:         p.currentState().String(),
			Backend:       string(p.backend),
			FramesDecoded: p.framesDecoded.Load(),
			FramesMissing: p.framesMissing.Load(),
			CachedFrames:  p.cache.Len(),
			CacheBytes:    p.cache.ByteSize(),
			WindowLo:      p.windowLo,
			WindowHi:      p.windowHi,
		}
		if p.lastErr != nil {
			ch.LastError = p.lastErr.Error()
		}
		p.mu.Unlock()
		snap.Clips = append(snap.Clips, ch)
	}

	sort.Slice(snap.Clips, func(i, j int) bool {
		return snap.Clips[i].ClipID < snap.Clips[j].ClipID
	})
	return snap
}

// SaveHealth writes the current snapshot to the diagnostics sink, if one
// is enabled.
func (s *Scheduler) SaveHealth() error {
	if s.opts.Sink == nil || !s.opts.Sink.Enabled() {
		return nil
	}

	data, err := json.MarshalIndent(s.Health(), "", "  ")
	if err != nil {
		return err
	}
	if err := s.opts.Sink.SaveHealthJSON(data); err != nil {
		s.log.Warn("Failed to save diagnostics: %s", err)
		return err
	}
	return nil
}
