// Package export drives a full-timeline export: a strict sequential walk
// over output ticks, one synchronous full-resolution decode per tick, and
// placeholder substitution for frames that cannot be decoded. Prefetch
// workers stay paused for the whole run.
package export

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"sync/atomic"
	"time"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	"github.com/user/frameline/pkg/ports"
	"github.com/user/frameline/pkg/timeline"
)

// FrameSource is the scheduler surface the driver needs.
// *scheduler.Scheduler satisfies it.
type FrameSource interface {
	DecodeFrameSync(ctx context.Context, clipID string, t float64) (image.Image, error)
	SetExportMode(on bool)
}

// Options configures an export run.
type Options struct {
	Settings ports.EncodeSettings

	// Clips is ordered top track first; the first clip active at a tick
	// provides that tick's frame.
	Clips []timeline.ClipDecodeInfo

	// Start and End bound the export range in timeline seconds. End <= 0
	// means the end of the last clip.
	Start float64
	End   float64

	Source      FrameSource
	Encoder     ports.FrameEncoder
	Placeholder ports.PlaceholderRenderer
	Logger      ports.Logger

	// Sink, when enabled, receives a copy of every substituted
	// placeholder for later inspection.
	Sink ports.DiagnosticsSink
}

// Result describes a finished export.
type Result struct {
	ports.EncodeResult

	// FramesMissing counts ticks that shipped a placeholder instead of a
	// decoded frame.
	FramesMissing int64
	TotalFrames   int64
}

// Driver runs one export.
type Driver struct {
	opts Options
	log  ports.Logger

	missing atomic.Int64
}

// New creates a driver for the given options.
func New(opts Options) *Driver {
	return &Driver{opts: opts, log: opts.Logger.WithComponent("export")}
}

// Run performs the export. Frames are decoded and submitted strictly in
// presentation order; cancellation aborts the encode session and discards
// partial output.
func (d *Driver) Run(ctx context.Context) (Result, error) {
	s := d.opts.Settings
	if s.Width <= 0 || s.Height <= 0 {
		return Result{}, fmt.Errorf("export: invalid output size %dx%d", s.Width, s.Height)
	}
	if s.FPS <= 0 {
		return Result{}, fmt.Errorf("export: invalid frame rate %v", s.FPS)
	}
	if s.Output == "" {
		return Result{}, fmt.Errorf("export: output path required")
	}

	start := d.opts.Start
	end := d.opts.End
	if end <= start {
		for _, c := range d.opts.Clips {
			if c.EndTime() > end {
				end = c.EndTime()
			}
		}
	}
	total := int64(math.Ceil((end - start) * s.FPS))
	if total <= 0 {
		return Result{}, fmt.Errorf("export: empty range [%v, %v)", start, end)
	}

	d.opts.Source.SetExportMode(true)
	defer d.opts.Source.SetExportMode(false)

	if err := d.opts.Encoder.StartEncode(ctx, s); err != nil {
		return Result{}, fmt.Errorf("export: start encode: %w", err)
	}

	d.log.Info("Export started: %d frames at %.2f fps to %s", total, s.FPS, s.Output)

	var encoded atomic.Int64
	loopDone := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(loopDone)
		return d.encodeLoop(gctx, start, total, &encoded)
	})
	g.Go(func() error {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-loopDone:
				return nil
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				d.log.Info("Export progress: %d/%d frames", encoded.Load(), total)
			}
		}
	})

	if err := g.Wait(); err != nil {
		cancelCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if cerr := d.opts.Encoder.CancelEncode(cancelCtx); cerr != nil {
			d.log.Warn("Failed to cancel encode session: %s", cerr)
		}
		return Result{}, err
	}

	done, err := d.opts.Encoder.FinishEncode(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("export: finish encode: %w", err)
	}

	res := Result{
		EncodeResult:  done,
		FramesMissing: d.missing.Load(),
		TotalFrames:   total,
	}
	d.log.Info("Export finished: %d frames, %d missing, %d bytes", done.FramesEncoded, res.FramesMissing, done.FileSize)
	return res, nil
}

func (d *Driver) encodeLoop(ctx context.Context, start float64, total int64, encoded *atomic.Int64) error {
	for tick := int64(0); tick < total; tick++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		t := start + float64(tick)/d.opts.Settings.FPS
		img := d.frameFor(ctx, t, tick)
		if err := d.opts.Encoder.EncodeFrame(ctx, tick, img); err != nil {
			return fmt.Errorf("export: frame %d: %w", tick, err)
		}
		encoded.Add(1)
	}
	return nil
}

// frameFor resolves the output frame for one tick: the top-most active
// clip's decoded frame, a placeholder when the decode fails, black when no
// clip covers the tick.
func (d *Driver) frameFor(ctx context.Context, t float64, tick int64) *image.RGBA {
	for _, c := range d.opts.Clips {
		if !c.Overlaps(t) {
			continue
		}
		img, err := d.opts.Source.DecodeFrameSync(ctx, c.ClipID, t)
		if err != nil {
			d.missing.Add(1)
			d.log.Warn("Clip %s frame at %.3fs unavailable, substituting placeholder: %s", c.ClipID, t, err)
			ph := d.opts.Placeholder.RenderPlaceholder(d.opts.Settings.Width, d.opts.Settings.Height, c.ClipName, tick)
			if d.opts.Sink != nil && d.opts.Sink.Enabled() {
				if serr := d.opts.Sink.SaveFrame(c.ClipID, tick, ph); serr != nil {
					d.log.Warn("Failed to save placeholder dump: %s", serr)
				}
			}
			return d.fit(ph)
		}
		return d.fit(img)
	}
	return d.blank()
}

// fit letterboxes src onto the output canvas, preserving aspect ratio.
func (d *Driver) fit(src image.Image) *image.RGBA {
	w, h := d.opts.Settings.Width, d.opts.Settings.Height
	dst := d.blank()

	sb := src.Bounds()
	if sb.Dx() <= 0 || sb.Dy() <= 0 {
		return dst
	}
	scale := math.Min(float64(w)/float64(sb.Dx()), float64(h)/float64(sb.Dy()))
	dw := int(float64(sb.Dx()) * scale)
	dh := int(float64(sb.Dy()) * scale)
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}
	x0 := (w - dw) / 2
	y0 := (h - dh) / 2

	xdraw.ApproxBiLinear.Scale(dst, image.Rect(x0, y0, x0+dw, y0+dh), src, sb, xdraw.Src, nil)
	return dst
}

func (d *Driver) blank() *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, d.opts.Settings.Width, d.opts.Settings.Height))
	xdraw.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{}, xdraw.Src)
	return dst
}
