// Package helperencoder implements the export encode port on top of the
// helper connection. Frames are shipped as compressed RGBA payloads and the
// helper muxes the output file.
package helperencoder

import (
	"context"
	"image"
	"image/draw"

	"github.com/user/frameline/pkg/helperclient"
	"github.com/user/frameline/pkg/helperproto"
	"github.com/user/frameline/pkg/ports"
)

// Encoder forwards encode sessions to the helper process.
type Encoder struct {
	client *helperclient.Client
	log    ports.Logger
}

// New wraps a connected helper client.
func New(client *helperclient.Client, log ports.Logger) *Encoder {
	return &Encoder{client: client, log: log.WithComponent("helper-encoder")}
}

func (e *Encoder) StartEncode(ctx context.Context, s ports.EncodeSettings) error {
	return e.client.StartEncode(ctx, s.Width, s.Height, s.FPS, int64(s.Bitrate), s.Codec, s.Output)
}

func (e *Encoder) EncodeFrame(ctx context.Context, frameNum int64, img image.Image) error {
	return e.client.EncodeFrame(ctx, frameNum, toRGBA(img))
}

func (e *Encoder) FinishEncode(ctx context.Context) (ports.EncodeResult, error) {
	done, err := e.client.FinishEncode(ctx, func(p helperproto.Progress) {
		e.log.Debug("Muxing: %.0f%%", p.Progress*100)
	})
	if err != nil {
		return ports.EncodeResult{}, err
	}
	return ports.EncodeResult{
		FramesEncoded: done.FramesEncoded,
		DurationMs:    done.DurationMs,
		FileSize:      done.FileSize,
		OutputPath:    done.OutputPath,
	}, nil
}

func (e *Encoder) CancelEncode(ctx context.Context) error {
	return e.client.CancelEncode(ctx)
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	dst := image.NewRGBA(img.Bounds())
	draw.Draw(dst, dst.Bounds(), img, img.Bounds().Min, draw.Src)
	return dst
}

var _ ports.FrameEncoder = (*Encoder)(nil)
