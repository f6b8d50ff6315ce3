package remotedecoder

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/frameline/pkg/helperproto"
)

type fakeHelper struct {
	OpenFunc     func(ctx context.Context, path string) (helperproto.FileInfo, error)
	DecodeFunc   func(ctx context.Context, fileID string, frameNum int64, scale float64, compress bool) (*image.RGBA, error)
	PrefetchFunc func(fileID string, aroundFrame int64, radius int) error
	CloseFunc    func(ctx context.Context, fileID string) error
}

func (f *fakeHelper) Open(ctx context.Context, path string) (helperproto.FileInfo, error) {
	return f.OpenFunc(ctx, path)
}

func (f *fakeHelper) Decode(ctx context.Context, fileID string, frameNum int64, scale float64, compress bool) (*image.RGBA, error) {
	return f.DecodeFunc(ctx, fileID, frameNum, scale, compress)
}

func (f *fakeHelper) Prefetch(fileID string, aroundFrame int64, radius int) error {
	if f.PrefetchFunc != nil {
		return f.PrefetchFunc(fileID, aroundFrame, radius)
	}
	return nil
}

func (f *fakeHelper) CloseFile(ctx context.Context, fileID string) error {
	if f.CloseFunc != nil {
		return f.CloseFunc(ctx, fileID)
	}
	return nil
}

func TestOpenCachesMetadata(t *testing.T) {
	opens := 0
	helper := &fakeHelper{
		OpenFunc: func(ctx context.Context, path string) (helperproto.FileInfo, error) {
			opens++
			return helperproto.FileInfo{FileID: "f1", Width: 1280, Height: 720, FPS: 30, FrameCount: 300}, nil
		},
	}

	d := New(helper, "/media/a.mp4", Options{})
	meta, err := d.Open(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "f1", meta.FileID)
	assert.Equal(t, int64(300), meta.FrameCount)

	// Second open reuses the helper-side file.
	_, err = d.Open(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, opens)
}

func TestDecodeForwardsScaleAndFileID(t *testing.T) {
	helper := &fakeHelper{
		OpenFunc: func(ctx context.Context, path string) (helperproto.FileInfo, error) {
			return helperproto.FileInfo{FileID: "f7"}, nil
		},
		DecodeFunc: func(ctx context.Context, fileID string, frameNum int64, scale float64, compress bool) (*image.RGBA, error) {
			assert.Equal(t, "f7", fileID)
			assert.Equal(t, int64(42), frameNum)
			assert.Equal(t, 0.5, scale)
			assert.True(t, compress)
			return image.NewRGBA(image.Rect(0, 0, 2, 2)), nil
		},
	}

	d := New(helper, "/media/a.mp4", Options{Compress: true})
	_, err := d.Open(context.Background())
	require.NoError(t, err)

	img, err := d.DecodeFrame(context.Background(), 42, 0.5)
	require.NoError(t, err)
	assert.NotNil(t, img)
}

func TestDecodeBeforeOpen(t *testing.T) {
	d := New(&fakeHelper{}, "/media/a.mp4", Options{})
	_, err := d.DecodeFrame(context.Background(), 0, 0)
	assert.ErrorIs(t, err, ErrNotOpen)
}

func TestCloseReleasesHelperFile(t *testing.T) {
	closed := ""
	helper := &fakeHelper{
		OpenFunc: func(ctx context.Context, path string) (helperproto.FileInfo, error) {
			return helperproto.FileInfo{FileID: "f9"}, nil
		},
		CloseFunc: func(ctx context.Context, fileID string) error {
			closed = fileID
			return nil
		},
	}

	d := New(helper, "/media/a.mp4", Options{})
	_, err := d.Open(context.Background())
	require.NoError(t, err)
	require.NoError(t, d.Close())
	assert.Equal(t, "f9", closed)

	// Close again is a no-op.
	require.NoError(t, d.Close())
	_, err = d.DecodeFrame(context.Background(), 0, 0)
	assert.ErrorIs(t, err, ErrNotOpen)
}

func TestOpenErrorPropagates(t *testing.T) {
	helper := &fakeHelper{
		OpenFunc: func(ctx context.Context, path string) (helperproto.FileInfo, error) {
			return helperproto.FileInfo{}, &helperproto.CommandError{
				Code: helperproto.CodeUnsupportedCodec, Message: "no decoder",
			}
		},
	}

	d := New(helper, "/media/a.mp4", Options{})
	_, err := d.Open(context.Background())
	var cmdErr *helperproto.CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, helperproto.CodeUnsupportedCodec, cmdErr.Code)
}
