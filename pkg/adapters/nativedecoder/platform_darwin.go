//go:build darwin

package nativedecoder

/*
#cgo LDFLAGS: -framework VideoToolbox -framework CoreMedia -framework CoreFoundation -framework CoreVideo

#include <VideoToolbox/VideoToolbox.h>
#include <CoreMedia/CoreMedia.h>
#include <CoreFoundation/CoreFoundation.h>
#include <CoreVideo/CoreVideo.h>
#include <stdlib.h>
#include <string.h>

typedef struct {
    VTDecompressionSessionRef session;
    CMFormatDescriptionRef formatDesc;
    unsigned char *pixels;     // tightly packed BGRA
    int width;
    int height;
    int ready;
} vtContext;

static void vtOutputCallback(void *refCon, void *sourceRefCon, OSStatus status,
                             VTDecodeInfoFlags infoFlags, CVImageBufferRef imageBuffer,
                             CMTime pts, CMTime duration) {
    vtContext *ctx = (vtContext*)refCon;
    if (status != noErr || imageBuffer == NULL) {
        ctx->ready = 0;
        return;
    }

    CVPixelBufferLockBaseAddress(imageBuffer, kCVPixelBufferLock_ReadOnly);

    size_t width = CVPixelBufferGetWidth(imageBuffer);
    size_t height = CVPixelBufferGetHeight(imageBuffer);
    size_t stride = CVPixelBufferGetBytesPerRow(imageBuffer);
    unsigned char *base = (unsigned char*)CVPixelBufferGetBaseAddress(imageBuffer);

    if (ctx->pixels == NULL || ctx->width != (int)width || ctx->height != (int)height) {
        free(ctx->pixels);
        ctx->pixels = (unsigned char*)malloc(width * height * 4);
        ctx->width = (int)width;
        ctx->height = (int)height;
    }

    if (ctx->pixels != NULL && base != NULL) {
        // The session requests 32BGRA output, so rows copy straight across.
        for (size_t y = 0; y < height; y++) {
            memcpy(ctx->pixels + y * width * 4, base + y * stride, width * 4);
        }
        ctx->ready = 1;
    } else {
        ctx->ready = 0;
    }

    CVPixelBufferUnlockBaseAddress(imageBuffer, kCVPixelBufferLock_ReadOnly);
}

// nextNALU scans Annex B data from *offset, returning the NALU start and
// length, or -1 when no start code remains.
static long nextNALU(unsigned char *data, size_t size, size_t *offset, size_t *naluStart) {
    size_t off = *offset;
    size_t startCodeLen = 0;
    while (off < size) {
        if (off + 3 <= size && data[off] == 0 && data[off+1] == 0 && data[off+2] == 1) {
            startCodeLen = 3;
            break;
        }
        if (off + 4 <= size && data[off] == 0 && data[off+1] == 0 && data[off+2] == 0 && data[off+3] == 1) {
            startCodeLen = 4;
            break;
        }
        off++;
    }
    if (startCodeLen == 0) return -1;

    off += startCodeLen;
    *naluStart = off;

    while (off < size) {
        if (off + 3 <= size && data[off] == 0 && data[off+1] == 0 &&
            (data[off+2] == 1 || (off + 4 <= size && data[off+2] == 0 && data[off+3] == 1))) {
            break;
        }
        off++;
    }
    *offset = off;
    return (long)(off - *naluStart);
}

static int vtRebuildSession(vtContext *ctx, unsigned char *sps, size_t spsSize,
                            unsigned char *pps, size_t ppsSize) {
    if (ctx->session) {
        VTDecompressionSessionInvalidate(ctx->session);
        CFRelease(ctx->session);
        ctx->session = NULL;
    }
    if (ctx->formatDesc) {
        CFRelease(ctx->formatDesc);
        ctx->formatDesc = NULL;
    }

    const uint8_t *paramSets[2] = { sps, pps };
    size_t paramSizes[2] = { spsSize, ppsSize };
    OSStatus status = CMVideoFormatDescriptionCreateFromH264ParameterSets(
        kCFAllocatorDefault, 2, paramSets, paramSizes, 4, &ctx->formatDesc);
    if (status != noErr) return -1;

    CFMutableDictionaryRef attrs = CFDictionaryCreateMutable(
        kCFAllocatorDefault, 0, &kCFTypeDictionaryKeyCallBacks, &kCFTypeDictionaryValueCallBacks);
    SInt32 pixelFormat = kCVPixelFormatType_32BGRA;
    CFNumberRef pf = CFNumberCreate(kCFAllocatorDefault, kCFNumberSInt32Type, &pixelFormat);
    CFDictionarySetValue(attrs, kCVPixelBufferPixelFormatTypeKey, pf);
    CFRelease(pf);

    VTDecompressionOutputCallbackRecord cb = { vtOutputCallback, ctx };
    status = VTDecompressionSessionCreate(kCFAllocatorDefault, ctx->formatDesc,
                                          NULL, attrs, &cb, &ctx->session);
    CFRelease(attrs);
    return (status == noErr) ? 0 : -1;
}

static vtContext* vtCreate() {
    return (vtContext*)calloc(1, sizeof(vtContext));
}

static int vtDecode(vtContext *ctx, unsigned char *data, size_t size) {
    if (!ctx) return -1;
    ctx->ready = 0;

    // First pass: pick up SPS/PPS and rebuild the session when present.
    unsigned char *sps = NULL, *pps = NULL;
    size_t spsSize = 0, ppsSize = 0;
    size_t offset = 0, naluStart = 0;
    long naluLen;
    while ((naluLen = nextNALU(data, size, &offset, &naluStart)) >= 0) {
        if (naluLen == 0) continue;
        unsigned char nalType = data[naluStart] & 0x1F;
        if (nalType == 7 && sps == NULL) { sps = data + naluStart; spsSize = (size_t)naluLen; }
        if (nalType == 8 && pps == NULL) { pps = data + naluStart; ppsSize = (size_t)naluLen; }
    }
    if (sps != NULL && pps != NULL) {
        if (vtRebuildSession(ctx, sps, spsSize, pps, ppsSize) != 0) return -1;
    }
    if (!ctx->session) return -1;

    // Second pass: submit picture NALUs in AVCC framing.
    offset = 0;
    while ((naluLen = nextNALU(data, size, &offset, &naluStart)) >= 0) {
        if (naluLen == 0) continue;
        unsigned char nalType = data[naluStart] & 0x1F;
        if (nalType == 7 || nalType == 8) continue;

        size_t avccSize = 4 + (size_t)naluLen;
        unsigned char *avcc = (unsigned char*)malloc(avccSize);
        if (!avcc) return -1;
        avcc[0] = (naluLen >> 24) & 0xFF;
        avcc[1] = (naluLen >> 16) & 0xFF;
        avcc[2] = (naluLen >> 8) & 0xFF;
        avcc[3] = naluLen & 0xFF;
        memcpy(avcc + 4, data + naluStart, naluLen);

        CMBlockBufferRef block = NULL;
        OSStatus status = CMBlockBufferCreateWithMemoryBlock(
            kCFAllocatorDefault, avcc, avccSize, kCFAllocatorDefault,
            NULL, 0, avccSize, 0, &block);
        if (status != noErr) { free(avcc); return -1; }

        CMSampleBufferRef sample = NULL;
        size_t sampleSizes[] = { avccSize };
        status = CMSampleBufferCreate(kCFAllocatorDefault, block, true, NULL, NULL,
                                      ctx->formatDesc, 1, 0, NULL, 1, sampleSizes, &sample);
        CFRelease(block);
        if (status != noErr) return -1;

        VTDecodeInfoFlags infoFlags;
        status = VTDecompressionSessionDecodeFrame(ctx->session, sample, 0, NULL, &infoFlags);
        CFRelease(sample);

        if (status == noErr) {
            VTDecompressionSessionWaitForAsynchronousFrames(ctx->session);
            if (ctx->ready) return 0;
        }
    }

    return 1; // consumed input, no picture emitted yet
}

static int vtWidth(vtContext *ctx) { return ctx ? ctx->width : 0; }
static int vtHeight(vtContext *ctx) { return ctx ? ctx->height : 0; }
static unsigned char* vtPixels(vtContext *ctx) { return ctx ? ctx->pixels : NULL; }

static void vtDestroy(vtContext *ctx) {
    if (!ctx) return;
    if (ctx->session) {
        VTDecompressionSessionInvalidate(ctx->session);
        CFRelease(ctx->session);
    }
    if (ctx->formatDesc) CFRelease(ctx->formatDesc);
    free(ctx->pixels);
    free(ctx);
}
*/
import "C"

import (
	"image"
	"unsafe"
)

// videoToolboxDecoder decodes H.264 via a VTDecompressionSession.
type videoToolboxDecoder struct {
	ctx *C.vtContext
}

func newPlatformDecoder() platformDecoder {
	return &videoToolboxDecoder{}
}

func (d *videoToolboxDecoder) init() error {
	d.ctx = C.vtCreate()
	if d.ctx == nil {
		return ErrPlatformNotSupported
	}
	return nil
}

func (d *videoToolboxDecoder) decodeFrame(data []byte) (image.Image, error) {
	if d.ctx == nil {
		return nil, ErrNotInitialized
	}
	if len(data) == 0 {
		return nil, ErrDecodeFailed
	}

	result := C.vtDecode(d.ctx, (*C.uchar)(unsafe.Pointer(&data[0])), C.size_t(len(data)))
	if result < 0 {
		return nil, ErrDecodeFailed
	}
	if result > 0 {
		// Decoder buffered the input without emitting a picture.
		return nil, nil
	}

	width := int(C.vtWidth(d.ctx))
	height := int(C.vtHeight(d.ctx))
	pixels := C.vtPixels(d.ctx)
	if width == 0 || height == 0 || pixels == nil {
		return nil, ErrDecodeFailed
	}

	bgra := C.GoBytes(unsafe.Pointer(pixels), C.int(width*height*4))
	rgba := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i+3 < len(bgra); i += 4 {
		rgba.Pix[i+0] = bgra[i+2]
		rgba.Pix[i+1] = bgra[i+1]
		rgba.Pix[i+2] = bgra[i+0]
		rgba.Pix[i+3] = bgra[i+3]
	}
	return rgba, nil
}

func (d *videoToolboxDecoder) close() {
	if d.ctx != nil {
		C.vtDestroy(d.ctx)
		d.ctx = nil
	}
}

// checkPlatformAvailability returns true on macOS; VideoToolbox ships
// with the OS.
func checkPlatformAvailability() bool {
	return true
}
