package codecdetect

import "testing"

func TestNativeEligible(t *testing.T) {
	tests := []struct {
		codec Codec
		want  bool
	}{
		{CodecH264, true},
		{CodecHEVC, false},
		{CodecAV1, false},
		{CodecVP9, false},
		{CodecUnknown, false},
	}
	for _, tt := range tests {
		if got := NativeEligible(tt.codec); got != tt.want {
			t.Errorf("NativeEligible(%s) = %v, want %v", tt.codec, got, tt.want)
		}
	}
}

func TestDetectFromBytesRejectsGarbage(t *testing.T) {
	if _, err := DetectFromBytes([]byte("not an mp4 container")); err == nil {
		t.Error("expected error for non-MP4 data")
	}
}
