package face

import (
	"context"
	"encoding/binary"
	"hash/crc32"
	"image/color"
	"testing"

	"github.com/kozaktomas/selfie-finder/internal/faceerr"
	"github.com/kozaktomas/selfie-finder/internal/inference/mock"
)

// withPNGSize rewrites the IHDR dimensions of an encoded PNG so the header
// claims a size the pixel data never backs.
func withPNGSize(t *testing.T, data []byte, width, height uint32) []byte {
	t.Helper()
	out := append([]byte(nil), data...)
	if string(out[12:16]) != "IHDR" {
		t.Fatalf("unexpected PNG layout")
	}
	binary.BigEndian.PutUint32(out[16:20], width)
	binary.BigEndian.PutUint32(out[20:24], height)
	binary.BigEndian.PutUint32(out[29:33], crc32.ChecksumIEEE(out[12:29]))
	return out
}

func TestDecode_RejectsOversizedHeader(t *testing.T) {
	data := withPNGSize(t, encodePNG(t, createTestImage(4, 4, color.White)), 20000, 20000)

	_, err := Decode(data, DefaultMaxPixels)
	if !faceerr.IsKind(err, faceerr.KindImageDecode) {
		t.Fatalf("expected ImageDecode, got %v", err)
	}
}

func TestDecode_LimitBoundary(t *testing.T) {
	data := encodePNG(t, createTestImage(10, 10, color.White))

	if _, err := Decode(data, 100); err != nil {
		t.Errorf("Decode() at the limit error: %v", err)
	}
	if _, err := Decode(data, 99); !faceerr.IsKind(err, faceerr.KindImageDecode) {
		t.Errorf("expected ImageDecode above the limit, got %v", err)
	}
	if _, err := Decode(data, 0); err != nil {
		t.Errorf("Decode() with default limit error: %v", err)
	}
}

func TestDecode_Empty(t *testing.T) {
	if _, err := Decode(nil, 0); !faceerr.IsKind(err, faceerr.KindImageDecode) {
		t.Errorf("expected ImageDecode, got %v", err)
	}
}

func TestExtractor_MaxPixelsSkipsDetection(t *testing.T) {
	det := &mock.Detector{}
	x, _ := newTestExtractor(det, &mock.Embedder{})
	x.SetMaxPixels(500)

	_, err := x.ExtractAll(context.Background(), encodePNG(t, createTestImage(30, 30, color.White)))
	if !faceerr.IsKind(err, faceerr.KindImageDecode) {
		t.Fatalf("expected ImageDecode, got %v", err)
	}
	if det.Calls() != 0 {
		t.Errorf("detector ran %d times on a rejected image", det.Calls())
	}
}
