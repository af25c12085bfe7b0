package face

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/kozaktomas/selfie-finder/internal/inference"
	"github.com/kozaktomas/selfie-finder/internal/inference/mock"
)

func createTestImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func newTestExtractor(det *mock.Detector, emb *mock.Embedder) (*Extractor, *inference.Context) {
	ictx := mock.ReadyContext(det, emb)
	opts := DefaultEmbedderOptions()
	if emb.Dim > 0 {
		opts.Dimension = emb.Dim
	}
	x := NewExtractor(
		NewDetector(ictx, DefaultDetectorOptions(), nil),
		NewEmbedder(ictx, opts, nil),
		nil,
	)
	return x, ictx
}
