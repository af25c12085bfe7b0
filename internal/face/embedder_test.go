package face

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/kozaktomas/selfie-finder/internal/faceerr"
	"github.com/kozaktomas/selfie-finder/internal/inference"
	"github.com/kozaktomas/selfie-finder/internal/inference/mock"
)

func TestPreprocess_ShapeAndSwap(t *testing.T) {
	img := createTestImage(40, 40, color.RGBA{255, 0, 0, 255})
	box := image.Rect(10, 10, 30, 30)

	tests := []struct {
		name      string
		swapRB    bool
		redPlane  int
		bluePlane int
	}{
		{"rgb order", true, 0, 2},
		{"bgr order", false, 2, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultEmbedderOptions()
			opts.SwapRB = tt.swapRB
			e := NewEmbedder(inference.Disabled(nil), opts, nil)

			tensor, err := e.Preprocess(img, box)
			if err != nil {
				t.Fatalf("Preprocess() error: %v", err)
			}
			if tensor.Shape != [4]int{1, 3, 96, 96} {
				t.Fatalf("shape = %v", tensor.Shape)
			}
			plane := 96 * 96
			if len(tensor.Data) != 3*plane {
				t.Fatalf("len(data) = %d", len(tensor.Data))
			}
			for i := range plane {
				if tensor.Data[tt.redPlane*plane+i] != 1 {
					t.Fatalf("red plane value %d = %v, want 1", i, tensor.Data[tt.redPlane*plane+i])
				}
				if tensor.Data[plane+i] != 0 || tensor.Data[tt.bluePlane*plane+i] != 0 {
					t.Fatalf("green/blue value %d should be 0", i)
				}
			}
		})
	}
}

func TestPreprocess_MeanAndScale(t *testing.T) {
	opts := DefaultEmbedderOptions()
	opts.CropSize = 8
	opts.Mean = 127.5
	opts.Scale = 1 / 127.5
	e := NewEmbedder(inference.Disabled(nil), opts, nil)

	img := createTestImage(16, 16, color.RGBA{255, 255, 0, 255})
	tensor, err := e.Preprocess(img, img.Bounds())
	if err != nil {
		t.Fatalf("Preprocess() error: %v", err)
	}

	plane := 64
	if got := tensor.Data[0]; math.Abs(float64(got)-1) > 1e-6 {
		t.Errorf("red = %v, want 1", got)
	}
	if got := tensor.Data[2*plane]; math.Abs(float64(got)+1) > 1e-6 {
		t.Errorf("blue = %v, want -1", got)
	}
}

func TestPreprocess_DegenerateBox(t *testing.T) {
	e := NewEmbedder(inference.Disabled(nil), DefaultEmbedderOptions(), nil)
	img := createTestImage(20, 20, color.White)

	tests := []struct {
		name string
		box  image.Rectangle
	}{
		{"outside", image.Rect(30, 30, 40, 40)},
		{"zero area", image.Rect(5, 5, 5, 10)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Preprocess(img, tt.box)
			if !faceerr.IsKind(err, faceerr.KindFaceCrop) {
				t.Errorf("expected FaceCrop, got %v", err)
			}
		})
	}
}

func TestEmbed_Disabled(t *testing.T) {
	e := NewEmbedder(inference.Disabled(nil), DefaultEmbedderOptions(), nil)

	_, err := e.Embed(context.Background(), createTestImage(20, 20, color.White), image.Rect(0, 0, 10, 10))
	if !faceerr.IsKind(err, faceerr.KindEngineDisabled) {
		t.Errorf("expected EngineDisabled, got %v", err)
	}
}

func TestEmbed_Deterministic(t *testing.T) {
	emb := &mock.Embedder{}
	e := NewEmbedder(mock.ReadyContext(&mock.Detector{}, emb), DefaultEmbedderOptions(), nil)

	img := createTestImage(60, 60, color.RGBA{30, 120, 200, 255})
	box := image.Rect(5, 5, 50, 50)

	first, err := e.Embed(context.Background(), img, box)
	if err != nil {
		t.Fatalf("Embed() error: %v", err)
	}
	second, err := e.Embed(context.Background(), img, box)
	if err != nil {
		t.Fatalf("Embed() error: %v", err)
	}

	if len(first) != 128 {
		t.Fatalf("len = %d, want 128", len(first))
	}
	d, _ := Distance(first, second)
	if d != 0 {
		t.Errorf("identical crops produced distance %v", d)
	}
}

func TestEmbed_Failures(t *testing.T) {
	tests := []struct {
		name    string
		forward func(inference.Tensor) ([]float32, error)
	}{
		{
			name:    "forward error",
			forward: func(inference.Tensor) ([]float32, error) { return nil, errors.New("net failure") },
		},
		{
			name:    "wrong length",
			forward: func(inference.Tensor) ([]float32, error) { return make([]float32, 64), nil },
		},
		{
			name: "nan output",
			forward: func(inference.Tensor) ([]float32, error) {
				out := make([]float32, 128)
				out[7] = float32(math.NaN())
				return out, nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emb := &mock.Embedder{ForwardFunc: tt.forward}
			e := NewEmbedder(mock.ReadyContext(&mock.Detector{}, emb), DefaultEmbedderOptions(), nil)

			_, err := e.Embed(context.Background(), createTestImage(20, 20, color.White), image.Rect(0, 0, 10, 10))
			if !faceerr.IsKind(err, faceerr.KindEmbedding) {
				t.Errorf("expected Embedding error, got %v", err)
			}
		})
	}
}
