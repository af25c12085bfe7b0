package face

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"math"

	"github.com/kozaktomas/selfie-finder/internal/faceerr"
	"github.com/kozaktomas/selfie-finder/internal/inference"
	"github.com/kozaktomas/selfie-finder/internal/logging"
)

// EmbedderOptions describe the network input and output.
type EmbedderOptions struct {
	CropSize  int     // square side of the network input
	Scale     float64 // multiplier applied after mean subtraction
	Mean      float64 // subtracted from every channel value
	SwapRB    bool    // feed channels as RGB instead of BGR
	Dimension int     // expected descriptor length
}

// DefaultEmbedderOptions returns the OpenFace input contract: 96x96 RGB
// scaled by 1/255 with a zero mean, producing 128 components.
func DefaultEmbedderOptions() EmbedderOptions {
	return EmbedderOptions{
		CropSize:  96,
		Scale:     1.0 / 255,
		Mean:      0,
		SwapRB:    true,
		Dimension: 128,
	}
}

// Embedder turns one face region into a descriptor.
type Embedder struct {
	ictx *inference.Context
	opts EmbedderOptions
	log  *slog.Logger
}

// NewEmbedder creates an embedder bound to ictx.
func NewEmbedder(ictx *inference.Context, opts EmbedderOptions, log *slog.Logger) *Embedder {
	return &Embedder{ictx: ictx, opts: opts, log: logging.OrNoop(log)}
}

// Dimension returns the descriptor length this embedder produces.
func (e *Embedder) Dimension() int {
	return e.opts.Dimension
}

// Embed crops box out of img and runs it through the network.
func (e *Embedder) Embed(ctx context.Context, img image.Image, box image.Rectangle) (Encoding, error) {
	if !e.ictx.Ready() {
		return nil, faceerr.New(faceerr.KindEngineDisabled, "embed", "inference models are not loaded")
	}

	input, err := e.Preprocess(img, box)
	if err != nil {
		return nil, err
	}

	var out []float32
	err = e.ictx.WithSession(ctx, func(s *inference.Session) error {
		var ferr error
		out, ferr = s.Embedder.Forward(input)
		return ferr
	})
	if err != nil {
		if faceerr.KindOf(err) != "" {
			return nil, err
		}
		return nil, faceerr.Wrap(faceerr.KindEmbedding, "embed", "forward pass failed", err)
	}

	enc := Encoding(out)
	if len(enc) != e.opts.Dimension {
		return nil, faceerr.New(faceerr.KindEmbedding, "embed",
			fmt.Sprintf("network produced %d components, expected %d", len(enc), e.opts.Dimension))
	}
	for i, v := range enc {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return nil, faceerr.New(faceerr.KindEmbedding, "embed",
				fmt.Sprintf("non-finite value at component %d", i))
		}
	}
	return enc, nil
}

// EmbedAll embeds every box independently. A failing face is returned as a
// FaceFailure and the remaining boxes still run. With firstOnly set it stops
// after the first successful descriptor.
func (e *Embedder) EmbedAll(ctx context.Context, img image.Image, boxes []image.Rectangle, firstOnly bool) ([]Encoding, []FaceFailure) {
	var encs []Encoding
	var failures []FaceFailure
	for _, box := range boxes {
		enc, err := e.Embed(ctx, img, box)
		if err != nil {
			kind := faceerr.KindOf(err)
			if kind == "" {
				kind = faceerr.KindEmbedding
			}
			e.log.Warn("face skipped", "kind", kind, "box", box.String(), "error", err)
			failures = append(failures, FaceFailure{Box: box, Kind: kind, Err: err})
			continue
		}
		encs = append(encs, enc)
		if firstOnly {
			break
		}
	}
	return encs, failures
}

// Preprocess crops box from img, resizes it to the canonical square and
// builds the normalized 1x3xSxS input tensor.
func (e *Embedder) Preprocess(img image.Image, box image.Rectangle) (inference.Tensor, error) {
	size := e.opts.CropSize
	if size <= 0 {
		return inference.Tensor{}, faceerr.New(faceerr.KindFaceCrop, "preprocess",
			fmt.Sprintf("invalid crop size %d", size))
	}

	region := box.Canon().Intersect(img.Bounds())
	if region.Empty() {
		return inference.Tensor{}, faceerr.New(faceerr.KindFaceCrop, "preprocess",
			fmt.Sprintf("box %v lies outside image %v", box, img.Bounds()))
	}

	face := resize(crop(img, region), size, size)

	plane := size * size
	data := make([]float32, 3*plane)
	// Channel planes in network order: RGB when swapping, BGR otherwise.
	rIdx, bIdx := 2, 0
	if e.opts.SwapRB {
		rIdx, bIdx = 0, 2
	}
	mean := e.opts.Mean
	scale := e.opts.Scale
	for y := range size {
		row := face.Pix[y*face.Stride:]
		for x := range size {
			px := row[x*4:]
			off := y*size + x
			data[rIdx*plane+off] = float32((float64(px[0]) - mean) * scale)
			data[1*plane+off] = float32((float64(px[1]) - mean) * scale)
			data[bIdx*plane+off] = float32((float64(px[2]) - mean) * scale)
		}
	}

	return inference.Tensor{Shape: [4]int{1, 3, size, size}, Data: data}, nil
}
