package face

import (
	"context"
	"image"
	"log/slog"

	"github.com/kozaktomas/selfie-finder/internal/faceerr"
	"github.com/kozaktomas/selfie-finder/internal/logging"
)

// FaceFailure records why one detected face produced no descriptor.
type FaceFailure struct {
	Box  image.Rectangle
	Kind faceerr.Kind
	Err  error
}

// Extraction is the result of running detection and embedding over one image.
type Extraction struct {
	Boxes     []image.Rectangle
	Encodings []Encoding
	Failures  []FaceFailure
	// DetectErr is set when the detector itself failed; Boxes is then empty.
	DetectErr error
}

// Extractor runs detect then embed over whole images.
type Extractor struct {
	detector  *Detector
	embedder  *Embedder
	maxPixels int
	log       *slog.Logger
}

// NewExtractor combines a detector and an embedder.
func NewExtractor(detector *Detector, embedder *Embedder, log *slog.Logger) *Extractor {
	return &Extractor{detector: detector, embedder: embedder, maxPixels: DefaultMaxPixels, log: logging.OrNoop(log)}
}

// SetMaxPixels changes the largest image (width*height) the extractor decodes.
// Values of zero or less restore DefaultMaxPixels.
func (x *Extractor) SetMaxPixels(n int) {
	if n <= 0 {
		n = DefaultMaxPixels
	}
	x.maxPixels = n
}

// Dimension returns the descriptor length produced by the embedder.
func (x *Extractor) Dimension() int {
	return x.embedder.Dimension()
}

// ExtractAll decodes data and embeds every detected face. Each face is embedded
// independently: a failing face is recorded in Failures and its siblings still
// run. Only a decode failure is returned as an error.
func (x *Extractor) ExtractAll(ctx context.Context, data []byte) (*Extraction, error) {
	img, err := Decode(data, x.maxPixels)
	if err != nil {
		return nil, err
	}
	return x.extract(ctx, img, false), nil
}

// ExtractFirst decodes data and returns the descriptor of the first detected
// face that embeds successfully. A nil encoding with a nil error means no face
// produced a descriptor; the Extraction explains why.
func (x *Extractor) ExtractFirst(ctx context.Context, data []byte) (Encoding, *Extraction, error) {
	img, err := Decode(data, x.maxPixels)
	if err != nil {
		return nil, nil, err
	}
	res := x.extract(ctx, img, true)
	if len(res.Encodings) == 0 {
		return nil, res, nil
	}
	return res.Encodings[0], res, nil
}

func (x *Extractor) extract(ctx context.Context, img image.Image, firstOnly bool) *Extraction {
	res := &Extraction{}

	boxes, err := x.detector.Detect(ctx, img)
	if err != nil {
		x.log.Warn("face detection failed", "error", err)
		res.DetectErr = err
		return res
	}
	res.Boxes = boxes
	res.Encodings, res.Failures = x.embedder.EmbedAll(ctx, img, boxes, firstOnly)
	return res
}
