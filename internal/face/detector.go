// Package face detects faces in raster images, turns each face into a
// fixed-length descriptor, and compares descriptors.
package face

import (
	"context"
	"image"
	"log/slog"

	"github.com/kozaktomas/selfie-finder/internal/faceerr"
	"github.com/kozaktomas/selfie-finder/internal/inference"
	"github.com/kozaktomas/selfie-finder/internal/logging"
)

// DetectorOptions tune the cascade.
type DetectorOptions struct {
	// ScaleFactor is the step between successive window scales. Smaller values
	// try more scales.
	ScaleFactor float64
	// MinNeighbors is how many overlapping candidate windows must agree before a
	// region is accepted. Higher values trade recall for precision.
	MinNeighbors int
	// MinSize is the smallest face side in pixels (0 means no limit).
	MinSize int
}

// DefaultDetectorOptions returns scale factor 1.3 and five neighbours.
func DefaultDetectorOptions() DetectorOptions {
	return DetectorOptions{ScaleFactor: 1.3, MinNeighbors: 5}
}

// Detector locates candidate face regions.
type Detector struct {
	ictx *inference.Context
	opts DetectorOptions
	log  *slog.Logger
}

// NewDetector creates a detector bound to ictx.
func NewDetector(ictx *inference.Context, opts DetectorOptions, log *slog.Logger) *Detector {
	return &Detector{ictx: ictx, opts: opts, log: logging.OrNoop(log)}
}

// Detect returns the face boxes found in img, in img's coordinate space.
// The order of boxes carries no meaning. A disabled context yields no boxes
// and never touches a model.
func (d *Detector) Detect(ctx context.Context, img image.Image) ([]image.Rectangle, error) {
	if !d.ictx.Ready() {
		return []image.Rectangle{}, nil
	}

	bounds := img.Bounds()
	gray := toGray(img)

	var raw []image.Rectangle
	err := d.ictx.WithSession(ctx, func(s *inference.Session) error {
		var derr error
		raw, derr = s.Detector.DetectMultiScale(gray, inference.DetectParams{
			ScaleFactor:  d.opts.ScaleFactor,
			MinNeighbors: d.opts.MinNeighbors,
			MinSize:      d.opts.MinSize,
		})
		return derr
	})
	if err != nil {
		if faceerr.IsKind(err, faceerr.KindEngineDisabled) {
			return []image.Rectangle{}, nil
		}
		return nil, err
	}

	boxes := make([]image.Rectangle, 0, len(raw))
	for _, r := range raw {
		box := r.Add(bounds.Min).Intersect(bounds)
		if box.Empty() {
			continue
		}
		boxes = append(boxes, box)
	}

	d.log.Debug("faces detected", "count", len(boxes), "width", bounds.Dx(), "height", bounds.Dy())
	return boxes, nil
}
