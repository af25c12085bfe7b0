// Package opencv loads the Haar cascade detector and the Torch embedding
// network through gocv.
package opencv

import (
	"errors"
	"fmt"
	"image"
	"os"

	"gocv.io/x/gocv"

	"github.com/kozaktomas/selfie-finder/internal/inference"
)

// Loader implements inference.Loader on top of OpenCV.
type Loader struct{}

// NewLoader creates an OpenCV model loader.
func NewLoader() *Loader {
	return &Loader{}
}

// LoadDetector loads a cascade classifier XML file.
func (l *Loader) LoadDetector(path string) (inference.DetectorModel, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("stat cascade file: %w", err)
	}

	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(path) {
		_ = classifier.Close()
		return nil, fmt.Errorf("failed to load cascade classifier from %s", path)
	}
	return &cascade{classifier: classifier}, nil
}

// LoadEmbedder loads a Torch (.t7) network.
func (l *Loader) LoadEmbedder(path string) (inference.EmbedderModel, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("stat embedder file: %w", err)
	}

	net := gocv.ReadNetFromTorch(path)
	if net.Empty() {
		_ = net.Close()
		return nil, fmt.Errorf("failed to load torch network from %s", path)
	}
	return &torchNet{net: net}, nil
}

type cascade struct {
	classifier gocv.CascadeClassifier
}

func (c *cascade) DetectMultiScale(gray *image.Gray, params inference.DetectParams) ([]image.Rectangle, error) {
	mat, err := gocv.ImageGrayToMatGray(gray)
	if err != nil {
		return nil, fmt.Errorf("convert grayscale image: %w", err)
	}
	defer mat.Close()

	minSize := image.Pt(params.MinSize, params.MinSize)
	rects := c.classifier.DetectMultiScaleWithParams(mat, params.ScaleFactor, params.MinNeighbors, 0, minSize, image.Point{})
	return rects, nil
}

func (c *cascade) Close() error {
	return c.classifier.Close()
}

type torchNet struct {
	net gocv.Net
}

func (t *torchNet) Forward(input inference.Tensor) ([]float32, error) {
	shape := input.Shape[:]
	size := 1
	for _, d := range shape {
		size *= d
	}
	if size != len(input.Data) {
		return nil, fmt.Errorf("tensor shape %v does not match %d values", shape, len(input.Data))
	}

	blob := gocv.NewMatWithSizes(shape, gocv.MatTypeCV32F)
	defer blob.Close()

	dst, err := blob.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("access input blob: %w", err)
	}
	copy(dst, input.Data)

	t.net.SetInput(blob, "")
	out := t.net.Forward("")
	defer out.Close()

	if out.Empty() {
		return nil, errors.New("forward pass produced no output")
	}
	values, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read network output: %w", err)
	}

	result := make([]float32, len(values))
	copy(result, values)
	return result, nil
}

func (t *torchNet) Close() error {
	return t.net.Close()
}
