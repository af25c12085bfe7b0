// Package mock provides in-memory inference models for tests.
package mock

import (
	"errors"
	"image"
	"math"
	"sync"
	"sync/atomic"

	"github.com/kozaktomas/selfie-finder/internal/inference"
)

// Detector is a DetectorModel returning fixed or computed boxes.
type Detector struct {
	Boxes      []image.Rectangle
	DetectFunc func(gray *image.Gray, params inference.DetectParams) ([]image.Rectangle, error)
	Err        error

	calls  atomic.Int32
	active atomic.Int32

	// MaxActive records the highest number of concurrent calls observed.
	MaxActive  atomic.Int32
	LastParams inference.DetectParams
	mu         sync.Mutex
	closed     bool
}

// DetectMultiScale implements inference.DetectorModel.
func (d *Detector) DetectMultiScale(gray *image.Gray, params inference.DetectParams) ([]image.Rectangle, error) {
	d.calls.Add(1)
	n := d.active.Add(1)
	defer d.active.Add(-1)
	for {
		cur := d.MaxActive.Load()
		if n <= cur || d.MaxActive.CompareAndSwap(cur, n) {
			break
		}
	}

	d.mu.Lock()
	d.LastParams = params
	d.mu.Unlock()

	if d.Err != nil {
		return nil, d.Err
	}
	if d.DetectFunc != nil {
		return d.DetectFunc(gray, params)
	}
	out := make([]image.Rectangle, len(d.Boxes))
	copy(out, d.Boxes)
	return out, nil
}

// Calls returns the number of DetectMultiScale calls.
func (d *Detector) Calls() int {
	return int(d.calls.Load())
}

// Close implements inference.DetectorModel.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Closed reports whether Close was called.
func (d *Detector) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Embedder is an EmbedderModel. Without ForwardFunc it returns a deterministic
// descriptor of Dim components, each the mean of one contiguous block of the
// input tensor, scaled to unit length.
type Embedder struct {
	Dim         int
	ForwardFunc func(input inference.Tensor) ([]float32, error)
	Err         error

	calls  atomic.Int32
	mu     sync.Mutex
	closed bool
}

// Forward implements inference.EmbedderModel.
func (e *Embedder) Forward(input inference.Tensor) ([]float32, error) {
	e.calls.Add(1)
	if e.Err != nil {
		return nil, e.Err
	}
	if e.ForwardFunc != nil {
		return e.ForwardFunc(input)
	}
	return BlockMeans(input.Data, e.dim()), nil
}

func (e *Embedder) dim() int {
	if e.Dim > 0 {
		return e.Dim
	}
	return 128
}

// Calls returns the number of Forward calls.
func (e *Embedder) Calls() int {
	return int(e.calls.Load())
}

// Close implements inference.EmbedderModel.
func (e *Embedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// Closed reports whether Close was called.
func (e *Embedder) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// BlockMeans splits data into dim blocks and returns their unit-normalized means.
func BlockMeans(data []float32, dim int) []float32 {
	out := make([]float32, dim)
	if len(data) == 0 {
		return out
	}
	block := len(data) / dim
	if block == 0 {
		block = 1
	}
	var norm float64
	for i := range dim {
		start := i * block
		if start >= len(data) {
			break
		}
		end := min(start+block, len(data))
		var sum float64
		for _, v := range data[start:end] {
			sum += float64(v)
		}
		mean := sum / float64(end-start)
		out[i] = float32(mean)
		norm += mean * mean
	}
	if norm > 0 {
		n := math.Sqrt(norm)
		for i := range out {
			out[i] = float32(float64(out[i]) / n)
		}
	}
	return out
}

// Loader hands out the configured models. NewDetector / NewEmbedder, when
// set, build a fresh model per instance.
type Loader struct {
	Detector    *Detector
	Embedder    *Embedder
	NewDetector func() *Detector
	NewEmbedder func() *Embedder
	DetectorErr error
	EmbedderErr error

	mu        sync.Mutex
	Detectors []*Detector
	Embedders []*Embedder
}

// ErrMissingArtifact is returned by NewFailingLoader.
var ErrMissingArtifact = errors.New("artifact not found")

// NewLoader returns a loader serving det and emb for every instance.
func NewLoader(det *Detector, emb *Embedder) *Loader {
	return &Loader{Detector: det, Embedder: emb}
}

// NewFailingLoader returns a loader whose detector load fails.
func NewFailingLoader() *Loader {
	return &Loader{DetectorErr: ErrMissingArtifact}
}

// LoadDetector implements inference.Loader.
func (l *Loader) LoadDetector(string) (inference.DetectorModel, error) {
	if l.DetectorErr != nil {
		return nil, l.DetectorErr
	}
	d := l.Detector
	if l.NewDetector != nil {
		d = l.NewDetector()
	}
	if d == nil {
		d = &Detector{}
	}
	l.mu.Lock()
	l.Detectors = append(l.Detectors, d)
	l.mu.Unlock()
	return d, nil
}

// LoadEmbedder implements inference.Loader.
func (l *Loader) LoadEmbedder(string) (inference.EmbedderModel, error) {
	if l.EmbedderErr != nil {
		return nil, l.EmbedderErr
	}
	e := l.Embedder
	if l.NewEmbedder != nil {
		e = l.NewEmbedder()
	}
	if e == nil {
		e = &Embedder{}
	}
	l.mu.Lock()
	l.Embedders = append(l.Embedders, e)
	l.mu.Unlock()
	return e, nil
}

// ReadyContext loads a Ready context from det and emb with one instance.
func ReadyContext(det *Detector, emb *Embedder) *inference.Context {
	ictx, err := inference.Load(inference.Config{Instances: 1}, NewLoader(det, emb))
	if err != nil {
		panic("mock loader failed: " + err.Error())
	}
	return ictx
}
