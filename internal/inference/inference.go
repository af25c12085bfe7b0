// Package inference owns the pretrained detector and embedder artifacts.
//
// A Context is constructed once at startup by Load and passed explicitly to
// the face detector and embedder. It is either Ready or Disabled for the rest
// of the process lifetime. Model execution objects are not reentrant, so the
// context hands them out as Sessions from a fixed-size pool: a caller holds a
// session exclusively between Acquire and Release.
package inference

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/kozaktomas/selfie-finder/internal/faceerr"
)

// State is the engine-wide inference state.
type State int

const (
	StateUninitialized State = iota
	StateReady
	StateDisabled
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateDisabled:
		return "disabled"
	default:
		return "uninitialized"
	}
}

// DetectParams are the cascade tuning knobs.
type DetectParams struct {
	ScaleFactor  float64
	MinNeighbors int
	MinSize      int
}

// Tensor is a dense NCHW float32 input blob.
type Tensor struct {
	Shape [4]int
	Data  []float32
}

// DetectorModel runs a multi-scale cascade over an 8-bit intensity image.
type DetectorModel interface {
	DetectMultiScale(gray *image.Gray, params DetectParams) ([]image.Rectangle, error)
	Close() error
}

// EmbedderModel runs the embedding network's forward pass.
type EmbedderModel interface {
	Forward(input Tensor) ([]float32, error)
	Close() error
}

// Loader reads model artifacts from disk.
type Loader interface {
	LoadDetector(path string) (DetectorModel, error)
	LoadEmbedder(path string) (EmbedderModel, error)
}

// Config names the artifacts and the number of independent model copies.
type Config struct {
	DetectorPath string
	EmbedderPath string
	Instances    int
}

// Session is one exclusive detector + embedder pair.
type Session struct {
	Detector DetectorModel
	Embedder EmbedderModel
}

// Context is the explicit handle to the loaded models.
type Context struct {
	state    State
	loadErr  error
	sessions chan *Session
	all      []*Session
	once     sync.Once
}

// Load loads cfg.Instances copies of both artifacts. When any load fails the
// already loaded models are closed and a Disabled context is returned together
// with a ModelUnavailable error; the context is never nil.
func Load(cfg Config, loader Loader) (*Context, error) {
	if loader == nil {
		err := faceerr.New(faceerr.KindModelUnavailable, "load", "no model loader configured")
		return Disabled(err), err
	}

	instances := cfg.Instances
	if instances <= 0 {
		instances = 1
	}

	all := make([]*Session, 0, instances)
	closeAll := func() {
		for _, s := range all {
			_ = s.Detector.Close()
			_ = s.Embedder.Close()
		}
	}

	for i := range instances {
		det, err := loader.LoadDetector(cfg.DetectorPath)
		if err != nil {
			closeAll()
			ferr := faceerr.Wrap(faceerr.KindModelUnavailable, "load detector",
				fmt.Sprintf("instance %d from %s", i, cfg.DetectorPath), err)
			return Disabled(ferr), ferr
		}
		emb, err := loader.LoadEmbedder(cfg.EmbedderPath)
		if err != nil {
			_ = det.Close()
			closeAll()
			ferr := faceerr.Wrap(faceerr.KindModelUnavailable, "load embedder",
				fmt.Sprintf("instance %d from %s", i, cfg.EmbedderPath), err)
			return Disabled(ferr), ferr
		}
		all = append(all, &Session{Detector: det, Embedder: emb})
	}

	sessions := make(chan *Session, len(all))
	for _, s := range all {
		sessions <- s
	}

	return &Context{
		state:    StateReady,
		sessions: sessions,
		all:      all,
	}, nil
}

// Disabled returns a context in the Disabled state. reason is reported by Err.
func Disabled(reason error) *Context {
	if reason == nil {
		reason = faceerr.New(faceerr.KindModelUnavailable, "", "inference disabled by configuration")
	}
	return &Context{state: StateDisabled, loadErr: reason}
}

// State returns the fixed inference state.
func (c *Context) State() State {
	if c == nil {
		return StateUninitialized
	}
	return c.state
}

// Ready reports whether models are loaded.
func (c *Context) Ready() bool {
	return c.State() == StateReady
}

// Err returns the load error of a Disabled context.
func (c *Context) Err() error {
	if c == nil {
		return nil
	}
	return c.loadErr
}

// Instances returns the number of sessions in the pool.
func (c *Context) Instances() int {
	if c == nil {
		return 0
	}
	return len(c.all)
}

// Acquire takes a session out of the pool, waiting until one is free.
// A Disabled context returns an EngineDisabled error immediately.
func (c *Context) Acquire(ctx context.Context) (*Session, error) {
	if !c.Ready() {
		return nil, faceerr.New(faceerr.KindEngineDisabled, "acquire", "inference models are not loaded")
	}
	select {
	case s := <-c.sessions:
		return s, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for inference session: %w", ctx.Err())
	}
}

// Release returns a session to the pool.
func (c *Context) Release(s *Session) {
	if s == nil || !c.Ready() {
		return
	}
	c.sessions <- s
}

// WithSession runs fn while holding a session.
func (c *Context) WithSession(ctx context.Context, fn func(*Session) error) error {
	s, err := c.Acquire(ctx)
	if err != nil {
		return err
	}
	defer c.Release(s)
	return fn(s)
}

// Close releases every loaded model. It must only be called once no caller
// holds a session.
func (c *Context) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	c.once.Do(func() {
		for _, s := range c.all {
			if err := s.Detector.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing detector: %w", err))
			}
			if err := s.Embedder.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing embedder: %w", err))
			}
		}
	})
	return errors.Join(errs...)
}
