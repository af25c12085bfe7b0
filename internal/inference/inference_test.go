package inference_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kozaktomas/selfie-finder/internal/faceerr"
	"github.com/kozaktomas/selfie-finder/internal/inference"
	"github.com/kozaktomas/selfie-finder/internal/inference/mock"
)

func TestLoad_Ready(t *testing.T) {
	loader := mock.NewLoader(&mock.Detector{}, &mock.Embedder{})

	ictx, err := inference.Load(inference.Config{DetectorPath: "d.xml", EmbedderPath: "e.t7", Instances: 1}, loader)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if ictx.State() != inference.StateReady {
		t.Errorf("State() = %v, want ready", ictx.State())
	}
	if !ictx.Ready() {
		t.Error("Ready() = false")
	}
	if ictx.Err() != nil {
		t.Errorf("Err() = %v, want nil", ictx.Err())
	}
}

func TestLoad_DetectorFailureDisables(t *testing.T) {
	ictx, err := inference.Load(inference.Config{DetectorPath: "missing.xml"}, mock.NewFailingLoader())
	if err == nil {
		t.Fatal("expected load error")
	}
	if !faceerr.IsKind(err, faceerr.KindModelUnavailable) {
		t.Errorf("expected ModelUnavailable, got %v", err)
	}
	if !errors.Is(err, mock.ErrMissingArtifact) {
		t.Error("expected the loader error to be wrapped")
	}
	if ictx == nil {
		t.Fatal("Load must return a non-nil Disabled context")
	}
	if ictx.State() != inference.StateDisabled {
		t.Errorf("State() = %v, want disabled", ictx.State())
	}
	if ictx.Err() == nil {
		t.Error("Disabled context should report its load error")
	}
}

func TestLoad_EmbedderFailureClosesLoadedModels(t *testing.T) {
	det := &mock.Detector{}
	loader := &mock.Loader{Detector: det, EmbedderErr: errors.New("corrupt torch file")}

	ictx, err := inference.Load(inference.Config{Instances: 2}, loader)
	if err == nil {
		t.Fatal("expected load error")
	}
	if ictx.Ready() {
		t.Error("context should be disabled")
	}
	if !det.Closed() {
		t.Error("detector loaded before the failure should be closed")
	}
}

func TestLoad_NilLoader(t *testing.T) {
	ictx, err := inference.Load(inference.Config{}, nil)
	if !faceerr.IsKind(err, faceerr.KindModelUnavailable) {
		t.Fatalf("expected ModelUnavailable, got %v", err)
	}
	if ictx.Ready() {
		t.Error("context should be disabled")
	}
}

func TestDisabled_AcquireFailsFast(t *testing.T) {
	ictx := inference.Disabled(nil)

	_, err := ictx.Acquire(context.Background())
	if !faceerr.IsKind(err, faceerr.KindEngineDisabled) {
		t.Errorf("expected EngineDisabled, got %v", err)
	}
	if ictx.Err() == nil {
		t.Error("Disabled(nil) should still carry a reason")
	}
}

func TestNilContext(t *testing.T) {
	var ictx *inference.Context
	if ictx.State() != inference.StateUninitialized {
		t.Errorf("nil context State() = %v", ictx.State())
	}
	if ictx.Instances() != 0 {
		t.Error("nil context has no instances")
	}
}

func TestLoad_InstancePool(t *testing.T) {
	loader := &mock.Loader{
		NewDetector: func() *mock.Detector { return &mock.Detector{} },
		NewEmbedder: func() *mock.Embedder { return &mock.Embedder{} },
	}

	ictx, err := inference.Load(inference.Config{Instances: 3}, loader)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if ictx.Instances() != 3 {
		t.Errorf("Instances() = %d, want 3", ictx.Instances())
	}
	if len(loader.Detectors) != 3 || len(loader.Embedders) != 3 {
		t.Errorf("expected 3 independent model copies, got %d/%d", len(loader.Detectors), len(loader.Embedders))
	}

	if err := ictx.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	for i, d := range loader.Detectors {
		if !d.Closed() {
			t.Errorf("detector %d not closed", i)
		}
	}
}

func TestAcquire_SerializesSingleInstance(t *testing.T) {
	ictx := mock.ReadyContext(&mock.Detector{}, &mock.Embedder{})

	var (
		mu      sync.Mutex
		holders int
		maxSeen int
		wg      sync.WaitGroup
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := ictx.WithSession(context.Background(), func(*inference.Session) error {
				mu.Lock()
				holders++
				maxSeen = max(maxSeen, holders)
				mu.Unlock()

				time.Sleep(2 * time.Millisecond)

				mu.Lock()
				holders--
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Errorf("WithSession() error: %v", err)
			}
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Errorf("expected at most one concurrent session holder, saw %d", maxSeen)
	}
}

func TestAcquire_ContextCancelled(t *testing.T) {
	ictx := mock.ReadyContext(&mock.Detector{}, &mock.Embedder{})

	s, err := ictx.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	defer ictx.Release(s)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := ictx.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded while the only session is held, got %v", err)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state    inference.State
		expected string
	}{
		{inference.StateUninitialized, "uninitialized"},
		{inference.StateReady, "ready"},
		{inference.StateDisabled, "disabled"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.expected {
			t.Errorf("String() = %q, want %q", got, tt.expected)
		}
	}
}
