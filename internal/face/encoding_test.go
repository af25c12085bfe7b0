package face

import (
	"errors"
	"math"
	"testing"

	"github.com/kozaktomas/selfie-finder/internal/faceerr"
)

func TestDistance(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Encoding
		expected float64
	}{
		{"identical", Encoding{0.1, 0.2, 0.3}, Encoding{0.1, 0.2, 0.3}, 0},
		{"three four five", Encoding{0, 0}, Encoding{3, 4}, 5},
		{"symmetric", Encoding{3, 4}, Encoding{0, 0}, 5},
		{"empty", Encoding{}, Encoding{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Distance(tt.a, tt.b)
			if err != nil {
				t.Fatalf("Distance() error: %v", err)
			}
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("Distance() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestDistance_DimensionMismatch(t *testing.T) {
	_, err := Distance(make(Encoding, 128), make(Encoding, 64))
	if err == nil {
		t.Fatal("expected an error for mismatched dimensions")
	}
	if !errors.Is(err, faceerr.Sentinel(faceerr.KindDimensionMismatch)) {
		t.Errorf("expected DimensionMismatch, got %v", err)
	}
}

func TestMatches_ThresholdIsStrict(t *testing.T) {
	a := Encoding{0, 0}

	tests := []struct {
		name     string
		b        Encoding
		expected bool
	}{
		{"well inside", Encoding{0.1, 0}, true},
		{"exactly at threshold", Encoding{0.8, 0}, false},
		{"just inside", Encoding{0.79, 0}, true},
		{"outside", Encoding{0.6, 0.6}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Matches(a, tt.b, 0.8)
			if err != nil {
				t.Fatalf("Matches() error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("Matches() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestMatches_MismatchIsNotNoMatch(t *testing.T) {
	ok, err := Matches(Encoding{1, 2, 3}, Encoding{1, 2}, 0.8)
	if ok {
		t.Error("mismatched descriptors must not match")
	}
	if !faceerr.IsKind(err, faceerr.KindDimensionMismatch) {
		t.Errorf("expected DimensionMismatch, got %v", err)
	}
}

func TestEncoding_CheckDimension(t *testing.T) {
	if err := make(Encoding, 128).CheckDimension(128); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := make(Encoding, 127).CheckDimension(128); !faceerr.IsKind(err, faceerr.KindDimensionMismatch) {
		t.Errorf("expected DimensionMismatch, got %v", err)
	}
}

func TestEncoding_Clone(t *testing.T) {
	orig := Encoding{1, 2, 3}
	cp := orig.Clone()
	cp[0] = 9

	if orig[0] != 1 {
		t.Error("Clone must not share storage")
	}
	if Encoding(nil).Clone() != nil {
		t.Error("Clone of nil should be nil")
	}
}
