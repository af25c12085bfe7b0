package matcher

import (
	"context"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/kozaktomas/selfie-finder/internal/database"
	"github.com/kozaktomas/selfie-finder/internal/database/memory"
	"github.com/kozaktomas/selfie-finder/internal/face"
)

const propDim = 16

func genEncoding() gopter.Gen {
	return gen.SliceOfN(propDim, gen.Float32Range(-1, 1))
}

func matchOne(stored face.Encoding, query face.Encoding, threshold float64) (bool, error) {
	s := memory.New(propDim)
	if err := s.CreatePhoto(context.Background(), database.Photo{ID: "p", EventID: "e"}, []face.Encoding{stored}); err != nil {
		return false, err
	}
	got, err := NewLinear(s, s, threshold).Match(context.Background(), query, "e")
	if err != nil {
		return false, err
	}
	return len(got) == 1, nil
}

func TestProperty_Reflexive(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("a stored encoding always matches itself", prop.ForAll(
		func(enc []float32) bool {
			ok, err := matchOne(enc, enc, DefaultThreshold)
			return err == nil && ok
		},
		genEncoding(),
	))

	properties.TestingRun(t)
}

func TestProperty_ThresholdBoundary(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	// Stored encoding lies on one axis so its distance from the origin is exact.
	properties.Property("distance equal to the threshold is not a match", prop.ForAll(
		func(d float64) bool {
			stored := make(face.Encoding, propDim)
			stored[0] = float32(d)
			dist := float64(stored[0])

			atBoundary, err := matchOne(stored, make(face.Encoding, propDim), dist)
			if err != nil || atBoundary {
				return false
			}
			above, err := matchOne(stored, make(face.Encoding, propDim), dist*1.000001)
			return err == nil && above
		},
		gen.Float64Range(0.01, 2),
	))

	properties.Property("raising the threshold never removes a match", prop.ForAll(
		func(a, b []float32, t1, delta float64) bool {
			low, err := matchOne(a, b, t1)
			if err != nil {
				return false
			}
			high, err := matchOne(a, b, t1+delta)
			if err != nil {
				return false
			}
			return !low || high
		},
		genEncoding(),
		genEncoding(),
		gen.Float64Range(0.1, 3),
		gen.Float64Range(0, 2),
	))

	properties.TestingRun(t)
}

func TestProperty_EventIsolation(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("identical encodings in another event are never returned", prop.ForAll(
		func(enc []float32, n int) bool {
			ctx := context.Background()
			s := memory.New(propDim)
			for i := 0; i < n; i++ {
				_ = s.CreatePhoto(ctx, database.Photo{ID: fmt.Sprintf("a%d", i), EventID: "A"}, []face.Encoding{enc})
				_ = s.CreatePhoto(ctx, database.Photo{ID: fmt.Sprintf("b%d", i), EventID: "B"}, []face.Encoding{enc})
			}

			got, err := NewLinear(s, s, DefaultThreshold).Match(ctx, enc, "A")
			if err != nil || len(got) != n {
				return false
			}
			for _, id := range got {
				if id[0] != 'a' {
					return false
				}
			}
			return true
		},
		genEncoding(),
		gen.IntRange(1, 5),
	))

	properties.Property("each photo appears at most once", prop.ForAll(
		func(enc []float32, faces int) bool {
			ctx := context.Background()
			s := memory.New(propDim)
			encs := make([]face.Encoding, faces)
			for i := range encs {
				encs[i] = enc
			}
			_ = s.CreatePhoto(ctx, database.Photo{ID: "group", EventID: "A"}, encs)

			got, err := NewLinear(s, s, DefaultThreshold).Match(ctx, enc, "A")
			return err == nil && len(got) == 1
		},
		genEncoding(),
		gen.IntRange(1, 8),
	))

	properties.TestingRun(t)
}
