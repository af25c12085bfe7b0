package face

import (
	"fmt"
	"math"

	"github.com/kozaktomas/selfie-finder/internal/faceerr"
)

// Encoding is a fixed-length face descriptor.
type Encoding []float32

// Clone returns an independent copy.
func (e Encoding) Clone() Encoding {
	if e == nil {
		return nil
	}
	out := make(Encoding, len(e))
	copy(out, e)
	return out
}

// CheckDimension returns a DimensionMismatch error unless len(e) == dim.
func (e Encoding) CheckDimension(dim int) error {
	if len(e) != dim {
		return faceerr.New(faceerr.KindDimensionMismatch, "check dimension",
			fmt.Sprintf("descriptor has %d components, expected %d", len(e), dim))
	}
	return nil
}

// Distance returns the Euclidean distance between a and b.
// Descriptors of different length yield a DimensionMismatch error.
func Distance(a, b Encoding) (float64, error) {
	if len(a) != len(b) {
		return 0, faceerr.New(faceerr.KindDimensionMismatch, "distance",
			fmt.Sprintf("cannot compare descriptors of length %d and %d", len(a), len(b)))
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// Matches reports whether a and b are closer than threshold (strictly).
func Matches(a, b Encoding, threshold float64) (bool, error) {
	d, err := Distance(a, b)
	if err != nil {
		return false, err
	}
	return d < threshold, nil
}
