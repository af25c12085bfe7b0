package database

import (
	"fmt"

	"github.com/kozaktomas/selfie-finder/internal/face"
)

// CheckDimensions verifies every encoding has exactly dim components.
func CheckDimensions(encs []face.Encoding, dim int) error {
	for i, enc := range encs {
		if err := enc.CheckDimension(dim); err != nil {
			return fmt.Errorf("encoding %d: %w", i, err)
		}
	}
	return nil
}
