// Package photostore keeps the original bytes of uploaded photos so they can
// be served back and re-indexed later.
package photostore

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/kozaktomas/selfie-finder/internal/config"
)

var (
	ErrNotFound     = errors.New("photo object not found")
	ErrInvalidKey   = errors.New("invalid photo object key")
	ErrPutFailed    = errors.New("failed to store photo object")
	ErrGetFailed    = errors.New("failed to read photo object")
	ErrDeleteFailed = errors.New("failed to delete photo object")
)

// Store persists photo bytes under opaque keys.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Key returns the object key for a photo: events/<eventID>/<photoID>.
func Key(eventID, photoID string) string {
	return path.Join("events", eventID, photoID)
}

func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}

// Open builds the store selected by cfg.Backend.
func Open(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "local":
		return NewLocal(cfg.LocalDir)
	case "s3":
		return NewS3(ctx, S3Config{
			Bucket:       cfg.Bucket,
			Prefix:       cfg.Prefix,
			Region:       cfg.Region,
			Endpoint:     cfg.Endpoint,
			UsePathStyle: cfg.UsePathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
