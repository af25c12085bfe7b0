package database

import (
	"errors"
	"time"

	"github.com/kozaktomas/selfie-finder/internal/face"
)

// Errors shared by every backend.
var (
	ErrPhotoNotFound  = errors.New("photo not found")
	ErrAlreadyIndexed = errors.New("photo already has face encodings")
	ErrReadOnly       = errors.New("photo directory is read-only")
)

// Photo is a directory entry: one photo owned by one event.
type Photo struct {
	ID        string
	EventID   string
	Filename  string
	CreatedAt time.Time
}

// StoredEncoding is one face descriptor owned by a photo.
type StoredEncoding struct {
	ID        int64
	PhotoID   string
	Encoding  face.Encoding
	CreatedAt time.Time
}
