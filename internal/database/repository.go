package database

import (
	"context"

	"github.com/kozaktomas/selfie-finder/internal/face"
)

// EncodingReader provides read-only access to face encodings
type EncodingReader interface {
	// EncodingsForPhotos returns every encoding owned by the given photos.
	// Photos without encodings contribute nothing.
	EncodingsForPhotos(ctx context.Context, photoIDs []string) ([]StoredEncoding, error)
	// CountEncodings returns how many encodings a photo owns
	CountEncodings(ctx context.Context, photoID string) (int, error)
}

// EncodingWriter provides append and cascade-delete access to face encodings.
// Encodings are never updated in place.
type EncodingWriter interface {
	EncodingReader

	// AppendEncodings stores encodings for an existing photo in one transaction.
	// Every encoding must have the store's dimension.
	AppendEncodings(ctx context.Context, photoID string, encs []face.Encoding) error
	// DeletePhotoEncodings removes all encodings of a photo and returns how many were removed
	DeletePhotoEncodings(ctx context.Context, photoID string) (int, error)
}

// PhotoLister resolves event scope: which photos belong to an event.
type PhotoLister interface {
	// PhotosInEvent returns the ids of the photos owned by the event
	PhotosInEvent(ctx context.Context, eventID string) ([]string, error)
	// GetPhoto returns a photo or ErrPhotoNotFound
	GetPhoto(ctx context.Context, photoID string) (*Photo, error)
}

// PhotoDirectory is a writable PhotoLister.
type PhotoDirectory interface {
	PhotoLister

	// RegisterPhoto adds a photo to its event. Registering an existing id is a no-op.
	RegisterPhoto(ctx context.Context, photo Photo) error
	// DeletePhoto removes a photo and, by cascade, its encodings
	DeletePhoto(ctx context.Context, photoID string) error
	// DeleteEvent removes every photo of an event and returns their ids
	DeleteEvent(ctx context.Context, eventID string) ([]string, error)
}

// Store is a backend that owns both photos and their encodings.
type Store interface {
	EncodingWriter
	PhotoDirectory

	// CreatePhoto registers photo (if new) and appends encs in a single
	// transaction. When encs is non-empty and the photo already owns
	// encodings nothing is written and ErrAlreadyIndexed is returned; the
	// check and the write are atomic with respect to other CreatePhoto calls.
	CreatePhoto(ctx context.Context, photo Photo, encs []face.Encoding) error
	// Close releases the backend's resources
	Close() error
}
