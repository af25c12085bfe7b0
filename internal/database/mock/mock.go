// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"sync"

	"github.com/kozaktomas/selfie-finder/internal/database"
	"github.com/kozaktomas/selfie-finder/internal/database/memory"
	"github.com/kozaktomas/selfie-finder/internal/face"
)

// MockStore is a database.Store backed by the in-memory store, with error
// injection for every operation and call counters for assertions.
type MockStore struct {
	*memory.Store

	mu    sync.Mutex
	calls map[string]int

	// Error injection
	RegisterError      error
	GetPhotoError      error
	PhotosInEventError error
	CreateError        error
	AppendError        error
	EncodingsError     error
	CountError         error
	DeleteEncodingsErr error
	DeletePhotoError   error
	DeleteEventError   error
	CloseError         error
}

// NewMockStore creates a new mock store accepting encodings of dimension dim
func NewMockStore(dim int) *MockStore {
	return &MockStore{
		Store: memory.New(dim),
		calls: make(map[string]int),
	}
}

func (m *MockStore) record(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[op]++
}

// Calls returns how many times op was invoked
func (m *MockStore) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// RegisterPhoto registers a photo unless RegisterError is set
func (m *MockStore) RegisterPhoto(ctx context.Context, photo database.Photo) error {
	m.record("RegisterPhoto")
	if m.RegisterError != nil {
		return m.RegisterError
	}
	return m.Store.RegisterPhoto(ctx, photo)
}

// GetPhoto returns a photo unless GetPhotoError is set
func (m *MockStore) GetPhoto(ctx context.Context, photoID string) (*database.Photo, error) {
	m.record("GetPhoto")
	if m.GetPhotoError != nil {
		return nil, m.GetPhotoError
	}
	return m.Store.GetPhoto(ctx, photoID)
}

// PhotosInEvent lists an event unless PhotosInEventError is set
func (m *MockStore) PhotosInEvent(ctx context.Context, eventID string) ([]string, error) {
	m.record("PhotosInEvent")
	if m.PhotosInEventError != nil {
		return nil, m.PhotosInEventError
	}
	return m.Store.PhotosInEvent(ctx, eventID)
}

// CreatePhoto creates a photo unless CreateError is set
func (m *MockStore) CreatePhoto(ctx context.Context, photo database.Photo, encs []face.Encoding) error {
	m.record("CreatePhoto")
	if m.CreateError != nil {
		return m.CreateError
	}
	return m.Store.CreatePhoto(ctx, photo, encs)
}

// AppendEncodings appends encodings unless AppendError is set
func (m *MockStore) AppendEncodings(ctx context.Context, photoID string, encs []face.Encoding) error {
	m.record("AppendEncodings")
	if m.AppendError != nil {
		return m.AppendError
	}
	return m.Store.AppendEncodings(ctx, photoID, encs)
}

// EncodingsForPhotos reads encodings unless EncodingsError is set
func (m *MockStore) EncodingsForPhotos(ctx context.Context, photoIDs []string) ([]database.StoredEncoding, error) {
	m.record("EncodingsForPhotos")
	if m.EncodingsError != nil {
		return nil, m.EncodingsError
	}
	return m.Store.EncodingsForPhotos(ctx, photoIDs)
}

// CountEncodings counts encodings unless CountError is set
func (m *MockStore) CountEncodings(ctx context.Context, photoID string) (int, error) {
	m.record("CountEncodings")
	if m.CountError != nil {
		return 0, m.CountError
	}
	return m.Store.CountEncodings(ctx, photoID)
}

// DeletePhotoEncodings drops encodings unless DeleteEncodingsErr is set
func (m *MockStore) DeletePhotoEncodings(ctx context.Context, photoID string) (int, error) {
	m.record("DeletePhotoEncodings")
	if m.DeleteEncodingsErr != nil {
		return 0, m.DeleteEncodingsErr
	}
	return m.Store.DeletePhotoEncodings(ctx, photoID)
}

// DeletePhoto deletes a photo unless DeletePhotoError is set
func (m *MockStore) DeletePhoto(ctx context.Context, photoID string) error {
	m.record("DeletePhoto")
	if m.DeletePhotoError != nil {
		return m.DeletePhotoError
	}
	return m.Store.DeletePhoto(ctx, photoID)
}

// DeleteEvent deletes an event unless DeleteEventError is set
func (m *MockStore) DeleteEvent(ctx context.Context, eventID string) ([]string, error) {
	m.record("DeleteEvent")
	if m.DeleteEventError != nil {
		return nil, m.DeleteEventError
	}
	return m.Store.DeleteEvent(ctx, eventID)
}

// Close returns CloseError
func (m *MockStore) Close() error {
	m.record("Close")
	return m.CloseError
}

// MockLister is a static database.PhotoLister
type MockLister struct {
	mu     sync.RWMutex
	photos map[string]database.Photo
	events map[string][]string

	// Error injection
	ListError error
	GetError  error
}

// NewMockLister creates an empty lister
func NewMockLister() *MockLister {
	return &MockLister{
		photos: make(map[string]database.Photo),
		events: make(map[string][]string),
	}
}

// AddPhoto adds a photo to the lister
func (m *MockLister) AddPhoto(p database.Photo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.photos[p.ID]; !ok {
		m.events[p.EventID] = append(m.events[p.EventID], p.ID)
	}
	m.photos[p.ID] = p
}

// PhotosInEvent returns the ids added for eventID
func (m *MockLister) PhotosInEvent(ctx context.Context, eventID string) ([]string, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.events[eventID]...), nil
}

// GetPhoto returns a photo or database.ErrPhotoNotFound
func (m *MockLister) GetPhoto(ctx context.Context, photoID string) (*database.Photo, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.photos[photoID]
	if !ok {
		return nil, database.ErrPhotoNotFound
	}
	return &p, nil
}

var (
	_ database.Store       = (*MockStore)(nil)
	_ database.PhotoLister = (*MockLister)(nil)
)
