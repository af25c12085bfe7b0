// Package memory provides an in-process database.Store.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/selfie-finder/internal/database"
	"github.com/kozaktomas/selfie-finder/internal/face"
)

// Store keeps photos and encodings in maps guarded by a RWMutex.
type Store struct {
	dim int

	mu        sync.RWMutex
	nextID    int64
	photos    map[string]database.Photo
	events    map[string]map[string]struct{}
	encodings map[string][]database.StoredEncoding
}

// New creates an empty store accepting encodings of dimension dim.
func New(dim int) *Store {
	return &Store{
		dim:       dim,
		photos:    make(map[string]database.Photo),
		events:    make(map[string]map[string]struct{}),
		encodings: make(map[string][]database.StoredEncoding),
	}
}

// RegisterPhoto adds a photo to its event.
func (s *Store) RegisterPhoto(ctx context.Context, photo database.Photo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registerLocked(photo)
	return nil
}

func (s *Store) registerLocked(photo database.Photo) {
	if _, ok := s.photos[photo.ID]; ok {
		return
	}
	if photo.CreatedAt.IsZero() {
		photo.CreatedAt = time.Now()
	}
	s.photos[photo.ID] = photo
	if s.events[photo.EventID] == nil {
		s.events[photo.EventID] = make(map[string]struct{})
	}
	s.events[photo.EventID][photo.ID] = struct{}{}
}

// GetPhoto returns a photo by id.
func (s *Store) GetPhoto(ctx context.Context, photoID string) (*database.Photo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.photos[photoID]
	if !ok {
		return nil, database.ErrPhotoNotFound
	}
	return &p, nil
}

// PhotosInEvent returns the event's photo ids sorted for stable output.
func (s *Store) PhotosInEvent(ctx context.Context, eventID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.events[eventID]))
	for id := range s.events[eventID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// AppendEncodings appends encodings to an existing photo; nothing is written
// if any encoding has the wrong dimension.
func (s *Store) AppendEncodings(ctx context.Context, photoID string, encs []face.Encoding) error {
	if err := database.CheckDimensions(encs, s.dim); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.photos[photoID]; !ok {
		return database.ErrPhotoNotFound
	}
	s.appendLocked(photoID, encs)
	return nil
}

func (s *Store) appendLocked(photoID string, encs []face.Encoding) {
	now := time.Now()
	for _, enc := range encs {
		s.nextID++
		s.encodings[photoID] = append(s.encodings[photoID], database.StoredEncoding{
			ID:        s.nextID,
			PhotoID:   photoID,
			Encoding:  enc.Clone(),
			CreatedAt: now,
		})
	}
}

// CreatePhoto registers photo and appends encs atomically. It fails with
// database.ErrAlreadyIndexed when encs is non-empty and the photo already
// owns encodings.
func (s *Store) CreatePhoto(ctx context.Context, photo database.Photo, encs []face.Encoding) error {
	if err := database.CheckDimensions(encs, s.dim); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(encs) > 0 && len(s.encodings[photo.ID]) > 0 {
		return database.ErrAlreadyIndexed
	}
	s.registerLocked(photo)
	s.appendLocked(photo.ID, encs)
	return nil
}

// EncodingsForPhotos returns copies of the encodings owned by photoIDs.
func (s *Store) EncodingsForPhotos(ctx context.Context, photoIDs []string) ([]database.StoredEncoding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []database.StoredEncoding
	for _, id := range photoIDs {
		for _, se := range s.encodings[id] {
			se.Encoding = se.Encoding.Clone()
			out = append(out, se)
		}
	}
	return out, nil
}

// CountEncodings returns how many encodings a photo owns.
func (s *Store) CountEncodings(ctx context.Context, photoID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.encodings[photoID]), nil
}

// DeletePhotoEncodings drops a photo's encodings.
func (s *Store) DeletePhotoEncodings(ctx context.Context, photoID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.encodings[photoID])
	delete(s.encodings, photoID)
	return n, nil
}

// DeletePhoto removes a photo and its encodings.
func (s *Store) DeletePhoto(ctx context.Context, photoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.photos[photoID]
	if !ok {
		return database.ErrPhotoNotFound
	}
	s.deleteLocked(p)
	return nil
}

func (s *Store) deleteLocked(p database.Photo) {
	delete(s.photos, p.ID)
	delete(s.encodings, p.ID)
	if members := s.events[p.EventID]; members != nil {
		delete(members, p.ID)
		if len(members) == 0 {
			delete(s.events, p.EventID)
		}
	}
}

// DeleteEvent removes every photo of an event.
func (s *Store) DeleteEvent(ctx context.Context, eventID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.events[eventID]))
	for id := range s.events[eventID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		s.deleteLocked(s.photos[id])
	}
	return ids, nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

var _ database.Store = (*Store)(nil)
