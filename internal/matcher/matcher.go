// Package matcher finds the photos of an event that contain a face close to a
// query descriptor.
package matcher

import (
	"context"
	"fmt"
	"sort"

	"github.com/kozaktomas/selfie-finder/internal/database"
	"github.com/kozaktomas/selfie-finder/internal/face"
)

// DefaultThreshold is the strict L2 upper bound for a match.
const DefaultThreshold = 0.8

// Searcher returns the ids of the photos in eventID with at least one face
// matching query. Each id appears at most once.
type Searcher interface {
	Match(ctx context.Context, query face.Encoding, eventID string) ([]string, error)
}

// Linear scans every encoding of the event.
type Linear struct {
	photos    database.PhotoLister
	encodings database.EncodingReader
	threshold float64
}

// NewLinear creates a linear searcher. A non-positive threshold selects DefaultThreshold.
func NewLinear(photos database.PhotoLister, encodings database.EncodingReader, threshold float64) *Linear {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Linear{photos: photos, encodings: encodings, threshold: threshold}
}

// Threshold returns the configured match threshold.
func (l *Linear) Threshold() float64 {
	return l.threshold
}

// Match resolves the event scope first and only then loads encodings, so no
// encoding from another event is ever compared.
func (l *Linear) Match(ctx context.Context, query face.Encoding, eventID string) ([]string, error) {
	ids, err := l.photos.PhotosInEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list event photos: %w", err)
	}
	if len(ids) == 0 {
		return []string{}, nil
	}

	stored, err := l.encodings.EncodingsForPhotos(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load encodings: %w", err)
	}

	inScope := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		inScope[id] = struct{}{}
	}

	matched := make(map[string]struct{})
	for _, se := range stored {
		if _, ok := inScope[se.PhotoID]; !ok {
			continue
		}
		if _, done := matched[se.PhotoID]; done {
			continue
		}
		ok, err := face.Matches(query, se.Encoding, l.threshold)
		if err != nil {
			return nil, fmt.Errorf("compare encoding %d of photo %s: %w", se.ID, se.PhotoID, err)
		}
		if ok {
			matched[se.PhotoID] = struct{}{}
		}
	}

	out := make([]string, 0, len(matched))
	for id := range matched {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

var _ Searcher = (*Linear)(nil)
