package matcher

import (
	"context"
	"errors"
	"testing"

	"github.com/kozaktomas/selfie-finder/internal/database"
	"github.com/kozaktomas/selfie-finder/internal/database/memory"
	"github.com/kozaktomas/selfie-finder/internal/database/mock"
	"github.com/kozaktomas/selfie-finder/internal/face"
	"github.com/kozaktomas/selfie-finder/internal/faceerr"
)

func unit(dim, axis int, scale float32) face.Encoding {
	e := make(face.Encoding, dim)
	e[axis] = scale
	return e
}

func seed(t *testing.T, s *memory.Store, photoID, eventID string, encs ...face.Encoding) {
	t.Helper()
	if err := s.CreatePhoto(context.Background(), database.Photo{ID: photoID, EventID: eventID}, encs); err != nil {
		t.Fatalf("CreatePhoto(%s) error: %v", photoID, err)
	}
}

func TestLinear_Match(t *testing.T) {
	s := memory.New(4)
	seed(t, s, "near", "e1", unit(4, 0, 0.5))
	seed(t, s, "far", "e1", unit(4, 0, 2))
	seed(t, s, "mixed", "e1", unit(4, 1, 3), unit(4, 0, 0.1))
	seed(t, s, "empty", "e1")
	seed(t, s, "other", "e2", unit(4, 0, 0))

	m := NewLinear(s, s, 0.8)
	got, err := m.Match(context.Background(), unit(4, 0, 0), "e1")
	if err != nil {
		t.Fatalf("Match() error: %v", err)
	}

	want := []string{"mixed", "near"}
	if len(got) != len(want) {
		t.Fatalf("Match() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Match()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestLinear_NoDuplicates(t *testing.T) {
	s := memory.New(2)
	seed(t, s, "group", "e1", face.Encoding{0, 0}, face.Encoding{0.1, 0}, face.Encoding{0, 0.1})

	got, err := NewLinear(s, s, 0.8).Match(context.Background(), face.Encoding{0, 0}, "e1")
	if err != nil {
		t.Fatalf("Match() error: %v", err)
	}
	if len(got) != 1 || got[0] != "group" {
		t.Errorf("Match() = %v, want [group]", got)
	}
}

func TestLinear_EmptyEvent(t *testing.T) {
	s := memory.New(2)
	got, err := NewLinear(s, s, 0.8).Match(context.Background(), face.Encoding{0, 0}, "nothing")
	if err != nil {
		t.Fatalf("Match() error: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("expected an empty non-nil result, got %#v", got)
	}
}

func TestLinear_DimensionMismatch(t *testing.T) {
	s := memory.New(4)
	seed(t, s, "p1", "e1", unit(4, 0, 0))

	_, err := NewLinear(s, s, 0.8).Match(context.Background(), face.Encoding{0, 0}, "e1")
	if !faceerr.IsKind(err, faceerr.KindDimensionMismatch) {
		t.Fatalf("expected DimensionMismatch, got %v", err)
	}
}

func TestLinear_DefaultThreshold(t *testing.T) {
	m := NewLinear(memory.New(2), memory.New(2), 0)
	if m.Threshold() != DefaultThreshold {
		t.Errorf("Threshold() = %v, want %v", m.Threshold(), DefaultThreshold)
	}
}

func TestLinear_ScopeComesFromLister(t *testing.T) {
	store := mock.NewMockStore(2)
	_ = store.CreatePhoto(context.Background(), database.Photo{ID: "1", EventID: "ignored"}, []face.Encoding{{0, 0}})
	_ = store.CreatePhoto(context.Background(), database.Photo{ID: "2", EventID: "ignored"}, []face.Encoding{{0, 0}})

	lister := mock.NewMockLister()
	lister.AddPhoto(database.Photo{ID: "1", EventID: "42"})

	got, err := NewLinear(lister, store, 0.8).Match(context.Background(), face.Encoding{0, 0}, "42")
	if err != nil {
		t.Fatalf("Match() error: %v", err)
	}
	if len(got) != 1 || got[0] != "1" {
		t.Errorf("Match() = %v, want [1]", got)
	}
}

func TestLinear_StorageErrors(t *testing.T) {
	boom := errors.New("connection reset")

	tests := []struct {
		name  string
		setup func(*mock.MockStore)
	}{
		{"list", func(s *mock.MockStore) { s.PhotosInEventError = boom }},
		{"encodings", func(s *mock.MockStore) { s.EncodingsError = boom }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := mock.NewMockStore(2)
			_ = s.CreatePhoto(context.Background(), database.Photo{ID: "p", EventID: "e"}, []face.Encoding{{0, 0}})
			tt.setup(s)

			_, err := NewLinear(s, s, 0.8).Match(context.Background(), face.Encoding{0, 0}, "e")
			if !errors.Is(err, boom) {
				t.Errorf("expected wrapped storage error, got %v", err)
			}
		})
	}
}

func TestLinear_DeletedPhotoNeverMatches(t *testing.T) {
	ctx := context.Background()
	s := memory.New(2)
	seed(t, s, "p1", "e1", face.Encoding{0, 0})
	seed(t, s, "p2", "e1", face.Encoding{0, 0})

	if err := s.DeletePhoto(ctx, "p1"); err != nil {
		t.Fatalf("DeletePhoto() error: %v", err)
	}

	got, err := NewLinear(s, s, 0.8).Match(ctx, face.Encoding{0, 0}, "e1")
	if err != nil {
		t.Fatalf("Match() error: %v", err)
	}
	if len(got) != 1 || got[0] != "p2" {
		t.Errorf("Match() = %v, want [p2]", got)
	}
}
