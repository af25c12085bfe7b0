// Package engine is the face indexing and matching service: it turns uploaded
// photos into stored face encodings and answers selfie searches within an
// event.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kozaktomas/selfie-finder/internal/database"
	"github.com/kozaktomas/selfie-finder/internal/face"
	"github.com/kozaktomas/selfie-finder/internal/faceerr"
	"github.com/kozaktomas/selfie-finder/internal/inference"
	"github.com/kozaktomas/selfie-finder/internal/logging"
	"github.com/kozaktomas/selfie-finder/internal/matcher"
	"github.com/kozaktomas/selfie-finder/internal/metrics"
	"github.com/kozaktomas/selfie-finder/internal/notify"
	"github.com/kozaktomas/selfie-finder/internal/photostore"
)

// ErrNoPhotoStore is returned by operations that need stored photo bytes
// when no photo store is configured.
var ErrNoPhotoStore = errors.New("photo store is not configured")

// Options wires an Engine.
type Options struct {
	Inference *inference.Context
	Extractor *face.Extractor
	Store     database.Store

	// Lister resolves event scope. Nil means Store owns the photo directory;
	// a separate lister makes batch uploads unavailable.
	Lister database.PhotoLister
	// Searcher defaults to a matcher.Linear over Lister and Store.
	Searcher  matcher.Searcher
	Threshold float64

	Photos    photostore.Store
	Publisher notify.Publisher
	Observer  metrics.Observer
	Logger    *slog.Logger
}

// Engine coordinates extraction, storage and matching.
type Engine struct {
	ictx      *inference.Context
	extractor *face.Extractor
	store     database.Store
	lister    database.PhotoLister
	external  bool
	searcher  matcher.Searcher
	threshold float64
	photos    photostore.Store
	publisher notify.Publisher
	observer  metrics.Observer
	log       *slog.Logger
}

// New validates opts and builds an Engine.
func New(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, errors.New("engine: encoding store is required")
	}
	if opts.Extractor == nil {
		return nil, errors.New("engine: face extractor is required")
	}
	if opts.Inference == nil {
		opts.Inference = inference.Disabled(nil)
	}

	e := &Engine{
		ictx:      opts.Inference,
		extractor: opts.Extractor,
		store:     opts.Store,
		lister:    opts.Lister,
		photos:    opts.Photos,
		publisher: notify.OrNop(opts.Publisher),
		observer:  metrics.OrNop(opts.Observer),
		log:       logging.OrNoop(opts.Logger),
	}
	if e.lister == nil {
		e.lister = opts.Store
	} else {
		e.external = true
	}

	e.threshold = opts.Threshold
	if e.threshold <= 0 {
		e.threshold = matcher.DefaultThreshold
	}
	e.searcher = opts.Searcher
	if e.searcher == nil {
		e.searcher = matcher.NewLinear(e.lister, e.store, e.threshold)
	}
	return e, nil
}

// Status describes the engine for health checks.
type Status struct {
	State     string  `json:"state"`
	Error     string  `json:"error,omitempty"`
	Dimension int     `json:"dimension"`
	Threshold float64 `json:"threshold"`
}

// Status reports whether the models are loaded and why not.
func (e *Engine) Status() Status {
	s := Status{
		State:     e.ictx.State().String(),
		Dimension: e.extractor.Dimension(),
		Threshold: e.threshold,
	}
	if err := e.ictx.Err(); err != nil {
		s.Error = err.Error()
	}
	return s
}

// Ready reports whether searches and ingestion can run.
func (e *Engine) Ready() bool {
	return e.ictx.Ready()
}

// IngestResult describes one indexed photo.
type IngestResult struct {
	PhotoID         string             `json:"photo_id"`
	EventID         string             `json:"event_id"`
	FacesDetected   int                `json:"faces_detected"`
	EncodingsStored int                `json:"encodings_stored"`
	FailedFaces     int                `json:"failed_faces"`
	Failures        []face.FaceFailure `json:"-"`
}

// Ingest extracts every face of data and stores the encodings under an
// existing photo. Photos that already own encodings are rejected with
// database.ErrAlreadyIndexed. The count here only avoids needless extraction;
// the store repeats the check atomically, so concurrent ingests of one photo
// store a single set of encodings.
func (e *Engine) Ingest(ctx context.Context, photoID string, data []byte) (*IngestResult, error) {
	if !e.ictx.Ready() {
		return nil, errDisabled("ingest")
	}

	photo, err := e.lister.GetPhoto(ctx, photoID)
	if err != nil {
		return nil, fmt.Errorf("get photo %s: %w", photoID, err)
	}

	n, err := e.store.CountEncodings(ctx, photoID)
	if err != nil {
		return nil, fmt.Errorf("count encodings: %w", err)
	}
	if n > 0 {
		return nil, fmt.Errorf("photo %s: %w", photoID, database.ErrAlreadyIndexed)
	}

	return e.index(ctx, *photo, data)
}

// index runs extraction over data and stores the result. The photo row is
// written together with the encodings.
func (e *Engine) index(ctx context.Context, photo database.Photo, data []byte) (*IngestResult, error) {
	start := time.Now()

	ext, err := e.extractor.ExtractAll(ctx, data)
	if err != nil {
		e.observer.OnIngest(time.Since(start), 0, 0, err)
		return nil, err
	}

	res := &IngestResult{
		PhotoID:       photo.ID,
		EventID:       photo.EventID,
		FacesDetected: len(ext.Boxes),
		FailedFaces:   len(ext.Failures),
		Failures:      ext.Failures,
	}
	for _, f := range ext.Failures {
		e.observer.OnFaceFailure(f.Kind)
	}

	if len(ext.Encodings) > 0 {
		if err := e.store.CreatePhoto(ctx, photo, ext.Encodings); err != nil {
			e.observer.OnIngest(time.Since(start), res.FacesDetected, 0, err)
			return nil, fmt.Errorf("store encodings for photo %s: %w", photo.ID, err)
		}
		res.EncodingsStored = len(ext.Encodings)
	}
	e.observer.OnIngest(time.Since(start), res.FacesDetected, res.EncodingsStored, nil)

	e.log.Info("photo indexed",
		"photo_id", photo.ID,
		"event_id", photo.EventID,
		"faces", res.FacesDetected,
		"encodings", res.EncodingsStored,
		"failed", res.FailedFaces,
	)

	if res.EncodingsStored > 0 {
		err := e.publisher.PhotoIngested(ctx, notify.PhotoIngested{
			EventID:         photo.EventID,
			PhotoID:         photo.ID,
			FacesDetected:   res.FacesDetected,
			EncodingsStored: res.EncodingsStored,
		})
		if err != nil {
			e.log.Warn("failed to publish ingest notification", "photo_id", photo.ID, "error", err)
		}
	}
	return res, nil
}

func errDisabled(op string) error {
	return faceerr.New(faceerr.KindEngineDisabled, op, "inference models are not loaded")
}

// DeletePhoto removes a photo, its encodings and its stored bytes.
func (e *Engine) DeletePhoto(ctx context.Context, photoID string) error {
	photo, err := e.store.GetPhoto(ctx, photoID)
	if err != nil {
		return fmt.Errorf("get photo %s: %w", photoID, err)
	}
	if err := e.store.DeletePhoto(ctx, photoID); err != nil {
		return fmt.Errorf("delete photo %s: %w", photoID, err)
	}
	e.removeBytes(ctx, photo.EventID, photoID)
	e.log.Info("photo deleted", "photo_id", photoID, "event_id", photo.EventID)
	return nil
}

// DeleteEvent removes every photo of an event and returns their ids.
func (e *Engine) DeleteEvent(ctx context.Context, eventID string) ([]string, error) {
	ids, err := e.store.DeleteEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("delete event %s: %w", eventID, err)
	}
	for _, id := range ids {
		e.removeBytes(ctx, eventID, id)
	}
	e.log.Info("event deleted", "event_id", eventID, "photos", len(ids))
	return ids, nil
}

func (e *Engine) removeBytes(ctx context.Context, eventID, photoID string) {
	if e.photos == nil {
		return
	}
	if err := e.photos.Delete(ctx, photostore.Key(eventID, photoID)); err != nil {
		e.log.Warn("failed to delete photo bytes", "photo_id", photoID, "error", err)
	}
}

// PhotoBytes returns a photo together with its stored bytes.
func (e *Engine) PhotoBytes(ctx context.Context, photoID string) (*database.Photo, []byte, error) {
	if e.photos == nil {
		return nil, nil, ErrNoPhotoStore
	}
	photo, err := e.lister.GetPhoto(ctx, photoID)
	if err != nil {
		return nil, nil, fmt.Errorf("get photo %s: %w", photoID, err)
	}
	data, err := e.photos.Get(ctx, photostore.Key(photo.EventID, photo.ID))
	if err != nil {
		return nil, nil, fmt.Errorf("read photo %s: %w", photoID, err)
	}
	return photo, data, nil
}
