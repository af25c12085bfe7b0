package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/kozaktomas/selfie-finder/internal/database"
	"github.com/kozaktomas/selfie-finder/internal/photostore"
)

// Upload is one file of a batch upload.
type Upload struct {
	Filename string
	Data     []byte
}

// FileResult describes what happened to one uploaded file.
type FileResult struct {
	Filename        string `json:"filename"`
	PhotoID         string `json:"photo_id,omitempty"`
	FacesDetected   int    `json:"faces_detected"`
	EncodingsStored int    `json:"encodings_stored"`
	Kept            bool   `json:"kept"`
	Pending         bool   `json:"pending,omitempty"`
	Error           string `json:"error,omitempty"`
}

// BatchResult summarizes a batch upload. PhotosProcessed counts the photos
// that were kept with at least one stored encoding.
type BatchResult struct {
	EventID         string       `json:"event_id"`
	PhotosProcessed int          `json:"photos_processed"`
	Pending         int          `json:"pending"`
	Files           []FileResult `json:"results"`
}

// IngestBatch stores and indexes files as new photos of eventID, one after
// another. A photo is kept only when at least one of its faces produced an
// encoding; otherwise its directory row and bytes are removed again. While
// the models are not loaded, photos are kept without encodings for a later
// Reindex, provided their bytes could be stored.
func (e *Engine) IngestBatch(ctx context.Context, eventID string, files []Upload) (*BatchResult, error) {
	if e.external {
		return nil, database.ErrReadOnly
	}

	res := &BatchResult{EventID: eventID, Files: make([]FileResult, 0, len(files))}
	for _, f := range files {
		fr := e.ingestFile(ctx, eventID, f)
		if fr.Kept && fr.EncodingsStored > 0 {
			res.PhotosProcessed++
		}
		if fr.Pending {
			res.Pending++
		}
		res.Files = append(res.Files, fr)
	}

	e.log.Info("batch ingested",
		"event_id", eventID,
		"files", len(files),
		"processed", res.PhotosProcessed,
		"pending", res.Pending,
	)
	return res, nil
}

func (e *Engine) ingestFile(ctx context.Context, eventID string, f Upload) FileResult {
	fr := FileResult{Filename: f.Filename}
	photo := database.Photo{
		ID:       uuid.New().String(),
		EventID:  eventID,
		Filename: f.Filename,
	}

	stored := false
	if e.photos != nil {
		if err := e.photos.Put(ctx, photostore.Key(eventID, photo.ID), f.Data); err != nil {
			e.log.Warn("failed to store photo bytes", "filename", f.Filename, "error", err)
			fr.Error = "failed to store photo"
			return fr
		}
		stored = true
	}

	if err := e.store.RegisterPhoto(ctx, photo); err != nil {
		e.log.Warn("failed to register photo", "filename", f.Filename, "error", err)
		if stored {
			e.removeBytes(ctx, eventID, photo.ID)
		}
		fr.Error = "failed to register photo"
		return fr
	}

	if !e.ictx.Ready() {
		if stored {
			fr.PhotoID = photo.ID
			fr.Kept = true
			fr.Pending = true
			return fr
		}
		e.discard(ctx, photo)
		fr.Error = errDisabled("ingest").Error()
		return fr
	}

	ir, err := e.index(ctx, photo, f.Data)
	if err != nil {
		e.log.Warn("failed to index photo", "filename", f.Filename, "photo_id", photo.ID, "error", err)
		e.discard(ctx, photo)
		fr.Error = err.Error()
		return fr
	}

	fr.FacesDetected = ir.FacesDetected
	fr.EncodingsStored = ir.EncodingsStored
	if ir.EncodingsStored == 0 {
		e.discard(ctx, photo)
		return fr
	}
	fr.PhotoID = photo.ID
	fr.Kept = true
	return fr
}

// discard removes a photo that will not be kept.
func (e *Engine) discard(ctx context.Context, photo database.Photo) {
	if err := e.store.DeletePhoto(ctx, photo.ID); err != nil {
		e.log.Warn("failed to remove discarded photo", "photo_id", photo.ID, "error", fmt.Errorf("delete photo: %w", err))
	}
	e.removeBytes(ctx, photo.EventID, photo.ID)
}
