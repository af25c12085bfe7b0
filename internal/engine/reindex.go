package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/selfie-finder/internal/database"
	"github.com/kozaktomas/selfie-finder/internal/photostore"
)

// ReindexProgress is reported after each photo of a reindex run.
type ReindexProgress struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	PhotoID string `json:"photo_id"`
	Status  string `json:"status"`
}

// Reindex statuses of a single photo.
const (
	ReindexSkipped = "skipped"
	ReindexIndexed = "indexed"
	ReindexNoFaces = "no_faces"
	ReindexMissing = "missing"
	ReindexFailed  = "failed"
)

// ReindexResult summarizes a reindex run.
type ReindexResult struct {
	EventID         string `json:"event_id"`
	Scanned         int    `json:"scanned"`
	Skipped         int    `json:"skipped"`
	Indexed         int    `json:"indexed"`
	NoFaces         int    `json:"no_faces"`
	Missing         int    `json:"missing"`
	Failed          int    `json:"failed"`
	EncodingsStored int    `json:"encodings_stored"`
}

// Reindex indexes the photos of eventID that own no encodings yet, reading
// their bytes back from the photo store. Photos that already have encodings
// are never touched. progress may be nil.
//
// Cancellation is checked between photos only. Once a photo's bytes are read
// its extraction and storage run to completion, so a cancelled run may still
// index the photo that was in flight and always returns after it.
func (e *Engine) Reindex(ctx context.Context, eventID string, progress func(ReindexProgress)) (*ReindexResult, error) {
	if !e.ictx.Ready() {
		return nil, errDisabled("reindex")
	}
	if e.photos == nil {
		return nil, ErrNoPhotoStore
	}

	ids, err := e.lister.PhotosInEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list event %s: %w", eventID, err)
	}

	res := &ReindexResult{EventID: eventID}
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		status, stored, err := e.reindexPhoto(ctx, id)
		if err != nil {
			return res, err
		}
		res.Scanned++
		res.EncodingsStored += stored
		switch status {
		case ReindexSkipped:
			res.Skipped++
		case ReindexIndexed:
			res.Indexed++
		case ReindexNoFaces:
			res.NoFaces++
		case ReindexMissing:
			res.Missing++
		case ReindexFailed:
			res.Failed++
		}

		if progress != nil {
			progress(ReindexProgress{Current: i + 1, Total: len(ids), PhotoID: id, Status: status})
		}
	}

	e.log.Info("event reindexed",
		"event_id", eventID,
		"scanned", res.Scanned,
		"indexed", res.Indexed,
		"missing", res.Missing,
		"failed", res.Failed,
	)
	return res, nil
}

// reindexPhoto returns the photo's status and how many encodings were stored.
// Only storage failures are returned as errors.
func (e *Engine) reindexPhoto(ctx context.Context, photoID string) (string, int, error) {
	n, err := e.store.CountEncodings(ctx, photoID)
	if err != nil {
		return "", 0, fmt.Errorf("count encodings: %w", err)
	}
	if n > 0 {
		return ReindexSkipped, 0, nil
	}

	photo, err := e.lister.GetPhoto(ctx, photoID)
	if err != nil {
		return "", 0, fmt.Errorf("get photo %s: %w", photoID, err)
	}

	data, err := e.photos.Get(ctx, photostore.Key(photo.EventID, photo.ID))
	if errors.Is(err, photostore.ErrNotFound) {
		return ReindexMissing, 0, nil
	}
	if err != nil {
		e.log.Warn("failed to read photo bytes", "photo_id", photoID, "error", err)
		return ReindexFailed, 0, nil
	}

	ir, err := e.index(context.WithoutCancel(ctx), *photo, data)
	if errors.Is(err, database.ErrAlreadyIndexed) {
		return ReindexSkipped, 0, nil
	}
	if err != nil {
		e.log.Warn("failed to reindex photo", "photo_id", photoID, "error", err)
		return ReindexFailed, 0, nil
	}
	if ir.EncodingsStored == 0 {
		return ReindexNoFaces, 0, nil
	}
	return ReindexIndexed, ir.EncodingsStored, nil
}
