package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/kozaktomas/selfie-finder/internal/faceerr"
)

// Outcome classifies a selfie search.
type Outcome string

const (
	OutcomeMatched        Outcome = "matched"
	OutcomeNoMatch        Outcome = "no_match"
	OutcomeNoFace         Outcome = "no_face"
	OutcomeEngineDisabled Outcome = "engine_disabled"
	OutcomeInvalidImage   Outcome = "invalid_image"

	// OutcomeDetectionFailed means the detector itself errored, so the selfie
	// was never searched for faces.
	OutcomeDetectionFailed Outcome = "detection_failed"
)

// User-facing messages for the search outcomes.
const (
	MessageNoMatch         = "No matching photos found for you in this event."
	MessageNoFace          = "Could not detect a face in your selfie. Please try again."
	MessageEngineDisabled  = "Face recognition is currently unavailable"
	MessageInvalidImage    = "Could not read the uploaded image"
	MessageDetectionFailed = "Face detection failed. Please try again later."
)

// SearchResult is the answer to a selfie search. PhotoIDs is non-nil and
// empty for every outcome except OutcomeMatched.
type SearchResult struct {
	EventID       string   `json:"event_id"`
	Outcome       Outcome  `json:"outcome"`
	PhotoIDs      []string `json:"photos"`
	FacesDetected int      `json:"faces_detected"`
	Message       string   `json:"message,omitempty"`
}

// Search finds the photos of eventID that contain the first face of selfie
// that embeds successfully. Disabled models, undecodable images and selfies
// without a usable face are outcomes, not errors; only storage and dimension
// problems are returned as errors.
func (e *Engine) Search(ctx context.Context, eventID string, selfie []byte) (*SearchResult, error) {
	start := time.Now()
	res := &SearchResult{EventID: eventID, PhotoIDs: []string{}}

	defer func() {
		e.observer.OnSearch(time.Since(start), string(res.Outcome))
	}()

	if !e.ictx.Ready() {
		res.Outcome = OutcomeEngineDisabled
		res.Message = MessageEngineDisabled
		return res, nil
	}

	query, ext, err := e.extractor.ExtractFirst(ctx, selfie)
	if err != nil {
		if faceerr.IsKind(err, faceerr.KindImageDecode) {
			res.Outcome = OutcomeInvalidImage
			res.Message = MessageInvalidImage
			return res, nil
		}
		res.Outcome = "error"
		return nil, fmt.Errorf("extract selfie: %w", err)
	}
	res.FacesDetected = len(ext.Boxes)
	for _, f := range ext.Failures {
		e.observer.OnFaceFailure(f.Kind)
	}

	if query == nil && ext.DetectErr != nil {
		e.log.Warn("selfie face detection failed", "event_id", eventID, "error", ext.DetectErr)
		res.Outcome = OutcomeDetectionFailed
		res.Message = MessageDetectionFailed
		return res, nil
	}
	if query == nil {
		res.Outcome = OutcomeNoFace
		res.Message = MessageNoFace
		return res, nil
	}

	ids, err := e.searcher.Match(ctx, query, eventID)
	if err != nil {
		res.Outcome = "error"
		return nil, fmt.Errorf("match selfie in event %s: %w", eventID, err)
	}

	if len(ids) == 0 {
		res.Outcome = OutcomeNoMatch
		res.Message = MessageNoMatch
	} else {
		res.Outcome = OutcomeMatched
		res.PhotoIDs = ids
	}

	e.log.Info("selfie search",
		"event_id", eventID,
		"outcome", res.Outcome,
		"faces", res.FacesDetected,
		"matches", len(res.PhotoIDs),
	)
	return res, nil
}
