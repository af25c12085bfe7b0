package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/selfie-finder/internal/constants"
	"github.com/kozaktomas/selfie-finder/internal/engine"
	"github.com/kozaktomas/selfie-finder/internal/logging"
	"github.com/kozaktomas/selfie-finder/internal/pipeline"
)

var (
	errNoImage       = errors.New("no image data provided")
	errBadDataURL    = errors.New("image must be a base64 data URL")
	errSelfieTooLong = errors.New("selfie is too large")
)

// SearchHandler answers selfie searches. Detection and embedding run on the
// shared pipeline pool so searches and ingestion compete for the same bounded
// set of inference workers.
type SearchHandler struct {
	engine *engine.Engine
	pool   *pipeline.Pool
	log    *slog.Logger
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(e *engine.Engine, pool *pipeline.Pool, log *slog.Logger) *SearchHandler {
	return &SearchHandler{engine: e, pool: pool, log: logging.OrNoop(log)}
}

// SearchRequest is the JSON form of a selfie search.
type SearchRequest struct {
	Image string `json:"image"`
}

// SearchResponse is the body of a selfie search answer.
type SearchResponse struct {
	Outcome engine.Outcome `json:"outcome"`
	Photos  []string       `json:"photos"`
	URLs    []string       `json:"urls"`
	Faces   int            `json:"faces_detected"`
	Message string         `json:"message,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// decodeDataURL returns the bytes of a "data:<mime>;base64,<payload>" URL.
// A bare base64 payload is accepted as well.
func decodeDataURL(s string) ([]byte, error) {
	if s == "" {
		return nil, errNoImage
	}
	payload := s
	if strings.HasPrefix(s, "data:") {
		header, rest, ok := strings.Cut(s, ",")
		if !ok || !strings.HasSuffix(header, ";base64") {
			return nil, errBadDataURL
		}
		payload = rest
	}
	if base64.StdEncoding.DecodedLen(len(payload)) > constants.MaxSelfieSize {
		return nil, errSelfieTooLong
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, errBadDataURL
	}
	if len(data) == 0 {
		return nil, errNoImage
	}
	return data, nil
}

// readSelfie extracts the selfie from a JSON data URL or a multipart upload.
func readSelfie(w http.ResponseWriter, r *http.Request) ([]byte, int, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)
		f, _, err := r.FormFile(constants.SelfieField)
		if err != nil {
			return nil, http.StatusBadRequest, errNoImage
		}
		defer f.Close()
		data, err := io.ReadAll(io.LimitReader(f, constants.MaxSelfieSize+1))
		if err != nil {
			return nil, http.StatusBadRequest, errNoImage
		}
		if len(data) > constants.MaxSelfieSize {
			return nil, http.StatusRequestEntityTooLarge, errSelfieTooLong
		}
		if len(data) == 0 {
			return nil, http.StatusBadRequest, errNoImage
		}
		return data, 0, nil
	}

	var req SearchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)).Decode(&req); err != nil {
		return nil, http.StatusBadRequest, errors.New(errInvalidRequestBody)
	}
	data, err := decodeDataURL(req.Image)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errSelfieTooLong) {
			status = http.StatusRequestEntityTooLarge
		}
		return nil, status, err
	}
	return data, 0, nil
}

// Search finds the event photos that contain the person in the selfie.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	if eventID == "" {
		respondError(w, http.StatusBadRequest, "missing event ID")
		return
	}

	selfie, status, err := readSelfie(w, r)
	if err != nil {
		respondError(w, status, err.Error())
		return
	}

	reqCtx := r.Context()
	var res *engine.SearchResult
	var runErr error
	err = h.pool.Do(reqCtx, func(ctx context.Context) {
		if reqCtx.Err() != nil {
			runErr = reqCtx.Err()
			return
		}
		res, runErr = h.engine.Search(ctx, eventID, selfie)
	})
	if err != nil {
		respondRejected(w, r, h.log, err)
		return
	}
	if runErr != nil {
		h.log.Error("selfie search failed", "event_id", sanitizeForLog(eventID), "error", runErr)
		respondEngineError(w, runErr)
		return
	}

	resp := SearchResponse{
		Outcome: res.Outcome,
		Photos:  res.PhotoIDs,
		URLs:    make([]string, 0, len(res.PhotoIDs)),
		Faces:   res.FacesDetected,
	}
	for _, id := range res.PhotoIDs {
		resp.URLs = append(resp.URLs, "/api/v1/photos/"+url.PathEscape(id)+"/file")
	}

	switch res.Outcome {
	case engine.OutcomeMatched:
		respondJSON(w, http.StatusOK, resp)
	case engine.OutcomeNoMatch:
		resp.Message = res.Message
		respondJSON(w, http.StatusOK, resp)
	case engine.OutcomeNoFace, engine.OutcomeInvalidImage:
		resp.Error = res.Message
		respondJSON(w, http.StatusBadRequest, resp)
	case engine.OutcomeEngineDisabled:
		resp.Error = res.Message
		respondJSON(w, http.StatusServiceUnavailable, resp)
	case engine.OutcomeDetectionFailed:
		resp.Error = res.Message
		w.Header().Set("Retry-After", constants.RetryAfterSeconds)
		respondJSON(w, http.StatusServiceUnavailable, resp)
	default:
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}
