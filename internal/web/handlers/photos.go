package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/selfie-finder/internal/constants"
	"github.com/kozaktomas/selfie-finder/internal/engine"
	"github.com/kozaktomas/selfie-finder/internal/logging"
	"github.com/kozaktomas/selfie-finder/internal/pipeline"
)

// PhotosHandler handles photo upload, indexing and deletion.
type PhotosHandler struct {
	engine *engine.Engine
	pool   *pipeline.Pool
	log    *slog.Logger
}

// NewPhotosHandler creates a new photos handler.
func NewPhotosHandler(e *engine.Engine, pool *pipeline.Pool, log *slog.Logger) *PhotosHandler {
	return &PhotosHandler{engine: e, pool: pool, log: logging.OrNoop(log)}
}

// readUploads reads multipart files into memory with sanitized names.
func readUploads(files []*multipart.FileHeader) ([]engine.Upload, error) {
	uploads := make([]engine.Upload, 0, len(files))
	for _, fh := range files {
		if err := func() error {
			f, err := fh.Open()
			if err != nil {
				return fmt.Errorf("failed to open file: %s", secureFilename(fh.Filename))
			}
			defer f.Close()

			data, err := io.ReadAll(f)
			if err != nil {
				return fmt.Errorf("failed to read file: %s", secureFilename(fh.Filename))
			}
			uploads = append(uploads, engine.Upload{Filename: secureFilename(fh.Filename), Data: data})
			return nil
		}(); err != nil {
			return nil, err
		}
	}
	return uploads, nil
}

// parseMultipart limits the body to MaxUploadSize and parses it. On failure
// it writes the response and returns false.
func parseMultipart(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)
	if err := r.ParseMultipartForm(constants.MaxMemoryMultipart); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "upload exceeds 50 MB")
			return false
		}
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return false
	}
	return true
}

// Upload handles multipart uploads of new event photos.
func (h *PhotosHandler) Upload(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	if eventID == "" {
		respondError(w, http.StatusBadRequest, "missing event ID")
		return
	}

	if !parseMultipart(w, r) {
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File[constants.UploadField]
	if len(files) == 0 {
		respondError(w, http.StatusBadRequest, "no photos provided")
		return
	}

	uploads, err := readUploads(files)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var res *engine.BatchResult
	var runErr error
	err = h.pool.Do(r.Context(), func(ctx context.Context) {
		res, runErr = h.engine.IngestBatch(ctx, eventID, uploads)
	})
	if err != nil {
		h.rejected(w, r, err)
		return
	}
	if runErr != nil {
		h.log.Error("batch upload failed", "event_id", sanitizeForLog(eventID), "error", runErr)
		respondEngineError(w, runErr)
		return
	}

	respondJSON(w, http.StatusOK, res)
}

// IndexPhoto indexes the raw image body for a photo already known to the directory.
func (h *PhotosHandler) IndexPhoto(w http.ResponseWriter, r *http.Request) {
	photoID := chi.URLParam(r, "photoID")
	if photoID == "" {
		respondError(w, http.StatusBadRequest, "missing photo ID")
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, constants.MaxUploadSize))
	if err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, "upload exceeds 50 MB")
		return
	}
	if len(data) == 0 {
		respondError(w, http.StatusBadRequest, "no image data provided")
		return
	}

	var res *engine.IngestResult
	var runErr error
	err = h.pool.Do(r.Context(), func(ctx context.Context) {
		res, runErr = h.engine.Ingest(ctx, photoID, data)
	})
	if err != nil {
		h.rejected(w, r, err)
		return
	}
	if runErr != nil {
		h.log.Warn("photo indexing failed", "photo_id", sanitizeForLog(photoID), "error", runErr)
		respondEngineError(w, runErr)
		return
	}

	respondJSON(w, http.StatusOK, res)
}

// File serves the stored bytes of a photo.
func (h *PhotosHandler) File(w http.ResponseWriter, r *http.Request) {
	photoID := chi.URLParam(r, "photoID")
	photo, data, err := h.engine.PhotoBytes(r.Context(), photoID)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", photo.Filename))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// Delete removes a photo together with its encodings and bytes.
func (h *PhotosHandler) Delete(w http.ResponseWriter, r *http.Request) {
	photoID := chi.URLParam(r, "photoID")
	if err := h.engine.DeletePhoto(r.Context(), photoID); err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"deleted": true, "photo_id": photoID})
}

// rejected answers a request whose task never completed.
func (h *PhotosHandler) rejected(w http.ResponseWriter, r *http.Request, err error) {
	respondRejected(w, r, h.log, err)
}
