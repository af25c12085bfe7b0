package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/selfie-finder/internal/database"
	"github.com/kozaktomas/selfie-finder/internal/engine"
	"github.com/kozaktomas/selfie-finder/internal/faceerr"
	"github.com/kozaktomas/selfie-finder/internal/pipeline"
)

func TestRespondJSON(t *testing.T) {
	recorder := httptest.NewRecorder()
	respondJSON(recorder, http.StatusCreated, map[string]any{"count": 42})

	if recorder.Code != http.StatusCreated {
		t.Errorf("expected status %d, got %d", http.StatusCreated, recorder.Code)
	}
	if ct := recorder.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type 'application/json', got '%s'", ct)
	}

	var result map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if result["count"] != float64(42) {
		t.Errorf("expected count 42, got %v", result["count"])
	}
}

func TestRespondJSON_NilData(t *testing.T) {
	recorder := httptest.NewRecorder()
	respondJSON(recorder, http.StatusOK, nil)

	if recorder.Body.Len() != 0 {
		t.Errorf("expected empty body for nil data, got '%s'", recorder.Body.String())
	}
}

func TestRespondError_ContainsErrorKey(t *testing.T) {
	recorder := httptest.NewRecorder()
	respondError(recorder, http.StatusBadRequest, "something went wrong")

	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if result["error"] != "something went wrong" {
		t.Errorf("expected error 'something went wrong', got '%s'", result["error"])
	}
}

func TestRespondEngineError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"photo not found", fmt.Errorf("get photo p1: %w", database.ErrPhotoNotFound), http.StatusNotFound},
		{"already indexed", database.ErrAlreadyIndexed, http.StatusConflict},
		{"read only", database.ErrReadOnly, http.StatusForbidden},
		{"no photo store", engine.ErrNoPhotoStore, http.StatusNotImplemented},
		{"queue full", pipeline.ErrQueueFull, http.StatusServiceUnavailable},
		{"engine disabled", faceerr.New(faceerr.KindEngineDisabled, "ingest", "off"), http.StatusServiceUnavailable},
		{"bad image", faceerr.New(faceerr.KindImageDecode, "decode", "bad"), http.StatusBadRequest},
		{"unknown", errors.New("connection refused"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			respondEngineError(recorder, tc.err)
			if recorder.Code != tc.wantStatus {
				t.Errorf("expected status %d, got %d", tc.wantStatus, recorder.Code)
			}
		})
	}
}

func TestRespondEngineError_QueueFullSetsRetryAfter(t *testing.T) {
	recorder := httptest.NewRecorder()
	respondEngineError(recorder, pipeline.ErrQueueFull)

	if recorder.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestRespondEngineError_HidesInternalDetails(t *testing.T) {
	recorder := httptest.NewRecorder()
	respondEngineError(recorder, errors.New("pq: password authentication failed"))

	var result map[string]string
	json.Unmarshal(recorder.Body.Bytes(), &result)
	if result["error"] != "internal error" {
		t.Errorf("expected generic message, got %q", result["error"])
	}
}

func TestSanitizeForLog(t *testing.T) {
	if got := sanitizeForLog("event\r\nfake log line"); got != "eventfake log line" {
		t.Errorf("sanitizeForLog() = %q", got)
	}
}
