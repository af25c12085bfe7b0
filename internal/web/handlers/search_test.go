package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kozaktomas/selfie-finder/internal/engine"
	"github.com/kozaktomas/selfie-finder/internal/pipeline"
)

func searchRequest(eventID string, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events/"+eventID+"/search", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return requestWithChiParams(req, map[string]string{"eventID": eventID})
}

func jsonImage(data []byte) string {
	b, _ := json.Marshal(SearchRequest{Image: dataURL(data)})
	return string(b)
}

func decodeSearch(t *testing.T, rec *httptest.ResponseRecorder) SearchResponse {
	t.Helper()
	var resp SearchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v (%s)", err, rec.Body.String())
	}
	return resp
}

func TestSearchHandler_Outcomes(t *testing.T) {
	env := newTestEnv(t, true)
	batch, err := env.engine.IngestBatch(context.Background(), "wedding", []engine.Upload{
		{Filename: "a.png", Data: grayPhoto(t, 10)},
		{Filename: "b.png", Data: grayPhoto(t, 40)},
	})
	if err != nil {
		t.Fatalf("IngestBatch() error: %v", err)
	}
	h := NewSearchHandler(env.engine, env.pool, nil)

	tests := []struct {
		name        string
		body        string
		wantStatus  int
		wantOutcome engine.Outcome
		wantPhotos  int
		wantText    string
	}{
		{"matched", jsonImage(grayPhoto(t, 10)), http.StatusOK, engine.OutcomeMatched, 1, ""},
		{"no match", jsonImage(grayPhoto(t, 90)), http.StatusOK, engine.OutcomeNoMatch, 0, "No matching photos found for you in this event."},
		{"no face", jsonImage(grayPhoto(t, 255)), http.StatusBadRequest, engine.OutcomeNoFace, 0, "Could not detect a face in your selfie"},
		{"invalid image", jsonImage([]byte("not an image")), http.StatusBadRequest, engine.OutcomeInvalidImage, 0, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(h.Search, searchRequest("wedding", tc.body))
			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tc.wantStatus, rec.Code, rec.Body.String())
			}
			resp := decodeSearch(t, rec)
			if resp.Outcome != tc.wantOutcome {
				t.Errorf("expected outcome %s, got %s", tc.wantOutcome, resp.Outcome)
			}
			if len(resp.Photos) != tc.wantPhotos {
				t.Errorf("expected %d photos, got %d", tc.wantPhotos, len(resp.Photos))
			}
			if resp.Photos == nil {
				t.Error("photos must be an empty list, not null")
			}
			text := resp.Message + resp.Error
			if tc.wantText != "" && !strings.Contains(text, tc.wantText) {
				t.Errorf("expected %q in %q", tc.wantText, text)
			}
		})
	}

	rec := serve(h.Search, searchRequest("wedding", jsonImage(grayPhoto(t, 10))))
	resp := decodeSearch(t, rec)
	if len(resp.URLs) != 1 || resp.URLs[0] != "/api/v1/photos/"+batch.Files[0].PhotoID+"/file" {
		t.Errorf("unexpected urls %v", resp.URLs)
	}
}

func TestSearchHandler_EngineDisabled(t *testing.T) {
	env := newTestEnv(t, false)
	h := NewSearchHandler(env.engine, env.pool, nil)

	rec := serve(h.Search, searchRequest("wedding", jsonImage(grayPhoto(t, 10))))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rec.Code)
	}
	resp := decodeSearch(t, rec)
	if resp.Outcome != engine.OutcomeEngineDisabled {
		t.Errorf("expected engine_disabled, got %s", resp.Outcome)
	}
	if resp.Message != "" {
		t.Errorf("disabled engine must not answer with a no-match message, got %q", resp.Message)
	}
}

func TestSearchHandler_Backpressure(t *testing.T) {
	env := newTestEnv(t, true)
	pool := pipeline.New(pipeline.Options{Workers: 1, QueueSize: 1})
	release := make(chan struct{})
	started := make(chan struct{})
	t.Cleanup(func() {
		close(release)
		pool.Close(context.Background())
	})

	if err := pool.TrySubmit(func(context.Context) { close(started); <-release }); err != nil {
		t.Fatalf("submit blocker: %v", err)
	}
	<-started
	if err := pool.TrySubmit(func(context.Context) {}); err != nil {
		t.Fatalf("fill queue: %v", err)
	}

	h := NewSearchHandler(env.engine, pool, nil)
	rec := serve(h.Search, searchRequest("wedding", jsonImage(grayPhoto(t, 10))))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestSearchHandler_ClosedPool(t *testing.T) {
	env := newTestEnv(t, true)
	pool := pipeline.New(pipeline.Options{Workers: 1, QueueSize: 2})
	pool.Close(context.Background())

	h := NewSearchHandler(env.engine, pool, nil)
	rec := serve(h.Search, searchRequest("wedding", jsonImage(grayPhoto(t, 10))))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503 from a closed pool, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestSearchHandler_BadRequests(t *testing.T) {
	env := newTestEnv(t, true)
	h := NewSearchHandler(env.engine, env.pool, nil)

	tests := []struct {
		name string
		body string
	}{
		{"not json", "{"},
		{"missing image", `{}`},
		{"not a data url", `{"image":"data:image/png,abc"}`},
		{"bad base64", `{"image":"data:image/png;base64,@@@"}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(h.Search, searchRequest("wedding", tc.body))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected status 400, got %d", rec.Code)
			}
		})
	}
}

func TestSearchHandler_Multipart(t *testing.T) {
	env := newTestEnv(t, true)
	env.engine.IngestBatch(context.Background(), "wedding", []engine.Upload{{Filename: "a.png", Data: grayPhoto(t, 10)}})
	h := NewSearchHandler(env.engine, env.pool, nil)

	body, contentType := multipartBody(t, "selfie", map[string][]byte{"me.png": grayPhoto(t, 10)})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events/wedding/search", body)
	req.Header.Set("Content-Type", contentType)
	rec := serve(h.Search, requestWithChiParams(req, map[string]string{"eventID": "wedding"}))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if resp := decodeSearch(t, rec); resp.Outcome != engine.OutcomeMatched {
		t.Errorf("expected matched, got %s", resp.Outcome)
	}
}

func TestDecodeDataURL(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    []byte
		wantErr error
	}{
		{"data url", "data:image/jpeg;base64,aGVsbG8=", []byte("hello"), nil},
		{"bare base64", "aGVsbG8=", []byte("hello"), nil},
		{"empty", "", nil, errNoImage},
		{"no comma", "data:image/jpeg;base64", nil, errBadDataURL},
		{"not base64 encoded", "data:text/plain,hello", nil, errBadDataURL},
		{"empty payload", "data:image/jpeg;base64,", nil, errNoImage},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := decodeDataURL(tc.in)
			if err != tc.wantErr {
				t.Fatalf("expected error %v, got %v", tc.wantErr, err)
			}
			if !bytes.Equal(got, tc.want) {
				t.Errorf("expected %q, got %q", tc.want, got)
			}
		})
	}
}
