package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/selfie-finder/internal/database/mock"
	"github.com/kozaktomas/selfie-finder/internal/engine"
	"github.com/kozaktomas/selfie-finder/internal/face"
	"github.com/kozaktomas/selfie-finder/internal/inference"
	infmock "github.com/kozaktomas/selfie-finder/internal/inference/mock"
	"github.com/kozaktomas/selfie-finder/internal/photostore"
	"github.com/kozaktomas/selfie-finder/internal/pipeline"
)

const testDim = 128

// grayPhoto renders a uniform gray PNG. White has no face; every other shade
// is one face with its own encoding.
func grayPhoto(t *testing.T, y uint8) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 40, 40))
	for i := range img.Pix {
		img.Pix[i] = y
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func dataURL(data []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)
}

type testEnv struct {
	engine *engine.Engine
	store  *mock.MockStore
	pool   *pipeline.Pool
}

// newTestEnv builds an engine over mock models, a mock store and a local
// photo store.
func newTestEnv(t *testing.T, ready bool) *testEnv {
	t.Helper()

	var ictx *inference.Context
	if ready {
		det := &infmock.Detector{DetectFunc: func(gray *image.Gray, _ inference.DetectParams) ([]image.Rectangle, error) {
			if gray.GrayAt(0, 0).Y == 255 {
				return nil, nil
			}
			return []image.Rectangle{gray.Bounds()}, nil
		}}
		emb := &infmock.Embedder{Dim: testDim, ForwardFunc: func(in inference.Tensor) ([]float32, error) {
			out := make([]float32, testDim)
			out[int(in.Data[0]*255+0.5)%testDim] = 1
			return out, nil
		}}
		ictx = infmock.ReadyContext(det, emb)
	} else {
		ictx = inference.Disabled(nil)
	}

	opts := face.DefaultEmbedderOptions()
	opts.Dimension = testDim
	extractor := face.NewExtractor(
		face.NewDetector(ictx, face.DefaultDetectorOptions(), nil),
		face.NewEmbedder(ictx, opts, nil),
		nil,
	)

	photos, err := photostore.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("photo store: %v", err)
	}
	store := mock.NewMockStore(testDim)

	e, err := engine.New(engine.Options{
		Inference: ictx,
		Extractor: extractor,
		Store:     store,
		Photos:    photos,
	})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}

	pool := pipeline.New(pipeline.Options{Workers: 1, QueueSize: 4})
	t.Cleanup(func() { pool.Close(context.Background()) })

	return &testEnv{engine: e, store: store, pool: pool}
}

// multipartBody builds a multipart body with one part per file under field.
func multipartBody(t *testing.T, field string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, data := range files {
		part, err := mw.CreateFormFile(field, name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		part.Write(data)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func serve(h http.HandlerFunc, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h(rec, r)
	return rec
}
