package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/dunamismax/pixelshelf/internal/assets"
	"github.com/dunamismax/pixelshelf/internal/domain"
	"github.com/dunamismax/pixelshelf/internal/id"
	"github.com/dunamismax/pixelshelf/internal/pipeline"
	"github.com/dunamismax/pixelshelf/internal/ratelimit"
	"github.com/dunamismax/pixelshelf/internal/storage"
	"github.com/dunamismax/pixelshelf/internal/store"
)

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()

	processor, err := pipeline.NewProcessor(pipeline.Config{OutputFormat: "jpeg", MaxUploadBytes: cfg.MaxUploadBytes})
	if err != nil {
		t.Fatalf("new processor: %v", err)
	}
	repo, err := storage.NewLocalRepository(t.TempDir(), processor.Extension())
	if err != nil {
		t.Fatalf("new local repository: %v", err)
	}
	logger := log.New(io.Discard, "", 0)
	service, err := assets.NewService(logger, processor, store.NewMemoryAssetStore(), repo, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return NewServer(logger, service, cfg)
}

func testJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 200, G: uint8(x), B: 60, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func multipartRequest(t *testing.T, path, filename, contentType string, data []byte, fields map[string]string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if data != nil {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="image"; filename="`+filename+`"`)
		header.Set("Content-Type", contentType)
		part, err := writer.CreatePart(header)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var out errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestUploadListFetchDelete(t *testing.T) {
	srv := newTestServer(t, Config{})
	handler := srv.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, multipartRequest(t, "/api/upload", "cat.jpg", "image/jpeg", testJPEG(t, 100, 100), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("upload: expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}

	var record map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &record); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	for _, key := range []string{"id", "filename", "originalName", "editedAt", "size", "type"} {
		if _, ok := record[key]; !ok {
			t.Fatalf("upload response missing %q: %v", key, record)
		}
	}
	assetID, _ := record["id"].(string)
	if !id.Valid(assetID) {
		t.Fatalf("unexpected id %v", record["id"])
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/images", nil))
	var listed []domain.Asset
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != assetID {
		t.Fatalf("unexpected listing %+v", listed)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/images/"+assetID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("fetch: expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "image/jpeg" {
		t.Fatalf("fetch: unexpected content type %s", got)
	}
	if _, _, err := image.Decode(bytes.NewReader(rec.Body.Bytes())); err != nil {
		t.Fatalf("fetch: body is not an image: %v", err)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/images/"+assetID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Image deleted successfully") {
		t.Fatalf("delete: unexpected body %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/images/"+assetID, nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("fetch after delete: expected 404, got %d", rec.Code)
	}
}

func TestListEmptyIsArray(t *testing.T) {
	srv := newTestServer(t, Config{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/images", nil))

	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("expected empty array, got %s", rec.Body.String())
	}
}

func TestUploadRejections(t *testing.T) {
	srv := newTestServer(t, Config{MaxUploadBytes: 2048})
	handler := srv.Handler()

	tests := []struct {
		name   string
		req    *http.Request
		status int
		kind   string
	}{
		{
			name:   "missing file",
			req:    multipartRequest(t, "/api/upload", "", "", nil, map[string]string{"note": "x"}),
			status: http.StatusBadRequest,
			kind:   domain.KindValidation,
		},
		{
			name:   "disallowed type",
			req:    multipartRequest(t, "/api/upload", "notes.txt", "text/plain", []byte("hello"), nil),
			status: http.StatusBadRequest,
			kind:   domain.KindValidation,
		},
		{
			name:   "oversize",
			req:    multipartRequest(t, "/api/upload", "big.jpg", "image/jpeg", bytes.Repeat([]byte{0xff}, 4096), nil),
			status: http.StatusRequestEntityTooLarge,
			kind:   domain.KindValidation,
		},
		{
			name:   "corrupt content",
			req:    multipartRequest(t, "/api/upload", "bad.jpg", "image/jpeg", []byte("definitely not a jpeg"), nil),
			status: http.StatusUnprocessableEntity,
			kind:   domain.KindDecode,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, tc.req)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d body=%s", tc.status, rec.Code, rec.Body.String())
			}
			if got := decodeError(t, rec); got.Kind != tc.kind {
				t.Fatalf("expected kind %s, got %+v", tc.kind, got)
			}
		})
	}
}

func TestEditReturnsImageWithoutPersisting(t *testing.T) {
	srv := newTestServer(t, Config{})
	handler := srv.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, multipartRequest(t, "/api/edit", "cat.jpg", "image/jpeg", testJPEG(t, 40, 20), map[string]string{
		"rotate":    "90",
		"grayscale": "true",
	}))
	if rec.Code != http.StatusOK {
		t.Fatalf("edit: expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "image/jpeg" {
		t.Fatalf("edit: unexpected content type %s", got)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("edit: decode: %v", err)
	}
	if cfg.Width != 20 || cfg.Height != 40 {
		t.Fatalf("edit: expected 20x40, got %dx%d", cfg.Width, cfg.Height)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/images", nil))
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("edit must not persist, listing=%s", rec.Body.String())
	}
}

func TestEditRejectsMalformedOptions(t *testing.T) {
	srv := newTestServer(t, Config{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, multipartRequest(t, "/api/edit", "cat.jpg", "image/jpeg", testJPEG(t, 8, 8), map[string]string{
		"brightness": "bright",
	}))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if got := decodeError(t, rec); got.Kind != domain.KindValidation {
		t.Fatalf("unexpected error %+v", got)
	}
}

func TestSaveRecordsOutputType(t *testing.T) {
	srv := newTestServer(t, Config{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, multipartRequest(t, "/api/save", "photo.jpg", "image/jpeg", testJPEG(t, 8, 8), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("save: expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	var asset domain.Asset
	if err := json.Unmarshal(rec.Body.Bytes(), &asset); err != nil {
		t.Fatalf("decode save response: %v", err)
	}
	if asset.MimeType != "image/jpeg" || asset.OriginalName != "photo.jpg" {
		t.Fatalf("unexpected saved record %+v", asset)
	}
}

func TestDeleteUnknownImage(t *testing.T) {
	srv := newTestServer(t, Config{})

	for _, path := range []string{"/api/images/" + id.New(), "/api/images/not-an-id"} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, path, nil))
		if rec.Code != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", path, rec.Code)
		}
		if got := decodeError(t, rec); got.Error != "Image not found" || got.Kind != domain.KindNotFound {
			t.Fatalf("%s: unexpected body %+v", path, got)
		}
	}
}

type denyLimiter struct {
	calls    int
	subjects []string
	costs    []int
}

func (l *denyLimiter) AllowN(_ context.Context, subject string, cost int) (ratelimit.Decision, error) {
	l.calls++
	l.subjects = append(l.subjects, subject)
	l.costs = append(l.costs, cost)
	return ratelimit.Decision{Allowed: false, Limit: 10, RetryAfter: 1500 * time.Millisecond}, nil
}

func TestRateLimitAppliesToMutatingRoutes(t *testing.T) {
	limiter := &denyLimiter{}
	srv := newTestServer(t, Config{RateLimiter: limiter})
	handler := srv.Handler()

	rec := httptest.NewRecorder()
	req := multipartRequest(t, "/api/upload", "cat.jpg", "image/jpeg", testJPEG(t, 8, 8), nil)
	req.Header.Set("X-User-ID", "user-7")
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "10" {
		t.Fatalf("expected limit header 10, got %q", got)
	}
	if got := rec.Header().Get("Retry-After"); got != "2" {
		t.Fatalf("expected Retry-After 2, got %q", got)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/images", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("reads must not be limited, got %d", rec.Code)
	}
	if limiter.calls != 1 {
		t.Fatalf("expected one limiter call, got %d", limiter.calls)
	}
	if limiter.subjects[0] != "user-7:/api/upload" || limiter.costs[0] != 2 {
		t.Fatalf("unexpected limiter call subject=%s cost=%d", limiter.subjects[0], limiter.costs[0])
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/images/"+id.New(), nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected delete to be limited, got %d", rec.Code)
	}
	if limiter.costs[1] != 1 {
		t.Fatalf("expected delete cost 1, got %d", limiter.costs[1])
	}
	if !strings.HasPrefix(limiter.subjects[1], "192.0.2.1:") {
		t.Fatalf("expected peer address subject, got %s", limiter.subjects[1])
	}
}

func TestHealthzAndMetrics(t *testing.T) {
	srv := newTestServer(t, Config{})
	handler := srv.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, multipartRequest(t, "/api/upload", "cat.jpg", "image/jpeg", testJPEG(t, 16, 16), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("upload: expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		"pixelshelf_api_requests_total",
		`pixelshelf_asset_operations_total{kind="ok",operation="create"} 1`,
		`pixelshelf_api_image_bytes_count{direction="in"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %s", want)
		}
	}
}

func TestRouteLabel(t *testing.T) {
	tests := map[string]string{
		"/api/images/" + id.New(): "/api/images/{id}",
		"/api/images":             "/api/images",
		"/api/upload":             "/api/upload",
		"/healthz":                "/healthz",
		"/wp-admin":               "unmatched",
	}
	for path, want := range tests {
		if got := routeLabel(path); got != want {
			t.Fatalf("routeLabel(%q) = %q, want %q", path, got, want)
		}
	}
}
