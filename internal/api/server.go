package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/dunamismax/pixelshelf/internal/assets"
	"github.com/dunamismax/pixelshelf/internal/domain"
	"github.com/dunamismax/pixelshelf/internal/pipeline"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	uploadField = "image"

	// Room for multipart boundaries and the small text fields sent with edits.
	multipartOverhead = 1 << 20
	multipartMemory   = 8 << 20
)

type AssetService interface {
	Create(ctx context.Context, up assets.Upload) (domain.Asset, error)
	Save(ctx context.Context, up assets.Upload) (domain.Asset, error)
	Edit(ctx context.Context, up assets.Upload, opts pipeline.Options) (pipeline.Result, error)
	List(ctx context.Context) ([]domain.Asset, error)
	Fetch(ctx context.Context, assetID string) ([]byte, error)
	Delete(ctx context.Context, assetID string) error
	ContentType() string
}

type Config struct {
	MaxUploadBytes        int64
	RateLimiter           RateLimiter
	RateLimitUserIDHeader string
}

type Server struct {
	logger                *log.Logger
	service               AssetService
	maxUploadBytes        int64
	rateLimiter           RateLimiter
	rateLimitUserIDHeader string
	metrics               *metrics
	tracer                trace.Tracer
	mux                   *http.ServeMux
}

func NewServer(logger *log.Logger, service AssetService, cfg Config) *Server {
	if logger == nil {
		logger = log.Default()
	}
	maxUploadBytes := cfg.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = pipeline.DefaultMaxUploadBytes
	}
	header := strings.TrimSpace(cfg.RateLimitUserIDHeader)
	if header == "" {
		header = "X-User-ID"
	}

	s := &Server{
		logger:                logger,
		service:               service,
		maxUploadBytes:        maxUploadBytes,
		rateLimiter:           cfg.RateLimiter,
		rateLimitUserIDHeader: header,
		metrics:               newMetrics(),
		tracer:                otel.Tracer("pixelshelf/api"),
		mux:                   http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.withTracing(s.metrics.withHTTPMetrics(s.withRateLimit(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())
	s.mux.HandleFunc("POST /api/upload", s.handleUpload)
	s.mux.HandleFunc("GET /api/images", s.handleListImages)
	s.mux.HandleFunc("GET /api/images/{id}", s.handleFetchImage)
	s.mux.HandleFunc("POST /api/edit", s.handleEdit)
	s.mux.HandleFunc("POST /api/save", s.handleSave)
	s.mux.HandleFunc("DELETE /api/images/{id}", s.handleDeleteImage)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	form, err := s.parseUpload(w, r)
	if err != nil {
		s.fail(w, r, "create", err)
		return
	}
	defer form.cleanup()

	asset, err := s.service.Create(r.Context(), form.upload)
	if err != nil {
		s.fail(w, r, "create", err)
		return
	}

	s.metrics.observeOperation("create", nil)
	writeJSON(w, http.StatusOK, asset)
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	form, err := s.parseUpload(w, r)
	if err != nil {
		s.fail(w, r, "save", err)
		return
	}
	defer form.cleanup()

	asset, err := s.service.Save(r.Context(), form.upload)
	if err != nil {
		s.fail(w, r, "save", err)
		return
	}

	s.metrics.observeOperation("save", nil)
	writeJSON(w, http.StatusOK, asset)
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	form, err := s.parseUpload(w, r)
	if err != nil {
		s.fail(w, r, "edit", err)
		return
	}
	defer form.cleanup()

	opts, err := pipeline.ParseOptions(form.lookup)
	if err != nil {
		s.fail(w, r, "edit", err)
		return
	}

	result, err := s.service.Edit(r.Context(), form.upload, opts)
	if err != nil {
		s.fail(w, r, "edit", err)
		return
	}

	s.metrics.observeOperation("edit", nil)
	s.metrics.observeImage("out", len(result.Data))
	writeImage(w, pipeline.ContentTypeForFormat(result.Format), result.Data)
}

func (s *Server) handleListImages(w http.ResponseWriter, r *http.Request) {
	list, err := s.service.List(r.Context())
	if err != nil {
		s.fail(w, r, "list", err)
		return
	}
	if list == nil {
		list = []domain.Asset{}
	}

	s.metrics.observeOperation("list", nil)
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleFetchImage(w http.ResponseWriter, r *http.Request) {
	data, err := s.service.Fetch(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, "fetch", err)
		return
	}

	s.metrics.observeOperation("fetch", nil)
	s.metrics.observeImage("out", len(data))
	writeImage(w, s.service.ContentType(), data)
}

func (s *Server) handleDeleteImage(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, r, "delete", err)
		return
	}

	s.metrics.observeOperation("delete", nil)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Image deleted successfully"})
}

type uploadForm struct {
	upload assets.Upload
	values map[string][]string
	remove func() error
}

func (f uploadForm) lookup(key string) (string, bool) {
	values, ok := f.values[key]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

func (f uploadForm) cleanup() {
	if f.remove != nil {
		_ = f.remove()
	}
}

// parseUpload reads the multipart "image" part. The declared size is checked
// before any bytes are buffered for decoding.
func (s *Server) parseUpload(w http.ResponseWriter, r *http.Request) (uploadForm, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return uploadForm{}, fmt.Errorf("%w: request body exceeds %d bytes", domain.ErrPayloadTooLarge, s.maxUploadBytes)
		}
		return uploadForm{}, fmt.Errorf("%w: invalid multipart body: %v", domain.ErrValidation, err)
	}
	form := uploadForm{values: r.MultipartForm.Value, remove: r.MultipartForm.RemoveAll}

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		form.cleanup()
		if errors.Is(err, http.ErrMissingFile) {
			return uploadForm{}, pipeline.ErrNoInput
		}
		return uploadForm{}, fmt.Errorf("%w: read upload: %v", domain.ErrValidation, err)
	}
	defer file.Close()

	if header.Size > s.maxUploadBytes {
		form.cleanup()
		return uploadForm{}, fmt.Errorf("%w: %d bytes exceeds limit of %d", domain.ErrPayloadTooLarge, header.Size, s.maxUploadBytes)
	}

	data, err := io.ReadAll(io.LimitReader(file, s.maxUploadBytes+1))
	if err != nil {
		form.cleanup()
		return uploadForm{}, fmt.Errorf("%w: read upload: %v", domain.ErrValidation, err)
	}

	s.metrics.observeImage("in", len(data))
	form.upload = assets.Upload{
		Data:         data,
		MimeType:     header.Header.Get("Content-Type"),
		OriginalName: header.Filename,
	}
	return form, nil
}

func writeImage(w http.ResponseWriter, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
