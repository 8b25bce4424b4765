package api

import (
	"errors"
	"net/http"

	"github.com/dunamismax/pixelshelf/internal/domain"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrDecode), errors.Is(err, domain.ErrEncode):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// fail is the single place request errors become responses. Storage and
// unexpected failures are logged and answered with a generic message.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, operation string, err error) {
	status := statusForError(err)
	kind := domain.ErrorKind(err)
	s.metrics.observeOperation(operation, err)

	span := trace.SpanFromContext(r.Context())
	span.RecordError(err)
	if status >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, kind)
	}

	message := err.Error()
	switch status {
	case http.StatusNotFound:
		message = "Image not found"
	case http.StatusInternalServerError:
		s.logger.Printf("request failed op=%s method=%s path=%s kind=%s err=%v", operation, r.Method, r.URL.Path, kind, err)
		message = "Internal server error"
	}

	writeJSON(w, status, errorResponse{Error: message, Kind: kind})
}
