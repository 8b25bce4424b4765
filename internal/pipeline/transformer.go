package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/dunamismax/pixelshelf/internal/domain"
)

const (
	FormatJPEG = "jpeg"
	FormatPNG  = "png"
	FormatWEBP = "webp"
)

type Request struct {
	Data     []byte
	MimeType string
	Options  Options
	// Fit is nil when the raster keeps its size.
	Fit     *Box
	Format  string
	Quality int
}

type Result struct {
	Data   []byte
	Format string
	Width  int
	Height int
}

type Transformer interface {
	Transform(ctx context.Context, req Request) (Result, error)
}

func normalizeOutputFormat(format string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "jpg", "jpeg":
		return FormatJPEG, nil
	case "png":
		return FormatPNG, nil
	case "webp":
		return FormatWEBP, nil
	default:
		return "", fmt.Errorf("%w: unsupported output format %q", domain.ErrValidation, format)
	}
}

// ResolveOutputFormat turns a configured format name into the canonical one,
// falling back to the backend default when name is blank. Formats the
// compiled backend cannot write are rejected.
func ResolveOutputFormat(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return DefaultOutputFormat(), nil
	}
	format, err := normalizeOutputFormat(name)
	if err != nil {
		return "", err
	}
	if !canEncode(format) {
		return "", fmt.Errorf("%w: output format %q needs the govips backend", domain.ErrValidation, format)
	}
	return format, nil
}

func ContentTypeForFormat(format string) string {
	switch format {
	case FormatJPEG:
		return "image/jpeg"
	case FormatWEBP:
		return "image/webp"
	default:
		return "image/png"
	}
}

func ExtensionForFormat(format string) string {
	switch format {
	case FormatJPEG:
		return "jpg"
	case FormatWEBP:
		return "webp"
	default:
		return "png"
	}
}
