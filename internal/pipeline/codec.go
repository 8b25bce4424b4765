package pipeline

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"mime"
	"strings"

	"github.com/dunamismax/pixelshelf/internal/domain"
	_ "golang.org/x/image/webp"
)

const (
	DefaultQuality = 80

	// Guards against decompression bombs that pass the byte limit.
	maxDecodePixels = 64 * 1024 * 1024
)

var allowedMimeTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/gif":  {},
	"image/webp": {},
}

// CheckMimeType rejects any declared type outside the allow-list, before the
// content is ever looked at.
func CheckMimeType(declared string) error {
	mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(declared))
	if err != nil {
		return fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, declared)
	}
	if _, ok := allowedMimeTypes[strings.ToLower(mediaType)]; !ok {
		return fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, declared)
	}
	return nil
}

// Decode turns an allowed upload into a raster.
func Decode(data []byte, declaredMimeType string) (image.Image, error) {
	if err := CheckMimeType(declaredMimeType); err != nil {
		return nil, err
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > maxDecodePixels {
		return nil, fmt.Errorf("%w: unsupported dimensions %dx%d", domain.ErrDecode, cfg.Width, cfg.Height)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}
	return img, nil
}

// Encode writes img in one of the pure Go output formats.
func Encode(img image.Image, format string, quality int) ([]byte, error) {
	var buf bytes.Buffer

	switch format {
	case FormatJPEG:
		if quality <= 0 || quality > 100 {
			quality = DefaultQuality
		}
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("%w: jpeg: %v", domain.ErrEncode, err)
		}
	case FormatPNG:
		encoder := png.Encoder{CompressionLevel: png.DefaultCompression}
		if err := encoder.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("%w: png: %v", domain.ErrEncode, err)
		}
	case FormatWEBP:
		return nil, fmt.Errorf("%w: webp export requires govips build tag", domain.ErrEncode)
	default:
		return nil, fmt.Errorf("%w: unsupported output format %q", domain.ErrEncode, format)
	}

	return buf.Bytes(), nil
}
