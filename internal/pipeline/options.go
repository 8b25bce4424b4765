package pipeline

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dunamismax/pixelshelf/internal/domain"
)

// Form field names recognised by ParseOptions.
const (
	FieldRotate     = "rotate"
	FieldFlip       = "flip"
	FieldFlop       = "flop"
	FieldBrightness = "brightness"
	FieldContrast   = "contrast"
	FieldGrayscale  = "grayscale"
)

// Options configures the edit operations. The zero value is not the identity;
// use DefaultOptions.
type Options struct {
	RotateDegrees float64
	Flip          bool
	Flop          bool
	Brightness    float64
	Contrast      float64
	Grayscale     bool
}

func DefaultOptions() Options {
	return Options{Brightness: 1, Contrast: 1}
}

// IsIdentity reports whether applying o would leave every pixel untouched.
func (o Options) IsIdentity() bool {
	return NormalizeDegrees(o.RotateDegrees) == 0 &&
		!o.Flip && !o.Flop &&
		o.Brightness == 1 && o.Contrast == 1 &&
		!o.Grayscale
}

// NormalizeDegrees maps any angle into [0, 360).
func NormalizeDegrees(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	if deg == 360 {
		return 0
	}
	return deg
}

// ParseOptions builds Options from loosely typed form values. A field that is
// absent or blank keeps its default; any other unparseable value fails the
// whole request.
func ParseOptions(lookup func(key string) (string, bool)) (Options, error) {
	opts := DefaultOptions()
	if lookup == nil {
		return opts, nil
	}

	var err error
	if opts.RotateDegrees, err = parseNumber(lookup, FieldRotate, 0); err != nil {
		return Options{}, err
	}
	opts.RotateDegrees = NormalizeDegrees(opts.RotateDegrees)

	if opts.Flip, err = parseFlag(lookup, FieldFlip); err != nil {
		return Options{}, err
	}
	if opts.Flop, err = parseFlag(lookup, FieldFlop); err != nil {
		return Options{}, err
	}
	if opts.Brightness, err = parseNumber(lookup, FieldBrightness, 1); err != nil {
		return Options{}, err
	}
	if opts.Brightness < 0 {
		return Options{}, fmt.Errorf("%w: %s must not be negative", domain.ErrValidation, FieldBrightness)
	}
	if opts.Contrast, err = parseNumber(lookup, FieldContrast, 1); err != nil {
		return Options{}, err
	}
	if opts.Grayscale, err = parseFlag(lookup, FieldGrayscale); err != nil {
		return Options{}, err
	}

	return opts, nil
}

func parseNumber(lookup func(string) (string, bool), key string, fallback float64) (float64, error) {
	raw, ok := lookup(key)
	raw = strings.TrimSpace(raw)
	if !ok || raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %s must be a finite number, got %q", domain.ErrValidation, key, raw)
	}
	return v, nil
}

func parseFlag(lookup func(string) (string, bool), key string) (bool, error) {
	raw, ok := lookup(key)
	raw = strings.TrimSpace(raw)
	if !ok || raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(strings.ToLower(raw))
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean, got %q", domain.ErrValidation, key, raw)
	}
	return v, nil
}
