package pipeline

import (
	"errors"
	"testing"

	"github.com/dunamismax/pixelshelf/internal/domain"
)

func lookupFrom(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestParseOptionsDefaults(t *testing.T) {
	opts, err := ParseOptions(lookupFrom(nil))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if opts != DefaultOptions() {
		t.Fatalf("expected defaults, got %+v", opts)
	}
	if !opts.IsIdentity() {
		t.Fatal("expected defaults to be the identity")
	}
}

func TestParseOptionsBlankFieldsKeepDefaults(t *testing.T) {
	opts, err := ParseOptions(lookupFrom(map[string]string{
		FieldRotate:     "",
		FieldBrightness: "  ",
		FieldFlip:       "",
	}))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !opts.IsIdentity() {
		t.Fatalf("expected identity, got %+v", opts)
	}
}

func TestParseOptionsParsesAllFields(t *testing.T) {
	opts, err := ParseOptions(lookupFrom(map[string]string{
		FieldRotate:     "-90",
		FieldFlip:       "true",
		FieldFlop:       "FALSE",
		FieldBrightness: "1.5",
		FieldContrast:   "0.5",
		FieldGrayscale:  "1",
	}))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	want := Options{RotateDegrees: 270, Flip: true, Flop: false, Brightness: 1.5, Contrast: 0.5, Grayscale: true}
	if opts != want {
		t.Fatalf("expected %+v, got %+v", want, opts)
	}
}

func TestParseOptionsRejectsMalformedValues(t *testing.T) {
	cases := map[string]map[string]string{
		"brightness word":     {FieldBrightness: "bright"},
		"negative brightness": {FieldBrightness: "-1"},
		"contrast nan":        {FieldContrast: "NaN"},
		"rotate inf":          {FieldRotate: "+Inf"},
		"flip yes":            {FieldFlip: "yes"},
		"grayscale on":        {FieldGrayscale: "on"},
	}
	for name, values := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseOptions(lookupFrom(values))
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestNormalizeDegrees(t *testing.T) {
	cases := map[float64]float64{
		0:    0,
		360:  0,
		720:  0,
		450:  90,
		-90:  270,
		-360: 0,
		45.5: 45.5,
	}
	for in, want := range cases {
		if got := NormalizeDegrees(in); got != want {
			t.Fatalf("NormalizeDegrees(%v): expected %v, got %v", in, want, got)
		}
	}
}
