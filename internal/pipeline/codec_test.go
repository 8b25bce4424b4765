package pipeline

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/dunamismax/pixelshelf/internal/domain"
)

func TestCheckMimeType(t *testing.T) {
	for _, ok := range []string{"image/jpeg", "image/png", "image/gif", "image/webp", "IMAGE/PNG", "image/jpeg; charset=binary"} {
		if err := CheckMimeType(ok); err != nil {
			t.Fatalf("expected %q to be allowed, got %v", ok, err)
		}
	}
	for _, bad := range []string{"", "image/jpg", "image/bmp", "image/svg+xml", "text/plain", "application/octet-stream"} {
		if err := CheckMimeType(bad); !errors.Is(err, domain.ErrUnsupportedFormat) {
			t.Fatalf("expected %q to be rejected, got %v", bad, err)
		}
	}
}

func TestDecodeRejectsDisallowedDeclaredTypeEvenForValidBytes(t *testing.T) {
	data := encodeTestImage(t, buildTestImage(10, 10), "png")

	_, err := Decode(data, "image/bmp")
	if !errors.Is(err, domain.ErrUnsupportedFormat) {
		t.Fatalf("expected unsupported format, got %v", err)
	}
}

func TestDecodeCorruptContent(t *testing.T) {
	data := encodeTestImage(t, buildTestImage(10, 10), "png")

	_, err := Decode(data[:len(data)/3], "image/png")
	if !errors.Is(err, domain.ErrDecode) {
		t.Fatalf("expected decode error, got %v", err)
	}

	_, err = Decode([]byte("definitely not an image"), "image/jpeg")
	if !errors.Is(err, domain.ErrDecode) {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestDecodeEncodeKeepsDimensions(t *testing.T) {
	src := buildTestImage(37, 23)

	for _, in := range []struct {
		format, mime string
		data         []byte
	}{
		{"png", "image/png", encodeTestImage(t, src, "png")},
		{"jpeg", "image/jpeg", encodeTestImage(t, src, "jpeg")},
		{"gif", "image/gif", encodeTestImage(t, src, "gif")},
		{"webp", "image/webp", readTestdata(t, solidWebP)},
	} {
		img, err := Decode(in.data, in.mime)
		if err != nil {
			t.Fatalf("decode %s: %v", in.format, err)
		}
		if img.Bounds().Dx() != 37 || img.Bounds().Dy() != 23 {
			t.Fatalf("decode %s: expected 37x23, got %v", in.format, img.Bounds())
		}

		for _, out := range []string{FormatJPEG, FormatPNG} {
			encoded, err := Encode(img, out, 0)
			if err != nil {
				t.Fatalf("encode %s->%s: %v", in.format, out, err)
			}
			got := decodeTestImage(t, encoded)
			if got.Bounds().Dx() != 37 || got.Bounds().Dy() != 23 {
				t.Fatalf("%s->%s: expected 37x23, got %v", in.format, out, got.Bounds())
			}
		}
	}
}

func TestDecodeLosslessWebPPixels(t *testing.T) {
	img, err := Decode(readTestdata(t, solidWebP), "image/webp")
	if err != nil {
		t.Fatalf("decode webp: %v", err)
	}

	want := color.NRGBA{R: 200, G: 80, B: 30, A: 255}
	for _, pt := range []image.Point{{0, 0}, {18, 11}, {36, 22}} {
		got := color.NRGBAModel.Convert(img.At(pt.X, pt.Y)).(color.NRGBA)
		if got != want {
			t.Fatalf("pixel %v: expected %v, got %v", pt, want, got)
		}
	}
}

func TestDecodeTruncatedWebP(t *testing.T) {
	data := readTestdata(t, solidWebP)

	if _, err := Decode(data[:20], "image/webp"); !errors.Is(err, domain.ErrDecode) {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestEncodeUnsupportedFormat(t *testing.T) {
	img := buildTestImage(4, 4)

	if _, err := Encode(img, FormatWEBP, 80); !errors.Is(err, domain.ErrEncode) {
		t.Fatalf("expected encode error for webp without govips, got %v", err)
	}
	if _, err := Encode(img, "tiff", 80); !errors.Is(err, domain.ErrEncode) {
		t.Fatalf("expected encode error for tiff, got %v", err)
	}
}
