package pipeline

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

// Box is an inclusive bounding box for resize-to-fit.
type Box struct {
	Width  int
	Height int
}

// FitDimensions scales w×h down to fit inside box while keeping the aspect
// ratio. Images already inside the box are returned unchanged.
func FitDimensions(w, h int, box Box) (int, int) {
	if w <= 0 || h <= 0 || box.Width <= 0 || box.Height <= 0 {
		return w, h
	}
	if w <= box.Width && h <= box.Height {
		return w, h
	}

	scale := math.Min(float64(box.Width)/float64(w), float64(box.Height)/float64(h))
	fw := min(box.Width, max(1, int(math.Round(float64(w)*scale))))
	fh := min(box.Height, max(1, int(math.Round(float64(h)*scale))))
	return fw, fh
}

// FitWithin resamples img down so it fits inside box; it never enlarges.
func FitWithin(img *image.NRGBA, box Box) *image.NRGBA {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	fw, fh := FitDimensions(w, h, box)
	if fw == w && fh == h {
		return img
	}

	dst := image.NewNRGBA(image.Rect(0, 0, fw, fh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}
