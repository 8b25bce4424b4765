package pipeline

import (
	"context"
	"image"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Step names, in the order Apply runs them.
const (
	StepRotate     = "rotate"
	StepFlip       = "flip"
	StepFlop       = "flop"
	StepBrightness = "brightness"
	StepContrast   = "contrast"
	StepGrayscale  = "grayscale"
)

type step struct {
	name    string
	enabled bool
	run     func(*image.NRGBA) *image.NRGBA
}

func plan(opts Options) []step {
	deg := NormalizeDegrees(opts.RotateDegrees)
	return []step{
		{StepRotate, deg != 0, func(img *image.NRGBA) *image.NRGBA { return rotate(img, deg) }},
		{StepFlip, opts.Flip, flip},
		{StepFlop, opts.Flop, flop},
		{StepBrightness, opts.Brightness != 1, func(img *image.NRGBA) *image.NRGBA { return brightness(img, opts.Brightness) }},
		{StepContrast, opts.Contrast != 1, func(img *image.NRGBA) *image.NRGBA { return contrast(img, opts.Contrast) }},
		{StepGrayscale, opts.Grayscale, grayscale},
	}
}

// Steps lists the operations Apply would run for opts.
func Steps(opts Options) []string {
	var names []string
	for _, s := range plan(opts) {
		if s.enabled {
			names = append(names, s.name)
		}
	}
	return names
}

// Apply runs the enabled operations on a copy of src in the fixed order
// rotate, flip, flop, brightness, contrast, grayscale.
func Apply(ctx context.Context, src image.Image, opts Options) (*image.NRGBA, error) {
	out := toNRGBA(src)
	for _, s := range plan(opts) {
		if !s.enabled {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = s.run(out)
	}
	return out, nil
}

func toNRGBA(src image.Image) *image.NRGBA {
	b := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

// rotate turns img clockwise by deg, which must already be normalised.
// Quarter turns remap pixels exactly; other angles resample onto an enlarged
// transparent canvas.
func rotate(img *image.NRGBA, deg float64) *image.NRGBA {
	switch deg {
	case 90, 180, 270:
		return rotateQuarter(img, int(deg)/90)
	}

	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	rad := deg * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)

	dw := int(math.Ceil(math.Abs(float64(w)*cos)+math.Abs(float64(h)*sin)-1e-9))
	dh := int(math.Ceil(math.Abs(float64(w)*sin)+math.Abs(float64(h)*cos)-1e-9))
	dw, dh = max(dw, 1), max(dh, 1)

	// y grows downward, so this matrix turns clockwise on screen.
	csx, csy := float64(w)/2, float64(h)/2
	cdx, cdy := float64(dw)/2, float64(dh)/2
	s2d := f64.Aff3{
		cos, -sin, cdx - (cos*csx - sin*csy),
		sin, cos, cdy - (sin*csx + cos*csy),
	}

	dst := image.NewNRGBA(image.Rect(0, 0, dw, dh))
	draw.BiLinear.Transform(dst, s2d, img, img.Bounds(), draw.Src, nil)
	return dst
}

func rotateQuarter(img *image.NRGBA, turns int) *image.NRGBA {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	dw, dh := w, h
	if turns%2 == 1 {
		dw, dh = h, w
	}
	dst := image.NewNRGBA(image.Rect(0, 0, dw, dh))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var dx, dy int
			switch turns {
			case 1:
				dx, dy = h-1-y, x
			case 2:
				dx, dy = w-1-x, h-1-y
			default:
				dx, dy = y, w-1-x
			}
			si := img.PixOffset(x, y)
			di := dst.PixOffset(dx, dy)
			copy(dst.Pix[di:di+4], img.Pix[si:si+4])
		}
	}
	return dst
}

// flip swaps rows top to bottom.
func flip(img *image.NRGBA) *image.NRGBA {
	h := img.Bounds().Dy()
	rowLen := img.Bounds().Dx() * 4
	tmp := make([]byte, rowLen)
	for top, bottom := 0, h-1; top < bottom; top, bottom = top+1, bottom-1 {
		a := img.Pix[top*img.Stride : top*img.Stride+rowLen]
		b := img.Pix[bottom*img.Stride : bottom*img.Stride+rowLen]
		copy(tmp, a)
		copy(a, b)
		copy(b, tmp)
	}
	return img
}

// flop swaps columns left to right.
func flop(img *image.NRGBA) *image.NRGBA {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for l, r := 0, w-1; l < r; l, r = l+1, r-1 {
			for c := 0; c < 4; c++ {
				row[l*4+c], row[r*4+c] = row[r*4+c], row[l*4+c]
			}
		}
	}
	return img
}

func brightness(img *image.NRGBA, factor float64) *image.NRGBA {
	mapColor(img, func(v float64) float64 { return v * factor })
	return img
}

// contrast stretches around the 128 midpoint: v' = f*v - 128*(f-1).
func contrast(img *image.NRGBA, factor float64) *image.NRGBA {
	offset := -128 * (factor - 1)
	mapColor(img, func(v float64) float64 { return factor*v + offset })
	return img
}

// grayscale replaces the colour channels with Rec. 601 luma; alpha is kept.
func grayscale(img *image.NRGBA) *image.NRGBA {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for i := 0; i < len(row); i += 4 {
			luma := clampChannel(0.299*float64(row[i]) + 0.587*float64(row[i+1]) + 0.114*float64(row[i+2]))
			row[i], row[i+1], row[i+2] = luma, luma, luma
		}
	}
	return img
}

func mapColor(img *image.NRGBA, fn func(float64) float64) {
	var lut [256]uint8
	for v := range lut {
		lut[v] = clampChannel(fn(float64(v)))
	}

	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for i := 0; i < len(row); i += 4 {
			row[i] = lut[row[i]]
			row[i+1] = lut[row[i+1]]
			row[i+2] = lut[row[i+2]]
		}
	}
}

func clampChannel(v float64) uint8 {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
