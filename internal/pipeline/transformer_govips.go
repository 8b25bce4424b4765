//go:build govips && cgo

package pipeline

import (
	"context"
	"fmt"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/dunamismax/pixelshelf/internal/domain"
)

type govipsTransformer struct{}

func (t govipsTransformer) Transform(ctx context.Context, req Request) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	default:
	}

	if err := CheckMimeType(req.MimeType); err != nil {
		return Result{}, err
	}

	img, err := vips.NewImageFromBuffer(req.Data)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}
	defer img.Close()

	if int64(img.Width())*int64(img.Height()) > maxDecodePixels {
		return Result{}, fmt.Errorf("%w: unsupported dimensions %dx%d", domain.ErrDecode, img.Width(), img.Height())
	}

	if err := applyGovipsOptions(ctx, img, req.Options); err != nil {
		return Result{}, err
	}
	if req.Fit != nil {
		if err := applyGovipsFit(img, *req.Fit); err != nil {
			return Result{}, err
		}
	}

	data, err := exportGovipsImage(img, req.Format, req.Quality)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Data:   data,
		Format: req.Format,
		Width:  img.Width(),
		Height: img.Height(),
	}, nil
}

func applyGovipsOptions(ctx context.Context, img *vips.ImageRef, opts Options) error {
	deg := NormalizeDegrees(opts.RotateDegrees)

	ops := []struct {
		enabled bool
		name    string
		run     func() error
	}{
		{deg != 0, StepRotate, func() error { return govipsRotate(img, deg) }},
		{opts.Flip, StepFlip, func() error { return img.Flip(vips.DirectionVertical) }},
		{opts.Flop, StepFlop, func() error { return img.Flip(vips.DirectionHorizontal) }},
		{opts.Brightness != 1, StepBrightness, func() error { return govipsLinear(img, opts.Brightness, 0) }},
		{opts.Contrast != 1, StepContrast, func() error { return govipsLinear(img, opts.Contrast, -128*(opts.Contrast-1)) }},
		{opts.Grayscale, StepGrayscale, func() error { return img.ToColorSpace(vips.InterpretationBW) }},
	}

	for _, op := range ops {
		if !op.enabled {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := op.run(); err != nil {
			return fmt.Errorf("%s image: %w", op.name, err)
		}
	}
	return nil
}

func govipsRotate(img *vips.ImageRef, deg float64) error {
	switch deg {
	case 90:
		return img.Rotate(vips.Angle90)
	case 180:
		return img.Rotate(vips.Angle180)
	case 270:
		return img.Rotate(vips.Angle270)
	}

	if !img.HasAlpha() {
		if err := img.AddAlpha(); err != nil {
			return err
		}
	}
	return img.Similarity(1, deg, &vips.ColorRGBA{R: 0, G: 0, B: 0, A: 0}, 0, 0, 0, 0)
}

// govipsLinear applies v' = a*v + b to the colour bands only, then clamps back
// to 8 bits.
func govipsLinear(img *vips.ImageRef, a, b float64) error {
	bands := img.Bands()
	mul := make([]float64, bands)
	add := make([]float64, bands)
	for i := range mul {
		mul[i], add[i] = a, b
	}
	if img.HasAlpha() {
		mul[bands-1], add[bands-1] = 1, 0
	}

	if err := img.Linear(mul, add); err != nil {
		return err
	}
	return img.Cast(vips.BandFormatUchar)
}

// applyGovipsFit scales each axis to the FitDimensions target so the result
// matches the pure Go backend and never leaves the box.
func applyGovipsFit(img *vips.ImageRef, box Box) error {
	w, h := img.Width(), img.Height()
	fw, fh := FitDimensions(w, h, box)
	if fw == w && fh == h {
		return nil
	}

	hScale := float64(fw) / float64(w)
	vScale := float64(fh) / float64(h)
	if err := img.ResizeWithVScale(hScale, vScale, vips.KernelLanczos3); err != nil {
		return fmt.Errorf("resize image: %w", err)
	}

	// libvips rounds the output size on its own; trim any overshoot.
	if img.Width() > fw || img.Height() > fh {
		if err := img.ExtractArea(0, 0, min(img.Width(), fw), min(img.Height(), fh)); err != nil {
			return fmt.Errorf("crop resized image: %w", err)
		}
	}
	return nil
}

func exportGovipsImage(img *vips.ImageRef, format string, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}

	switch format {
	case FormatJPEG:
		params := vips.NewJpegExportParams()
		params.Quality = quality
		data, _, err := img.ExportJpeg(params)
		if err != nil {
			return nil, fmt.Errorf("%w: jpeg: %v", domain.ErrEncode, err)
		}
		return data, nil
	case FormatPNG:
		params := vips.NewPngExportParams()
		data, _, err := img.ExportPng(params)
		if err != nil {
			return nil, fmt.Errorf("%w: png: %v", domain.ErrEncode, err)
		}
		return data, nil
	case FormatWEBP:
		params := vips.NewWebpExportParams()
		params.Quality = quality
		data, _, err := img.ExportWebp(params)
		if err != nil {
			return nil, fmt.Errorf("%w: webp: %v", domain.ErrEncode, err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("%w: unsupported output format %q", domain.ErrEncode, format)
	}
}
