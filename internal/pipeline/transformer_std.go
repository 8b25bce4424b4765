package pipeline

import "context"

type stdlibTransformer struct{}

func (t stdlibTransformer) Transform(ctx context.Context, req Request) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	default:
	}

	src, err := Decode(req.Data, req.MimeType)
	if err != nil {
		return Result{}, err
	}

	out, err := Apply(ctx, src, req.Options)
	if err != nil {
		return Result{}, err
	}
	if req.Fit != nil {
		out = FitWithin(out, *req.Fit)
	}

	data, err := Encode(out, req.Format, req.Quality)
	if err != nil {
		return Result{}, err
	}

	bounds := out.Bounds()
	return Result{
		Data:   data,
		Format: req.Format,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, nil
}
