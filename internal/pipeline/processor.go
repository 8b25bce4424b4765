package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dunamismax/pixelshelf/internal/domain"
)

const (
	DefaultMaxUploadBytes = 5 * 1024 * 1024
	DefaultFitWidth       = 2000
	DefaultFitHeight      = 2000
)

var ErrNoInput = fmt.Errorf("%w: no file uploaded", domain.ErrValidation)

type Config struct {
	MaxUploadBytes int64
	OutputFormat   string
	Quality        int
	Fit            Box
}

// Input is an upload as received from the caller.
type Input struct {
	Data     []byte
	MimeType string
}

// Processor validates uploads and runs them through the configured backend.
// Output format and quality are fixed for the life of the processor.
type Processor struct {
	transformer    Transformer
	maxUploadBytes int64
	format         string
	quality        int
	fit            Box
}

func NewProcessor(cfg Config) (*Processor, error) {
	if _, err := ResolveOutputFormat(cfg.OutputFormat); err != nil {
		return nil, err
	}
	transformer, err := newTransformer()
	if err != nil {
		return nil, fmt.Errorf("build transformer: %w", err)
	}
	return newProcessor(cfg, transformer)
}

func newProcessor(cfg Config, transformer Transformer) (*Processor, error) {
	if transformer == nil {
		return nil, errors.New("transformer is required")
	}

	formatName := cfg.OutputFormat
	if strings.TrimSpace(formatName) == "" {
		formatName = DefaultOutputFormat()
	}
	format, err := normalizeOutputFormat(formatName)
	if err != nil {
		return nil, err
	}

	p := &Processor{
		transformer:    transformer,
		maxUploadBytes: cfg.MaxUploadBytes,
		format:         format,
		quality:        cfg.Quality,
		fit:            cfg.Fit,
	}
	if p.maxUploadBytes <= 0 {
		p.maxUploadBytes = DefaultMaxUploadBytes
	}
	if p.quality <= 0 || p.quality > 100 {
		p.quality = DefaultQuality
	}
	if p.fit.Width <= 0 || p.fit.Height <= 0 {
		p.fit = Box{Width: DefaultFitWidth, Height: DefaultFitHeight}
	}
	return p, nil
}

func (p *Processor) Format() string {
	return p.format
}

func (p *Processor) ContentType() string {
	return ContentTypeForFormat(p.format)
}

func (p *Processor) Extension() string {
	return ExtensionForFormat(p.format)
}

func (p *Processor) MaxUploadBytes() int64 {
	return p.maxUploadBytes
}

// Validate runs the checks that must pass before any decode is attempted.
func (p *Processor) Validate(in Input) error {
	if len(in.Data) == 0 {
		return ErrNoInput
	}
	if int64(len(in.Data)) > p.maxUploadBytes {
		return fmt.Errorf("%w: %d bytes exceeds limit of %d", domain.ErrPayloadTooLarge, len(in.Data), p.maxUploadBytes)
	}
	return CheckMimeType(in.MimeType)
}

// Optimize re-encodes an upload and shrinks it to fit the configured box.
func (p *Processor) Optimize(ctx context.Context, in Input) (Result, error) {
	fit := p.fit
	return p.run(ctx, in, DefaultOptions(), &fit)
}

// Edit applies opts and re-encodes without resizing.
func (p *Processor) Edit(ctx context.Context, in Input, opts Options) (Result, error) {
	return p.run(ctx, in, opts, nil)
}

// Reencode converts an upload to the output format as-is.
func (p *Processor) Reencode(ctx context.Context, in Input) (Result, error) {
	return p.run(ctx, in, DefaultOptions(), nil)
}

func (p *Processor) run(ctx context.Context, in Input, opts Options, fit *Box) (Result, error) {
	if err := p.Validate(in); err != nil {
		return Result{}, err
	}

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	default:
	}

	return p.transformer.Transform(ctx, Request{
		Data:     in.Data,
		MimeType: in.MimeType,
		Options:  opts,
		Fit:      fit,
		Format:   p.format,
		Quality:  p.quality,
	})
}
