package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrUnsupportedFormat = fmt.Errorf("%w: unsupported image type", ErrValidation)
	ErrPayloadTooLarge   = fmt.Errorf("%w: payload too large", ErrValidation)
	ErrDecode            = errors.New("decode image")
	ErrEncode            = errors.New("encode image")
	ErrNotFound          = errors.New("image not found")
	ErrStorage           = errors.New("storage failure")
)

const (
	KindValidation = "validation"
	KindDecode     = "decode"
	KindEncode     = "encode"
	KindNotFound   = "not_found"
	KindStorage    = "storage"
	KindInternal   = "internal"
)

// ErrorKind classifies err into one of the stable kind labels.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrDecode):
		return KindDecode
	case errors.Is(err, ErrEncode):
		return KindEncode
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrStorage):
		return KindStorage
	default:
		return KindInternal
	}
}
