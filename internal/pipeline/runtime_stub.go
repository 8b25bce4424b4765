//go:build !govips || !cgo

package pipeline

func Startup() error {
	return nil
}

func Shutdown() {}

// DefaultOutputFormat is the lossy format the pure Go backend can write.
func DefaultOutputFormat() string {
	return FormatJPEG
}

func canEncode(format string) bool {
	return format != FormatWEBP
}

func newTransformer() (Transformer, error) {
	return stdlibTransformer{}, nil
}
