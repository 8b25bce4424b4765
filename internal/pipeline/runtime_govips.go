//go:build govips && cgo

package pipeline

import (
	"errors"
	"sync"

	"github.com/davidbyttow/govips/v2/vips"
)

const vipsCacheMem = 128 << 20

type vipsState int

const (
	vipsIdle vipsState = iota
	vipsRunning
	vipsStopped
)

var (
	vipsMu    sync.Mutex
	vipsPhase vipsState
)

// Startup boots libvips. Repeated calls are no-ops; libvips cannot be
// started again once Shutdown has run.
func Startup() error {
	vipsMu.Lock()
	defer vipsMu.Unlock()

	switch vipsPhase {
	case vipsRunning:
		return nil
	case vipsStopped:
		return errors.New("libvips was already shut down")
	}

	vips.LoggingSettings(nil, vips.LogLevelWarning)
	vips.Startup(&vips.Config{
		MaxCacheMem:  vipsCacheMem,
		MaxCacheSize: 100,
	})
	vipsPhase = vipsRunning
	return nil
}

func Shutdown() {
	vipsMu.Lock()
	defer vipsMu.Unlock()

	if vipsPhase == vipsRunning {
		vips.Shutdown()
		vipsPhase = vipsStopped
	}
}

// DefaultOutputFormat is webp, which libvips encodes natively.
func DefaultOutputFormat() string {
	return FormatWEBP
}

func canEncode(string) bool { return true }

func newTransformer() (Transformer, error) {
	return govipsTransformer{}, nil
}
