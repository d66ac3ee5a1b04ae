//go:build govips && cgo

package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"sync"

	"github.com/davidbyttow/govips/v2/vips"

	"github.com/AlessioGiambrone/stackistry/internal/pix"
)

var (
	startupOnce sync.Once
	shutdownMu  sync.Mutex
	started     bool
)

func Startup() error {
	startupOnce.Do(func() {
		vips.Startup(&vips.Config{
			MaxCacheFiles: 0,
			MaxCacheMem:   128 * 1024 * 1024,
			MaxCacheSize:  100,
		})

		shutdownMu.Lock()
		started = true
		shutdownMu.Unlock()
	})
	return nil
}

func Shutdown() {
	shutdownMu.Lock()
	defer shutdownMu.Unlock()
	if !started {
		return
	}
	vips.Shutdown()
	started = false
}

func newDecoder() (Decoder, error) {
	return govipsDecoder{}, nil
}

// govipsDecoder accepts every container libvips can read (HEIF, JXL, raw
// camera formats) and normalizes through a lossless PNG export before
// bridging into the packed internal layout.
type govipsDecoder struct{}

func (govipsDecoder) Decode(ctx context.Context, input []byte) (*pix.Image, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	img, err := vips.NewImageFromBuffer(input)
	if err != nil {
		return nil, fmt.Errorf("decode source image: %w", err)
	}
	defer img.Close()

	data, _, err := img.ExportPng(vips.NewPngExportParams())
	if err != nil {
		return nil, fmt.Errorf("normalize source image: %w", err)
	}

	normalized, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("reread normalized image: %w", err)
	}

	frame, err := pix.FromGoImage(normalized)
	if err != nil {
		return nil, fmt.Errorf("bridge source image: %w", err)
	}
	return frame, nil
}
