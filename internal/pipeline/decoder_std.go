//go:build !govips || !cgo

package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/AlessioGiambrone/stackistry/internal/pix"
)

func Startup() error {
	return nil
}

func Shutdown() {}

func newDecoder() (Decoder, error) {
	return stdlibDecoder{}, nil
}

type stdlibDecoder struct{}

func (stdlibDecoder) Decode(ctx context.Context, input []byte) (*pix.Image, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	src, _, err := image.Decode(bytes.NewReader(input))
	if err != nil {
		return nil, fmt.Errorf("decode source image: %w", err)
	}

	frame, err := pix.FromGoImage(src)
	if err != nil {
		return nil, fmt.Errorf("bridge source image: %w", err)
	}
	return frame, nil
}
