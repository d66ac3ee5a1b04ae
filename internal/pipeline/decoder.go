package pipeline

import (
	"context"
	"image"
	"image/png"
	"io"

	"github.com/AlessioGiambrone/stackistry/internal/pix"
)

// Decoder turns raw source bytes into an internal frame. The stdlib
// implementation always builds; a libvips-backed one is selected by the
// govips build tag.
type Decoder interface {
	Decode(ctx context.Context, input []byte) (*pix.Image, error)
}

func encodePNG(w io.Writer, img image.Image) error {
	encoder := png.Encoder{CompressionLevel: png.DefaultCompression}
	return encoder.Encode(w, img)
}
