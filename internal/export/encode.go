package export

import (
	"fmt"
	"image/png"
	"io"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/AlessioGiambrone/stackistry/internal/pix"
)

// Encode writes img to w in the given output format. The caller is
// responsible for having converted img into a pixel format whose bit
// depth matches the output format (see pix.FindMatchingFormat); the
// encoders will otherwise narrow or widen the samples themselves.
func Encode(w io.Writer, img *pix.Image, format pix.OutputFormat) error {
	goImg, err := img.ToGoImage()
	if err != nil {
		return fmt.Errorf("bridge image for encoding: %w", err)
	}

	switch format {
	case pix.OutBMP8:
		if err := bmp.Encode(w, goImg); err != nil {
			return fmt.Errorf("encode bmp: %w", err)
		}
	case pix.OutPNG8:
		encoder := png.Encoder{CompressionLevel: png.DefaultCompression}
		if err := encoder.Encode(w, goImg); err != nil {
			return fmt.Errorf("encode png: %w", err)
		}
	case pix.OutTIFF16:
		if err := tiff.Encode(w, goImg, &tiff.Options{Compression: tiff.Uncompressed}); err != nil {
			return fmt.Errorf("encode tiff: %w", err)
		}
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}

	return nil
}

// ContentType returns the MIME type for files written in the given output
// format.
func ContentType(format pix.OutputFormat) string {
	switch format {
	case pix.OutBMP8:
		return "image/bmp"
	case pix.OutTIFF16:
		return "image/tiff"
	default:
		return "image/png"
	}
}
