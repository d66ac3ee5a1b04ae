package render

import (
	"image"

	"github.com/AlessioGiambrone/stackistry/internal/pix"
)

const (
	bytesPerPixel = 4

	// Row starts are aligned so the buffer can be handed to blit/upload
	// paths that require aligned strides. This makes stride exceed
	// width*4 for most widths; nothing may assume they are equal.
	strideAlign = 64
)

// CanonicalFormat is the single pixel layout used for all display
// surfaces.
const CanonicalFormat = pix.PixBGRA8

// Surface is a display-ready pixel buffer: BGRA, 4 bytes per pixel, rows
// separated by Stride() bytes. Each Surface is freshly allocated and owned
// by its caller.
type Surface struct {
	width  int
	height int
	stride int
	data   []byte
}

// NewSurface allocates a zeroed surface. The stride is chosen by the
// backing store and is always >= width*4.
func NewSurface(width, height int) *Surface {
	stride := alignUp(width*bytesPerPixel, strideAlign)
	return &Surface{
		width:  width,
		height: height,
		stride: stride,
		data:   make([]byte, stride*height),
	}
}

func (s *Surface) Width() int  { return s.width }
func (s *Surface) Height() int { return s.height }
func (s *Surface) Stride() int { return s.stride }

// Data returns the raw buffer, including any per-row padding.
func (s *Surface) Data() []byte { return s.data }

// Line returns the packed pixels of one row, without the trailing stride
// padding.
func (s *Surface) Line(row int) []byte {
	return s.data[row*s.stride : row*s.stride+s.width*bytesPerPixel]
}

// ConvertImgToSurface converts an image in any supported pixel format into
// a fresh Surface in the canonical layout. It returns nil when the
// underlying format conversion fails; callers must check for that and skip
// drawing. Conversion never changes dimensions, so the surface is sized
// from the source image.
func ConvertImgToSurface(img *pix.Image) *Surface {
	if img == nil {
		return nil
	}

	src := img
	if img.Format() != CanonicalFormat {
		converted, err := pix.ConvertPixelFormat(img, CanonicalFormat)
		if err != nil {
			return nil
		}
		src = converted
	}

	surface := NewSurface(img.Width(), img.Height())

	// Rows must be copied one at a time: the source is packed at
	// width*4 bytes while the destination stride carries alignment
	// padding, so a single bulk copy would shear every subsequent row.
	rowBytes := src.BytesPerLine()
	for row := 0; row < src.Height(); row++ {
		copy(surface.data[row*surface.stride:row*surface.stride+rowBytes], src.Line(row))
	}

	return surface
}

// ToImage copies the surface into an NRGBA image (swizzling BGRA back to
// RGBA), for handing to the standard encoders when a preview file is
// wanted.
func (s *Surface) ToImage() *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, s.width, s.height))
	for y := 0; y < s.height; y++ {
		srcRow := s.Line(y)
		dstRow := dst.Pix[y*dst.Stride : y*dst.Stride+s.width*4]
		for x := 0; x < s.width; x++ {
			b, g, r, a := srcRow[x*4], srcRow[x*4+1], srcRow[x*4+2], srcRow[x*4+3]
			dstRow[x*4], dstRow[x*4+1], dstRow[x*4+2], dstRow[x*4+3] = r, g, b, a
		}
	}
	return dst
}

func alignUp(n, align int) int {
	return (n + align - 1) / align * align
}
