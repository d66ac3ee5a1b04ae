package pix

import (
	"image"
	"image/color"
)

// Image is a pixel buffer with packed rows: each row occupies exactly
// width * BytesPerPixel bytes, with no padding between rows. 16-bit
// channels are stored little-endian.
type Image struct {
	width  int
	height int
	format PixelFormat
	pix    []byte
}

// NewImage allocates a zeroed image in the given format.
func NewImage(width, height int, format PixelFormat) (*Image, error) {
	if width <= 0 || height <= 0 {
		return nil, ErrInvalidImageDimensions
	}
	if format.BytesPerPixel() == 0 {
		return nil, ErrInvalidParameters
	}

	return &Image{
		width:  width,
		height: height,
		format: format,
		pix:    make([]byte, width*height*format.BytesPerPixel()),
	}, nil
}

func (im *Image) Width() int          { return im.width }
func (im *Image) Height() int         { return im.height }
func (im *Image) Format() PixelFormat { return im.format }

// BytesPerLine returns the packed row length in bytes.
func (im *Image) BytesPerLine() int {
	return im.width * im.format.BytesPerPixel()
}

// Line returns the contiguous byte span of one row. The slice aliases the
// image buffer; callers treating the image as read-only must not write
// through it.
func (im *Image) Line(row int) []byte {
	stride := im.BytesPerLine()
	return im.pix[row*stride : (row+1)*stride]
}

// Pix returns the whole packed pixel buffer.
func (im *Image) Pix() []byte {
	return im.pix
}

// FromGoImage converts a decoded standard-library image into a packed
// Image. Gray inputs map to the mono formats, 16-bit inputs keep their
// depth, and everything else lands in BGRA8.
func FromGoImage(src image.Image) (*Image, error) {
	if src == nil {
		return nil, ErrInvalidParameters
	}
	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return nil, ErrInvalidImageDimensions
	}

	switch typed := src.(type) {
	case *image.Gray:
		im, err := NewImage(width, height, PixMono8)
		if err != nil {
			return nil, err
		}
		for y := 0; y < height; y++ {
			srcRow := typed.Pix[y*typed.Stride : y*typed.Stride+width]
			copy(im.Line(y), srcRow)
		}
		return im, nil

	case *image.Gray16:
		im, err := NewImage(width, height, PixMono16)
		if err != nil {
			return nil, err
		}
		for y := 0; y < height; y++ {
			srcRow := typed.Pix[y*typed.Stride : y*typed.Stride+width*2]
			dstRow := im.Line(y)
			for x := 0; x < width; x++ {
				// Gray16 stores big-endian samples.
				v := uint16(srcRow[x*2])<<8 | uint16(srcRow[x*2+1])
				putUint16(dstRow[x*2:], v)
			}
		}
		return im, nil

	case *image.NRGBA64:
		im, err := NewImage(width, height, PixRGB16)
		if err != nil {
			return nil, err
		}
		for y := 0; y < height; y++ {
			srcRow := typed.Pix[y*typed.Stride : y*typed.Stride+width*8]
			dstRow := im.Line(y)
			for x := 0; x < width; x++ {
				s := srcRow[x*8 : x*8+8]
				d := dstRow[x*6 : x*6+6]
				putUint16(d[0:], uint16(s[0])<<8|uint16(s[1]))
				putUint16(d[2:], uint16(s[2])<<8|uint16(s[3]))
				putUint16(d[4:], uint16(s[4])<<8|uint16(s[5]))
			}
		}
		return im, nil

	case *image.RGBA64:
		// Opaque 16-bit truecolor PNGs and 16-bit RGB TIFFs decode to
		// RGBA64. Samples are alpha-premultiplied; recover straight values
		// so the 16-bit depth survives the bridge.
		im, err := NewImage(width, height, PixRGB16)
		if err != nil {
			return nil, err
		}
		for y := 0; y < height; y++ {
			srcRow := typed.Pix[y*typed.Stride : y*typed.Stride+width*8]
			dstRow := im.Line(y)
			for x := 0; x < width; x++ {
				s := srcRow[x*8 : x*8+8]
				r := uint32(s[0])<<8 | uint32(s[1])
				g := uint32(s[2])<<8 | uint32(s[3])
				b := uint32(s[4])<<8 | uint32(s[5])
				a := uint32(s[6])<<8 | uint32(s[7])
				if a > 0 && a < 0xffff {
					r = r * 0xffff / a
					g = g * 0xffff / a
					b = b * 0xffff / a
				}
				d := dstRow[x*6 : x*6+6]
				putUint16(d[0:], uint16(r))
				putUint16(d[2:], uint16(g))
				putUint16(d[4:], uint16(b))
			}
		}
		return im, nil
	}

	im, err := NewImage(width, height, PixBGRA8)
	if err != nil {
		return nil, err
	}
	for y := 0; y < height; y++ {
		dstRow := im.Line(y)
		for x := 0; x < width; x++ {
			c := color.NRGBAModel.Convert(src.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			d := dstRow[x*4 : x*4+4]
			d[0] = c.B
			d[1] = c.G
			d[2] = c.R
			d[3] = c.A
		}
	}
	return im, nil
}

// ToGoImage converts a packed Image back into a standard-library image so
// it can be handed to the stock encoders. Palette images are not
// representable without their palette and fail.
func (im *Image) ToGoImage() (image.Image, error) {
	switch im.format {
	case PixMono8:
		dst := image.NewGray(image.Rect(0, 0, im.width, im.height))
		for y := 0; y < im.height; y++ {
			copy(dst.Pix[y*dst.Stride:y*dst.Stride+im.width], im.Line(y))
		}
		return dst, nil

	case PixMono16:
		dst := image.NewGray16(image.Rect(0, 0, im.width, im.height))
		for y := 0; y < im.height; y++ {
			srcRow := im.Line(y)
			dstRow := dst.Pix[y*dst.Stride : y*dst.Stride+im.width*2]
			for x := 0; x < im.width; x++ {
				v := getUint16(srcRow[x*2:])
				dstRow[x*2] = byte(v >> 8)
				dstRow[x*2+1] = byte(v)
			}
		}
		return dst, nil

	case PixRGB8, PixBGR8, PixBGRA8:
		dst := image.NewNRGBA(image.Rect(0, 0, im.width, im.height))
		bpp := im.format.BytesPerPixel()
		for y := 0; y < im.height; y++ {
			srcRow := im.Line(y)
			dstRow := dst.Pix[y*dst.Stride : y*dst.Stride+im.width*4]
			for x := 0; x < im.width; x++ {
				s := srcRow[x*bpp : x*bpp+bpp]
				d := dstRow[x*4 : x*4+4]
				switch im.format {
				case PixRGB8:
					d[0], d[1], d[2], d[3] = s[0], s[1], s[2], 0xff
				case PixBGR8:
					d[0], d[1], d[2], d[3] = s[2], s[1], s[0], 0xff
				default:
					d[0], d[1], d[2], d[3] = s[2], s[1], s[0], s[3]
				}
			}
		}
		return dst, nil

	case PixRGB16, PixBGRA16:
		dst := image.NewNRGBA64(image.Rect(0, 0, im.width, im.height))
		bpp := im.format.BytesPerPixel()
		for y := 0; y < im.height; y++ {
			srcRow := im.Line(y)
			dstRow := dst.Pix[y*dst.Stride : y*dst.Stride+im.width*8]
			for x := 0; x < im.width; x++ {
				s := srcRow[x*bpp : x*bpp+bpp]
				var r, g, b, a uint16
				if im.format == PixRGB16 {
					r = getUint16(s[0:])
					g = getUint16(s[2:])
					b = getUint16(s[4:])
					a = 0xffff
				} else {
					b = getUint16(s[0:])
					g = getUint16(s[2:])
					r = getUint16(s[4:])
					a = getUint16(s[6:])
				}
				d := dstRow[x*8 : x*8+8]
				d[0], d[1] = byte(r>>8), byte(r)
				d[2], d[3] = byte(g>>8), byte(g)
				d[4], d[5] = byte(b>>8), byte(b)
				d[6], d[7] = byte(a>>8), byte(a)
			}
		}
		return dst, nil

	default:
		return nil, ErrUnsupportedPixelFormat
	}
}

func putUint16(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

func getUint16(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}
