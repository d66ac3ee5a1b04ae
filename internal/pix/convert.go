package pix

// ConvertPixelFormat produces a new image with the same dimensions in the
// target format. Conversion only changes per-pixel layout, never the
// width or height. Palette sources cannot be converted without their
// palette and fail with ErrNoPalette.
func ConvertPixelFormat(img *Image, target PixelFormat) (*Image, error) {
	if img == nil {
		return nil, ErrInvalidParameters
	}
	if img.format == PixPal8 {
		return nil, ErrNoPalette
	}
	if img.format.BytesPerPixel() == 0 {
		return nil, ErrUnsupportedPixelFormat
	}
	if target == PixPal8 || target.BytesPerPixel() == 0 {
		return nil, ErrInvalidParameters
	}

	out, err := NewImage(img.width, img.height, target)
	if err != nil {
		return nil, err
	}

	if target == img.format {
		copy(out.pix, img.pix)
		return out, nil
	}

	srcBPP := img.format.BytesPerPixel()
	dstBPP := target.BytesPerPixel()
	for y := 0; y < img.height; y++ {
		srcRow := img.Line(y)
		dstRow := out.Line(y)
		for x := 0; x < img.width; x++ {
			r, g, b, a := readPixel(img.format, srcRow[x*srcBPP:x*srcBPP+srcBPP])
			writePixel(target, dstRow[x*dstBPP:x*dstBPP+dstBPP], r, g, b, a)
		}
	}

	return out, nil
}

// readPixel widens one packed pixel to 16-bit RGBA channels.
func readPixel(format PixelFormat, p []byte) (r, g, b, a uint16) {
	switch format {
	case PixMono8:
		v := widen8(p[0])
		return v, v, v, 0xffff
	case PixMono16:
		v := getUint16(p)
		return v, v, v, 0xffff
	case PixRGB8:
		return widen8(p[0]), widen8(p[1]), widen8(p[2]), 0xffff
	case PixBGR8:
		return widen8(p[2]), widen8(p[1]), widen8(p[0]), 0xffff
	case PixBGRA8:
		return widen8(p[2]), widen8(p[1]), widen8(p[0]), widen8(p[3])
	case PixRGB16:
		return getUint16(p), getUint16(p[2:]), getUint16(p[4:]), 0xffff
	case PixBGRA16:
		return getUint16(p[4:]), getUint16(p[2:]), getUint16(p), getUint16(p[6:])
	default:
		return 0, 0, 0, 0
	}
}

// writePixel narrows 16-bit RGBA channels into one packed pixel.
func writePixel(format PixelFormat, p []byte, r, g, b, a uint16) {
	switch format {
	case PixMono8:
		p[0] = byte(luminance(r, g, b) >> 8)
	case PixMono16:
		putUint16(p, luminance(r, g, b))
	case PixRGB8:
		p[0], p[1], p[2] = byte(r>>8), byte(g>>8), byte(b>>8)
	case PixBGR8:
		p[0], p[1], p[2] = byte(b>>8), byte(g>>8), byte(r>>8)
	case PixBGRA8:
		p[0], p[1], p[2], p[3] = byte(b>>8), byte(g>>8), byte(r>>8), byte(a>>8)
	case PixRGB16:
		putUint16(p, r)
		putUint16(p[2:], g)
		putUint16(p[4:], b)
	case PixBGRA16:
		putUint16(p, b)
		putUint16(p[2:], g)
		putUint16(p[4:], r)
		putUint16(p[6:], a)
	}
}

func widen8(v byte) uint16 {
	return uint16(v) * 0x101
}

// luminance uses the Rec. 601 weights, same as the standard library's
// gray models.
func luminance(r, g, b uint16) uint16 {
	return uint16((19595*uint32(r) + 38470*uint32(g) + 7471*uint32(b) + 1<<15) >> 16)
}
