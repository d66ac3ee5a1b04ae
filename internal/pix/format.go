package pix

// PixelFormat identifies how one pixel's channels are packed in an Image
// buffer. The zero value is the invalid sentinel.
type PixelFormat int

const (
	PixInvalid PixelFormat = iota
	PixPal8
	PixMono8
	PixRGB8
	PixBGR8
	PixBGRA8
	PixMono16
	PixRGB16
	PixBGRA16

	numPixelFormats
)

// NumChannels maps a pixel format to its channel count. Zero for the
// invalid sentinel.
var NumChannels = [numPixelFormats]int{
	PixPal8:   1,
	PixMono8:  1,
	PixRGB8:   3,
	PixBGR8:   3,
	PixBGRA8:  4,
	PixMono16: 1,
	PixRGB16:  3,
	PixBGRA16: 4,
}

// BitsPerChannel maps a pixel format to the bit depth of each channel.
var BitsPerChannel = [numPixelFormats]int{
	PixPal8:   8,
	PixMono8:  8,
	PixRGB8:   8,
	PixBGR8:   8,
	PixBGRA8:  8,
	PixMono16: 16,
	PixRGB16:  16,
	PixBGRA16: 16,
}

func (f PixelFormat) String() string {
	switch f {
	case PixPal8:
		return "pal8"
	case PixMono8:
		return "mono8"
	case PixRGB8:
		return "rgb8"
	case PixBGR8:
		return "bgr8"
	case PixBGRA8:
		return "bgra8"
	case PixMono16:
		return "mono16"
	case PixRGB16:
		return "rgb16"
	case PixBGRA16:
		return "bgra16"
	default:
		return "invalid"
	}
}

// BytesPerPixel returns the packed size of one pixel, or 0 for the invalid
// sentinel.
func (f PixelFormat) BytesPerPixel() int {
	if f <= PixInvalid || f >= numPixelFormats {
		return 0
	}
	return NumChannels[f] * BitsPerChannel[f] / 8
}

// OutputFormat identifies an exportable file format with a fixed required
// bit depth per channel.
type OutputFormat int

const (
	OutInvalid OutputFormat = iota
	OutBMP8
	OutPNG8
	OutTIFF16

	numOutputFormats
)

// OutputBitsPerChannel maps an output format to the bit depth its files
// require from the source pixels.
var OutputBitsPerChannel = [numOutputFormats]int{
	OutBMP8:   8,
	OutPNG8:   8,
	OutTIFF16: 16,
}

func (f OutputFormat) String() string {
	switch f {
	case OutBMP8:
		return "bmp8"
	case OutPNG8:
		return "png8"
	case OutTIFF16:
		return "tiff16"
	default:
		return "invalid"
	}
}

// ParseOutputFormat maps a wire name (as used in export requests) to its
// output format id.
func ParseOutputFormat(name string) (OutputFormat, bool) {
	switch name {
	case "bmp8", "bmp":
		return OutBMP8, true
	case "png8", "png":
		return OutPNG8, true
	case "tiff16", "tiff", "tif":
		return OutTIFF16, true
	default:
		return OutInvalid, false
	}
}

// SupportedOutputFormats returns every output format this library can
// write, in a fixed enumeration order.
func SupportedOutputFormats() []OutputFormat {
	return []OutputFormat{OutBMP8, OutTIFF16, OutPNG8}
}

// FindMatchingFormat returns the first pixel format (in enumeration order)
// whose channel count equals numChannels and whose bit depth matches what
// outputFmt requires. The palette format is never considered. PixInvalid is
// returned when no format satisfies the pair; that is a normal outcome, not
// an error.
func FindMatchingFormat(outputFmt OutputFormat, numChannels int) PixelFormat {
	if outputFmt <= OutInvalid || outputFmt >= numOutputFormats {
		return PixInvalid
	}

	for f := PixInvalid + 1; f < numPixelFormats; f++ {
		if f == PixPal8 {
			continue
		}
		if NumChannels[f] == numChannels && BitsPerChannel[f] == OutputBitsPerChannel[outputFmt] {
			return f
		}
	}

	return PixInvalid
}
