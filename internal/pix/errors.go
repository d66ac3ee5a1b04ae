package pix

// Error is a library error code with a fixed message. Codes are comparable
// sentinels, so callers can use errors.Is against them.
type Error int

const (
	ErrInvalidParameters Error = iota + 1
	ErrInvalidImageDimensions
	ErrNoPalette
	ErrUnsupportedPixelFormat
	ErrUnsupportedFileFormat
)

var errorMessages = map[Error]string{
	ErrInvalidParameters:      "invalid parameters",
	ErrInvalidImageDimensions: "invalid image dimensions",
	ErrNoPalette:              "no palette",
	ErrUnsupportedPixelFormat: "unsupported pixel format",
	ErrUnsupportedFileFormat:  "unsupported file format",
}

func (e Error) Error() string {
	if msg, ok := errorMessages[e]; ok {
		return msg
	}
	return "unknown error"
}
