package detection

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

const (
	MinImageBytes = 100
	MaxImageBytes = 20 << 20
)

const (
	MIMEJPEG = "image/jpeg"
	MIMEPNG  = "image/png"
	MIMEWebP = "image/webp"
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}

// DetectMIME inspects the leading bytes only. It returns "" for unsupported data.
func DetectMIME(data []byte) string {
	switch {
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return MIMEJPEG
	case bytes.HasPrefix(data, pngSignature):
		return MIMEPNG
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return MIMEWebP
	default:
		return ""
	}
}

// ValidateImage checks size bounds and the magic number. Any declared content
// type is ignored. Non-positive bounds fall back to the defaults.
func ValidateImage(data []byte, minBytes, maxBytes int) (string, error) {
	if minBytes <= 0 {
		minBytes = MinImageBytes
	}
	if maxBytes <= 0 {
		maxBytes = MaxImageBytes
	}
	if len(data) < minBytes {
		return "", fmt.Errorf("%w: image too small (%d bytes)", ErrInvalidImageFormat, len(data))
	}
	if len(data) > maxBytes {
		return "", fmt.Errorf("%w: image too large (%d bytes, max %d)", ErrInvalidImageFormat, len(data), maxBytes)
	}
	mime := DetectMIME(data)
	if mime == "" {
		return "", fmt.Errorf("%w: unrecognised file signature", ErrInvalidImageFormat)
	}
	return mime, nil
}

// ImageDimensions reads the header only.
func ImageDimensions(data []byte) (int, int, bool) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, false
	}
	return cfg.Width, cfg.Height, true
}

// Extension returns the file extension used for storage keys.
func Extension(mime string) string {
	switch mime {
	case MIMEPNG:
		return "png"
	case MIMEWebP:
		return "webp"
	default:
		return "jpg"
	}
}
