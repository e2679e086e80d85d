package detection_test

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/pestwatch/internal/domain/detection"
)

func padded(prefix []byte, size int) []byte {
	out := make([]byte, size)
	copy(out, prefix)
	return out
}

func TestValidateImage_Signatures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		prefix []byte
		want   string
	}{
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0}, detection.MIMEJPEG},
		{"png", []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, detection.MIMEPNG},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), detection.MIMEWebP},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := detection.ValidateImage(padded(tt.prefix, 5*1024), 0, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateImage_Rejects(t *testing.T) {
	t.Parallel()

	jpeg := []byte{0xFF, 0xD8, 0xFF}
	tests := []struct {
		name string
		data []byte
		max  int
	}{
		{"too small", padded(jpeg, 50), 0},
		{"too large", padded(jpeg, 2048), 1024},
		{"gif", padded([]byte("GIF89a"), 500), 0},
		{"riff without webp", padded([]byte("RIFF\x00\x00\x00\x00WAVE"), 500), 0},
		{"truncated png signature", padded([]byte{0x89, 'P', 'N', 'G'}, 500), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := detection.ValidateImage(tt.data, 0, tt.max)
			assert.True(t, errors.Is(err, detection.ErrInvalidImageFormat))
			assert.Equal(t, "InvalidImageFormat", detection.Kind(err))
		})
	}
}

func TestImageDimensions(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, 12, 7))
	img.Set(1, 1, color.White)
	require.NoError(t, png.Encode(&buf, img))

	w, h, ok := detection.ImageDimensions(buf.Bytes())
	require.True(t, ok)
	assert.Equal(t, 12, w)
	assert.Equal(t, 7, h)

	_, _, ok = detection.ImageDimensions(padded([]byte{0xFF, 0xD8, 0xFF}, 200))
	assert.False(t, ok)
}

func TestKind(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", detection.Kind(nil))
	assert.Equal(t, "NoTargetSpeciesConfigured", detection.Kind(detection.ErrNoTargetSpecies))
	assert.Equal(t, "ConfigurationError", detection.Kind(detection.ErrConfiguration))
	assert.True(t, errors.Is(detection.ErrNoTargetSpecies, detection.ErrConfiguration))
	assert.Equal(t, "ClassificationTimeout", detection.Kind(detection.ErrClassificationTimeout))
	assert.Equal(t, "InternalError", detection.Kind(errors.New("boom")))
}

func TestReferenceQuery_Terms(t *testing.T) {
	t.Parallel()

	q := detection.ReferenceQuery{
		Species:        "Bactrocera tryoni",
		ScientificName: "Bactrocera tryoni",
		CommonName:     "Queensland fruit fly",
	}
	assert.Equal(t, []string{"Bactrocera tryoni", "Queensland fruit fly"}, q.Terms())
	assert.Empty(t, detection.ReferenceQuery{Species: "  "}.Terms())
}
