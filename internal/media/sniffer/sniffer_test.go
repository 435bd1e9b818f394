package sniffer

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectHead(t *testing.T) {
	tests := []struct {
		name   string
		head   []byte
		format Format
		ext    string
		raster bool
	}{
		{"jpeg", []byte{0xff, 0xd8, 0xff, 0xe0, 0x00}, FormatJPEG, ".jpg", true},
		{"png", []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0}, FormatPNG, ".png", true},
		{"gif", []byte("GIF89a....."), FormatGIF, ".gif", true},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), FormatWEBP, ".webp", true},
		{"avif", []byte("\x00\x00\x00\x1cftypavif\x00\x00\x00\x00"), FormatAVIF, ".avif", true},
		{"svg", []byte("  <svg xmlns=\"http://www.w3.org/2000/svg\">"), FormatSVG, ".svg", false},
		{"xml", []byte("<?xml version=\"1.0\"?><svg/>"), FormatSVG, ".svg", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := DetectHead(tt.head)
			require.NoError(t, err)
			assert.Equal(t, tt.format, res.Format)
			assert.Equal(t, tt.ext, res.Ext())
			assert.Equal(t, tt.raster, res.Raster())
		})
	}
}

func TestDetectHeadUnknown(t *testing.T) {
	_, err := DetectHead(nil)
	assert.ErrorIs(t, err, ErrUnknownFormat)

	_, err = DetectHead([]byte("%PDF-1.7"))
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestDetectReturnsConsumedHead(t *testing.T) {
	payload := append([]byte{0xff, 0xd8, 0xff, 0xe0}, bytes.Repeat([]byte{1}, 1000)...)
	r := bytes.NewReader(payload)

	res, head, err := Detect(r)
	require.NoError(t, err)
	assert.Equal(t, FormatJPEG, res.Format)
	assert.Len(t, head, HeadSize)

	rest, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, payload, append(head, rest...))
}

func TestDetectShortInput(t *testing.T) {
	res, head, err := Detect(bytes.NewReader([]byte("GIF87a")))
	require.NoError(t, err)
	assert.Equal(t, FormatGIF, res.Format)
	assert.Len(t, head, 6)
}
