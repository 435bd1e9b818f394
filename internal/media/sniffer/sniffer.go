// Package sniffer identifies image uploads from their leading bytes rather
// than trusting the client supplied content type.
package sniffer

import (
	"bytes"
	"errors"
	"io"
)

type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatGIF  Format = "gif"
	FormatWEBP Format = "webp"
	FormatAVIF Format = "avif"
	FormatSVG  Format = "svg"
)

// HeadSize is how many bytes Detect needs to classify a file.
const HeadSize = 512

var ErrUnknownFormat = errors.New("unknown image format")

type Result struct {
	Format Format
	MIME   string
}

// Ext is the file extension used for stored objects.
func (r Result) Ext() string {
	if r.Format == FormatJPEG {
		return ".jpg"
	}
	return "." + string(r.Format)
}

// Raster reports whether the format is a bitmap. Scriptable formats such as
// SVG are not.
func (r Result) Raster() bool {
	switch r.Format {
	case FormatJPEG, FormatPNG, FormatGIF, FormatWEBP, FormatAVIF:
		return true
	}
	return false
}

// Detect reads the head of r and classifies it. The consumed bytes are
// returned so the caller can stitch them back in front of the remainder.
func Detect(r io.Reader) (Result, []byte, error) {
	head := make([]byte, HeadSize)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return Result{}, nil, err
	}
	head = head[:n]

	result, err := DetectHead(head)
	return result, head, err
}

func DetectHead(head []byte) (Result, error) {
	switch {
	case len(head) == 0:
		return Result{}, ErrUnknownFormat
	case isJPEG(head):
		return Result{Format: FormatJPEG, MIME: "image/jpeg"}, nil
	case isPNG(head):
		return Result{Format: FormatPNG, MIME: "image/png"}, nil
	case isGIF(head):
		return Result{Format: FormatGIF, MIME: "image/gif"}, nil
	case isWEBP(head):
		return Result{Format: FormatWEBP, MIME: "image/webp"}, nil
	case isAVIF(head):
		return Result{Format: FormatAVIF, MIME: "image/avif"}, nil
	case isSVG(head):
		return Result{Format: FormatSVG, MIME: "image/svg+xml"}, nil
	}
	return Result{}, ErrUnknownFormat
}

func isJPEG(head []byte) bool {
	return len(head) > 3 && head[0] == 0xff && head[1] == 0xd8 && head[2] == 0xff
}

func isPNG(head []byte) bool {
	magic := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	return bytes.HasPrefix(head, magic)
}

func isGIF(head []byte) bool {
	return bytes.HasPrefix(head, []byte("GIF87a")) || bytes.HasPrefix(head, []byte("GIF89a"))
}

func isWEBP(head []byte) bool {
	return len(head) >= 12 && bytes.Equal(head[:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WEBP"))
}

func isAVIF(head []byte) bool {
	if len(head) < 12 {
		return false
	}
	return string(head[4:8]) == "ftyp" && (bytes.Contains(head[8:], []byte("avif")) || bytes.Contains(head[8:], []byte("avis")))
}

func isSVG(head []byte) bool {
	trimmed := bytes.TrimSpace(head)
	return bytes.HasPrefix(trimmed, []byte("<svg")) || bytes.HasPrefix(trimmed, []byte("<?xml"))
}
