// Package encode transcodes the combined WAV into the requested output
// container by shelling out to ffmpeg.
package encode

import (
	"context"
	"fmt"
	"strings"
)

// Format is a supported output container.
type Format string

const (
	MP3 Format = "mp3"
	MP4 Format = "mp4"
	M4A Format = "m4a"
)

// Formats returns the accepted format names in display order.
func Formats() []string {
	return []string{string(MP3), string(MP4), string(M4A)}
}

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case MP3, MP4, M4A:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported format %q (want one of %s)", s, strings.Join(Formats(), ", "))
	}
}

// Params returns the codec and quality arguments for f.
func Params(f Format) ([]string, error) {
	switch f {
	case MP3:
		return []string{"-q:a", "2"}, nil
	case MP4, M4A:
		return []string{"-c:a", "aac", "-b:a", "192k"}, nil
	default:
		return nil, fmt.Errorf("unsupported format %q", f)
	}
}

// Encoder converts an audio file into another container.
type Encoder interface {
	// Encode transcodes src into dst using the parameters for f.
	// It blocks until the conversion finishes.
	Encode(ctx context.Context, src, dst string, f Format) error
}
