package encode

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/dhowden/tag"
)

// FFmpeg runs the ffmpeg binary as a subprocess.
type FFmpeg struct {
	// Binary is the ffmpeg executable name or path.
	Binary string

	// Overwrite passes -y so an existing output never blocks on a prompt.
	Overwrite bool

	// Verify checks the produced file with VerifyOutput after a zero exit.
	Verify bool
}

// NewFFmpeg returns an encoder for the given binary. An empty binary means
// "ffmpeg" on PATH.
func NewFFmpeg(binary string, overwrite, verify bool) *FFmpeg {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpeg{Binary: binary, Overwrite: overwrite, Verify: verify}
}

// Args builds the ffmpeg argument list for a conversion.
func (e *FFmpeg) Args(src, dst string, f Format) ([]string, error) {
	params, err := Params(f)
	if err != nil {
		return nil, err
	}
	var args []string
	if e.Overwrite {
		args = append(args, "-y")
	}
	args = append(args, "-i", src)
	args = append(args, params...)
	return append(args, dst), nil
}

// Encode runs ffmpeg and waits for it to exit.
func (e *FFmpeg) Encode(ctx context.Context, src, dst string, f Format) error {
	args, err := e.Args(src, dst, f)
	if err != nil {
		return err
	}

	slog.Debug("ffmpeg encode", "binary", e.Binary, "args", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, e.Binary, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg: %w out: %s", err, tail(string(out), 2048))
	}

	if e.Verify {
		if err := VerifyOutput(dst, f); err != nil {
			return err
		}
	}
	return nil
}

// VerifyOutput checks that path exists, is non-empty and carries the
// container signature expected for f.
func VerifyOutput(path string, f Format) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("verifying output: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("verifying output: %s is empty", path)
	}

	fh, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("verifying output: %w", err)
	}
	defer fh.Close()

	format, fileType, identifyErr := tag.Identify(fh)

	switch f {
	case MP3:
		// Untagged mp3 streams start directly with an MPEG frame header.
		if identifyErr == nil && fileType == tag.MP3 {
			return nil
		}
		if hasFrameSync(fh) {
			return nil
		}
		return fmt.Errorf("verifying output: %s is not an mp3 stream", path)
	case MP4, M4A:
		if identifyErr != nil {
			return fmt.Errorf("verifying output: identifying %s: %w", path, identifyErr)
		}
		if format != tag.MP4 {
			return fmt.Errorf("verifying output: %s is not an mp4 container", path)
		}
	default:
		return fmt.Errorf("unsupported format %q", f)
	}
	return nil
}

func hasFrameSync(r io.ReadSeeker) bool {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return false
	}
	b := make([]byte, 2)
	if _, err := io.ReadFull(r, b); err != nil {
		return false
	}
	return b[0] == 0xFF && b[1]&0xE0 == 0xE0
}

func tail(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}
