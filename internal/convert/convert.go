// Package convert implements the text-to-audiobook pipeline.
//
// A conversion runs synthesize → write segments → combine → transcode →
// cleanup → report, sequentially and in one goroutine. Intermediate WAV files
// are written next to the input text and removed only once the transcode has
// succeeded, so a failed encode never loses synthesized audio.
package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nadzzz/narrator/internal/audio"
	"github.com/nadzzz/narrator/internal/encode"
	"github.com/nadzzz/narrator/internal/tts"
	"github.com/nadzzz/narrator/internal/voice"
)

var (
	// ErrEncode is returned when the transcoder fails or its output does not
	// verify. Intermediate files are left in place.
	ErrEncode = errors.New("encoding failed")

	// ErrCleanup is returned when an intermediate file could not be removed.
	ErrCleanup = errors.New("cleanup failed")
)

// previewLen is how much of each chunk is echoed per segment.
const previewLen = 30

// Options selects what a single conversion produces.
type Options struct {
	Voice        string        // default voice.Default
	Format       encode.Format // default mp3
	Speed        float64       // default 1
	SplitPattern string        // default tts.BookSplitPattern
}

// Result describes the files a conversion touched.
type Result struct {
	RunID    string
	Dir      string
	Segments []string // per-segment WAV paths in production order
	Combined string   // combined WAV path; empty if no segments were produced
	Output   string   // encoded output path; empty if no segments were produced
	Samples  int      // combined sample count
	Report   Report
}

// ProgressFunc is called after each segment file is written.
type ProgressFunc func(seg *tts.Segment, path string)

// Converter runs conversions against a synthesizer and an encoder.
type Converter struct {
	synth    tts.Synthesizer
	enc      encode.Encoder
	out      io.Writer
	now      func() time.Time
	progress ProgressFunc
}

// Option configures a Converter.
type Option func(*Converter)

// WithOutput sets where user-facing progress lines are printed.
func WithOutput(w io.Writer) Option {
	return func(c *Converter) { c.out = w }
}

// WithClock replaces time.Now for the timing report.
func WithClock(now func() time.Time) Option {
	return func(c *Converter) { c.now = now }
}

// WithProgress registers a per-segment callback.
func WithProgress(fn ProgressFunc) Option {
	return func(c *Converter) { c.progress = fn }
}

// New creates a Converter.
func New(synth tts.Synthesizer, enc encode.Encoder, opts ...Option) *Converter {
	c := &Converter{
		synth: synth,
		enc:   enc,
		out:   io.Discard,
		now:   time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Convert turns textFile into "<voice> - <base>.<format>" in the same
// directory, or the working directory when textFile has no directory part.
//
// A text that yields no segments is not an error: the returned Result has an
// empty Output and nothing is written.
func (c *Converter) Convert(ctx context.Context, textFile string, opts Options) (*Result, error) {
	start := c.now()
	opts = opts.withDefaults()

	runID := uuid.New().String()
	logger := slog.With("run_id", runID, "voice", opts.Voice, "format", opts.Format)

	dir, base, err := outputLocation(textFile)
	if err != nil {
		return nil, err
	}
	result := &Result{RunID: runID, Dir: dir}

	text, err := os.ReadFile(textFile)
	if err != nil {
		return result, fmt.Errorf("reading text file: %w", err)
	}

	fmt.Fprintf(c.out, "Processing file '%s' with voice '%s'\n", textFile, opts.Voice)
	logger.Info("conversion started", "input", textFile, "dir", dir, "text_bytes", len(text))

	// Step 1: synthesize and persist each segment as it arrives.
	stream, err := c.synth.Synthesize(ctx, tts.Request{
		Text:         string(text),
		Voice:        opts.Voice,
		Lang:         voice.LangFor(opts.Voice),
		Speed:        opts.Speed,
		SplitPattern: opts.SplitPattern,
	})
	if err != nil {
		return result, fmt.Errorf("starting synthesis: %w", err)
	}
	defer stream.Close()

	buffers, err := c.writeSegments(ctx, stream, dir, base, opts.Voice, result)
	if err != nil {
		logger.Error("synthesis failed", "error", err, "segments_written", len(result.Segments))
		return result, err
	}
	if len(buffers) == 0 {
		logger.Info("no segments produced, nothing to encode")
		return result, nil
	}

	// Step 2: combine in production order.
	combined := audio.Concat(buffers...)
	result.Samples = len(combined)
	result.Combined = filepath.Join(dir, fmt.Sprintf("%s - %s.wav", opts.Voice, base))
	if err := audio.WriteWAV(result.Combined, combined, tts.SampleRate); err != nil {
		return result, fmt.Errorf("writing combined audio: %w", err)
	}
	fmt.Fprintf(c.out, "  Saved combined audio to %s\n", result.Combined)
	logger.Debug("combined audio written", "path", result.Combined, "samples", len(combined))

	// Step 3: transcode.
	output := filepath.Join(dir, fmt.Sprintf("%s - %s.%s", opts.Voice, base, opts.Format))
	if err := c.enc.Encode(ctx, result.Combined, output, opts.Format); err != nil {
		logger.Error("encoding failed, keeping intermediate files", "error", err, "output", output)
		return result, fmt.Errorf("%w: %w", ErrEncode, err)
	}
	result.Output = output
	fmt.Fprintf(c.out, "  Converted to %s: %s\n", strings.ToUpper(string(opts.Format)), output)

	// Step 4: remove intermediates.
	if err := c.cleanup(result); err != nil {
		logger.Error("cleanup failed", "error", err)
		return result, err
	}

	// Step 5: report.
	result.Report = Report{
		Elapsed:    c.now().Sub(start),
		Samples:    result.Samples,
		SampleRate: tts.SampleRate,
	}
	if info, err := os.Stat(output); err == nil {
		result.Report.OutputBytes = info.Size()
	}
	result.Report.Print(c.out)

	logger.Info("conversion complete",
		"output", output,
		"segments", len(result.Segments),
		"audio_seconds", result.Report.AudioSeconds(),
		"elapsed", result.Report.Elapsed,
	)
	return result, nil
}

func (c *Converter) writeSegments(ctx context.Context, stream tts.Stream, dir, base, voiceID string, result *Result) ([][]float32, error) {
	var buffers [][]float32
	for i := 0; ; i++ {
		seg, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			return buffers, nil
		}
		if err != nil {
			return buffers, fmt.Errorf("synthesizing segment %d: %w", i, err)
		}

		fmt.Fprintf(c.out, "  Segment %d: %s...\n", i, preview(seg.Graphemes))

		samples := seg.Samples
		if seg.SampleRate != 0 && seg.SampleRate != tts.SampleRate {
			samples = audio.Resample(samples, seg.SampleRate, tts.SampleRate)
		}

		path := filepath.Join(dir, fmt.Sprintf("%s - %s_%03d.wav", voiceID, base, i))
		if err := audio.WriteWAV(path, samples, tts.SampleRate); err != nil {
			return buffers, fmt.Errorf("writing segment %d: %w", i, err)
		}
		result.Segments = append(result.Segments, path)
		buffers = append(buffers, samples)
		fmt.Fprintf(c.out, "  Saved %s\n", path)

		if c.progress != nil {
			c.progress(seg, path)
		}
	}
}

// cleanup removes every intermediate file. It attempts all removals and
// reports every failure.
func (c *Converter) cleanup(result *Result) error {
	var errs []error
	for _, path := range result.Segments {
		if err := os.Remove(path); err != nil {
			errs = append(errs, err)
			continue
		}
		fmt.Fprintf(c.out, "  Removed intermediary file: %s\n", path)
	}
	if err := os.Remove(result.Combined); err != nil {
		errs = append(errs, err)
	} else {
		fmt.Fprintf(c.out, "  Removed combined WAV file: %s\n", result.Combined)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrCleanup, errors.Join(errs...))
	}
	return nil
}

func (o Options) withDefaults() Options {
	if o.Voice == "" {
		o.Voice = voice.Default
	}
	if o.Format == "" {
		o.Format = encode.MP3
	}
	if o.Speed <= 0 {
		o.Speed = 1
	}
	if o.SplitPattern == "" {
		o.SplitPattern = tts.BookSplitPattern
	}
	return o
}

// outputLocation returns the directory outputs go to and the input base name
// without extension.
func outputLocation(textFile string) (dir, base string, err error) {
	dir, name := filepath.Split(textFile)
	if dir == "" {
		if dir, err = os.Getwd(); err != nil {
			return "", "", fmt.Errorf("resolving working directory: %w", err)
		}
	} else {
		dir = filepath.Clean(dir)
	}

	base = strings.TrimSuffix(name, filepath.Ext(name))
	if base == "" {
		base = name
	}
	return dir, base, nil
}

func preview(s string) string {
	r := []rune(s)
	if len(r) > previewLen {
		r = r[:previewLen]
	}
	return string(r)
}
