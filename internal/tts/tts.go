// Package tts defines the interface for text-to-speech synthesis.
//
// A Synthesizer turns a block of text into a lazy, finite stream of audio
// segments. Each segment carries the text chunk it was produced from, the
// phoneme transcription (when the backend exposes one) and mono float32
// samples. Streams are consumed once; the caller must Close them.
package tts

import (
	"context"
	"errors"

	"github.com/nadzzz/narrator/internal/voice"
)

const (
	// SampleRate is the native Kokoro output rate in Hz.
	SampleRate = 24000

	// DefaultRepoID is the model repository the Kokoro pipeline bootstraps from.
	DefaultRepoID = "hexgrad/Kokoro-82M"

	// BookSplitPattern effectively never matches, so the whole text is handed
	// to the pipeline as one chunk and Kokoro does its own sentence splitting.
	BookSplitPattern = `\n\r\r\r\n\n\n\r\n+`

	// AuditionSplitPattern is used for the fixed voice review sentence.
	AuditionSplitPattern = `\nJuStAsTrInGtHaTwIlLnEvErOcCuR\n+`
)

// ErrWorkerClosed is returned when a synthesizer is used after Close.
var ErrWorkerClosed = errors.New("synthesizer closed")

// Request controls synthesis behavior.
type Request struct {
	// Text is the full input, treated as an opaque string.
	Text string

	// Voice is the catalog voice identifier (e.g., "af_heart").
	Voice string

	// Lang overrides the language code derived from the voice identifier.
	Lang voice.Lang

	// Speed is the speaking rate multiplier. Non-positive means 1.
	Speed float64

	// SplitPattern is a regular expression used to cut Text into chunks.
	SplitPattern string
}

// Normalize fills in the derived defaults.
func (r Request) Normalize() Request {
	if r.Lang == "" {
		r.Lang = voice.LangFor(r.Voice)
	}
	if r.Speed <= 0 {
		r.Speed = 1
	}
	return r
}

// Segment is a single synthesized audio segment.
type Segment struct {
	// Index is the production order, starting at 0.
	Index int

	// Graphemes is the text chunk this segment was synthesized from.
	Graphemes string

	// Phonemes is the phoneme transcription. Empty if the backend does not expose it.
	Phonemes string

	// Samples holds mono samples in [-1, 1].
	Samples []float32

	// SampleRate is the sample rate of Samples in Hz.
	SampleRate int
}

// Stream is a finite, non-restartable sequence of segments.
type Stream interface {
	// Next returns the next segment, or io.EOF once the stream is exhausted.
	Next(ctx context.Context) (*Segment, error)

	// Close releases the stream. It is safe to call more than once.
	Close() error
}

// Synthesizer converts text to a stream of audio segments.
type Synthesizer interface {
	// Synthesize starts synthesis of req and returns its segment stream.
	Synthesize(ctx context.Context, req Request) (Stream, error)

	// Close releases any resources held by the synthesizer.
	Close() error
}
