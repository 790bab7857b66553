// Package audition renders a short self-introduction in every English voice
// so they can be compared by ear.
package audition

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/nadzzz/narrator/internal/audio"
	"github.com/nadzzz/narrator/internal/tts"
	"github.com/nadzzz/narrator/internal/voice"
)

// Group is a set of voices rendered with one language code.
type Group struct {
	Title  string
	Lang   voice.Lang
	Voices []string
}

// Groups returns the American voices followed by the British ones.
func Groups() []Group {
	return []Group{
		{Title: "American English", Lang: voice.LangAmerican, Voices: voice.American()},
		{Title: "British English", Lang: voice.LangBritish, Voices: voice.British()},
	}
}

// Text is the sample sentence spoken by id.
func Text(id string) string {
	return fmt.Sprintf("\nHello this is %s. I am a text-to-speech voice. This is a voice-test.\n", id)
}

// Run renders every voice of every group into "<voice>.wav" under dir and
// returns the written paths.
func Run(ctx context.Context, synth tts.Synthesizer, dir string, out io.Writer, groups []Group) ([]string, error) {
	var written []string
	for _, g := range groups {
		fmt.Fprintf(out, "\nProcessing %s voices...\n", g.Title)
		for _, id := range g.Voices {
			path, err := renderVoice(ctx, synth, dir, out, id, g.Lang)
			if err != nil {
				return written, fmt.Errorf("voice %s: %w", id, err)
			}
			if path != "" {
				written = append(written, path)
			}
		}
	}
	return written, nil
}

func renderVoice(ctx context.Context, synth tts.Synthesizer, dir string, out io.Writer, id string, lang voice.Lang) (string, error) {
	fmt.Fprintf(out, "Processing %s with language code %s\n", id, lang)

	stream, err := synth.Synthesize(ctx, tts.Request{
		Text:         Text(id),
		Voice:        id,
		Lang:         lang,
		Speed:        1,
		SplitPattern: tts.AuditionSplitPattern,
	})
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var buffers [][]float32
	for i := 0; ; i++ {
		seg, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		fmt.Fprintf(out, "  Segment %d: %s...\n", i, truncate(seg.Graphemes))
		fmt.Fprintf(out, "  Phonemes: %s...\n", truncate(seg.Phonemes))

		samples := seg.Samples
		if seg.SampleRate != 0 && seg.SampleRate != tts.SampleRate {
			samples = audio.Resample(samples, seg.SampleRate, tts.SampleRate)
		}
		buffers = append(buffers, samples)
	}
	if len(buffers) == 0 {
		slog.Warn("voice produced no audio", "voice", id)
		return "", nil
	}

	path := filepath.Join(dir, id+".wav")
	if err := audio.WriteWAV(path, audio.Concat(buffers...), tts.SampleRate); err != nil {
		return "", err
	}
	fmt.Fprintf(out, "  Saved %s.wav\n", id)
	return path, nil
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) > 30 {
		r = r[:30]
	}
	return string(r)
}
