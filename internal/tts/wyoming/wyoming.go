// Package wyoming implements the TTS Synthesizer against a Wyoming protocol
// server, such as a Kokoro or Piper container listening on TCP port 10200.
//
// Text is split into chunks locally and each chunk is sent as its own
// synthesize event over a fresh connection. Returned PCM is converted to mono
// float32 at the Kokoro sample rate.
package wyoming

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/nadzzz/narrator/internal/audio"
	"github.com/nadzzz/narrator/internal/config"
	"github.com/nadzzz/narrator/internal/tts"
)

const dialTimeout = 10 * time.Second

// Synthesizer implements tts.Synthesizer using the Wyoming protocol.
type Synthesizer struct {
	endpoint string        // host:port
	timeout  time.Duration // per-chunk deadline when ctx has none
}

// New creates a Wyoming synthesizer from config.
func New(cfg config.WyomingConfig) *Synthesizer {
	endpoint := strings.TrimPrefix(cfg.Endpoint, "tcp://")
	endpoint = strings.TrimPrefix(endpoint, "http://")

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Synthesizer{endpoint: endpoint, timeout: timeout}
}

// Synthesize returns a stream that synthesizes one chunk per Next call.
func (s *Synthesizer) Synthesize(ctx context.Context, req tts.Request) (tts.Stream, error) {
	req = req.Normalize()
	if s.endpoint == "" {
		return nil, fmt.Errorf("no wyoming endpoint configured")
	}

	chunks, err := tts.SplitText(req.Text, req.SplitPattern)
	if err != nil {
		return nil, err
	}
	if req.Speed != 1 {
		slog.Warn("wyoming backend ignores speed", "speed", req.Speed)
	}

	slog.Debug("wyoming synthesize", "endpoint", s.endpoint, "voice", req.Voice, "chunks", len(chunks))

	return tts.NewChunkStream(chunks, func(ctx context.Context, chunk string) (*tts.Segment, error) {
		return s.synthesizeChunk(ctx, chunk, req.Voice)
	}), nil
}

// Close is a no-op; connections are per-chunk.
func (s *Synthesizer) Close() error { return nil }

func (s *Synthesizer) synthesizeChunk(ctx context.Context, text, voice string) (*tts.Segment, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.endpoint)
	if err != nil {
		return nil, fmt.Errorf("connecting to wyoming server: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(s.timeout))
	}

	// Unblock reads when ctx is cancelled.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	evt := Event{
		Type: "synthesize",
		Data: map[string]any{
			"text":  text,
			"voice": map[string]any{"name": voice},
		},
	}
	if err := WriteEvent(conn, evt, nil); err != nil {
		return nil, fmt.Errorf("sending synthesize event: %w", err)
	}

	// audio-start -> audio-chunk* -> audio-stop
	var (
		pcm      bytes.Buffer
		rate     = tts.SampleRate
		channels = 1
		width    = 2
		r        = bufio.NewReader(conn)
	)
	for {
		evt, payload, err := ReadEvent(r)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("reading wyoming event: %w", err)
		}

		switch evt.Type {
		case "audio-start":
			rate = intField(evt.Data, "rate", rate)
			channels = intField(evt.Data, "channels", channels)
			width = intField(evt.Data, "width", width)
			slog.Debug("wyoming audio-start", "rate", rate, "channels", channels, "width", width)

		case "audio-chunk":
			pcm.Write(payload)

		case "audio-stop":
			slog.Debug("wyoming audio-stop", "pcm_bytes", pcm.Len())
			if pcm.Len() == 0 {
				return nil, nil
			}
			if width != 2 {
				return nil, fmt.Errorf("unsupported sample width %d", width)
			}
			samples := audio.Downmix(audio.PCM16ToFloat32(pcm.Bytes()), channels)
			if rate != tts.SampleRate {
				samples = audio.Resample(samples, rate, tts.SampleRate)
			}
			return &tts.Segment{Samples: samples, SampleRate: tts.SampleRate}, nil

		case "error":
			msg := "unknown error"
			if text, ok := evt.Data["text"].(string); ok {
				msg = text
			}
			return nil, fmt.Errorf("wyoming error: %s", msg)

		default:
			slog.Debug("wyoming unknown event", "type", evt.Type)
		}
	}
}
