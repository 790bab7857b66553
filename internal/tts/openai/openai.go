// Package openai implements the TTS Synthesizer against an OpenAI-compatible
// speech endpoint, such as Kokoro-FastAPI serving /v1/audio/speech.
//
// Each text chunk is one request. Audio is requested as raw 16-bit PCM at the
// Kokoro sample rate so no container decoding is needed.
package openai

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/nadzzz/narrator/internal/audio"
	"github.com/nadzzz/narrator/internal/config"
	"github.com/nadzzz/narrator/internal/tts"
)

// Synthesizer implements tts.Synthesizer using the OpenAI speech API.
type Synthesizer struct {
	client *goopenai.Client
	model  string
}

// New creates a synthesizer from config.
func New(cfg config.OpenAIConfig) *Synthesizer {
	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = "kokoro"
	}
	return &Synthesizer{
		client: goopenai.NewClientWithConfig(clientCfg),
		model:  model,
	}
}

// Synthesize returns a stream that requests one chunk per Next call.
func (s *Synthesizer) Synthesize(ctx context.Context, req tts.Request) (tts.Stream, error) {
	req = req.Normalize()

	chunks, err := tts.SplitText(req.Text, req.SplitPattern)
	if err != nil {
		return nil, err
	}
	slog.Debug("openai synthesize", "model", s.model, "voice", req.Voice, "chunks", len(chunks))

	return tts.NewChunkStream(chunks, func(ctx context.Context, chunk string) (*tts.Segment, error) {
		return s.synthesizeChunk(ctx, chunk, req)
	}), nil
}

// Close is a no-op; the HTTP client holds no per-synthesizer state.
func (s *Synthesizer) Close() error { return nil }

func (s *Synthesizer) synthesizeChunk(ctx context.Context, text string, req tts.Request) (*tts.Segment, error) {
	resp, err := s.client.CreateSpeech(ctx, goopenai.CreateSpeechRequest{
		Model:          goopenai.SpeechModel(s.model),
		Input:          text,
		Voice:          goopenai.SpeechVoice(req.Voice),
		ResponseFormat: goopenai.SpeechResponseFormatPcm,
		Speed:          req.Speed,
	})
	if err != nil {
		return nil, fmt.Errorf("speech request: %w", err)
	}
	defer resp.Close()

	pcm, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("reading speech response: %w", err)
	}
	if len(pcm) == 0 {
		return nil, nil
	}
	return &tts.Segment{
		Samples:    audio.PCM16ToFloat32(pcm),
		SampleRate: tts.SampleRate,
	}, nil
}
