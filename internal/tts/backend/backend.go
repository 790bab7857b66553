// Package backend builds the configured tts.Synthesizer.
package backend

import (
	"fmt"
	"log/slog"

	"github.com/nadzzz/narrator/internal/config"
	"github.com/nadzzz/narrator/internal/tts"
	"github.com/nadzzz/narrator/internal/tts/kokoro"
	"github.com/nadzzz/narrator/internal/tts/openai"
	"github.com/nadzzz/narrator/internal/tts/wyoming"
)

// New returns the synthesizer selected by cfg.Backend.
func New(cfg config.TTSConfig) (tts.Synthesizer, error) {
	switch cfg.Backend {
	case "kokoro", "":
		slog.Info("using kokoro worker", "python", cfg.Kokoro.Python, "repo_id", cfg.RepoID)
		return kokoro.New(cfg.Kokoro, cfg.RepoID), nil
	case "openai":
		slog.Info("using OpenAI-compatible speech API", "base_url", cfg.OpenAI.BaseURL, "model", cfg.OpenAI.Model)
		return openai.New(cfg.OpenAI), nil
	case "wyoming":
		slog.Info("using wyoming server", "endpoint", cfg.Wyoming.Endpoint)
		return wyoming.New(cfg.Wyoming), nil
	default:
		return nil, fmt.Errorf("unknown tts backend %q", cfg.Backend)
	}
}
