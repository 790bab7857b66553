// Voicetest renders a short self-introduction in every English voice into
// "<voice>.wav" files in the working directory, American voices first.
//
// It takes no flags; the synthesis backend comes from narrator's config file
// and NARRATOR_* environment variables.
package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nadzzz/narrator/internal/audition"
	"github.com/nadzzz/narrator/internal/config"
	"github.com/nadzzz/narrator/internal/tts/backend"
)

func main() {
	config.LoadEnvFiles()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, ".", os.Stdout, os.Stderr); err != nil {
		slog.Error("voice test failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, dir string, stdout, stderr io.Writer) error {
	cfg, err := config.Load("")
	if err != nil {
		return err
	}
	config.SetupLogging(cfg.Logging, stderr)

	synth, err := backend.New(cfg.TTS)
	if err != nil {
		return err
	}
	defer synth.Close()

	written, err := audition.Run(ctx, synth, dir, stdout, audition.Groups())
	slog.Info("voice test finished", "files", len(written))
	return err
}
