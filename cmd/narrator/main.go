// Narrator converts a plain text file into an audiobook using Kokoro
// text-to-speech and ffmpeg.
//
// Usage:
//
//	narrator <text_file> [--voice VOICE] [--format {mp3,mp4,m4a}]
//	narrator story.txt --voice bf_emma --format m4a --config narrator.yaml
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/nadzzz/narrator/internal/config"
	"github.com/nadzzz/narrator/internal/convert"
	"github.com/nadzzz/narrator/internal/encode"
	"github.com/nadzzz/narrator/internal/tts"
	"github.com/nadzzz/narrator/internal/tts/backend"
	"github.com/nadzzz/narrator/internal/voice"
)

// version is set at build time via ldflags.
var version = "dev"

// CLI is the narrator command line.
type CLI struct {
	TextFile string  `arg:"" name:"text_file" help:"Path to the text file to convert."`
	Voice    string  `default:"af_heart" enum:"${voices}" help:"Voice to use for text-to-speech."`
	Format   string  `default:"mp3" enum:"mp3,mp4,m4a" help:"Output audio format [${enum}]."`
	Speed    float64 `help:"Speaking rate multiplier (default: tts.speed from config)."`
	Config   string  `type:"path" help:"Path to config file (e.g. configs/narrator.yaml)."`

	LogLevel  *string `enum:"debug,info,warn,error" help:"Set the level of logs to output [${enum}]."`
	LogFormat *string `enum:"text,json" help:"Set the format of logs to output [${enum}]."`

	Version kong.VersionFlag `help:"Print version and exit."`
}

func newParser(cli *CLI, opts ...kong.Option) (*kong.Kong, error) {
	opts = append([]kong.Option{
		kong.Name("narrator"),
		kong.Description("Convert a text file to an audiobook."),
		kong.UsageOnError(),
		kong.Vars{
			"voices":  strings.Join(voice.AllEnglish(), ","),
			"version": "narrator " + version,
		},
	}, opts...)
	return kong.New(cli, opts...)
}

func main() {
	config.LoadEnvFiles()

	var cli CLI
	parser, err := newParser(&cli)
	if err != nil {
		panic(err)
	}
	_, err = parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	// Create root context with signal handling; intermediates already written stay on disk.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, &cli, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, context.Canceled) {
			slog.Warn("interrupted")
		} else {
			slog.Error("conversion failed", "error", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, cli *CLI, stdout, stderr io.Writer) error {
	// A missing input is reported, not treated as a failure.
	if info, err := os.Stat(cli.TextFile); err != nil || info.IsDir() {
		fmt.Fprintf(stdout, "Error: Text file '%s' not found\n", cli.TextFile)
		return nil
	}

	cfg, err := config.Load(cli.Config)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if cli.LogLevel != nil {
		cfg.Logging.Level = *cli.LogLevel
	}
	if cli.LogFormat != nil {
		cfg.Logging.Format = *cli.LogFormat
	}
	config.SetupLogging(cfg.Logging, stderr)
	slog.Debug("narrator starting", "version", version, "backend", cfg.TTS.Backend)

	speed := cfg.TTS.Speed
	if cli.Speed != 0 {
		if cli.Speed < 0 {
			return fmt.Errorf("speed must be positive, got %v", cli.Speed)
		}
		speed = cli.Speed
	}

	format, err := encode.ParseFormat(cli.Format)
	if err != nil {
		return err
	}

	synth, err := backend.New(cfg.TTS)
	if err != nil {
		return err
	}
	defer synth.Close()

	enc := encode.NewFFmpeg(cfg.Encoder.FFmpeg, cfg.Encoder.Overwrite, cfg.Encoder.Verify)

	opts := []convert.Option{convert.WithOutput(stdout)}
	if cfg.UI.Progress && isTerminal(stderr) {
		bar := progressbar.NewOptions(-1,
			progressbar.OptionSetWriter(stderr),
			progressbar.OptionSetDescription("synthesizing segments"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowBytes(false),
			progressbar.OptionClearOnFinish(),
		)
		defer bar.Finish()
		opts = append(opts, convert.WithProgress(func(*tts.Segment, string) {
			_ = bar.Add(1)
		}))
	}

	_, err = convert.New(synth, enc, opts...).Convert(ctx, cli.TextFile, convert.Options{
		Voice:  cli.Voice,
		Format: format,
		Speed:  speed,
	})
	return err
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
