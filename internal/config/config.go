// Package config handles loading the narrator configuration.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the root configuration for narrator.
type Config struct {
	TTS     TTSConfig     `mapstructure:"tts"`
	Encoder EncoderConfig `mapstructure:"encoder"`
	UI      UIConfig      `mapstructure:"ui"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// TTSConfig selects and configures the text-to-speech backend.
type TTSConfig struct {
	Backend string        `mapstructure:"backend"` // "kokoro", "openai" or "wyoming"
	Speed   float64       `mapstructure:"speed"`
	RepoID  string        `mapstructure:"repo_id"`
	Kokoro  KokoroConfig  `mapstructure:"kokoro"`
	OpenAI  OpenAIConfig  `mapstructure:"openai"`
	Wyoming WyomingConfig `mapstructure:"wyoming"`
}

// KokoroConfig configures the local python worker that hosts the Kokoro pipeline.
type KokoroConfig struct {
	Python       string        `mapstructure:"python"`
	Script       string        `mapstructure:"script"` // empty: use the embedded worker
	StartTimeout time.Duration `mapstructure:"start_timeout"`
}

// OpenAIConfig points at an OpenAI-compatible speech server (e.g. Kokoro-FastAPI).
type OpenAIConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
}

// WyomingConfig holds Wyoming protocol settings.
type WyomingConfig struct {
	Endpoint string        `mapstructure:"endpoint"` // host:port
	Timeout  time.Duration `mapstructure:"timeout"`
}

// EncoderConfig configures the ffmpeg transcoder.
type EncoderConfig struct {
	FFmpeg    string `mapstructure:"ffmpeg"`
	Overwrite bool   `mapstructure:"overwrite"`
	Verify    bool   `mapstructure:"verify"`
}

// UIConfig holds terminal output settings.
type UIConfig struct {
	Progress bool `mapstructure:"progress"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// Load reads the configuration from file, environment variables, and defaults.
// If configFile is non-empty it is used directly; otherwise the standard
// search order applies: ./narrator.yaml, ./configs/narrator.yaml, ~/.config/narrator/narrator.yaml.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("tts.backend", "kokoro")
	v.SetDefault("tts.speed", 1.0)
	v.SetDefault("tts.repo_id", "hexgrad/Kokoro-82M")
	v.SetDefault("tts.kokoro.python", "python3")
	v.SetDefault("tts.kokoro.script", "")
	v.SetDefault("tts.kokoro.start_timeout", 10*time.Minute)
	v.SetDefault("tts.openai.base_url", "http://localhost:8880/v1")
	v.SetDefault("tts.openai.api_key", "not-needed")
	v.SetDefault("tts.openai.model", "kokoro")
	v.SetDefault("tts.wyoming.endpoint", "localhost:10200")
	v.SetDefault("tts.wyoming.timeout", 5*time.Minute)
	v.SetDefault("encoder.ffmpeg", "ffmpeg")
	v.SetDefault("encoder.overwrite", true)
	v.SetDefault("encoder.verify", true)
	v.SetDefault("ui.progress", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	// Config file
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("narrator")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "narrator"))
		}
	}

	// Environment variables: NARRATOR_TTS_BACKEND, NARRATOR_ENCODER_FFMPEG, etc.
	v.SetEnvPrefix("NARRATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (optional: env vars and defaults are sufficient)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		slog.Debug("no config file found, using defaults and environment variables")
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Resolve env var references in sensitive fields (e.g., "${KOKORO_API_KEY}")
	cfg.TTS.OpenAI.APIKey = resolveEnvRef(cfg.TTS.OpenAI.APIKey)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values viper cannot constrain on its own.
func (c *Config) Validate() error {
	switch c.TTS.Backend {
	case "kokoro", "openai", "wyoming":
	default:
		return fmt.Errorf("unknown tts backend %q", c.TTS.Backend)
	}
	if c.TTS.Speed <= 0 {
		return fmt.Errorf("tts speed must be positive, got %v", c.TTS.Speed)
	}
	return nil
}

// LoadEnvFiles loads KEY=value pairs from the first-found .env style files
// into the process environment. Variables already set are left alone.
func LoadEnvFiles() {
	envFiles := []string{".env", "narrator.env"}
	if home, err := os.UserHomeDir(); err == nil {
		envFiles = append(envFiles, filepath.Join(home, ".config", "narrator.env"))
	}

	for _, envFile := range envFiles {
		if _, err := os.Stat(envFile); err != nil {
			continue
		}
		slog.Debug("env file found, loading environment variables from file", "env_file", envFile)
		if err := godotenv.Load(envFile); err != nil {
			slog.Error("failed to load environment variables from file", "error", err, "env_file", envFile)
		}
	}
}

// resolveEnvRef replaces "${VAR_NAME}" patterns with the corresponding env var value.
func resolveEnvRef(val string) string {
	if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
		envKey := val[2 : len(val)-1]
		if envVal := os.Getenv(envKey); envVal != "" {
			return envVal
		}
	}
	return val
}

// SetupLogging configures the global slog logger based on config.
// Logs go to w so stdout stays free for the conversion report.
func SetupLogging(cfg LoggingConfig, w io.Writer) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	slog.SetDefault(slog.New(handler))
}
