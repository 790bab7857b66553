package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	testChdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "kokoro", cfg.TTS.Backend)
	assert.Equal(t, 1.0, cfg.TTS.Speed)
	assert.Equal(t, "hexgrad/Kokoro-82M", cfg.TTS.RepoID)
	assert.Equal(t, "python3", cfg.TTS.Kokoro.Python)
	assert.Equal(t, 10*time.Minute, cfg.TTS.Kokoro.StartTimeout)
	assert.Equal(t, "http://localhost:8880/v1", cfg.TTS.OpenAI.BaseURL)
	assert.Equal(t, "localhost:10200", cfg.TTS.Wyoming.Endpoint)
	assert.Equal(t, "ffmpeg", cfg.Encoder.FFmpeg)
	assert.True(t, cfg.Encoder.Overwrite)
	assert.True(t, cfg.Encoder.Verify)
	assert.True(t, cfg.UI.Progress)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "narrator.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tts:
  backend: openai
  speed: 1.25
  openai:
    base_url: http://kokoro:8880/v1
    api_key: ${TEST_NARRATOR_KEY}
encoder:
  verify: false
`), 0o644))

	t.Setenv("TEST_NARRATOR_KEY", "secret")
	t.Setenv("NARRATOR_ENCODER_FFMPEG", "/opt/ffmpeg/bin/ffmpeg")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.TTS.Backend)
	assert.Equal(t, 1.25, cfg.TTS.Speed)
	assert.Equal(t, "http://kokoro:8880/v1", cfg.TTS.OpenAI.BaseURL)
	assert.Equal(t, "secret", cfg.TTS.OpenAI.APIKey)
	assert.False(t, cfg.Encoder.Verify)
	assert.Equal(t, "/opt/ffmpeg/bin/ffmpeg", cfg.Encoder.FFmpeg)
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	testChdir(t, t.TempDir())
	t.Setenv("NARRATOR_TTS_BACKEND", "espeak")

	_, err := Load("")
	assert.ErrorContains(t, err, "unknown tts backend")
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	testChdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("NARRATOR_TEST_FROM_DOTENV=yes\n"), 0o644))
	t.Setenv("NARRATOR_TEST_FROM_DOTENV", "")
	require.NoError(t, os.Unsetenv("NARRATOR_TEST_FROM_DOTENV"))

	LoadEnvFiles()
	assert.Equal(t, "yes", os.Getenv("NARRATOR_TEST_FROM_DOTENV"))
}

func TestResolveEnvRef(t *testing.T) {
	t.Setenv("NARRATOR_REF", "value")
	assert.Equal(t, "value", resolveEnvRef("${NARRATOR_REF}"))
	assert.Equal(t, "${NARRATOR_UNSET_REF}", resolveEnvRef("${NARRATOR_UNSET_REF}"))
	assert.Equal(t, "plain", resolveEnvRef("plain"))
}

func TestSetupLogging(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	SetupLogging(LoggingConfig{Level: "warn", Format: "json"}, &buf)

	slog.Info("hidden")
	slog.Warn("shown", "k", "v")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"k":"v"`)
}

// testChdir changes the working directory for the duration of the test,
// restoring it on cleanup (equivalent of testing.T.Chdir, which needs Go 1.24).
func testChdir(t *testing.T, dir string) {
	t.Helper()
	oldwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(oldwd); err != nil {
			t.Fatal(err)
		}
	})
}
