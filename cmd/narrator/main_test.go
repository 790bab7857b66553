package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/narrator/internal/convert"
)

func parse(t *testing.T, args ...string) (*CLI, error) {
	t.Helper()
	var cli CLI
	parser, err := newParser(&cli, kong.Exit(func(int) {}), kong.Writers(&bytes.Buffer{}, &bytes.Buffer{}))
	require.NoError(t, err)
	_, err = parser.Parse(args)
	return &cli, err
}

func TestParseDefaults(t *testing.T) {
	cli, err := parse(t, "story.txt")
	require.NoError(t, err)
	assert.Equal(t, "story.txt", cli.TextFile)
	assert.Equal(t, "af_heart", cli.Voice)
	assert.Equal(t, "mp3", cli.Format)
	assert.Zero(t, cli.Speed)
	assert.Nil(t, cli.LogLevel)
}

func TestParseFlags(t *testing.T) {
	cli, err := parse(t, "book.txt", "--voice", "bm_fable", "--format", "m4a", "--speed", "1.2", "--log-level", "debug")
	require.NoError(t, err)
	assert.Equal(t, "bm_fable", cli.Voice)
	assert.Equal(t, "m4a", cli.Format)
	assert.Equal(t, 1.2, cli.Speed)
	require.NotNil(t, cli.LogLevel)
	assert.Equal(t, "debug", *cli.LogLevel)
}

func TestParseRejectsClosedSetViolations(t *testing.T) {
	_, err := parse(t, "story.txt", "--format", "ogg")
	assert.Error(t, err)

	_, err = parse(t, "story.txt", "--voice", "zf_xiaobei")
	assert.Error(t, err)

	_, err = parse(t)
	assert.Error(t, err, "text file is required")
}

func TestRunMissingFile(t *testing.T) {
	dir := t.TempDir()
	testChdir(t, dir)

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), &CLI{TextFile: "absent.txt", Voice: "af_heart", Format: "mp3"}, &stdout, &stderr)
	require.NoError(t, err)
	assert.Equal(t, "Error: Text file 'absent.txt' not found\n", stdout.String())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// setupPipeline points the openai backend at a fake speech server and the
// encoder at a fake ffmpeg script.
func setupPipeline(t *testing.T, ffmpegBody string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake ffmpeg is a shell script")
	}
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pcm := make([]byte, 2*2400)
		for i := 0; i < len(pcm); i += 2 {
			binary.LittleEndian.PutUint16(pcm[i:], 1000)
		}
		_, _ = w.Write(pcm)
	}))
	t.Cleanup(srv.Close)

	bin := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"+ffmpegBody+"\n"), 0o755))

	dir := t.TempDir()
	testChdir(t, dir)
	t.Setenv("NARRATOR_TTS_BACKEND", "openai")
	t.Setenv("NARRATOR_TTS_OPENAI_BASE_URL", srv.URL+"/v1")
	t.Setenv("NARRATOR_ENCODER_FFMPEG", bin)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "story.txt"), []byte("Hello world."), 0o644))
	return dir
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestRunEndToEnd(t *testing.T) {
	dir := setupPipeline(t, `for last; do :; done
printf 'ID3\004\000\000\000\000\000\000\000\000\000\000\000\000\000\000' > "$last"`)

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), &CLI{TextFile: "story.txt", Voice: "af_heart", Format: "mp3"}, &stdout, &stderr)
	require.NoError(t, err)

	assert.Equal(t, []string{"af_heart - story.mp3", "story.txt"}, listDir(t, dir))
	assert.Contains(t, stdout.String(), "Processing file 'story.txt' with voice 'af_heart'")
	assert.Contains(t, stdout.String(), "Audio duration: 0.10 seconds")
	assert.Contains(t, stdout.String(), "Encoded at ")
}

func TestRunEncoderFailureKeepsIntermediates(t *testing.T) {
	dir := setupPipeline(t, `echo "Unknown encoder 'libmp3lame'" >&2
exit 1`)

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), &CLI{TextFile: "story.txt", Voice: "af_heart", Format: "mp3"}, &stdout, &stderr)
	require.Error(t, err)
	assert.ErrorIs(t, err, convert.ErrEncode)
	assert.Contains(t, err.Error(), "libmp3lame")

	assert.Equal(t, []string{"af_heart - story.wav", "af_heart - story_000.wav", "story.txt"}, listDir(t, dir))
}

func TestRunRejectsNegativeSpeed(t *testing.T) {
	dir := t.TempDir()
	testChdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "story.txt"), []byte("hi"), 0o644))
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	err := run(context.Background(), &CLI{TextFile: "story.txt", Voice: "af_heart", Format: "mp3", Speed: -1}, &bytes.Buffer{}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "speed")
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
