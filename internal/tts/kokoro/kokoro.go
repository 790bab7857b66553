// Package kokoro implements the TTS Synthesizer by driving a local Python
// worker that hosts the Kokoro pipeline.
//
// The worker is started on first use and kept alive for the lifetime of the
// Synthesizer so model weights are loaded once. Requests and responses are
// newline-delimited JSON:
//
//	-> {"id":"...","text":"...","voice":"af_heart","lang_code":"a","speed":1,"split_pattern":"...","repo_id":"..."}
//	<- {"id":"...","type":"segment","index":0,"graphemes":"...","phonemes":"...","sample_rate":24000,"audio_base64":"..."}
//	<- {"id":"...","type":"done"}
//
// Audio is little-endian float32. An "error" line ends a request early.
package kokoro

import (
	"context"
	_ "embed"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nadzzz/narrator/internal/audio"
	"github.com/nadzzz/narrator/internal/config"
	"github.com/nadzzz/narrator/internal/tts"
)

//go:embed worker.py
var workerScript []byte

const stopGrace = 1200 * time.Millisecond

// Synthesizer implements tts.Synthesizer on top of the Kokoro worker process.
type Synthesizer struct {
	python string
	script string
	repoID string

	startTimeout time.Duration

	// command builds the worker process; replaced in tests.
	command func(python, script string) *exec.Cmd

	busy chan struct{} // one request in flight

	mu         sync.Mutex
	proc       *worker
	tempScript string
	closed     bool
}

// New creates a Kokoro synthesizer from config. The worker is not started
// until the first Synthesize call.
func New(cfg config.KokoroConfig, repoID string) *Synthesizer {
	python := cfg.Python
	if python == "" {
		python = "python3"
	}
	if repoID == "" {
		repoID = tts.DefaultRepoID
	}
	return &Synthesizer{
		python:       python,
		script:       cfg.Script,
		repoID:       repoID,
		startTimeout: cfg.StartTimeout,
		command:      defaultCommand,
		busy:         make(chan struct{}, 1),
	}
}

func defaultCommand(python, script string) *exec.Cmd {
	cmd := exec.Command(python, "-u", script)
	cmd.Env = append(os.Environ(), "PYTORCH_ENABLE_MPS_FALLBACK=1", "PYTHONUNBUFFERED=1")
	return cmd
}

type request struct {
	ID           string  `json:"id"`
	Text         string  `json:"text"`
	Voice        string  `json:"voice"`
	LangCode     string  `json:"lang_code"`
	Speed        float64 `json:"speed"`
	SplitPattern string  `json:"split_pattern,omitempty"`
	RepoID       string  `json:"repo_id,omitempty"`
}

type response struct {
	ID          string `json:"id"`
	Type        string `json:"type"` // segment, done, error
	Index       int    `json:"index"`
	Graphemes   string `json:"graphemes"`
	Phonemes    string `json:"phonemes"`
	SampleRate  int    `json:"sample_rate"`
	AudioBase64 string `json:"audio_base64"`
	Error       string `json:"error"`
}

// Synthesize sends req to the worker and returns a stream over its segments.
// Only one stream may be open at a time; a second call blocks until the
// previous stream is closed or ctx is done.
func (s *Synthesizer) Synthesize(ctx context.Context, req tts.Request) (tts.Stream, error) {
	req = req.Normalize()

	select {
	case s.busy <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	w, err := s.worker()
	if err != nil {
		<-s.busy
		return nil, err
	}

	id := uuid.New().String()
	line, err := json.Marshal(request{
		ID:           id,
		Text:         req.Text,
		Voice:        req.Voice,
		LangCode:     string(req.Lang),
		Speed:        req.Speed,
		SplitPattern: req.SplitPattern,
		RepoID:       s.repoID,
	})
	if err != nil {
		<-s.busy
		return nil, fmt.Errorf("marshalling request: %w", err)
	}

	slog.Debug("kokoro synthesize", "request_id", id, "voice", req.Voice, "lang", req.Lang, "text_length", len(req.Text))

	if _, err := w.stdin.Write(append(line, '\n')); err != nil {
		s.discard(w)
		<-s.busy
		return nil, fmt.Errorf("sending request to kokoro worker: %w%s", err, w.stderrSuffix())
	}

	return &stream{s: s, w: w, id: id}, nil
}

// Close stops the worker and removes the extracted script.
func (s *Synthesizer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	w := s.proc
	s.proc = nil
	temp := s.tempScript
	s.tempScript = ""
	s.mu.Unlock()

	if w != nil {
		w.stop()
	}
	if temp != "" {
		if err := os.Remove(temp); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing worker script: %w", err)
		}
	}
	return nil
}

// worker returns the running worker, starting one if needed.
func (s *Synthesizer) worker() (*worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, tts.ErrWorkerClosed
	}
	if s.proc != nil {
		return s.proc, nil
	}

	script := s.script
	if script == "" {
		if s.tempScript == "" {
			path, err := extractScript()
			if err != nil {
				return nil, err
			}
			s.tempScript = path
		}
		script = s.tempScript
	}

	w, err := startWorker(s.command(s.python, script))
	if err != nil {
		return nil, fmt.Errorf("starting kokoro worker: %w", err)
	}
	slog.Info("kokoro worker started", "python", s.python, "script", script, "pid", w.cmd.Process.Pid)
	s.proc = w
	return w, nil
}

// discard stops w and forgets it so the next request starts a fresh worker.
func (s *Synthesizer) discard(w *worker) {
	s.mu.Lock()
	if s.proc == w {
		s.proc = nil
	}
	s.mu.Unlock()
	w.stop()
}

func extractScript() (string, error) {
	f, err := os.CreateTemp("", "narrator-kokoro-*.py")
	if err != nil {
		return "", fmt.Errorf("extracting worker script: %w", err)
	}
	if _, err := f.Write(workerScript); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("extracting worker script: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("extracting worker script: %w", err)
	}
	return f.Name(), nil
}

type stream struct {
	s        *Synthesizer
	w        *worker
	id       string
	finished bool
}

// Next reads the next segment line for this request.
func (st *stream) Next(ctx context.Context) (*tts.Segment, error) {
	if st.finished {
		return nil, io.EOF
	}

	// Model download and load happen before the first response.
	var timeout <-chan time.Time
	if !st.w.ready.Load() && st.s.startTimeout > 0 {
		t := time.NewTimer(st.s.startTimeout)
		defer t.Stop()
		timeout = t.C
	}

	var resp response
	select {
	case r, ok := <-st.w.lines:
		if !ok {
			st.fail()
			return nil, fmt.Errorf("kokoro worker exited: %w%s", st.w.exitErr(), st.w.stderrSuffix())
		}
		resp = r
	case <-ctx.Done():
		// The worker cannot be interrupted mid-request without desynchronizing.
		st.fail()
		return nil, ctx.Err()
	case <-timeout:
		st.fail()
		return nil, fmt.Errorf("kokoro worker did not respond within %s%s", st.s.startTimeout, st.w.stderrSuffix())
	}

	if resp.ID != st.id {
		st.fail()
		return nil, fmt.Errorf("kokoro worker out-of-sync (got %q, expected %q)", resp.ID, st.id)
	}

	switch resp.Type {
	case "segment":
		raw, err := base64.StdEncoding.DecodeString(resp.AudioBase64)
		if err != nil {
			st.fail()
			return nil, fmt.Errorf("decoding segment %d audio: %w", resp.Index, err)
		}
		rate := resp.SampleRate
		if rate == 0 {
			rate = tts.SampleRate
		}
		return &tts.Segment{
			Index:      resp.Index,
			Graphemes:  resp.Graphemes,
			Phonemes:   resp.Phonemes,
			Samples:    audio.Float32FromLE(raw),
			SampleRate: rate,
		}, nil
	case "done":
		st.release()
		return nil, io.EOF
	case "error":
		st.release()
		msg := strings.TrimSpace(resp.Error)
		if msg == "" {
			msg = "unknown kokoro error"
		}
		return nil, fmt.Errorf("kokoro: %s", msg)
	default:
		st.fail()
		return nil, fmt.Errorf("kokoro worker sent unknown response type %q", resp.Type)
	}
}

// Close ends the stream. Closing before the request finished stops the
// worker, since its remaining output would desynchronize the next request.
func (st *stream) Close() error {
	if !st.finished {
		st.fail()
	}
	return nil
}

func (st *stream) release() {
	if st.finished {
		return
	}
	st.finished = true
	<-st.s.busy
}

func (st *stream) fail() {
	if st.finished {
		return
	}
	st.s.discard(st.w)
	st.release()
}
