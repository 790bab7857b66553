package kokoro

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// worker is one running python process and the goroutine decoding its stdout.
type worker struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *tailBuffer

	lines  chan response
	quit   chan struct{}
	exited chan struct{}
	ready  atomic.Bool // set once the first response arrived

	stopOnce sync.Once
	readErr  error // valid after exited is closed
	waitErr  error // valid after exited is closed
}

func startWorker(cmd *exec.Cmd) (*worker, error) {
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	tail := newTailBuffer(16 << 10)
	cmd.Stderr = tail

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	w := &worker{
		cmd:    cmd,
		stdin:  stdin,
		stderr: tail,
		lines:  make(chan response),
		quit:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go w.read(stdout)
	return w, nil
}

// read decodes response lines until stdout closes, then reaps the process.
func (w *worker) read(stdout io.Reader) {
	dec := json.NewDecoder(stdout)
	for {
		var r response
		if err := dec.Decode(&r); err != nil {
			if !errors.Is(err, io.EOF) {
				w.readErr = fmt.Errorf("decoding worker output: %w", err)
			}
			break
		}
		w.ready.Store(true)
		select {
		case w.lines <- r:
		case <-w.quit:
			// Nobody is listening any more; keep draining so the process can exit.
		}
	}
	w.waitErr = w.cmd.Wait()
	close(w.lines)
	close(w.exited)
}

// exitErr describes why the worker stopped producing output.
func (w *worker) exitErr() error {
	<-w.exited
	if w.readErr != nil {
		return w.readErr
	}
	if w.waitErr != nil {
		return w.waitErr
	}
	return io.ErrUnexpectedEOF
}

func (w *worker) stderrSuffix() string {
	msg := w.stderr.String()
	if msg == "" {
		return ""
	}
	if i := strings.LastIndex(msg, "\n"); i >= 0 && len(msg)-i < 512 {
		// Last line is usually the python exception.
		msg = strings.TrimSpace(msg[i+1:])
	}
	return ": " + msg
}

// stop closes stdin, interrupts the process and kills it if it does not exit
// within the grace period.
func (w *worker) stop() {
	w.stopOnce.Do(func() {
		close(w.quit)
		_ = w.stdin.Close()
		if w.cmd.Process == nil {
			return
		}
		_ = w.cmd.Process.Signal(os.Interrupt)

		select {
		case <-time.After(stopGrace):
			_ = w.cmd.Process.Kill()
			<-w.exited
		case <-w.exited:
		}
		slog.Debug("kokoro worker stopped", "pid", w.cmd.Process.Pid)
	})
}

type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func newTailBuffer(max int) *tailBuffer {
	if max <= 0 {
		max = 16 << 10
	}
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
