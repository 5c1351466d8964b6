package supervisor

import (
	"errors"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const maxDiagnosticBytes = 8192

// Handle is a running child. Done closes once the exit status and the
// diagnostic text have been collected.
type Handle struct {
	cmd       *exec.Cmd
	args      []string
	done      chan struct{}
	diag      *limitedBuffer
	killGrace time.Duration
	log       zerolog.Logger

	mu         sync.Mutex
	exited     bool
	exitCode   int
	terminated bool
	killTimer  *time.Timer
}

func (h *Handle) Done() <-chan struct{} { return h.done }

// ExitCode is 0 on success, the child's status otherwise, and -1 when the
// status is unknown (killed by a signal, or not yet exited).
func (h *Handle) ExitCode() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitCode
}

func (h *Handle) Diagnostics() string {
	return strings.TrimSpace(h.diag.String())
}

func (h *Handle) Args() []string {
	return append([]string(nil), h.args...)
}

func (h *Handle) PID() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// Terminate asks the child to stop and returns immediately. It is a no-op
// once the child has exited.
func (h *Handle) Terminate() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.exited || h.terminated {
		return
	}
	h.terminated = true
	if err := terminate(h.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		h.log.Warn().Err(err).Msg("terminate child")
	}
	if h.killGrace > 0 {
		h.killTimer = time.AfterFunc(h.killGrace, h.kill)
	}
}

func (h *Handle) kill() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.exited {
		return
	}
	h.log.Warn().Dur("grace", h.killGrace).Msg("child ignored termination, killing")
	if err := h.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		h.log.Warn().Err(err).Msg("kill child")
	}
}

func (h *Handle) wait() {
	err := h.cmd.Wait()

	code := 0
	if err != nil {
		code = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
	}

	h.mu.Lock()
	h.exited = true
	h.exitCode = code
	if h.killTimer != nil {
		h.killTimer.Stop()
	}
	h.mu.Unlock()

	ev := h.log.Debug()
	if code != 0 {
		ev = h.log.Info()
	}
	ev.Int("exit_code", code).Msg("child exited")
	if diag := h.Diagnostics(); diag != "" {
		h.log.Warn().Str("diagnostics", diag).Msg("child wrote diagnostics")
	}
	close(h.done)
}

// limitedBuffer keeps the first max bytes written to it and discards the rest.
type limitedBuffer struct {
	mu  sync.Mutex
	max int
	b   strings.Builder
}

func (l *limitedBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if remain := l.max - l.b.Len(); remain > 0 {
		if len(p) > remain {
			l.b.Write(p[:remain])
		} else {
			l.b.Write(p)
		}
	}
	return len(p), nil
}

func (l *limitedBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.String()
}
