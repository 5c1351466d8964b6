// Package supervisor launches the external split and cat tools and tracks
// their exit without ever blocking the caller on the child.
package supervisor

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"splitcat/internal/model"
)

const (
	DefaultSplitBinary = "split"
	DefaultCatBinary   = "cat"
	DefaultKillGrace   = 5 * time.Second

	// Bounds the wait for diagnostic output after the child is gone.
	pipeDrainDelay = 2 * time.Second
)

var ErrLaunchFailure = errors.New("launch failure")

// LaunchError reports a child that could not be started.
type LaunchError struct {
	Binary string
	Err    error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("start %s: %v", e.Binary, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

func (e *LaunchError) Is(target error) bool { return target == ErrLaunchFailure }

type Options struct {
	SplitBinary string
	CatBinary   string
	// KillGrace is how long a terminated child may linger before SIGKILL.
	// Zero disables escalation.
	KillGrace time.Duration
	Logger    zerolog.Logger
}

type Supervisor struct {
	splitBin  string
	catBin    string
	killGrace time.Duration
	log       zerolog.Logger
}

func New(opts Options) *Supervisor {
	s := &Supervisor{
		splitBin:  strings.TrimSpace(opts.SplitBinary),
		catBin:    strings.TrimSpace(opts.CatBinary),
		killGrace: opts.KillGrace,
		log:       opts.Logger.With().Str("component", "supervisor").Logger(),
	}
	if s.splitBin == "" {
		s.splitBin = DefaultSplitBinary
	}
	if s.catBin == "" {
		s.catBin = DefaultCatBinary
	}
	if s.killGrace < 0 {
		s.killGrace = 0
	}
	return s
}

// Launch starts the tool matching spec.Kind.
func (s *Supervisor) Launch(spec model.JobSpec) (*Handle, error) {
	switch spec.Kind {
	case model.KindSplit:
		return s.LaunchSplit(spec)
	case model.KindConcat:
		return s.LaunchConcat(spec)
	default:
		return nil, &LaunchError{Binary: "unknown", Err: fmt.Errorf("unsupported job kind %q", spec.Kind)}
	}
}

// SplitArgs is the argument vector handed to split, without the binary.
func SplitArgs(spec model.JobSpec) []string {
	return []string{
		"-d",
		"-a", strconv.Itoa(spec.SuffixWidth),
		"-n", strconv.Itoa(spec.ChunkCount),
		spec.Source(),
		spec.Destination,
	}
}

// LaunchSplit runs split with stdout and stderr sharing the diagnostic buffer.
func (s *Supervisor) LaunchSplit(spec model.JobSpec) (*Handle, error) {
	if spec.Kind != model.KindSplit {
		return nil, &LaunchError{Binary: s.splitBin, Err: fmt.Errorf("job %s is not a split", spec.ID)}
	}
	args := SplitArgs(spec)
	cmd := exec.Command(s.splitBin, args...)
	h := s.newHandle(spec, cmd, args)
	cmd.Stdout = h.diag
	cmd.Stderr = h.diag
	if err := s.start(h); err != nil {
		return nil, err
	}
	return h, nil
}

// LaunchConcat runs cat with stdout redirected into a freshly truncated
// destination that exists before the child starts.
func (s *Supervisor) LaunchConcat(spec model.JobSpec) (*Handle, error) {
	if spec.Kind != model.KindConcat {
		return nil, &LaunchError{Binary: s.catBin, Err: fmt.Errorf("job %s is not a concat", spec.ID)}
	}
	args := spec.Sources()
	out, err := os.OpenFile(spec.Destination, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, &LaunchError{Binary: s.catBin, Err: fmt.Errorf("open destination %s: %w", spec.Destination, err)}
	}
	cmd := exec.Command(s.catBin, args...)
	h := s.newHandle(spec, cmd, args)
	cmd.Stdout = out
	cmd.Stderr = h.diag
	err = s.start(h)
	// The child holds its own descriptor once started.
	_ = out.Close()
	if err != nil {
		if rmErr := os.Remove(spec.Destination); rmErr != nil && !os.IsNotExist(rmErr) {
			s.log.Warn().Err(rmErr).Str("destination", spec.Destination).Msg("remove destination after failed launch")
		}
		return nil, err
	}
	return h, nil
}

func (s *Supervisor) newHandle(spec model.JobSpec, cmd *exec.Cmd, args []string) *Handle {
	cmd.WaitDelay = pipeDrainDelay
	configureProcess(cmd)
	return &Handle{
		cmd:       cmd,
		args:      append([]string{filepath.Base(cmd.Path)}, args...),
		done:      make(chan struct{}),
		diag:      &limitedBuffer{max: maxDiagnosticBytes},
		exitCode:  -1,
		killGrace: s.killGrace,
		log: s.log.With().
			Str("job_id", spec.ID).
			Str("kind", string(spec.Kind)).
			Logger(),
	}
}

func (s *Supervisor) start(h *Handle) error {
	if err := h.cmd.Start(); err != nil {
		return &LaunchError{Binary: h.cmd.Path, Err: err}
	}
	h.log.Debug().Strs("argv", h.args).Int("pid", h.cmd.Process.Pid).Msg("child started")
	go h.wait()
	return nil
}

type DependencyReport struct {
	SplitFound bool   `json:"split_found"`
	SplitPath  string `json:"split_path,omitempty"`
	CatFound   bool   `json:"cat_found"`
	CatPath    string `json:"cat_path,omitempty"`
}

func (s *Supervisor) DependencyStatus() DependencyReport {
	report := DependencyReport{}
	if path, err := exec.LookPath(s.splitBin); err == nil {
		report.SplitFound = true
		report.SplitPath = path
	}
	if path, err := exec.LookPath(s.catBin); err == nil {
		report.CatFound = true
		report.CatPath = path
	}
	return report
}

// CheckDependencies verifies the binary needed for kind resolves on PATH.
func (s *Supervisor) CheckDependencies(kind model.Kind) error {
	report := s.DependencyStatus()
	switch kind {
	case model.KindSplit:
		if !report.SplitFound {
			return fmt.Errorf("missing dependency: %s is not installed or not on PATH", s.splitBin)
		}
	case model.KindConcat:
		if !report.CatFound {
			return fmt.Errorf("missing dependency: %s is not installed or not on PATH", s.catBin)
		}
	default:
		return fmt.Errorf("unsupported job kind %q", kind)
	}
	return nil
}
