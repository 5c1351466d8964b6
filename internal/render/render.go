// Package render shows job progress to a human: a bubbletea view on
// terminals, a byte bar, or throttled log lines.
package render

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"splitcat/internal/model"
)

const (
	ModeAuto  = "auto"
	ModeTUI   = "tui"
	ModeBar   = "bar"
	ModePlain = "plain"
	ModeNone  = "none"
)

// Renderer receives the lifecycle of one job. cancel requests cancellation
// and never blocks.
type Renderer interface {
	Start(spec model.JobSpec, cancel func())
	Update(s model.Snapshot)
	Finish(s model.Snapshot)
}

type Nop struct{}

func (Nop) Start(model.JobSpec, func()) {}
func (Nop) Update(model.Snapshot)       {}
func (Nop) Finish(model.Snapshot)       {}

// Multi fans every call out in order.
type Multi []Renderer

func (m Multi) Start(spec model.JobSpec, cancel func()) {
	for _, r := range m {
		r.Start(spec, cancel)
	}
}

func (m Multi) Update(s model.Snapshot) {
	for _, r := range m {
		r.Update(s)
	}
}

func (m Multi) Finish(s model.Snapshot) {
	for _, r := range m {
		r.Finish(s)
	}
}

type SelectOptions struct {
	// Out receives TUI and bar output; stderr when nil.
	Out      io.Writer
	Terminal bool
	Logger   zerolog.Logger
}

// ForMode builds the renderer for a progress mode name.
func ForMode(mode string, opts SelectOptions) (Renderer, error) {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", ModeAuto:
		if opts.Terminal {
			return NewTUI(out, opts.Logger), nil
		}
		return NewPlain(opts.Logger), nil
	case ModeTUI:
		if !opts.Terminal {
			return nil, fmt.Errorf("progress mode %q requires an interactive terminal (TTY)", ModeTUI)
		}
		return NewTUI(out, opts.Logger), nil
	case ModeBar:
		return NewBar(out), nil
	case ModePlain:
		return NewPlain(opts.Logger), nil
	case ModeNone:
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("invalid progress mode %q (expected auto, tui, bar, plain, or none)", mode)
	}
}

// IsTerminal reports whether both f and stdin are interactive terminals.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd())) && term.IsTerminal(int(os.Stdin.Fd()))
}

// Title is the one-line description of what a job does.
func Title(spec model.JobSpec) string {
	switch spec.Kind {
	case model.KindSplit:
		return fmt.Sprintf("Splitting %s into %d parts", filepath.Base(spec.Source()), spec.ChunkCount)
	case model.KindConcat:
		return fmt.Sprintf("Joining %d files into %s", len(spec.Sources()), filepath.Base(spec.Destination))
	default:
		return string(spec.Kind)
	}
}

// OutcomeLabel is the short verdict for a terminal state.
func OutcomeLabel(state model.State) string {
	switch state {
	case model.StateFinished:
		return "done"
	case model.StateCanceled:
		return "canceled"
	case model.StateFailed:
		return "failed"
	default:
		return string(state)
	}
}
