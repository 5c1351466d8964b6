package render

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"splitcat/internal/eta"
	"splitcat/internal/model"
)

var (
	tuiTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	tuiMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	tuiErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	tuiOKStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	tuiWarnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
)

const (
	tuiMaxBarWidth = 60
	tuiMinBarWidth = 10
)

type snapshotMsg model.Snapshot

type finishMsg model.Snapshot

type tuiModel struct {
	spec      model.JobSpec
	snap      model.Snapshot
	bar       progress.Model
	spin      spinner.Model
	cancel    func()
	canceling bool
	done      bool
	now       func() time.Time
}

func newTUIModel(spec model.JobSpec, cancel func(), now func() time.Time) tuiModel {
	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = tuiMaxBarWidth
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = tuiTitleStyle
	return tuiModel{
		spec:   spec,
		snap:   model.Snapshot{JobID: spec.ID, Kind: spec.Kind, State: model.StateRunning, TotalBytes: spec.TotalBytes},
		bar:    bar,
		spin:   sp,
		cancel: cancel,
		now:    now,
	}
}

func (m tuiModel) Init() tea.Cmd {
	return m.spin.Tick
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		w := msg.Width - 4
		if w > tuiMaxBarWidth {
			w = tuiMaxBarWidth
		}
		if w < tuiMinBarWidth {
			w = tuiMinBarWidth
		}
		m.bar.Width = w
		return m, nil
	case snapshotMsg:
		m.snap = model.Snapshot(msg)
		return m, nil
	case finishMsg:
		m.snap = model.Snapshot(msg)
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		switch msg.String() {
		case "c", "esc", "ctrl+c":
			if !m.done && !m.canceling {
				m.canceling = true
				if m.cancel != nil {
					m.cancel()
				}
			}
		}
		return m, nil
	}
	return m, nil
}

func (m tuiModel) View() string {
	now := m.now()
	header := tuiTitleStyle.Render(Title(m.spec))
	bar := m.bar.ViewAs(m.snap.Percent())
	status := tuiMutedStyle.Render(eta.Message(m.snap, now))

	var footer string
	switch {
	case m.done:
		footer = m.outcomeLine()
	case m.canceling:
		footer = m.spin.View() + " " + tuiWarnStyle.Render("canceling...")
	default:
		footer = m.spin.View() + " " + tuiMutedStyle.Render("c/esc: cancel")
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, bar, status, footer) + "\n"
}

func (m tuiModel) outcomeLine() string {
	elapsed := eta.FormatElapsed(m.snap.Elapsed(m.now()))
	switch m.snap.State {
	case model.StateFinished:
		return tuiOKStyle.Render(fmt.Sprintf("%s in %s", OutcomeLabel(m.snap.State), elapsed))
	case model.StateCanceled:
		return tuiWarnStyle.Render(fmt.Sprintf("%s after %s", OutcomeLabel(m.snap.State), elapsed))
	default:
		return tuiErrorStyle.Render(fmt.Sprintf("%s (exit %d) after %s", OutcomeLabel(m.snap.State), m.snap.ExitCode, elapsed))
	}
}

// TUI runs a bubbletea program for the duration of one job.
type TUI struct {
	out     io.Writer
	log     zerolog.Logger
	program *tea.Program
	done    chan struct{}
	once    sync.Once
}

func NewTUI(out io.Writer, log zerolog.Logger) *TUI {
	return &TUI{out: out, log: log}
}

func (t *TUI) Start(spec model.JobSpec, cancel func()) {
	m := newTUIModel(spec, cancel, time.Now)
	// Signals stay with the CLI, which cancels the job itself.
	t.program = tea.NewProgram(m, tea.WithOutput(t.out), tea.WithoutSignalHandler())
	t.done = make(chan struct{})
	go func() {
		defer close(t.done)
		if _, err := t.program.Run(); err != nil {
			t.log.Warn().Err(err).Msg("progress view stopped")
		}
	}()
}

func (t *TUI) Update(s model.Snapshot) {
	if t.program != nil {
		t.program.Send(snapshotMsg(s))
	}
}

func (t *TUI) Finish(s model.Snapshot) {
	if t.program == nil {
		return
	}
	t.once.Do(func() {
		t.program.Send(finishMsg(s))
		select {
		case <-t.done:
		case <-time.After(2 * time.Second):
			t.program.Kill()
			<-t.done
		}
	})
}
