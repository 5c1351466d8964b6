package render

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"splitcat/internal/model"
)

var t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func testSpec() model.JobSpec {
	return model.NewJobSpec("job-1", model.KindSplit, []string{"/data/movie.mkv"}, "/data/movie.mkv.part", 4, 1, 1000)
}

func fixedNow(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestTUICancelKeysRequestCancelOnce(t *testing.T) {
	for _, key := range []tea.KeyMsg{
		{Type: tea.KeyRunes, Runes: []rune{'c'}},
		{Type: tea.KeyEsc},
		{Type: tea.KeyCtrlC},
	} {
		calls := 0
		m := newTUIModel(testSpec(), func() { calls++ }, fixedNow(t0))
		next, _ := m.Update(key)
		next, _ = next.(tuiModel).Update(key)
		got := next.(tuiModel)
		if calls != 1 {
			t.Fatalf("key %q: cancel calls = %d, want 1", key.String(), calls)
		}
		if !got.canceling {
			t.Fatalf("key %q: expected canceling state", key.String())
		}
		if !strings.Contains(got.View(), "canceling") {
			t.Fatalf("view should show canceling: %q", got.View())
		}
	}
}

func TestTUIOtherKeysIgnored(t *testing.T) {
	calls := 0
	m := newTUIModel(testSpec(), func() { calls++ }, fixedNow(t0))
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'x'}})
	if calls != 0 || cmd != nil || next.(tuiModel).canceling {
		t.Fatal("unexpected reaction to unrelated key")
	}
}

func TestTUISnapshotAndFinish(t *testing.T) {
	m := newTUIModel(testSpec(), nil, fixedNow(t0.Add(10*time.Second)))
	next, _ := m.Update(snapshotMsg(model.Snapshot{
		State: model.StateRunning, TotalBytes: 1000, CurrentBytes: 250, StartTime: t0,
	}))
	view := next.(tuiModel).View()
	if !strings.Contains(view, "Splitting movie.mkv into 4 parts") {
		t.Fatalf("missing title: %q", view)
	}
	if !strings.Contains(view, "about 30s remaining (25%)") {
		t.Fatalf("missing status line: %q", view)
	}

	next, cmd := next.(tuiModel).Update(finishMsg(model.Snapshot{
		State: model.StateFailed, TotalBytes: 1000, CurrentBytes: 250, StartTime: t0, EndTime: t0.Add(5 * time.Second), ExitCode: 1,
	}))
	if cmd == nil {
		t.Fatal("finish should quit the program")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("finish cmd should be tea.Quit")
	}
	if view := next.(tuiModel).View(); !strings.Contains(view, "failed (exit 1) after 5s") {
		t.Fatalf("missing outcome: %q", view)
	}
}

func TestTUIWindowResizeClampsBar(t *testing.T) {
	m := newTUIModel(testSpec(), nil, fixedNow(t0))
	next, _ := m.Update(tea.WindowSizeMsg{Width: 8, Height: 10})
	if w := next.(tuiModel).bar.Width; w != tuiMinBarWidth {
		t.Fatalf("bar width = %d", w)
	}
	next, _ = m.Update(tea.WindowSizeMsg{Width: 300, Height: 10})
	if w := next.(tuiModel).bar.Width; w != tuiMaxBarWidth {
		t.Fatalf("bar width = %d", w)
	}
}

func TestPlainThrottlesUpdates(t *testing.T) {
	var buf bytes.Buffer
	p := NewPlain(zerolog.New(&buf))
	now := t0
	p.now = func() time.Time { return now }

	p.Start(testSpec(), nil)
	snap := model.Snapshot{State: model.StateRunning, TotalBytes: 1000, StartTime: t0}
	for i := 0; i < 5; i++ {
		snap.CurrentBytes += 100
		now = now.Add(300 * time.Millisecond)
		p.Update(snap)
	}
	snap.State = model.StateFinished
	snap.CurrentBytes = 1000
	snap.EndTime = now
	p.Finish(snap)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	// start + two throttled updates (t=0.3s, t=1.5s) + finish
	if len(lines) != 4 {
		t.Fatalf("expected 4 log lines, got %d:\n%s", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], `"job_id":"job-1"`) {
		t.Fatalf("start line missing job id: %s", lines[0])
	}
	if !strings.Contains(lines[3], `"state":"finished"`) {
		t.Fatalf("final line missing state: %s", lines[3])
	}
}

func TestBarWritesProgress(t *testing.T) {
	var buf bytes.Buffer
	b := NewBar(&buf)
	b.now = fixedNow(t0.Add(time.Second))
	b.Start(testSpec(), nil)
	b.Update(model.Snapshot{State: model.StateRunning, TotalBytes: 1000, CurrentBytes: 500, StartTime: t0})
	b.Finish(model.Snapshot{State: model.StateCanceled, TotalBytes: 1000, CurrentBytes: 500, StartTime: t0})
	if !strings.Contains(buf.String(), "Splitting movie.mkv") {
		t.Fatalf("bar output missing title: %q", buf.String())
	}
}

func TestForMode(t *testing.T) {
	log := zerolog.Nop()
	cases := []struct {
		mode     string
		terminal bool
		want     string
		wantErr  bool
	}{
		{"auto", true, "*render.TUI", false},
		{"auto", false, "*render.Plain", false},
		{"", false, "*render.Plain", false},
		{"tui", false, "", true},
		{"bar", false, "*render.Bar", false},
		{"plain", true, "*render.Plain", false},
		{"none", true, "render.Nop", false},
		{"fancy", true, "", true},
	}
	for _, tc := range cases {
		r, err := ForMode(tc.mode, SelectOptions{Out: &bytes.Buffer{}, Terminal: tc.terminal, Logger: log})
		if tc.wantErr {
			if err == nil {
				t.Fatalf("mode %q: expected error", tc.mode)
			}
			continue
		}
		if err != nil {
			t.Fatalf("mode %q: %v", tc.mode, err)
		}
		if got := typeName(r); got != tc.want {
			t.Fatalf("mode %q terminal=%v: got %s, want %s", tc.mode, tc.terminal, got, tc.want)
		}
	}
}

type recorder struct{ calls []string }

func (r *recorder) Start(model.JobSpec, func()) { r.calls = append(r.calls, "start") }
func (r *recorder) Update(model.Snapshot)       { r.calls = append(r.calls, "update") }
func (r *recorder) Finish(model.Snapshot)       { r.calls = append(r.calls, "finish") }

func TestMultiFansOut(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	m := Multi{a, b}
	m.Start(testSpec(), nil)
	m.Update(model.Snapshot{})
	m.Finish(model.Snapshot{})
	for _, r := range []*recorder{a, b} {
		if strings.Join(r.calls, ",") != "start,update,finish" {
			t.Fatalf("calls = %v", r.calls)
		}
	}
}

func TestTitleConcat(t *testing.T) {
	spec := model.NewJobSpec("j", model.KindConcat, []string{"a", "b", "c"}, "/out/movie.mkv", 0, 0, 0)
	if got := Title(spec); got != "Joining 3 files into movie.mkv" {
		t.Fatalf("title = %q", got)
	}
}

func typeName(v any) string {
	return fmt.Sprintf("%T", v)
}
