package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"splitcat/internal/jobspec"
	"splitcat/internal/runner"
)

// fakeSplit writes the whole source into the first part and empty files for
// the rest, following the split -d -a W -n N SRC PREFIX argument order.
const fakeSplit = `#!/usr/bin/env bash
set -euo pipefail
width="$3"; n="$5"; src="$6"; prefix="$7"
for ((i=0; i<n; i++)); do
  name=$(printf "%s%0${width}d" "$prefix" "$i")
  if [ "$i" -eq 0 ]; then cat "$src" > "$name"; else : > "$name"; fi
done
`

type harness struct {
	dir      string
	config   string
	stateDir string
}

func newHarness(t *testing.T) harness {
	t.Helper()
	tmp := t.TempDir()
	fakeBin := filepath.Join(tmp, "bin")
	if err := os.MkdirAll(fakeBin, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(fakeBin, "split"), []byte(fakeSplit), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PATH", fakeBin+":"+os.Getenv("PATH"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(tmp, "state-home"))
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmp, "config-home"))

	h := harness{
		dir:      filepath.Join(tmp, "work"),
		config:   filepath.Join(tmp, "settings.json"),
		stateDir: filepath.Join(tmp, "state"),
	}
	if err := os.MkdirAll(h.dir, 0o755); err != nil {
		t.Fatal(err)
	}
	return h
}

func (h harness) execute(stdin string, args ...string) (string, string, error) {
	var out, errOut bytes.Buffer
	root := NewRootCmd(strings.NewReader(stdin), &out, &errOut)
	full := append([]string{"--config", h.config, "--state-dir", h.stateDir}, args...)
	root.SetArgs(full)
	err := root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func (h harness) writeSource(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(h.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func requireCat(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}
}

func TestHarnessSplitThenConcatRoundTrip(t *testing.T) {
	requireCat(t)
	h := newHarness(t)
	data := bytes.Repeat([]byte("splitcat-"), 500)
	src := h.writeSource(t, "movie.mkv", data)

	stdout, stderr, err := h.execute("", "split", src, "--chunks", "3", "--progress", "none")
	if err != nil {
		t.Fatalf("split failed: %v\nstderr: %s", err, stderr)
	}
	if !strings.Contains(stdout, "split successfully into 3 parts") {
		t.Fatalf("unexpected split output: %q", stdout)
	}
	for i := 0; i < 3; i++ {
		part := filepath.Join(h.dir, fmt.Sprintf("movie.mkv.part%d.split", i))
		if _, err := os.Stat(part); err != nil {
			t.Fatalf("expected marked part %s: %v", part, err)
		}
	}

	restored := filepath.Join(h.dir, "restored.mkv")
	_, stderr, err = h.execute("", "concat", filepath.Join(h.dir, "movie.mkv.part1.split"), "--output", restored, "--progress", "plain")
	if err != nil {
		t.Fatalf("concat failed: %v\nstderr: %s", err, stderr)
	}
	got, err := os.ReadFile(restored)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("restored file differs: got %d bytes want %d", len(got), len(data))
	}

	stdout, _, err = h.execute("", "--json", "history")
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	var hist struct {
		Jobs []struct {
			Kind  string `json:"kind"`
			State string `json:"state"`
		} `json:"jobs"`
	}
	if err := json.Unmarshal([]byte(stdout), &hist); err != nil {
		t.Fatalf("history json: %v\n%s", err, stdout)
	}
	if len(hist.Jobs) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(hist.Jobs))
	}
	if hist.Jobs[0].Kind != "concat" || hist.Jobs[1].Kind != "split" {
		t.Fatalf("expected newest first, got %+v", hist.Jobs)
	}
}

func TestHarnessSplitJSONOutput(t *testing.T) {
	h := newHarness(t)
	src := h.writeSource(t, "data.bin", []byte("0123456789"))

	stdout, _, err := h.execute("", "--json", "split", src, "-n", "2", "--progress", "none")
	if err != nil {
		t.Fatalf("split failed: %v", err)
	}
	var out struct {
		State        string   `json:"state"`
		TotalBytes   uint64   `json:"total_bytes"`
		CurrentBytes uint64   `json:"current_bytes"`
		Artifacts    []string `json:"artifacts"`
		Error        string   `json:"error"`
	}
	if err := json.Unmarshal([]byte(stdout), &out); err != nil {
		t.Fatalf("decode: %v\n%s", err, stdout)
	}
	if out.State != "finished" || out.Error != "" {
		t.Fatalf("unexpected result: %+v", out)
	}
	if out.TotalBytes != 10 || out.CurrentBytes != 10 {
		t.Fatalf("expected 10/10 bytes, got %d/%d", out.CurrentBytes, out.TotalBytes)
	}
	if len(out.Artifacts) != 2 {
		t.Fatalf("expected 2 artifacts, got %v", out.Artifacts)
	}
}

func TestHarnessExistingPartsNeedConfirmation(t *testing.T) {
	h := newHarness(t)
	src := h.writeSource(t, "data.bin", []byte("abcdef"))
	stale := h.writeSource(t, "data.bin.part0", []byte("stale"))

	_, stderr, err := h.execute("n\n", "split", src, "--progress", "none")
	if !errors.Is(err, runner.ErrDestinationExists) {
		t.Fatalf("expected ErrDestinationExists, got %v", err)
	}
	if !strings.Contains(stderr, "Continue? [y/N]") {
		t.Fatalf("expected confirmation prompt, got %q", stderr)
	}
	if _, err := os.Stat(stale); err != nil {
		t.Fatalf("declined prompt must keep existing file: %v", err)
	}

	if _, _, err := h.execute("y\n", "split", src, "--progress", "none"); err != nil {
		t.Fatalf("confirmed split failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(h.dir, "data.bin.part0.split")); err != nil {
		t.Fatalf("expected marked part after confirmed split: %v", err)
	}
}

func TestHarnessYesSkipsPrompt(t *testing.T) {
	h := newHarness(t)
	src := h.writeSource(t, "data.bin", []byte("abcdef"))
	h.writeSource(t, "data.bin.part1", []byte("stale"))

	_, stderr, err := h.execute("", "split", src, "--yes", "--progress", "none")
	if err != nil {
		t.Fatalf("split --yes failed: %v", err)
	}
	if strings.Contains(stderr, "Continue?") {
		t.Fatalf("--yes must not prompt, got %q", stderr)
	}
}

func TestHarnessRejectsInvalidChunkCounts(t *testing.T) {
	h := newHarness(t)
	src := h.writeSource(t, "data.bin", []byte("abc"))

	for _, n := range []string{"1", "0", "100"} {
		_, _, err := h.execute("", "split", src, "--chunks", n, "--progress", "none")
		if !errors.Is(err, jobspec.ErrInvalidArgument) {
			t.Fatalf("chunks=%s: expected ErrInvalidArgument, got %v", n, err)
		}
	}
}

func TestHarnessSplitMissingSource(t *testing.T) {
	h := newHarness(t)
	_, _, err := h.execute("", "split", filepath.Join(h.dir, "nope.bin"))
	if err == nil || !strings.Contains(err.Error(), "source not found") {
		t.Fatalf("expected source not found, got %v", err)
	}
}

func TestHarnessConcatRequiresOutputForExplicitSources(t *testing.T) {
	h := newHarness(t)
	a := h.writeSource(t, "a.txt", []byte("a"))
	b := h.writeSource(t, "b.txt", []byte("b"))

	_, _, err := h.execute("", "concat", a, b)
	if !errors.Is(err, jobspec.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestHarnessConcatExplicitSources(t *testing.T) {
	requireCat(t)
	h := newHarness(t)
	a := h.writeSource(t, "a.txt", []byte("alpha-"))
	b := h.writeSource(t, "b.txt", []byte("beta"))
	out := filepath.Join(h.dir, "ab.txt")

	if _, stderr, err := h.execute("", "concat", a, b, "-o", out, "--progress", "none"); err != nil {
		t.Fatalf("concat failed: %v\n%s", err, stderr)
	}
	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "alpha-beta" {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestHarnessInvalidProgressMode(t *testing.T) {
	h := newHarness(t)
	src := h.writeSource(t, "data.bin", []byte("abc"))
	_, _, err := h.execute("", "split", src, "--progress", "fancy")
	if err == nil || !strings.Contains(err.Error(), "invalid progress mode") {
		t.Fatalf("expected invalid progress mode error, got %v", err)
	}
}

func TestHarnessSettingsSetAndShow(t *testing.T) {
	h := newHarness(t)

	if _, _, err := h.execute("", "settings", "set", "poll_interval_ms", "50"); err != nil {
		t.Fatalf("settings set failed: %v", err)
	}
	stdout, _, err := h.execute("", "settings", "show")
	if err != nil {
		t.Fatalf("settings show failed: %v", err)
	}
	if !strings.Contains(stdout, "poll_interval_ms: 50") {
		t.Fatalf("expected updated poll interval, got %q", stdout)
	}

	if _, _, err := h.execute("", "settings", "set", "no_such_key", "1"); err == nil {
		t.Fatal("expected unknown setting error")
	}
}

func TestHarnessDoctor(t *testing.T) {
	h := newHarness(t)

	stdout, _, err := h.execute("", "doctor")
	if _, lookErr := exec.LookPath("cat"); lookErr == nil {
		if err != nil {
			t.Fatalf("doctor failed: %v\n%s", err, stdout)
		}
		if !strings.Contains(stdout, "doctor: all checks passed") {
			t.Fatalf("unexpected doctor output %q", stdout)
		}
	}

	if _, _, err := h.execute("", "settings", "set", "split_binary", "splitcat-missing-split"); err != nil {
		t.Fatal(err)
	}
	stdout, _, err = h.execute("", "doctor")
	if err == nil || err.Error() != "doctor checks failed" {
		t.Fatalf("expected doctor failure, got %v", err)
	}
	if !strings.Contains(stdout, "splitcat-missing-split: fail (not found on PATH)") {
		t.Fatalf("unexpected doctor output %q", stdout)
	}
}

func TestExitCode(t *testing.T) {
	if got := ExitCode(nil); got != 0 {
		t.Fatalf("nil: got %d", got)
	}
	if got := ExitCode(fmt.Errorf("run: %w", runner.ErrCanceled)); got != 130 {
		t.Fatalf("canceled: got %d", got)
	}
	if got := ExitCode(errors.New("boom")); got != 1 {
		t.Fatalf("other: got %d", got)
	}
}

func TestRunSettingsShowThroughEntryPoint(t *testing.T) {
	h := newHarness(t)
	if err := Run([]string{"--config", h.config, "settings", "show"}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
}
