package supervisor

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"splitcat/internal/model"
)

func writeFakeBin(t *testing.T, name, script string) string {
	t.Helper()
	bin := filepath.Join(t.TempDir(), "bin")
	if err := os.MkdirAll(bin, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(bin, name), []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PATH", bin+":"+os.Getenv("PATH"))
	return bin
}

func waitDone(t *testing.T, h *Handle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(10 * time.Second):
		t.Fatalf("child did not exit")
	}
}

func splitSpec(dest string) model.JobSpec {
	return model.NewJobSpec("job1", model.KindSplit, []string{"/src/file.bin"}, dest, 4, 1, 100)
}

func TestLaunchSplitPassesArgumentVector(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args.txt")
	writeFakeBin(t, "split", `#!/usr/bin/env bash
printf '%s\n' "$@" > "`+argsFile+`"
echo "warning from split" >&2
exit 0
`)

	sup := New(Options{Logger: zerolog.Nop()})
	h, err := sup.LaunchSplit(splitSpec("/dst/file.bin.part"))
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	waitDone(t, h)

	if h.ExitCode() != 0 {
		t.Fatalf("exit code = %d", h.ExitCode())
	}
	raw, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatal(err)
	}
	got := strings.Fields(string(raw))
	want := []string{"-d", "-a", "1", "-n", "4", "/src/file.bin", "/dst/file.bin.part"}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Fatalf("argv = %v, want %v", got, want)
	}
	if !strings.Contains(h.Diagnostics(), "warning from split") {
		t.Fatalf("diagnostics = %q", h.Diagnostics())
	}
	if h.Args()[0] != "split" {
		t.Fatalf("args = %v", h.Args())
	}
}

func TestLaunchSplitNonZeroExit(t *testing.T) {
	writeFakeBin(t, "split", `#!/usr/bin/env bash
echo "split: cannot open" >&2
exit 3
`)
	h, err := New(Options{}).LaunchSplit(splitSpec("/dst/x"))
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	waitDone(t, h)
	if h.ExitCode() != 3 {
		t.Fatalf("exit code = %d, want 3", h.ExitCode())
	}
	if !strings.Contains(h.Diagnostics(), "cannot open") {
		t.Fatalf("diagnostics = %q", h.Diagnostics())
	}
}

func TestLaunchConcatRedirectsStdoutToTruncatedDestination(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")
	dest := filepath.Join(dir, "out")
	if err := os.WriteFile(a, []byte("hello "), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(b, []byte("world"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dest, []byte(strings.Repeat("stale", 100)), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}

	spec := model.NewJobSpec("job2", model.KindConcat, []string{a, b}, dest, 0, 0, 11)
	h, err := New(Options{}).Launch(spec)
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	waitDone(t, h)
	if h.ExitCode() != 0 {
		t.Fatalf("exit code = %d (%s)", h.ExitCode(), h.Diagnostics())
	}
	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello world" {
		t.Fatalf("destination = %q", got)
	}
}

func TestLaunchMissingBinaryIsLaunchFailure(t *testing.T) {
	sup := New(Options{SplitBinary: "splitcat-no-such-binary"})
	_, err := sup.LaunchSplit(splitSpec("/dst/x"))
	if err == nil {
		t.Fatal("expected launch error")
	}
	if !errors.Is(err, ErrLaunchFailure) {
		t.Fatalf("expected ErrLaunchFailure, got %v", err)
	}
	var le *LaunchError
	if !errors.As(err, &le) {
		t.Fatalf("expected *LaunchError, got %T", err)
	}
}

func TestLaunchConcatUnwritableDestination(t *testing.T) {
	spec := model.NewJobSpec("job3", model.KindConcat, []string{"/a"}, filepath.Join(t.TempDir(), "missing", "out"), 0, 0, 0)
	if _, err := New(Options{}).LaunchConcat(spec); !errors.Is(err, ErrLaunchFailure) {
		t.Fatalf("expected ErrLaunchFailure, got %v", err)
	}
}

func TestLaunchConcatMissingBinaryRemovesDestination(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.bin")
	spec := model.NewJobSpec("job4", model.KindConcat, []string{"/a", "/b"}, dest, 0, 0, 10)
	_, err := New(Options{CatBinary: "splitcat-no-such-cat"}).LaunchConcat(spec)
	if !errors.Is(err, ErrLaunchFailure) {
		t.Fatalf("expected ErrLaunchFailure, got %v", err)
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Fatalf("destination should be removed after failed launch, stat err = %v", statErr)
	}
}

func TestTerminateStopsChild(t *testing.T) {
	writeFakeBin(t, "split", `#!/usr/bin/env bash
exec sleep 30
`)
	h, err := New(Options{KillGrace: 0}).LaunchSplit(splitSpec("/dst/x"))
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	start := time.Now()
	h.Terminate()
	if time.Since(start) > time.Second {
		t.Fatalf("terminate blocked")
	}
	waitDone(t, h)
	if h.ExitCode() == 0 {
		t.Fatalf("expected non-zero exit after termination")
	}
	// No-op after exit.
	h.Terminate()
}

func TestTerminateEscalatesToKill(t *testing.T) {
	writeFakeBin(t, "split", `#!/usr/bin/env bash
trap '' TERM
exec 1>/dev/null 2>/dev/null
while true; do sleep 0.05; done
`)
	h, err := New(Options{KillGrace: 200 * time.Millisecond}).LaunchSplit(splitSpec("/dst/x"))
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	h.Terminate()
	waitDone(t, h)
	if h.ExitCode() == 0 {
		t.Fatalf("expected non-zero exit after kill")
	}
}

func TestCheckDependencies(t *testing.T) {
	bin := writeFakeBin(t, "split", "#!/usr/bin/env bash\nexit 0\n")
	t.Setenv("PATH", bin)

	sup := New(Options{})
	report := sup.DependencyStatus()
	if !report.SplitFound || report.CatFound {
		t.Fatalf("unexpected report: %+v", report)
	}
	if err := sup.CheckDependencies(model.KindSplit); err != nil {
		t.Fatalf("split should resolve: %v", err)
	}
	if err := sup.CheckDependencies(model.KindConcat); err == nil {
		t.Fatal("expected missing cat")
	}
}

func TestLimitedBufferKeepsPrefix(t *testing.T) {
	b := &limitedBuffer{max: 5}
	n, err := b.Write([]byte("abc"))
	if n != 3 || err != nil {
		t.Fatalf("write = %d, %v", n, err)
	}
	n, _ = b.Write([]byte("defgh"))
	if n != 5 {
		t.Fatalf("write should report full length, got %d", n)
	}
	if b.String() != "abcde" {
		t.Fatalf("buffer = %q", b.String())
	}
}
