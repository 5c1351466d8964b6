// Package runner drives one job end to end: preflight checks, the
// controller run with live rendering, finalization of artifacts and the
// history record.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"splitcat/internal/config"
	"splitcat/internal/controller"
	"splitcat/internal/fsprobe"
	"splitcat/internal/model"
	"splitcat/internal/render"
	"splitcat/internal/runstore"
	"splitcat/internal/supervisor"
)

var (
	ErrDestinationExists = errors.New("destination already exists")
	ErrCanceled          = errors.New("job canceled")
	ErrSourceOverlap     = errors.New("destination overlaps a source")
)

type Options struct {
	Spec     model.JobSpec
	StateDir string
	Settings config.Settings
	// Overwrite removes existing artifacts without asking.
	Overwrite bool
	// Confirm is asked about existing artifacts when Overwrite is false.
	// A nil Confirm refuses.
	Confirm  func(existing []string) (bool, error)
	Renderer render.Renderer
	Logger   zerolog.Logger
	// Launcher replaces the process supervisor; the dependency check is
	// skipped when set.
	Launcher controller.Launcher
}

type Result struct {
	JobID        string        `json:"job_id"`
	Kind         model.Kind    `json:"kind"`
	State        model.State   `json:"state"`
	Destination  string        `json:"destination"`
	TotalBytes   uint64        `json:"total_bytes"`
	CurrentBytes uint64        `json:"current_bytes"`
	ExitCode     int           `json:"exit_code"`
	Elapsed      time.Duration `json:"elapsed_ns"`
	Artifacts    []string      `json:"artifacts,omitempty"`
	Removed      []string      `json:"removed,omitempty"`
	Diagnostics  string        `json:"diagnostics,omitempty"`
}

// Run executes opts.Spec. A canceled job returns ErrCanceled and a failed
// one *controller.AbnormalExitError, both alongside a populated Result.
func Run(ctx context.Context, opts Options) (Result, error) {
	spec := opts.Spec
	settings := config.Normalize(opts.Settings)
	log := opts.Logger.With().Str("job_id", spec.ID).Str("kind", string(spec.Kind)).Logger()
	renderer := opts.Renderer
	if renderer == nil {
		renderer = render.Nop{}
	}
	stateDir := strings.TrimSpace(opts.StateDir)
	if stateDir == "" {
		stateDir = settings.ResolvedStateDir()
	}

	if err := checkOverlap(spec); err != nil {
		return Result{}, err
	}

	launcher := opts.Launcher
	if launcher == nil {
		sup := supervisor.New(supervisor.Options{
			SplitBinary: settings.SplitBinary,
			CatBinary:   settings.CatBinary,
			KillGrace:   settings.KillGrace(),
			Logger:      opts.Logger,
		})
		if err := sup.CheckDependencies(spec.Kind); err != nil {
			return Result{}, err
		}
		launcher = supervisorLauncher(sup)
	}

	lock, err := runstore.AcquireDestinationLock(stateDir, spec.Destination)
	if err != nil {
		return Result{}, err
	}
	defer func() {
		_ = lock.Release()
	}()

	if err := clearExisting(spec, opts, log); err != nil {
		return Result{}, err
	}

	if err := fsprobe.CheckSpace(filepath.Dir(spec.Destination), spec.TotalBytes, settings.SpaceMargin); err != nil {
		return Result{}, err
	}

	ctrl := controller.New(launcher, controller.Options{
		Interval: settings.PollInterval(),
		Logger:   opts.Logger,
	})
	if err := ctrl.Start(spec); err != nil {
		return Result{}, err
	}
	updates, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()

	renderer.Start(spec, func() { ctrl.Cancel() })
	final := pump(ctx, ctrl, updates, renderer, log)
	renderer.Finish(final)

	out, ok := ctrl.Acknowledge()
	if !ok {
		return Result{}, fmt.Errorf("job %s did not reach a terminal state", spec.ID)
	}

	res := Result{
		JobID:        spec.ID,
		Kind:         spec.Kind,
		State:        out.State,
		Destination:  spec.Destination,
		TotalBytes:   out.Snapshot.TotalBytes,
		CurrentBytes: out.Snapshot.CurrentBytes,
		ExitCode:     out.ExitCode,
		Elapsed:      out.Snapshot.Elapsed(out.Snapshot.EndTime),
		Diagnostics:  out.Diagnostics,
	}
	finalizeErr := finalize(spec, out.State, settings.MarkerExtension, &res)
	if finalizeErr != nil {
		log.Warn().Err(finalizeErr).Msg("finalize artifacts")
	}

	var runErr error
	switch out.State {
	case model.StateCanceled:
		runErr = ErrCanceled
	case model.StateFailed:
		runErr = out.Err
	}
	runErr = errors.Join(runErr, finalizeErr)

	rec := runstore.JobRecord{
		ID:           spec.ID,
		Kind:         spec.Kind,
		Sources:      spec.Sources(),
		Destination:  spec.Destination,
		ChunkCount:   spec.ChunkCount,
		TotalBytes:   res.TotalBytes,
		CurrentBytes: res.CurrentBytes,
		State:        res.State,
		ExitCode:     res.ExitCode,
		Diagnostics:  res.Diagnostics,
		StartedAt:    out.Snapshot.StartTime.UTC(),
		EndedAt:      out.Snapshot.EndTime.UTC(),
		Artifacts:    res.Artifacts,
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	if err := runstore.SaveJobRecord(stateDir, rec); err != nil {
		log.Warn().Err(err).Msg("save job history")
	}

	return res, runErr
}

// pump forwards snapshots to the renderer until the terminal one arrives.
// Context cancellation is turned into a job cancel exactly once.
func pump(ctx context.Context, ctrl *controller.Controller, updates <-chan model.Snapshot, r render.Renderer, log zerolog.Logger) model.Snapshot {
	done := ctx.Done()
	for {
		select {
		case s := <-updates:
			if s.State.Terminal() {
				return s
			}
			if s.State == model.StateRunning {
				r.Update(s)
			}
		case <-done:
			log.Info().Msg("interrupt received, canceling job")
			ctrl.Cancel()
			done = nil
		}
	}
}

func supervisorLauncher(sup *supervisor.Supervisor) controller.Launcher {
	return controller.LauncherFunc(func(spec model.JobSpec) (controller.Process, error) {
		h, err := sup.Launch(spec)
		if err != nil {
			return nil, err
		}
		return h, nil
	})
}

// checkOverlap rejects jobs whose output would match or clobber an input.
func checkOverlap(spec model.JobSpec) error {
	dest := cleanAbs(spec.Destination)
	switch spec.Kind {
	case model.KindSplit:
		src := cleanAbs(spec.Source())
		if filepath.Dir(src) == filepath.Dir(dest) && strings.HasPrefix(filepath.Base(src), filepath.Base(dest)) {
			return fmt.Errorf("%w: part prefix %s matches source %s", ErrSourceOverlap, filepath.Base(dest), src)
		}
	case model.KindConcat:
		for _, s := range spec.Sources() {
			if cleanAbs(s) == dest {
				return fmt.Errorf("%w: %s is also a source", ErrSourceOverlap, spec.Destination)
			}
		}
	}
	return nil
}

func cleanAbs(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return filepath.Clean(p)
	}
	return abs
}

// ExistingArtifacts lists files a run of spec would overwrite: any entry
// with the part prefix for a split, the output file for a concat.
func ExistingArtifacts(spec model.JobSpec) ([]string, error) {
	switch spec.Kind {
	case model.KindSplit:
		return fsprobe.ListPrefix(filepath.Dir(spec.Destination), filepath.Base(spec.Destination))
	case model.KindConcat:
		if fsprobe.Exists(spec.Destination) {
			return []string{spec.Destination}, nil
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported job kind %q", spec.Kind)
	}
}

func clearExisting(spec model.JobSpec, opts Options, log zerolog.Logger) error {
	existing, err := ExistingArtifacts(spec)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		return nil
	}
	allowed := opts.Overwrite
	if !allowed && opts.Confirm != nil {
		allowed, err = opts.Confirm(existing)
		if err != nil {
			return err
		}
	}
	if !allowed {
		return fmt.Errorf("%w: %s", ErrDestinationExists, strings.Join(existing, ", "))
	}

	var removed []string
	switch spec.Kind {
	case model.KindSplit:
		removed, err = fsprobe.RemovePrefix(filepath.Dir(spec.Destination), filepath.Base(spec.Destination))
	case model.KindConcat:
		if err = os.Remove(spec.Destination); err == nil {
			removed = []string{spec.Destination}
		}
	}
	if err != nil {
		return fmt.Errorf("remove existing artifacts: %w", err)
	}
	log.Info().Strs("removed", removed).Msg("removed existing artifacts")
	return nil
}

// finalize marks finished parts and removes partial output otherwise.
func finalize(spec model.JobSpec, state model.State, marker string, res *Result) error {
	dir := filepath.Dir(spec.Destination)
	prefix := filepath.Base(spec.Destination)
	var err error
	switch {
	case state == model.StateFinished && spec.Kind == model.KindSplit:
		res.Artifacts, err = fsprobe.AppendExtension(dir, prefix, marker)
		if err != nil {
			return fmt.Errorf("mark finished parts: %w", err)
		}
	case state == model.StateFinished:
		res.Artifacts = []string{spec.Destination}
	case spec.Kind == model.KindSplit:
		res.Removed, err = fsprobe.RemovePrefix(dir, prefix)
		if err != nil {
			return fmt.Errorf("remove partial parts: %w", err)
		}
	default:
		err = os.Remove(spec.Destination)
		if os.IsNotExist(err) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("remove partial output: %w", err)
		}
		res.Removed = []string{spec.Destination}
	}
	return nil
}
