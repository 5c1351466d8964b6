// Package controller owns the lifecycle of one split or concat job at a time:
// launch, progress publication, cancellation and the terminal outcome.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"splitcat/internal/model"
	"splitcat/internal/monitor"
)

// Process is the live child as the controller sees it.
type Process interface {
	Done() <-chan struct{}
	ExitCode() int
	Diagnostics() string
	// Terminate requests a stop and must not block.
	Terminate()
}

type Launcher interface {
	Launch(spec model.JobSpec) (Process, error)
}

type LauncherFunc func(spec model.JobSpec) (Process, error)

func (f LauncherFunc) Launch(spec model.JobSpec) (Process, error) { return f(spec) }

type Options struct {
	// Interval between filesystem polls; monitor.DefaultInterval when zero.
	Interval time.Duration
	Logger   zerolog.Logger
	Now      func() time.Time
	// Measurer builds the progress probe for a job; monitor.ForSpec when nil.
	Measurer func(spec model.JobSpec) monitor.Measurer
}

// Outcome is what a job ended with.
type Outcome struct {
	Spec        model.JobSpec
	State       model.State
	ExitCode    int
	Diagnostics string
	// Err is an *AbnormalExitError for Failed, nil otherwise.
	Err      error
	Snapshot model.Snapshot
}

type run struct {
	spec            model.JobSpec
	proc            Process
	cancelRequested bool
	done            chan struct{}
	outcome         Outcome
}

type Controller struct {
	launcher    Launcher
	interval    time.Duration
	log         zerolog.Logger
	now         func() time.Time
	measurerFor func(model.JobSpec) monitor.Measurer

	mu      sync.Mutex
	snap    model.Snapshot
	current *run
	lastRun *run
	subs    map[int]chan model.Snapshot
	nextSub int
}

func New(launcher Launcher, opts Options) *Controller {
	c := &Controller{
		launcher:    launcher,
		interval:    opts.Interval,
		log:         opts.Logger.With().Str("component", "controller").Logger(),
		now:         opts.Now,
		measurerFor: opts.Measurer,
		snap:        model.Snapshot{State: model.StateIdle},
		subs:        map[int]chan model.Snapshot{},
	}
	if c.interval <= 0 {
		c.interval = monitor.DefaultInterval
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.measurerFor == nil {
		c.measurerFor = monitor.ForSpec
	}
	return c
}

// Start launches spec from Idle. It fails with ErrJobAlreadyRunning while
// another job is live and with ErrNotAcknowledged while a terminal outcome
// awaits Acknowledge, leaving the current snapshot untouched in both cases.
func (c *Controller) Start(spec model.JobSpec) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.snap.State == model.StateRunning {
		return ErrJobAlreadyRunning
	}
	if c.snap.State.Terminal() {
		return ErrNotAcknowledged
	}
	if err := model.Transition(c.snap.State, model.StateRunning); err != nil {
		return err
	}

	proc, err := c.launcher.Launch(spec)
	if err != nil {
		if !errors.Is(err, ErrLaunchFailure) {
			err = fmt.Errorf("%w: %w", ErrLaunchFailure, err)
		}
		c.log.Error().Err(err).Str("job_id", spec.ID).Msg("launch failed")
		return err
	}
	if proc == nil {
		return fmt.Errorf("%w: launcher returned no process", ErrLaunchFailure)
	}

	r := &run{spec: spec, proc: proc, done: make(chan struct{})}
	c.current = r
	c.snap = model.Snapshot{
		JobID:      spec.ID,
		Kind:       spec.Kind,
		State:      model.StateRunning,
		TotalBytes: spec.TotalBytes,
		StartTime:  c.now(),
	}
	c.broadcastLocked()
	c.log.Info().
		Str("job_id", spec.ID).
		Str("kind", string(spec.Kind)).
		Uint64("total_bytes", spec.TotalBytes).
		Msg("job started")

	go c.supervise(r)
	return nil
}

func (c *Controller) supervise(r *run) {
	measure := c.measurerFor(r.spec)
	monitor.Run(r.proc.Done(), c.interval, measure, func(n uint64) {
		c.publishBytes(r, n)
	})
	c.finish(r)
}

// publishBytes keeps CurrentBytes non-decreasing: a failed probe reads as
// zero and must not move the published value backwards.
func (c *Controller) publishBytes(r *run, n uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != r || c.snap.State != model.StateRunning {
		return
	}
	if n <= c.snap.CurrentBytes {
		return
	}
	c.snap.CurrentBytes = n
	c.broadcastLocked()
}

func (c *Controller) finish(r *run) {
	c.mu.Lock()
	defer c.mu.Unlock()

	code := r.proc.ExitCode()
	diag := r.proc.Diagnostics()

	var next model.State
	var runErr error
	switch {
	case r.cancelRequested:
		next = model.StateCanceled
	case code == 0:
		next = model.StateFinished
		if c.snap.CurrentBytes < c.snap.TotalBytes {
			c.snap.CurrentBytes = c.snap.TotalBytes
		}
	default:
		next = model.StateFailed
		runErr = &AbnormalExitError{ExitCode: code, Diagnostics: diag}
	}

	if err := model.Transition(c.snap.State, next); err != nil {
		c.log.Error().Err(err).Str("job_id", r.spec.ID).Msg("unexpected job state")
	}
	c.snap.State = next
	c.snap.EndTime = c.now()
	c.snap.ExitCode = code
	c.current = nil

	r.outcome = Outcome{
		Spec:        r.spec,
		State:       next,
		ExitCode:    code,
		Diagnostics: diag,
		Err:         runErr,
		Snapshot:    c.snap,
	}
	c.lastRun = r
	close(r.done)
	c.broadcastLocked()

	ev := c.log.Info()
	if next == model.StateFailed {
		ev = c.log.Warn()
	}
	ev.Str("job_id", r.spec.ID).
		Str("state", string(next)).
		Int("exit_code", code).
		Uint64("current_bytes", c.snap.CurrentBytes).
		Dur("elapsed", c.snap.Elapsed(c.snap.EndTime)).
		Msg("job ended")
}

// Cancel asks the live child to stop and returns at once. The job reaches
// Canceled when the exit is observed. It reports whether a job was live.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.current
	if r == nil {
		return false
	}
	if !r.cancelRequested {
		r.cancelRequested = true
		c.log.Info().Str("job_id", r.spec.ID).Msg("cancel requested")
	}
	r.proc.Terminate()
	return true
}

// Acknowledge moves a terminal job back to Idle and returns its outcome.
func (c *Controller) Acknowledge() (Outcome, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.snap.State.Terminal() || c.lastRun == nil {
		return Outcome{}, false
	}
	if err := model.Transition(c.snap.State, model.StateIdle); err != nil {
		return Outcome{}, false
	}
	out := c.lastRun.outcome
	c.lastRun = nil
	// Subscribers keep the terminal snapshot; only readers of Snapshot see Idle.
	c.snap = model.Snapshot{State: model.StateIdle}
	return out, true
}

// Wait blocks until the live job ends or ctx is done. With no live job it
// returns the unacknowledged outcome, or ErrNoJob.
func (c *Controller) Wait(ctx context.Context) (Outcome, error) {
	c.mu.Lock()
	r := c.current
	if r == nil {
		last := c.lastRun
		c.mu.Unlock()
		if last == nil {
			return Outcome{}, ErrNoJob
		}
		return last.outcome, nil
	}
	c.mu.Unlock()

	select {
	case <-r.done:
		c.mu.Lock()
		defer c.mu.Unlock()
		return r.outcome, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

func (c *Controller) Snapshot() model.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

func (c *Controller) State() model.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap.State
}

// Subscribe returns a channel holding the latest snapshot. Slow readers
// skip intermediate values but always see the most recent one, including
// the terminal snapshot.
func (c *Controller) Subscribe() (<-chan model.Snapshot, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	ch := make(chan model.Snapshot, 1)
	ch <- c.snap
	c.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.subs, id)
		})
	}
}

func (c *Controller) broadcastLocked() {
	s := c.snap
	for _, ch := range c.subs {
		select {
		case ch <- s:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s:
		default:
		}
	}
}
