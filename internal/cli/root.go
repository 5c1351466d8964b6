// Package cli implements the splitcat command line.
package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"splitcat/internal/config"
	"splitcat/internal/logging"
	"splitcat/internal/runner"
)

// Run executes the CLI with args. SIGINT and SIGTERM cancel the running job.
func Run(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd(os.Stdin, os.Stdout, os.Stderr)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

type app struct {
	configPath string
	stateDir   string
	verbose    bool
	jsonOut    bool

	settings config.Settings
	log      zerolog.Logger

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func NewRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	a := &app{stdin: in, stdout: out, stderr: errOut, log: zerolog.Nop()}

	root := &cobra.Command{
		Use:   "splitcat",
		Short: "Split large files into parts and join them back, with live progress",
		Long: `splitcat drives the system split and cat tools and reports progress,
elapsed time and ETA by watching the files they write.

Finished split parts get a ".split" marker extension; pass any marked part
to "splitcat concat" to rebuild the original file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logging.Init()
			a.log = logging.New(a.stderr, logging.Options{Verbose: a.verbose, JSON: a.jsonOut})
			settings, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			a.settings = settings
			return nil
		},
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "settings file path (default "+config.DefaultPath()+")")
	root.PersistentFlags().StringVar(&a.stateDir, "state-dir", "", "directory for job history and locks (overrides settings)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "verbose output (shows debug messages)")
	root.PersistentFlags().BoolVar(&a.jsonOut, "json", false, "print JSON output")

	root.AddCommand(
		a.newSplitCmd(),
		a.newConcatCmd(),
		a.newHistoryCmd(),
		a.newDoctorCmd(),
		a.newSettingsCmd(),
	)
	return root
}

// ExitCode maps a Run error to a process exit status: 130 for a canceled
// job, 1 for any other failure.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, runner.ErrCanceled), errors.Is(err, context.Canceled):
		return 130
	default:
		return 1
	}
}

func (a *app) resolvedStateDir() string {
	if dir := strings.TrimSpace(a.stateDir); dir != "" {
		return dir
	}
	return a.settings.ResolvedStateDir()
}
