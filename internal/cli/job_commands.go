package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"splitcat/internal/broadcast"
	"splitcat/internal/config"
	"splitcat/internal/eta"
	"splitcat/internal/fsprobe"
	"splitcat/internal/jobspec"
	"splitcat/internal/model"
	"splitcat/internal/render"
	"splitcat/internal/runner"
)

type jobFlags struct {
	yes      bool
	progress string
	wsAddr   string
}

func (f *jobFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVarP(&f.yes, "yes", "y", false, "overwrite existing output without asking")
	cmd.Flags().StringVar(&f.progress, "progress", "", "progress display: "+strings.Join(config.ProgressModes(), ", ")+" (default from settings)")
	cmd.Flags().StringVar(&f.wsAddr, "ws-addr", "", "also stream progress over WebSocket at this address (e.g. 127.0.0.1:8765)")
}

func (a *app) newSplitCmd() *cobra.Command {
	var (
		chunks   int
		destDir  string
		template string
		flags    jobFlags
	)
	cmd := &cobra.Command{
		Use:   "split <source>",
		Short: "Split a file into numbered parts",
		Example: `  splitcat split movie.mkv --chunks 4
  splitcat split backup.tar --chunks 10 --dest-dir /mnt/usb --yes`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source := strings.TrimSpace(args[0])
			if !fsprobe.Exists(source) {
				return fmt.Errorf("source not found: %s", source)
			}
			if chunks > jobspec.MaxChunkCount {
				return fmt.Errorf("%w: chunk count must be between %d and %d", jobspec.ErrInvalidArgument, jobspec.MinChunkCount, jobspec.MaxChunkCount)
			}
			spec, err := jobspec.BuildSplit(source, splitTemplate(source, destDir, template, a.settings.TemplateSuffix), chunks)
			if err != nil {
				return err
			}
			return a.runJob(cmd.Context(), spec, flags)
		},
	}
	cmd.Flags().IntVarP(&chunks, "chunks", "n", jobspec.MinChunkCount, fmt.Sprintf("number of parts (%d-%d)", jobspec.MinChunkCount, jobspec.MaxChunkCount))
	cmd.Flags().StringVarP(&destDir, "dest-dir", "d", "", "directory for the parts (default: next to the source)")
	cmd.Flags().StringVar(&template, "template", "", "part name prefix (default: <source name>"+config.DefaultTemplateSuffix+")")
	flags.register(cmd)
	return cmd
}

// splitTemplate resolves the part prefix. A bare template name lands in
// destDir, or next to the source when destDir is empty.
func splitTemplate(source, destDir, template, suffix string) string {
	template = strings.TrimSpace(template)
	if template == "" {
		return jobspec.DefaultSplitTemplate(source, destDir, suffix)
	}
	if strings.ContainsRune(template, filepath.Separator) {
		return template
	}
	dir := strings.TrimSpace(destDir)
	if dir == "" {
		dir = filepath.Dir(source)
	}
	return filepath.Join(dir, template)
}

func (a *app) newConcatCmd() *cobra.Command {
	var (
		output string
		flags  jobFlags
	)
	cmd := &cobra.Command{
		Use:   "concat <part-or-sources...>",
		Short: "Join files back into one",
		Long: `Join files in order into a single output file.

With a single argument carrying the marker extension (for example
movie.mkv.part00.split) the sibling parts are discovered automatically and
the output defaults to the original name (movie.mkv). Otherwise the
arguments are the ordered sources and --output is required.`,
		Example: `  splitcat concat movie.mkv.part00.split
  splitcat concat a.bin b.bin c.bin --output all.bin`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sources, destination, err := a.concatInputs(args, output)
			if err != nil {
				return err
			}
			spec, err := jobspec.BuildConcat(sources, destination)
			if err != nil {
				return err
			}
			return a.runJob(cmd.Context(), spec, flags)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (required unless a single marked part is given)")
	flags.register(cmd)
	return cmd
}

func (a *app) concatInputs(args []string, output string) ([]string, string, error) {
	output = strings.TrimSpace(output)
	marker := a.settings.MarkerExtension
	if len(args) == 1 && strings.HasSuffix(args[0], "."+marker) {
		sources, destination, err := jobspec.ResolveConcat(args[0], marker)
		if err != nil {
			return nil, "", err
		}
		if output != "" {
			destination = output
		}
		return sources, destination, nil
	}
	if output == "" {
		return nil, "", fmt.Errorf("%w: --output is required when sources are listed explicitly", jobspec.ErrInvalidArgument)
	}
	for _, src := range args {
		if !fsprobe.Exists(src) {
			return nil, "", fmt.Errorf("source not found: %s", src)
		}
	}
	return args, output, nil
}

type jobOutput struct {
	runner.Result
	Error string `json:"error,omitempty"`
}

func (a *app) runJob(ctx context.Context, spec model.JobSpec, flags jobFlags) error {
	mode := strings.TrimSpace(flags.progress)
	if mode == "" {
		mode = a.settings.Progress
	}
	r, err := render.ForMode(mode, render.SelectOptions{
		Out:      a.stderr,
		Terminal: stderrIsTTY(a.stderr),
		Logger:   a.log,
	})
	if err != nil {
		return err
	}
	renderers := render.Multi{r}

	if addr := strings.TrimSpace(flags.wsAddr); addr != "" {
		hub := broadcast.NewHub(a.log)
		bound, err := hub.Listen(addr)
		if err != nil {
			return err
		}
		defer func() {
			_ = hub.Close()
		}()
		a.log.Info().Str("url", "ws://"+bound.String()+broadcast.Path).Msg("streaming progress")
		renderers = append(renderers, hub)
	}

	res, runErr := runner.Run(ctx, runner.Options{
		Spec:      spec,
		StateDir:  a.resolvedStateDir(),
		Settings:  a.settings,
		Overwrite: flags.yes,
		Confirm: func(existing []string) (bool, error) {
			return a.promptConfirm(fmt.Sprintf("%d existing file(s) at %s will be replaced. Continue? [y/N]: ", len(existing), spec.Destination))
		},
		Renderer: renderers,
		Logger:   a.log,
	})

	if a.jsonOut {
		out := jobOutput{Result: res}
		if runErr != nil {
			out.Error = runErr.Error()
		}
		if err := printJSON(a.stdout, out); err != nil {
			return err
		}
		return runErr
	}
	if res.JobID != "" {
		printOutcome(a.stdout, res)
	}
	return runErr
}

func printOutcome(w io.Writer, res runner.Result) {
	switch res.State {
	case model.StateFinished:
		if res.Kind == model.KindSplit {
			fmt.Fprintf(w, "The file has been split successfully into %d parts (%s in %s).\n", len(res.Artifacts), eta.FormatBytes(res.TotalBytes), eta.FormatElapsed(res.Elapsed))
			for _, part := range res.Artifacts {
				fmt.Fprintf(w, "  %s\n", part)
			}
			return
		}
		fmt.Fprintf(w, "The files have been joined successfully: %s (%s in %s).\n", res.Destination, eta.FormatBytes(res.TotalBytes), eta.FormatElapsed(res.Elapsed))
	case model.StateCanceled:
		fmt.Fprintf(w, "The %s has been canceled; %d partial file(s) removed.\n", res.Kind, len(res.Removed))
	case model.StateFailed:
		fmt.Fprintf(w, "The %s failed with exit code %d.\n", res.Kind, res.ExitCode)
	}
}
