package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"splitcat/internal/config"
)

func (a *app) newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "View or change persistent settings",
	}
	cmd.AddCommand(a.newSettingsShowCmd(), a.newSettingsSetCmd())
	return cmd
}

func (a *app) newSettingsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.ResolvePath(a.configPath)
			if a.jsonOut {
				return printJSON(a.stdout, map[string]any{
					"config_path": path,
					"settings":    a.settings,
				})
			}
			s := a.settings
			fmt.Fprintf(a.stdout, "config: %s\n", path)
			fmt.Fprintf(a.stdout, "poll_interval_ms: %d\n", s.PollIntervalMS)
			fmt.Fprintf(a.stdout, "split_binary: %s\n", s.SplitBinary)
			fmt.Fprintf(a.stdout, "cat_binary: %s\n", s.CatBinary)
			fmt.Fprintf(a.stdout, "marker_extension: %s\n", s.MarkerExtension)
			fmt.Fprintf(a.stdout, "template_suffix: %s\n", s.TemplateSuffix)
			fmt.Fprintf(a.stdout, "kill_grace_seconds: %d\n", s.KillGraceSeconds)
			fmt.Fprintf(a.stdout, "space_margin: %s\n", strconv.FormatFloat(s.SpaceMargin, 'f', -1, 64))
			fmt.Fprintf(a.stdout, "state_dir: %s\n", s.ResolvedStateDir())
			fmt.Fprintf(a.stdout, "progress: %s\n", s.Progress)
			return nil
		},
	}
}

func (a *app) newSettingsSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one setting",
		Long:  "Change one setting and save the settings file.\n\nKeys: " + strings.Join(config.Keys(), ", "),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			next, err := config.Set(a.settings, args[0], args[1])
			if err != nil {
				return err
			}
			path := config.ResolvePath(a.configPath)
			saved, err := config.Save(path, next)
			if err != nil {
				return err
			}
			a.settings = saved
			if a.jsonOut {
				return printJSON(a.stdout, map[string]any{
					"config_path": path,
					"settings":    saved,
				})
			}
			fmt.Fprintf(a.stdout, "updated %s in %s\n", args[0], path)
			return nil
		},
	}
}
