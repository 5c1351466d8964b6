package cli

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"splitcat/internal/config"
	"splitcat/internal/runstore"
	"splitcat/internal/supervisor"
)

type doctorCheck struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

type doctorResult struct {
	OK     bool          `json:"ok"`
	Checks []doctorCheck `json:"checks"`
}

func (a *app) doctor() doctorResult {
	sup := supervisor.New(supervisor.Options{
		SplitBinary: a.settings.SplitBinary,
		CatBinary:   a.settings.CatBinary,
	})
	deps := sup.DependencyStatus()

	checks := []doctorCheck{
		dependencyCheck(a.settings.SplitBinary, deps.SplitFound, deps.SplitPath),
		dependencyCheck(a.settings.CatBinary, deps.CatFound, deps.CatPath),
		writableCheck("state_dir", a.resolvedStateDir()),
		writableCheck("config_dir", filepath.Dir(config.ResolvePath(a.configPath))),
	}
	res := doctorResult{OK: true, Checks: checks}
	for _, c := range checks {
		if !c.OK {
			res.OK = false
		}
	}
	return res
}

func dependencyCheck(name string, found bool, path string) doctorCheck {
	if !found {
		return doctorCheck{Name: name, OK: false, Message: "not found on PATH"}
	}
	return doctorCheck{Name: name, OK: true, Message: path}
}

func writableCheck(name, dir string) doctorCheck {
	if err := runstore.EnsureWritableDir(dir); err != nil {
		return doctorCheck{Name: name, OK: false, Message: err.Error()}
	}
	return doctorCheck{Name: name, OK: true, Message: dir}
}

func (a *app) newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that split, cat and the state directory are usable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res := a.doctor()
			if a.jsonOut {
				if err := printJSON(a.stdout, res); err != nil {
					return err
				}
			} else {
				for _, c := range res.Checks {
					status := "ok"
					if !c.OK {
						status = "fail"
					}
					fmt.Fprintf(a.stdout, "%s: %s (%s)\n", c.Name, status, c.Message)
				}
				if res.OK {
					fmt.Fprintln(a.stdout, "doctor: all checks passed")
				}
			}
			if !res.OK {
				return errors.New("doctor checks failed")
			}
			return nil
		},
	}
}
