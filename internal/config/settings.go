// Package config loads and saves the user settings file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"splitcat/internal/runstore"
)

const (
	DefaultPollIntervalMS   = 200
	DefaultSplitBinary      = "split"
	DefaultCatBinary        = "cat"
	DefaultMarkerExtension  = "split"
	DefaultTemplateSuffix   = ".part"
	DefaultKillGraceSeconds = 5
	DefaultSpaceMargin      = 0.05
	DefaultProgressMode     = "auto"

	minPollIntervalMS = 20
	maxPollIntervalMS = 10000
	maxSpaceMargin    = 1.0

	appDirName       = "splitcat"
	settingsFileName = "settings.json"
)

var progressModes = []string{"auto", "tui", "bar", "plain", "none"}

type Settings struct {
	PollIntervalMS   int     `json:"poll_interval_ms"`
	SplitBinary      string  `json:"split_binary"`
	CatBinary        string  `json:"cat_binary"`
	MarkerExtension  string  `json:"marker_extension"`
	TemplateSuffix   string  `json:"template_suffix"`
	KillGraceSeconds int     `json:"kill_grace_seconds"`
	SpaceMargin      float64 `json:"space_margin"`
	StateDir         string  `json:"state_dir,omitempty"`
	Progress         string  `json:"progress"`
}

func Default() Settings {
	return Settings{
		PollIntervalMS:   DefaultPollIntervalMS,
		SplitBinary:      DefaultSplitBinary,
		CatBinary:        DefaultCatBinary,
		MarkerExtension:  DefaultMarkerExtension,
		TemplateSuffix:   DefaultTemplateSuffix,
		KillGraceSeconds: DefaultKillGraceSeconds,
		SpaceMargin:      DefaultSpaceMargin,
		Progress:         DefaultProgressMode,
	}
}

func (s Settings) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalMS) * time.Millisecond
}

func (s Settings) KillGrace() time.Duration {
	return time.Duration(s.KillGraceSeconds) * time.Second
}

// ResolvedStateDir is StateDir or the per-user default.
func (s Settings) ResolvedStateDir() string {
	if dir := strings.TrimSpace(s.StateDir); dir != "" {
		return dir
	}
	return DefaultStateDir()
}

// Normalize replaces missing or out-of-range values with defaults.
func Normalize(raw Settings) Settings {
	norm := raw
	def := Default()
	switch {
	case norm.PollIntervalMS <= 0:
		norm.PollIntervalMS = def.PollIntervalMS
	case norm.PollIntervalMS < minPollIntervalMS:
		norm.PollIntervalMS = minPollIntervalMS
	case norm.PollIntervalMS > maxPollIntervalMS:
		norm.PollIntervalMS = maxPollIntervalMS
	}
	norm.SplitBinary = firstNonEmpty(norm.SplitBinary, def.SplitBinary)
	norm.CatBinary = firstNonEmpty(norm.CatBinary, def.CatBinary)
	norm.MarkerExtension = firstNonEmpty(strings.TrimPrefix(strings.TrimSpace(norm.MarkerExtension), "."), def.MarkerExtension)
	norm.TemplateSuffix = firstNonEmpty(norm.TemplateSuffix, def.TemplateSuffix)
	if norm.KillGraceSeconds < 0 {
		norm.KillGraceSeconds = def.KillGraceSeconds
	}
	if norm.SpaceMargin < 0 || norm.SpaceMargin > maxSpaceMargin {
		norm.SpaceMargin = def.SpaceMargin
	}
	norm.StateDir = strings.TrimSpace(norm.StateDir)
	norm.Progress = NormalizeProgressMode(norm.Progress)
	return norm
}

func NormalizeProgressMode(raw string) string {
	mode := strings.ToLower(strings.TrimSpace(raw))
	for _, m := range progressModes {
		if mode == m {
			return m
		}
	}
	return DefaultProgressMode
}

func ProgressModes() []string {
	return append([]string(nil), progressModes...)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

// Load reads path; a missing file yields defaults.
func Load(path string) (Settings, error) {
	path = ResolvePath(path)
	var raw Settings
	if err := runstore.ReadJSON(path, &raw); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return Settings{}, err
	}
	return Normalize(raw), nil
}

func Save(path string, s Settings) (Settings, error) {
	path = ResolvePath(path)
	norm := Normalize(s)
	if err := runstore.WriteJSON(path, norm); err != nil {
		return Settings{}, err
	}
	return norm, nil
}

// Set assigns one field by its JSON key, validating the value.
func Set(s Settings, key, value string) (Settings, error) {
	value = strings.TrimSpace(value)
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "poll_interval_ms":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return s, fmt.Errorf("poll_interval_ms must be a positive integer")
		}
		s.PollIntervalMS = n
	case "split_binary":
		s.SplitBinary = value
	case "cat_binary":
		s.CatBinary = value
	case "marker_extension":
		s.MarkerExtension = value
	case "template_suffix":
		s.TemplateSuffix = value
	case "kill_grace_seconds":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return s, fmt.Errorf("kill_grace_seconds must be >= 0")
		}
		s.KillGraceSeconds = n
	case "space_margin":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || f < 0 || f > maxSpaceMargin {
			return s, fmt.Errorf("space_margin must be between 0 and %g", maxSpaceMargin)
		}
		s.SpaceMargin = f
	case "state_dir":
		s.StateDir = value
	case "progress":
		mode := strings.ToLower(value)
		if NormalizeProgressMode(mode) != mode {
			return s, fmt.Errorf("invalid progress mode %q (expected %s)", value, strings.Join(progressModes, ", "))
		}
		s.Progress = mode
	default:
		return s, fmt.Errorf("unknown setting %q (expected one of %s)", key, strings.Join(Keys(), ", "))
	}
	return Normalize(s), nil
}

func Keys() []string {
	keys := []string{
		"poll_interval_ms",
		"split_binary",
		"cat_binary",
		"marker_extension",
		"template_suffix",
		"kill_grace_seconds",
		"space_margin",
		"state_dir",
		"progress",
	}
	sort.Strings(keys)
	return keys
}

func ResolvePath(path string) string {
	if p := strings.TrimSpace(path); p != "" {
		return p
	}
	return DefaultPath()
}

func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return filepath.Join(".", "."+appDirName, settingsFileName)
	}
	return filepath.Join(dir, appDirName, settingsFileName)
}

// DefaultStateDir follows XDG_STATE_HOME, falling back to ~/.local/state.
func DefaultStateDir() string {
	if dir := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); dir != "" {
		return filepath.Join(dir, appDirName)
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(os.TempDir(), appDirName)
	}
	return filepath.Join(home, ".local", "state", appDirName)
}
