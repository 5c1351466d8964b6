package runstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"splitcat/internal/model"
)

const jobsDirName = "jobs"

// JobRecord is the persisted outcome of one finished, canceled or failed job.
type JobRecord struct {
	ID           string      `json:"id"`
	Kind         model.Kind  `json:"kind"`
	Sources      []string    `json:"sources"`
	Destination  string      `json:"destination"`
	ChunkCount   int         `json:"chunk_count,omitempty"`
	TotalBytes   uint64      `json:"total_bytes"`
	CurrentBytes uint64      `json:"current_bytes"`
	State        model.State `json:"state"`
	ExitCode     int         `json:"exit_code"`
	Diagnostics  string      `json:"diagnostics,omitempty"`
	Error        string      `json:"error,omitempty"`
	StartedAt    time.Time   `json:"started_at"`
	EndedAt      time.Time   `json:"ended_at"`
	Artifacts    []string    `json:"artifacts,omitempty"`
}

func (r JobRecord) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.EndedAt.Before(r.StartedAt) {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

func JobsDir(stateDir string) string {
	return filepath.Join(stateDir, jobsDirName)
}

func JobRecordPath(stateDir, id string) string {
	return filepath.Join(JobsDir(stateDir), id+".json")
}

func SaveJobRecord(stateDir string, rec JobRecord) error {
	if strings.TrimSpace(stateDir) == "" {
		return fmt.Errorf("state directory is required")
	}
	if strings.TrimSpace(rec.ID) == "" {
		return fmt.Errorf("job record id is required")
	}
	return WriteJSON(JobRecordPath(stateDir, rec.ID), rec)
}

func LoadJobRecord(stateDir, id string) (JobRecord, error) {
	var rec JobRecord
	if err := ReadJSON(JobRecordPath(stateDir, id), &rec); err != nil {
		return JobRecord{}, err
	}
	return rec, nil
}

// ListJobRecords returns records newest first. Unreadable files are skipped.
// A limit <= 0 returns everything.
func ListJobRecords(stateDir string, limit int) ([]JobRecord, error) {
	dir := JobsDir(stateDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []JobRecord{}, nil
		}
		return nil, fmt.Errorf("read jobs directory %s: %w", dir, err)
	}

	out := make([]JobRecord, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		var rec JobRecord
		if err := ReadJSON(filepath.Join(dir, e.Name()), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
