package model

import (
	"slices"
	"time"
)

type Kind string

const (
	KindSplit  Kind = "split"
	KindConcat Kind = "concat"
)

// JobSpec describes one split or concat job. It is built once by the
// jobspec package and only read afterwards.
type JobSpec struct {
	ID          string `json:"id"`
	Kind        Kind   `json:"kind"`
	sources     []string
	Destination string `json:"destination"`
	ChunkCount  int    `json:"chunk_count,omitempty"`
	SuffixWidth int    `json:"suffix_width,omitempty"`
	TotalBytes  uint64 `json:"total_bytes"`
}

func NewJobSpec(id string, kind Kind, sources []string, destination string, chunkCount, suffixWidth int, totalBytes uint64) JobSpec {
	return JobSpec{
		ID:          id,
		Kind:        kind,
		sources:     slices.Clone(sources),
		Destination: destination,
		ChunkCount:  chunkCount,
		SuffixWidth: suffixWidth,
		TotalBytes:  totalBytes,
	}
}

// Sources returns a copy of the ordered source paths.
func (s JobSpec) Sources() []string {
	return slices.Clone(s.sources)
}

func (s JobSpec) Source() string {
	if len(s.sources) == 0 {
		return ""
	}
	return s.sources[0]
}

// Snapshot is a point-in-time view of a job's progress. Values are
// published by copy; holders never share mutable state with the writer.
type Snapshot struct {
	JobID        string    `json:"job_id,omitempty"`
	Kind         Kind      `json:"kind,omitempty"`
	State        State     `json:"state"`
	TotalBytes   uint64    `json:"total_bytes"`
	CurrentBytes uint64    `json:"current_bytes"`
	StartTime    time.Time `json:"start_time,omitzero"`
	EndTime      time.Time `json:"end_time,omitzero"`
	ExitCode     int       `json:"exit_code"`
}

// Percent returns completion in [0, 1]. Overshoot from block rounding is
// clamped; an empty job reports 0.
func (s Snapshot) Percent() float64 {
	if s.TotalBytes == 0 {
		return 0
	}
	p := float64(s.CurrentBytes) / float64(s.TotalBytes)
	if p > 1 {
		return 1
	}
	return p
}

// Elapsed is measured up to EndTime once the job is terminal.
func (s Snapshot) Elapsed(now time.Time) time.Duration {
	if s.StartTime.IsZero() {
		return 0
	}
	if !s.EndTime.IsZero() {
		return s.EndTime.Sub(s.StartTime)
	}
	return now.Sub(s.StartTime)
}
