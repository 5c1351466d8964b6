// Package monitor infers job progress by polling the filesystem side effects
// of the running tool.
package monitor

import (
	"path/filepath"
	"time"

	"splitcat/internal/fsprobe"
	"splitcat/internal/model"
)

const DefaultInterval = 200 * time.Millisecond

// Measurer returns the bytes produced so far. Probe failures read as zero.
type Measurer func() uint64

// ForSpec measures split parts by prefix sum and concat output by size.
func ForSpec(spec model.JobSpec) Measurer {
	switch spec.Kind {
	case model.KindSplit:
		dir := filepath.Dir(spec.Destination)
		prefix := filepath.Base(spec.Destination)
		return func() uint64 {
			n, err := fsprobe.SumPrefix(dir, prefix, prefix)
			if err != nil {
				return 0
			}
			return n
		}
	case model.KindConcat:
		dest := spec.Destination
		return func() uint64 {
			return fsprobe.FileSize(dest)
		}
	default:
		return func() uint64 { return 0 }
	}
}

// Run measures once immediately, then on every tick until done closes, then
// once more so the last write the tool made is observed.
func Run(done <-chan struct{}, interval time.Duration, measure Measurer, publish func(uint64)) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	publish(measure())

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-done:
			publish(measure())
			return
		case <-t.C:
			publish(measure())
		}
	}
}
