package fsprobe

import "fmt"

// InsufficientSpaceError indicates that the destination filesystem cannot
// hold the job's output.
type InsufficientSpaceError struct {
	Path           string
	RequiredBytes  uint64
	AvailableBytes uint64
}

func (e *InsufficientSpaceError) Error() string {
	requiredMB := float64(e.RequiredBytes) / (1024 * 1024)
	availableMB := float64(e.AvailableBytes) / (1024 * 1024)
	return fmt.Sprintf("insufficient disk space for %s: need %.2f MB, have %.2f MB available",
		e.Path, requiredMB, availableMB)
}

// CheckSpace verifies that dir's filesystem has room for requiredBytes plus
// a fractional margin (0.05 asks for 5% headroom). Filesystems that cannot
// report free space pass the check.
func CheckSpace(dir string, requiredBytes uint64, margin float64) error {
	if margin < 0 {
		margin = 0
	}
	available, ok := AvailableSpace(dir)
	if !ok {
		return nil
	}
	need := uint64(float64(requiredBytes) * (1 + margin))
	if available < need {
		return &InsufficientSpaceError{
			Path:           dir,
			RequiredBytes:  need,
			AvailableBytes: available,
		}
	}
	return nil
}
