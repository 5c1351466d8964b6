// Package eta estimates remaining time from a progress snapshot and renders
// the human strings shown next to a running job.
package eta

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"splitcat/internal/model"
)

const Unknown = "???"

const maxDurationSeconds = float64(math.MaxInt64) / float64(time.Second)

// Estimate extrapolates the average speed since StartTime. ok is false when
// nothing meaningful can be said yet.
func Estimate(s model.Snapshot, now time.Time) (time.Duration, bool) {
	if s.TotalBytes == 0 || s.CurrentBytes == 0 {
		return 0, false
	}
	elapsed := s.Elapsed(now).Seconds()
	if elapsed <= 0 {
		return 0, false
	}
	speed := float64(s.CurrentBytes) / elapsed
	remaining := (float64(s.TotalBytes) - float64(s.CurrentBytes)) / speed
	if math.IsNaN(remaining) || math.IsInf(remaining, 0) || remaining <= 0 {
		return 0, false
	}
	// Beyond time.Duration's range the estimate is meaningless anyway.
	if remaining >= maxDurationSeconds {
		return 0, false
	}
	return time.Duration(remaining * float64(time.Second)), true
}

// Format picks units by magnitude: "1h 5m" from an hour up, "12m" from a
// minute up, "42s" otherwise. Thresholds apply to the rounded value, so
// 59.6s reads "1m" and 59m50s reads "1h".
func Format(d time.Duration, ok bool) string {
	if !ok || d <= 0 {
		return Unknown
	}
	secs := int64(math.Round(d.Seconds()))
	if secs < 60 {
		return fmt.Sprintf("%ds", secs)
	}
	mins := int64(math.Round(float64(secs) / 60))
	if mins < 60 {
		return fmt.Sprintf("%dm", mins)
	}
	h, m := mins/60, mins%60
	if m == 0 {
		return fmt.Sprintf("%dh", h)
	}
	return fmt.Sprintf("%dh %dm", h, m)
}

// FormatElapsed renders hours, minutes and seconds, hiding zero units.
func FormatElapsed(d time.Duration) string {
	secs := int64(d.Round(time.Second) / time.Second)
	if secs <= 0 {
		return "0s"
	}
	h, m, s := secs/3600, (secs%3600)/60, secs%60
	parts := make([]string, 0, 3)
	if h > 0 {
		parts = append(parts, fmt.Sprintf("%dh", h))
	}
	if m > 0 {
		parts = append(parts, fmt.Sprintf("%dm", m))
	}
	if s > 0 {
		parts = append(parts, fmt.Sprintf("%ds", s))
	}
	return strings.Join(parts, " ")
}

func FormatBytes(n uint64) string {
	if n == 0 {
		return "0 B"
	}
	const unit = 1024
	if n < unit {
		return strconv.FormatUint(n, 10) + " B"
	}
	div, exp := uint64(unit), 0
	for q := n / unit; q >= unit; q /= unit {
		div *= unit
		exp++
	}
	value := float64(n) / float64(div)
	suffix := "KMGTPE"[exp]
	return strconv.FormatFloat(value, 'f', 1, 64) + " " + string(suffix) + "iB"
}

// Rate is the average throughput in bytes per second.
func Rate(s model.Snapshot, now time.Time) float64 {
	elapsed := s.Elapsed(now).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(s.CurrentBytes) / elapsed
}

// Message is the one-line status shown under the progress bar.
func Message(s model.Snapshot, now time.Time) string {
	if s.TotalBytes == 0 {
		return "0%"
	}
	elapsed := "0s"
	if !s.StartTime.IsZero() {
		elapsed = FormatElapsed(s.Elapsed(now))
	}
	return fmt.Sprintf("%s over %s - %s elapsed - about %s remaining (%d%%)",
		FormatBytes(s.CurrentBytes),
		FormatBytes(s.TotalBytes),
		elapsed,
		Format(Estimate(s, now)),
		int(s.Percent()*100),
	)
}
