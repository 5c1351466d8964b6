package render

import (
	"fmt"
	"io"
	"time"

	"github.com/schollz/progressbar/v3"

	"splitcat/internal/eta"
	"splitcat/internal/model"
)

// Bar draws a byte progress bar with the ETA in its description.
type Bar struct {
	out   io.Writer
	bar   *progressbar.ProgressBar
	title string
	now   nowFunc
}

func NewBar(out io.Writer) *Bar {
	return &Bar{out: out, now: defaultNow}
}

func (b *Bar) Start(spec model.JobSpec, _ func()) {
	b.title = Title(spec)
	b.bar = progressbar.NewOptions64(int64(spec.TotalBytes),
		progressbar.OptionSetDescription(b.title),
		progressbar.OptionSetWriter(b.out),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(b.out, "\n")
		}),
	)
}

func (b *Bar) Update(s model.Snapshot) {
	if b.bar == nil {
		return
	}
	b.bar.Describe(fmt.Sprintf("%s (eta %s)", b.title, eta.Format(eta.Estimate(s, b.now()))))
	_ = b.bar.Set64(clampToTotal(s))
}

func (b *Bar) Finish(s model.Snapshot) {
	if b.bar == nil {
		return
	}
	b.bar.Describe(fmt.Sprintf("%s: %s", b.title, OutcomeLabel(s.State)))
	if s.State == model.StateFinished {
		_ = b.bar.Set64(clampToTotal(s))
		_ = b.bar.Finish()
		return
	}
	_ = b.bar.Exit()
	fmt.Fprint(b.out, "\n")
}

func clampToTotal(s model.Snapshot) int64 {
	if s.TotalBytes > 0 && s.CurrentBytes > s.TotalBytes {
		return int64(s.TotalBytes)
	}
	return int64(s.CurrentBytes)
}
