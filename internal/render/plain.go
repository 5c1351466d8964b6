package render

import (
	"time"

	"github.com/rs/zerolog"

	"splitcat/internal/eta"
	"splitcat/internal/model"
)

type nowFunc func() time.Time

var defaultNow nowFunc = time.Now

const plainLogInterval = time.Second

// Plain writes progress as log lines, at most one per interval.
type Plain struct {
	log      zerolog.Logger
	interval time.Duration
	now      nowFunc
	last     time.Time
}

func NewPlain(log zerolog.Logger) *Plain {
	return &Plain{log: log, interval: plainLogInterval, now: defaultNow}
}

func (p *Plain) Start(spec model.JobSpec, _ func()) {
	p.log = p.log.With().Str("job_id", spec.ID).Str("kind", string(spec.Kind)).Logger()
	p.last = time.Time{}
	p.log.Info().
		Str("destination", spec.Destination).
		Str("total", eta.FormatBytes(spec.TotalBytes)).
		Msg(Title(spec))
}

func (p *Plain) Update(s model.Snapshot) {
	now := p.now()
	if !p.last.IsZero() && now.Sub(p.last) < p.interval {
		return
	}
	p.last = now
	p.log.Info().Msg(eta.Message(s, now))
}

func (p *Plain) Finish(s model.Snapshot) {
	ev := p.log.Info()
	if s.State == model.StateFailed {
		ev = p.log.Error().Int("exit_code", s.ExitCode)
	}
	ev.Str("state", string(s.State)).
		Str("written", eta.FormatBytes(s.CurrentBytes)).
		Str("elapsed", eta.FormatElapsed(s.Elapsed(p.now()))).
		Msg(OutcomeLabel(s.State))
}
