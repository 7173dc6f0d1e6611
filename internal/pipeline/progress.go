package pipeline

import (
	"net/url"
	"strings"

	"github.com/JakeFAU/pdp-auditor/internal/audit"
	"github.com/JakeFAU/pdp-auditor/internal/progress"
)

func (p *Pipeline) emit(st *runState, evt progress.Event) {
	evt.RunKey = st.run.Run
	if evt.RunKey == "" {
		evt.RunKey = st.req.URL
	}
	evt.TS = p.deps.Clock.Now()
	p.deps.Progress.Emit(evt)
}

func (p *Pipeline) emitCaptures(st *runState) {
	site := hostOf(st.req.URL)
	for _, r := range st.captures.Results() {
		if r.Viewport == "" {
			continue
		}
		evt := progress.Event{
			Stage:       progress.StageCaptureDone,
			Viewport:    string(r.Viewport),
			Site:        site,
			StatusClass: progress.ClassifyStatus(r.Artifact.StatusCode),
			Bytes:       int64(len(r.Artifact.Markup)),
			Dur:         r.Duration,
		}
		if r.Err != nil {
			evt.StatusClass = progress.StatusFailed
			evt.Note = string(r.Err.Type)
		}
		p.emit(st, evt)
	}
}

func (p *Pipeline) emitFinish(st *runState, status audit.Status) {
	stage := progress.StageRunDone
	if status == audit.StatusFailed {
		stage = progress.StageRunError
	}
	dur := st.run.FinishedAt.Sub(st.run.StartedAt)
	if dur < 0 {
		dur = 0
	}
	p.emit(st, progress.Event{Stage: stage, Dur: dur, Note: string(status)})
}

func hostOf(raw string) string {
	u, err := url.Parse(targetURL(raw))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
