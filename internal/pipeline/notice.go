package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pdp-auditor/internal/audit"
)

// Notice is the compact message published when a run finishes.
type Notice struct {
	AuditKey   string       `json:"audit_key"`
	RunKey     string       `json:"run_key"`
	RenderKey  string       `json:"render_key"`
	URL        string       `json:"url"`
	Status     audit.Status `json:"status"`
	CacheHit   bool         `json:"cache_hit"`
	Tickets    int          `json:"tickets"`
	Errors     int          `json:"errors"`
	CSVURL     string       `json:"csv_url,omitempty"`
	RequestID  string       `json:"request_id,omitempty"`
	FinishedAt string       `json:"finished_at"`
}

// NoticeFor summarizes a finished run.
func NoticeFor(run audit.Run, requestID string) Notice {
	n := Notice{
		AuditKey:   run.Audit,
		RunKey:     run.Run,
		RenderKey:  run.Render,
		URL:        run.URL,
		Status:     run.Status,
		CacheHit:   run.CacheHit,
		Errors:     len(run.Errors),
		RequestID:  requestID,
		FinishedAt: run.FinishedAt.UTC().Format(time.RFC3339),
	}
	if run.Export != nil {
		n.Tickets = len(run.Export.Tickets)
	}
	if run.Report != nil {
		n.CSVURL = run.Report.CSVURL
	}
	return n
}

func (p *Pipeline) notify(ctx context.Context, st *runState) {
	if p.cfg.Topic == "" || p.deps.Publisher == nil {
		return
	}
	id, err := p.deps.Publisher.Publish(ctx, p.cfg.Topic, NoticeFor(st.run, st.req.RequestID))
	if err != nil {
		p.logger.Warn("publish run notice failed",
			zap.String("run_key", st.run.Run),
			zap.String("topic", p.cfg.Topic),
			zap.Error(err),
		)
		return
	}
	p.logger.Debug("run notice published", zap.String("run_key", st.run.Run), zap.String("message_id", id))
}
