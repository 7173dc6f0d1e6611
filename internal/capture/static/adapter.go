// Package static captures raw markup over plain HTTP with colly. It produces
// no screenshot and is used where a browser is unavailable.
package static

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/pdp-auditor/internal/audit"
)

// User agents sent per viewport.
const (
	MobileUserAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) AppleWebKit/605.1.15 " +
		"(KHTML, like Gecko) Version/17.5 Mobile/15E148 Safari/604.1"
	DesktopUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"
)

// Config controls collector behavior.
type Config struct {
	Timeout     time.Duration
	MaxBodySize int
}

// Adapter implements audit.CaptureAdapter using a colly collector.
type Adapter struct {
	cfg  Config
	base *colly.Collector
}

// New builds an Adapter.
func New(cfg Config) *Adapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.AllowURLRevisit = true
	if cfg.MaxBodySize > 0 {
		c.MaxBodySize = cfg.MaxBodySize
	}
	c.WithTransport(newHTTPTransport())
	return &Adapter{cfg: cfg, base: c}
}

// Capture fetches url once with the viewport's user agent.
func (a *Adapter) Capture(
	ctx context.Context,
	url string,
	viewport audit.Viewport,
	opts audit.CaptureOptions,
) (audit.Artifact, error) {
	var (
		artifact = audit.Artifact{Viewport: viewport, URL: url}
		fetchErr error
	)
	collector := a.base.Clone()
	collector.Context = ctx
	collector.UserAgent = userAgent(viewport)
	timeout := a.cfg.Timeout
	if opts.Timeout > 0 && opts.Timeout < timeout {
		timeout = opts.Timeout
	}
	collector.SetRequestTimeout(timeout)

	start := time.Now()
	collector.OnResponse(func(r *colly.Response) {
		artifact.FinalURL = r.Request.URL.String()
		artifact.StatusCode = r.StatusCode
		artifact.Markup = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			artifact.FinalURL = r.Request.URL.String()
			artifact.StatusCode = r.StatusCode
			return
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return audit.Artifact{}, fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if fetchErr != nil {
			return audit.Artifact{}, fmt.Errorf("colly response failed: %w", fetchErr)
		}
		if err != nil && artifact.StatusCode == 0 {
			return audit.Artifact{}, fmt.Errorf("colly visit failed: %w", err)
		}
	}

	artifact.Timing.LoadDuration = time.Since(start)
	artifact.CapturedAt = time.Now().UTC()
	return artifact, nil
}

func userAgent(vp audit.Viewport) string {
	if vp == audit.ViewportMobile {
		return MobileUserAgent
	}
	return DesktopUserAgent
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
