// Package headless captures pages with headless Chrome via chromedp.
package headless

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/pdp-auditor/internal/audit"
	"github.com/JakeFAU/pdp-auditor/internal/capture"
)

// Device describes the emulated metrics for one viewport.
type Device struct {
	Width       int64
	Height      int64
	ScaleFactor float64
	Mobile      bool
	UserAgent   string
}

// DefaultDevices is used when Config.Devices is empty.
var DefaultDevices = map[audit.Viewport]Device{
	audit.ViewportMobile: {
		Width: 390, Height: 844, ScaleFactor: 3, Mobile: true,
		UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) AppleWebKit/605.1.15 " +
			"(KHTML, like Gecko) Version/17.5 Mobile/15E148 Safari/604.1",
	},
	audit.ViewportDesktop: {
		Width: 1440, Height: 900, ScaleFactor: 1,
		UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 " +
			"(KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	},
}

// DefaultBlockedTypes are denied when a capture asks for resource blocking.
var DefaultBlockedTypes = []string{"media", "font", "websocket", "eventsource", "manifest"}

const readySelector = `h1, [itemprop="name"], form[action*="/cart"] [type="submit"], button[name="add"], ` +
	`.single_add_to_cart_button, [data-testid*="add-to-cart"]`

const paintScript = `(() => {
	const e = performance.getEntriesByName('first-contentful-paint')[0];
	return e ? e.startTime : -1;
})()`

// Config controls the headless adapter.
type Config struct {
	// MaxSessions bounds concurrently open tabs.
	MaxSessions  int
	ReadyTimeout time.Duration
	SettleDelay  time.Duration
	BlockedTypes []string
	Devices      map[audit.Viewport]Device
	ExecPath     string
}

// Adapter implements audit.CaptureAdapter. It owns one browser and opens an
// isolated tab per capture.
type Adapter struct {
	cfg             Config
	blocked         map[network.ResourceType]bool
	sem             chan struct{}
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	logger          *zap.Logger
}

// New starts the browser and returns an adapter.
func New(cfg Config, logger *zap.Logger) (*Adapter, error) {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 2
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 5 * time.Second
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 750 * time.Millisecond
	}
	if len(cfg.BlockedTypes) == 0 {
		cfg.BlockedTypes = DefaultBlockedTypes
	}
	if len(cfg.Devices) == 0 {
		cfg.Devices = DefaultDevices
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocatorCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	return &Adapter{
		cfg:             cfg,
		blocked:         resourceTypes(cfg.BlockedTypes),
		sem:             make(chan struct{}, cfg.MaxSessions),
		allocatorCancel: allocatorCancel,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		logger:          logger.Named("headless"),
	}, nil
}

// Close shuts the browser down.
func (a *Adapter) Close() {
	if a == nil {
		return
	}
	a.browserCancel()
	a.allocatorCancel()
}

// Capture renders url for one viewport. The tab and session slot are
// released on every return path.
func (a *Adapter) Capture(
	ctx context.Context,
	url string,
	viewport audit.Viewport,
	opts audit.CaptureOptions,
) (audit.Artifact, error) {
	device, ok := a.cfg.Devices[viewport]
	if !ok {
		return audit.Artifact{}, &audit.CaptureError{
			Type:    audit.CaptureUnknown,
			Message: fmt.Sprintf("no device profile for viewport %q", viewport),
		}
	}

	release, err := a.acquire(ctx)
	if err != nil {
		return audit.Artifact{}, capture.Classify(err)
	}
	defer release()

	tabCtx, cancelTab := chromedp.NewContext(a.browserCtx)
	defer cancelTab()

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = capture.DefaultTimeout
	}
	taskCtx, cancelTask := context.WithTimeout(tabCtx, timeout)
	defer cancelTask()

	stopForward := forwardCancel(ctx, cancelTask)
	defer stopForward()

	meta := &documentMeta{}
	chromedp.ListenTarget(taskCtx, func(ev any) {
		switch e := ev.(type) {
		case *network.EventResponseReceived:
			meta.record(e)
		case *fetch.EventRequestPaused:
			go a.interceptRequest(taskCtx, e)
		}
	})

	start := time.Now()
	if err := chromedp.Run(taskCtx, a.setupTasks(device, opts.BlockResources), chromedp.Navigate(url)); err != nil {
		return audit.Artifact{}, capture.Classify(fmt.Errorf("navigate: %w", err))
	}
	loadDuration := time.Since(start)

	a.waitReady(taskCtx)

	var (
		html       string
		finalURL   string
		shot       []byte
		pageHeight int64
		paintMs    float64
	)
	settle := a.cfg.SettleDelay
	err = chromedp.Run(taskCtx,
		chromedp.Evaluate(`window.scrollTo(0, document.documentElement.scrollHeight)`, nil),
		chromedp.Sleep(settle),
		chromedp.Evaluate(`window.scrollTo(0, 0)`, nil),
		chromedp.Sleep(settle/2),
		chromedp.CaptureScreenshot(&shot),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Location(&finalURL),
		chromedp.Evaluate(`document.documentElement.scrollHeight`, &pageHeight),
		chromedp.Evaluate(paintScript, &paintMs),
	)
	if err != nil {
		return audit.Artifact{}, capture.Classify(fmt.Errorf("snapshot: %w", err))
	}

	status, docURL := meta.snapshot()
	if finalURL == "" {
		finalURL = docURL
	}
	artifact := audit.Artifact{
		Viewport:     viewport,
		URL:          url,
		FinalURL:     finalURL,
		StatusCode:   status,
		Markup:       []byte(html),
		RenderBuffer: shot,
		Timing: audit.Timing{
			LoadDuration: loadDuration,
			PageHeight:   pageHeight,
		},
		CapturedAt: time.Now().UTC(),
	}
	if paintMs >= 0 {
		artifact.Timing.PaintMetricMs = &paintMs
	}
	return artifact, nil
}

func (a *Adapter) setupTasks(device Device, block bool) chromedp.Tasks {
	tasks := chromedp.Tasks{
		network.Enable(),
		emulation.SetDeviceMetricsOverride(device.Width, device.Height, device.ScaleFactor, device.Mobile),
	}
	if device.UserAgent != "" {
		tasks = append(tasks, emulation.SetUserAgentOverride(device.UserAgent))
	}
	if device.Mobile {
		tasks = append(tasks, emulation.SetTouchEmulationEnabled(true))
	}
	if block && len(a.blocked) > 0 {
		tasks = append(tasks, fetch.Enable())
	}
	return tasks
}

// waitReady gives the page a bounded chance to show a heading or a purchase
// control. Expiry is not an error.
func (a *Adapter) waitReady(ctx context.Context) {
	waitCtx, cancel := context.WithTimeout(ctx, a.cfg.ReadyTimeout)
	defer cancel()
	if err := chromedp.Run(waitCtx, chromedp.WaitVisible(readySelector, chromedp.ByQuery)); err != nil {
		a.logger.Debug("ready element not seen", zap.Error(err))
	}
}

func (a *Adapter) interceptRequest(ctx context.Context, ev *fetch.EventRequestPaused) {
	c := chromedp.FromContext(ctx)
	if c == nil || c.Target == nil {
		return
	}
	execCtx := cdp.WithExecutor(ctx, c.Target)
	var err error
	if a.blocked[ev.ResourceType] {
		err = fetch.FailRequest(ev.RequestID, network.ErrorReasonBlockedByClient).Do(execCtx)
	} else {
		err = fetch.ContinueRequest(ev.RequestID).Do(execCtx)
	}
	if err != nil && ctx.Err() == nil {
		a.logger.Debug("request interception failed", zap.String("type", ev.ResourceType.String()), zap.Error(err))
	}
}

func (a *Adapter) acquire(ctx context.Context) (func(), error) {
	select {
	case a.sem <- struct{}{}:
		return func() { <-a.sem }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire capture session: %w", ctx.Err())
	}
}

func resourceTypes(names []string) map[network.ResourceType]bool {
	out := make(map[network.ResourceType]bool, len(names))
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		for _, rt := range allResourceTypes {
			if strings.EqualFold(rt.String(), name) {
				out[rt] = true
			}
		}
	}
	return out
}

var allResourceTypes = []network.ResourceType{
	network.ResourceTypeDocument,
	network.ResourceTypeStylesheet,
	network.ResourceTypeImage,
	network.ResourceTypeMedia,
	network.ResourceTypeFont,
	network.ResourceTypeScript,
	network.ResourceTypeXHR,
	network.ResourceTypeFetch,
	network.ResourceTypeEventSource,
	network.ResourceTypeWebSocket,
	network.ResourceTypeManifest,
	network.ResourceTypePing,
	network.ResourceTypeOther,
}

type documentMeta struct {
	mu     sync.Mutex
	status int
	url    string
}

func (m *documentMeta) record(ev *network.EventResponseReceived) {
	if ev.Type != network.ResourceTypeDocument || ev.Response == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != 0 {
		return
	}
	m.status = int(ev.Response.Status)
	m.url = ev.Response.URL
}

func (m *documentMeta) snapshot() (int, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status, m.url
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
