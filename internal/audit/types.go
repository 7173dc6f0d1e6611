package audit

import "time"

// Mode selects the audit flavor. Only ModeSolo audits a single page; the
// comparison modes exist so identifiers and cache keys stay stable across
// products that share this vocabulary.
type Mode string

// Supported audit modes.
const (
	ModeSolo           Mode = "solo"
	ModeDuoAB          Mode = "duo_ab"
	ModeDuoBeforeAfter Mode = "duo_before_after"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeSolo, ModeDuoAB, ModeDuoBeforeAfter:
		return true
	default:
		return false
	}
}

// Viewport identifies a device profile used during capture.
type Viewport string

// Viewports used for capture and evidence ids.
const (
	ViewportMobile  Viewport = "mobile"
	ViewportDesktop Viewport = "desktop"
	ViewportNA      Viewport = "na"
)

// DefaultViewports is the capture set for every run, primary first.
var DefaultViewports = []Viewport{ViewportMobile, ViewportDesktop}

// Source names the page an evidence item was taken from.
type Source string

// Evidence sources.
const (
	SourcePageA  Source = "page_a"
	SourcePageB  Source = "page_b"
	SourceBefore Source = "before"
	SourceAfter  Source = "after"
)

// ArtifactKind distinguishes stored capture outputs.
type ArtifactKind string

// Artifact kinds produced by a capture.
const (
	ArtifactScreenshot ArtifactKind = "screenshot"
	ArtifactMarkup     ArtifactKind = "markup"
)

// Request is a single audit submission.
type Request struct {
	URL        string     `json:"url"`
	Mode       Mode       `json:"mode"`
	Locale     string     `json:"locale"`
	Viewports  []Viewport `json:"viewports,omitempty"`
	CopyReady  bool       `json:"copy_ready"`
	WhiteLabel bool       `json:"white_label"`
	RequestID  string     `json:"request_id,omitempty"`
}

// Timing carries capture measurements.
type Timing struct {
	LoadDuration time.Duration `json:"load_duration"`
	PageHeight   int64         `json:"page_height"`
	// PaintMetricMs is first-contentful-paint in milliseconds when the
	// browser exposed it.
	PaintMetricMs *float64 `json:"paint_metric_ms,omitempty"`
}

// Artifact is the ephemeral output of one viewport capture.
type Artifact struct {
	Viewport     Viewport  `json:"viewport"`
	URL          string    `json:"url"`
	FinalURL     string    `json:"final_url"`
	StatusCode   int       `json:"status_code"`
	Markup       []byte    `json:"-"`
	RenderBuffer []byte    `json:"-"`
	Timing       Timing    `json:"timing"`
	CapturedAt   time.Time `json:"captured_at"`
}

// CaptureOptions bounds one capture.
type CaptureOptions struct {
	Timeout        time.Duration
	BlockResources bool
}

// UploadOptions controls blob overwrite behavior.
type UploadOptions struct {
	Overwrite     bool
	CheckExisting bool
	ContentType   string
}

// UploadResult describes a stored artifact.
type UploadResult struct {
	Path      string `json:"path"`
	PublicURL string `json:"public_url"`
	Size      int64  `json:"size"`
	Cached    bool   `json:"cached"`
}

// ArtifactRef points at a stored artifact and is the input to evidence building.
type ArtifactRef struct {
	Source      Source       `json:"source"`
	Viewport    Viewport     `json:"viewport"`
	Kind        ArtifactKind `json:"kind"`
	Label       string       `json:"label"`
	Path        string       `json:"path"`
	PublicURL   string       `json:"public_url"`
	Size        int64        `json:"size"`
	ContentHash string       `json:"content_hash,omitempty"`
	CapturedAt  time.Time    `json:"captured_at"`
}
