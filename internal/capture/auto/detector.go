package auto

import (
	"bytes"
	"strings"

	"github.com/JakeFAU/pdp-auditor/internal/audit"
)

const defaultBodyLengthThreshold = 2048

// Detector decides whether a plain fetch produced a client-rendered shell
// that only a browser can fill in.
type Detector struct {
	BodyLengthThreshold int
}

// NewDetector creates a Detector. A zero threshold uses 2048 bytes.
func NewDetector(threshold int) *Detector {
	if threshold <= 0 {
		threshold = defaultBodyLengthThreshold
	}
	return &Detector{BodyLengthThreshold: threshold}
}

var spaMarkers = [][]byte{
	[]byte("__next"),
	[]byte(`id="root"`),
	[]byte(`id="app"`),
	[]byte("data-reactroot"),
	[]byte("ng-version"),
	[]byte("data-server-rendered"),
}

// NeedsBrowser reports whether the artifact should be recaptured headless.
// Non-2xx responses are kept as-is; rendering will not fix them.
func (d *Detector) NeedsBrowser(a audit.Artifact) bool {
	if a.StatusCode < 200 || a.StatusCode >= 300 {
		return false
	}
	body := a.Markup
	if len(bytes.TrimSpace(body)) == 0 {
		return true
	}
	if len(body) < d.BodyLengthThreshold && scriptDensityHigh(body) {
		return true
	}
	// Hydrated product pages still need the browser for the price block.
	if !bytes.Contains(bytes.ToLower(body), []byte("application/ld+json")) {
		for _, marker := range spaMarkers {
			if bytes.Contains(body, marker) {
				return true
			}
		}
	}
	return false
}

// scriptDensityHigh reports whether script elements cover at least a quarter
// of the document.
func scriptDensityHigh(body []byte) bool {
	lower := strings.ToLower(string(body))
	total := len(lower)
	if total == 0 {
		return false
	}

	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	covered := 0
	pos := 0
	for {
		rel := strings.Index(lower[pos:], openTag)
		if rel == -1 {
			break
		}
		start := pos + rel
		tagEnd := strings.IndexByte(lower[start:], '>')
		if tagEnd == -1 {
			covered += total - start
			break
		}
		contentStart := start + tagEnd + 1
		end := strings.Index(lower[contentStart:], closeTag)
		next := total
		if end != -1 {
			next = contentStart + end + len(closeTag)
		}
		covered += next - start
		pos = next
	}
	return covered*100/total >= 25
}
