// Package evidence turns stored artifact references into the evidence catalog
// that tickets cite.
package evidence

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/JakeFAU/pdp-auditor/internal/audit"
)

// Default labels for artifacts uploaded without one.
const (
	LabelAboveFold   = "above_fold"
	LabelDOMSnapshot = "dom_snapshot"
	fallbackSlug     = "artifact"
	refPrefix        = "#evidence-"
)

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases a label and collapses every other run of characters into
// a single underscore.
func Slugify(label string) string {
	s := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(label), "_"), "_")
	if s == "" {
		return fallbackSlug
	}
	return s
}

// Ref returns the anchor used to cite an evidence id.
func Ref(id string) string { return refPrefix + id }

// Build creates one evidence item per artifact reference. Ids are
// deterministic for a given input order; colliding (source, viewport, type,
// label) groups receive increasing two-digit indexes.
func Build(refs []audit.ArtifactRef) []audit.Evidence {
	out := make([]audit.Evidence, 0, len(refs))
	counters := make(map[string]int)
	for _, r := range refs {
		e := classify(r)
		slug := Slugify(labelFor(r))
		group := fmt.Sprintf("%s_%s_%s_%s", e.Source, e.Viewport, e.Type, slug)
		counters[group]++
		e.ID = fmt.Sprintf("E_%s_%02d", group, counters[group])
		e.Ref = Ref(e.ID)
		out = append(out, e)
	}
	return out
}

func labelFor(r audit.ArtifactRef) string {
	if strings.TrimSpace(r.Label) != "" {
		return r.Label
	}
	if r.Kind == audit.ArtifactScreenshot {
		return LabelAboveFold
	}
	return LabelDOMSnapshot
}

func classify(r audit.ArtifactRef) audit.Evidence {
	e := audit.Evidence{
		Source:    r.Source,
		Viewport:  r.Viewport,
		Timestamp: r.CapturedAt.UTC(),
	}
	if e.Source == "" {
		e.Source = audit.SourcePageA
	}
	if e.Viewport == "" {
		e.Viewport = audit.ViewportNA
	}
	switch r.Kind {
	case audit.ArtifactScreenshot:
		e.Level = audit.LevelA
		e.Type = audit.EvidenceScreenshot
		e.Details.Screenshot = &audit.ScreenshotDetail{
			StoragePath: r.Path,
			StorageURL:  r.PublicURL,
			SizeBytes:   r.Size,
			ContentHash: r.ContentHash,
		}
	default:
		e.Level = audit.LevelB
		e.Type = audit.EvidenceDetection
		e.Details.Detection = &audit.DetectionDetail{
			Signal:      Slugify(labelFor(r)),
			StoragePath: r.Path,
			StorageURL:  r.PublicURL,
			SizeBytes:   r.Size,
			ContentHash: r.ContentHash,
		}
	}
	return e
}

// Completeness grades the catalog against the requested viewports. Every
// viewport needs a screenshot and a markup detection to be complete; a
// catalog with no screenshot at all is insufficient.
func Completeness(items []audit.Evidence, viewports []audit.Viewport) audit.Completeness {
	have := make(map[string]bool, len(items))
	screenshots := 0
	for _, e := range items {
		have[string(e.Viewport)+"/"+string(e.Type)] = true
		if e.Type == audit.EvidenceScreenshot {
			screenshots++
		}
	}
	if screenshots == 0 {
		return audit.CompletenessInsufficient
	}
	for _, vp := range viewports {
		if !have[string(vp)+"/"+string(audit.EvidenceScreenshot)] || !have[string(vp)+"/"+string(audit.EvidenceDetection)] {
			return audit.CompletenessPartial
		}
	}
	return audit.CompletenessComplete
}

// Representative picks the evidence id a single-citation ticket should use:
// a screenshot when one exists, mobile before desktop, otherwise the first
// item. It reports false for an empty catalog.
func Representative(items []audit.Evidence) (string, bool) {
	if len(items) == 0 {
		return "", false
	}
	for _, vp := range []audit.Viewport{audit.ViewportMobile, audit.ViewportDesktop, audit.ViewportNA} {
		for _, e := range items {
			if e.Type == audit.EvidenceScreenshot && e.Viewport == vp {
				return e.ID, true
			}
		}
	}
	return items[0].ID, true
}
