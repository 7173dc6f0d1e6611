package audit

import (
	"regexp"
	"time"
)

// EvidenceLevel grades evidence strength.
type EvidenceLevel string

// Evidence levels. LevelC is only allowed in appendix sections.
const (
	LevelA EvidenceLevel = "A"
	LevelB EvidenceLevel = "B"
	LevelC EvidenceLevel = "C"
)

// EvidenceType classifies what an evidence item points at.
type EvidenceType string

// Evidence types.
const (
	EvidenceScreenshot  EvidenceType = "screenshot"
	EvidenceMeasurement EvidenceType = "measurement"
	EvidenceDetection   EvidenceType = "detection"
)

// Completeness summarizes how much of the target evidence set was captured.
type Completeness string

// Completeness states.
const (
	CompletenessComplete     Completeness = "complete"
	CompletenessPartial      Completeness = "partial"
	CompletenessInsufficient Completeness = "insufficient"
)

var (
	// EvidenceIDPattern is the wire format for evidence ids.
	EvidenceIDPattern = regexp.MustCompile(
		`^E_(page_a|page_b|before|after)_(mobile|desktop|na)_(screenshot|measurement|detection)_[a-z0-9_]+_[0-9]{2}$`)
	// EvidenceRefPattern is the wire format for evidence anchors.
	EvidenceRefPattern = regexp.MustCompile(`^#evidence-E_`)
)

// Evidence is a classified pointer to a captured artifact or detected fact.
type Evidence struct {
	ID        string          `json:"id"`
	Level     EvidenceLevel   `json:"level"`
	Type      EvidenceType    `json:"type"`
	Source    Source          `json:"source"`
	Viewport  Viewport        `json:"viewport"`
	Timestamp time.Time       `json:"timestamp"`
	Ref       string          `json:"ref"`
	Details   EvidenceDetails `json:"details"`
}

// EvidenceDetails is a union keyed by the evidence type. Exactly one of the
// typed variants is set; Extra carries forward-compatible fields.
type EvidenceDetails struct {
	Screenshot  *ScreenshotDetail  `json:"screenshot,omitempty"`
	Measurement *MeasurementDetail `json:"measurement,omitempty"`
	Detection   *DetectionDetail   `json:"detection,omitempty"`
	Extra       map[string]string  `json:"extra,omitempty"`
}

// ScreenshotDetail points at a stored render buffer.
type ScreenshotDetail struct {
	StoragePath string `json:"storage_path"`
	StorageURL  string `json:"storage_url"`
	SizeBytes   int64  `json:"size_bytes"`
	ContentHash string `json:"content_hash,omitempty"`
}

// MeasurementDetail records a numeric observation.
type MeasurementDetail struct {
	Metric string  `json:"metric"`
	Value  float64 `json:"value"`
	Unit   string  `json:"unit"`
}

// DetectionDetail records a detected signal, optionally backed by stored markup.
type DetectionDetail struct {
	Signal      string `json:"signal"`
	StoragePath string `json:"storage_path,omitempty"`
	StorageURL  string `json:"storage_url,omitempty"`
	SizeBytes   int64  `json:"size_bytes,omitempty"`
	ContentHash string `json:"content_hash,omitempty"`
}

// Consistent reports whether the populated variant matches the evidence type.
func (e Evidence) Consistent() bool {
	d := e.Details
	switch e.Type {
	case EvidenceScreenshot:
		return d.Screenshot != nil && d.Measurement == nil && d.Detection == nil
	case EvidenceMeasurement:
		return d.Measurement != nil && d.Screenshot == nil && d.Detection == nil
	case EvidenceDetection:
		return d.Detection != nil && d.Screenshot == nil && d.Measurement == nil
	default:
		return false
	}
}

// EvidenceIndex maps ids to evidence for reference checks.
func EvidenceIndex(items []Evidence) map[string]Evidence {
	out := make(map[string]Evidence, len(items))
	for _, e := range items {
		out[e.ID] = e
	}
	return out
}
