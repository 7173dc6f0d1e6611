package audit

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrQueueClosed is returned by Dequeue after the queue shut down.
	ErrQueueClosed = errors.New("queue closed")
)

// Stage is one of the eight macro error stages.
type Stage string

// Macro stages.
const (
	StageNormalize Stage = "normalize"
	StageCapture   Stage = "capture"
	StageDetectors Stage = "detectors"
	StageScoring   Stage = "scoring"
	StageReport    Stage = "report"
	StageRenderPDF Stage = "render_pdf"
	StageStorage   Stage = "storage"
	StageUnknown   Stage = "unknown"
)

// MissingEvidenceReason explains why capture or storage evidence is absent.
type MissingEvidenceReason string

// Missing evidence reasons.
const (
	ReasonCookieConsent  MissingEvidenceReason = "blocked_by_cookie_consent"
	ReasonPopup          MissingEvidenceReason = "blocked_by_popup"
	ReasonLazyLoad       MissingEvidenceReason = "infinite_scroll_or_lazyload"
	ReasonNavIntercepted MissingEvidenceReason = "navigation_intercepted"
	ReasonTimeout        MissingEvidenceReason = "timeout"
	ReasonUnknownRender  MissingEvidenceReason = "unknown_render_issue"
)

// Error is a normalized pipeline failure.
type Error struct {
	Stage                 Stage                  `json:"stage"`
	Code                  string                 `json:"code"`
	Message               string                 `json:"message"`
	Timestamp             time.Time              `json:"timestamp"`
	MissingEvidenceReason *MissingEvidenceReason `json:"missing_evidence_reason"`
}

// fineStages maps internal stage names onto the macro set.
var fineStages = map[string]Stage{
	"normalize":       StageNormalize,
	"keys":            StageNormalize,
	"cache":           StageNormalize,
	"capture":         StageCapture,
	"capture_mobile":  StageCapture,
	"capture_desktop": StageCapture,
	"navigate":        StageCapture,
	"screenshot":      StageCapture,
	"extract":         StageDetectors,
	"facts":           StageDetectors,
	"detectors":       StageDetectors,
	"evidence":        StageDetectors,
	"synthesis":       StageScoring,
	"llm":             StageScoring,
	"validation":      StageScoring,
	"scoring":         StageScoring,
	"report":          StageReport,
	"csv_export":      StageReport,
	"render":          StageRenderPDF,
	"render_pdf":      StageRenderPDF,
	"pdf":             StageRenderPDF,
	"upload":          StageStorage,
	"storage":         StageStorage,
	"persist":         StageStorage,
	"db":              StageStorage,
}

// MacroStage maps a fine-grained stage name to its macro stage.
func MacroStage(fine string) Stage {
	if s, ok := fineStages[strings.ToLower(strings.TrimSpace(fine))]; ok {
		return s
	}
	return StageUnknown
}

// InferMissingEvidenceReason classifies a capture/storage failure by keyword.
func InferMissingEvidenceReason(code, message string) MissingEvidenceReason {
	text := strings.ToLower(code + " " + message)
	switch {
	case containsAny(text, "timeout", "timed out", "deadline"):
		return ReasonTimeout
	case containsAny(text, "consent", "cookie"):
		return ReasonCookieConsent
	case containsAny(text, "popup", "pop-up", "modal"):
		return ReasonPopup
	case containsAny(text, "navigation", "intercepted"):
		return ReasonNavIntercepted
	case containsAny(text, "lazy", "scroll", "infinite"):
		return ReasonLazyLoad
	default:
		return ReasonUnknownRender
	}
}

// NewError builds a taxonomy entry from a fine stage name.
func NewError(fineStage, code, message string, at time.Time) Error {
	stage := MacroStage(fineStage)
	e := Error{
		Stage:     stage,
		Code:      code,
		Message:   message,
		Timestamp: at.UTC(),
	}
	if stage == StageCapture || stage == StageStorage {
		reason := InferMissingEvidenceReason(code, message)
		e.MissingEvidenceReason = &reason
	}
	return e
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// CaptureErrorType classifies capture failures.
type CaptureErrorType string

// Capture error types.
const (
	CaptureTimeout      CaptureErrorType = "timeout"
	CaptureNotFound     CaptureErrorType = "not_found"
	CaptureNetworkError CaptureErrorType = "network_error"
	CaptureUnknown      CaptureErrorType = "unknown"
)

// CaptureError is the typed failure returned by capture adapters.
type CaptureError struct {
	Type    CaptureErrorType
	Message string
	Code    int
	Err     error
}

func (e *CaptureError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("capture %s (http %d): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("capture %s: %s", e.Type, e.Message)
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}

// StorageError is the typed failure returned by artifact uploads.
type StorageError struct {
	Type    string
	Message string
	Code    int
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %s", e.Type, e.Message)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
