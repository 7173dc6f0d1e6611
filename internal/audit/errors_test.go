package audit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMacroStageMapsFineStages(t *testing.T) {
	t.Parallel()

	cases := map[string]Stage{
		"capture_mobile": StageCapture,
		"upload":         StageStorage,
		"persist":        StageStorage,
		"extract":        StageDetectors,
		"validation":     StageScoring,
		"csv_export":     StageReport,
		"pdf":            StageRenderPDF,
		"keys":           StageNormalize,
		" Capture ":      StageCapture,
		"something-else": StageUnknown,
	}
	for fine, want := range cases {
		require.Equal(t, want, MacroStage(fine), fine)
	}
}

func TestInferMissingEvidenceReason(t *testing.T) {
	t.Parallel()

	cases := []struct {
		code, msg string
		want      MissingEvidenceReason
	}{
		{"timeout", "", ReasonTimeout},
		{"", "context deadline exceeded", ReasonTimeout},
		{"", "cookie banner covered page", ReasonCookieConsent},
		{"", "modal dialog blocked content", ReasonPopup},
		{"", "navigation was intercepted", ReasonNavIntercepted},
		{"", "lazy images never loaded", ReasonLazyLoad},
		{"network_error", "connection reset", ReasonUnknownRender},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, InferMissingEvidenceReason(tc.code, tc.msg), tc.msg)
	}
}

func TestNewErrorOnlyTagsReasonForCaptureAndStorage(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.FixedZone("x", 3600))
	capErr := NewError("capture_desktop", "timeout", "navigation timed out", at)
	require.Equal(t, StageCapture, capErr.Stage)
	require.NotNil(t, capErr.MissingEvidenceReason)
	require.Equal(t, ReasonTimeout, *capErr.MissingEvidenceReason)
	require.Equal(t, time.UTC, capErr.Timestamp.Location())

	scoreErr := NewError("synthesis", "model_failed", "timeout talking to model", at)
	require.Equal(t, StageScoring, scoreErr.Stage)
	require.Nil(t, scoreErr.MissingEvidenceReason)
}

func TestCaptureErrorUnwrap(t *testing.T) {
	t.Parallel()

	inner := errors.New("boom")
	err := &CaptureError{Type: CaptureNetworkError, Message: "boom", Code: 502, Err: inner}
	require.ErrorIs(t, err, inner)
	require.Contains(t, err.Error(), "http 502")
}
