package capture

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/JakeFAU/pdp-auditor/internal/audit"
)

// StatusError converts a document HTTP status into a capture error, or nil
// when the status is usable.
func StatusError(code int) *audit.CaptureError {
	switch {
	case code == http.StatusNotFound:
		return &audit.CaptureError{Type: audit.CaptureNotFound, Code: code, Message: "page not found"}
	case code >= http.StatusBadRequest:
		return &audit.CaptureError{
			Type:    audit.CaptureNetworkError,
			Code:    code,
			Message: fmt.Sprintf("document returned %s", http.StatusText(code)),
		}
	default:
		return nil
	}
}

// Classify maps an arbitrary adapter failure onto the capture error taxonomy.
func Classify(err error) *audit.CaptureError {
	if err == nil {
		return nil
	}
	var captureErr *audit.CaptureError
	if errors.As(err, &captureErr) {
		return captureErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &audit.CaptureError{Type: audit.CaptureTimeout, Message: err.Error(), Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return &audit.CaptureError{Type: audit.CaptureTimeout, Message: err.Error(), Err: err}
		}
		return &audit.CaptureError{Type: audit.CaptureNetworkError, Message: err.Error(), Err: err}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return &audit.CaptureError{Type: audit.CaptureTimeout, Message: err.Error(), Err: err}
	case strings.Contains(msg, "not found"), strings.Contains(msg, "404"):
		return &audit.CaptureError{Type: audit.CaptureNotFound, Message: err.Error(), Err: err}
	case strings.Contains(msg, "net::err_"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "connection reset"):
		return &audit.CaptureError{Type: audit.CaptureNetworkError, Message: err.Error(), Err: err}
	default:
		return &audit.CaptureError{Type: audit.CaptureUnknown, Message: err.Error(), Err: err}
	}
}
