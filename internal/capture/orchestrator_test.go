package capture

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/pdp-auditor/internal/audit"
)

type fakeAdapter struct {
	calls   atomic.Int32
	capture func(ctx context.Context, vp audit.Viewport) (audit.Artifact, error)
}

func (f *fakeAdapter) Capture(
	ctx context.Context,
	url string,
	vp audit.Viewport,
	_ audit.CaptureOptions,
) (audit.Artifact, error) {
	f.calls.Add(1)
	if f.capture == nil {
		return audit.Artifact{FinalURL: url, StatusCode: http.StatusOK, Markup: []byte("<html></html>")}, nil
	}
	return f.capture(ctx, vp)
}

func newTestOrchestrator(t *testing.T, adapter audit.CaptureAdapter) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(adapter, Config{}, zap.NewNop())
	require.NoError(t, err)
	return o
}

func TestNewOrchestratorRequiresAdapter(t *testing.T) {
	t.Parallel()

	_, err := NewOrchestrator(nil, Config{}, nil)
	require.Error(t, err)
}

func TestCaptureBothSuccess(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{}
	set := newTestOrchestrator(t, adapter).CaptureBoth(context.Background(), "https://shop.test/p/1", Options{})

	require.EqualValues(t, 2, adapter.calls.Load())
	require.True(t, set.Mobile.OK())
	require.True(t, set.Desktop.OK())
	require.Equal(t, audit.ViewportMobile, set.Mobile.Artifact.Viewport)
	require.Equal(t, audit.ViewportDesktop, set.Desktop.Artifact.Viewport)
	require.Equal(t, "https://shop.test/p/1", set.Mobile.Artifact.URL)
	require.False(t, set.Degraded())
	require.False(t, set.AllFailed())

	primary, ok := set.Primary()
	require.True(t, ok)
	require.Equal(t, audit.ViewportMobile, primary.Viewport)
}

func TestCaptureBothOneViewportFails(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{capture: func(_ context.Context, vp audit.Viewport) (audit.Artifact, error) {
		if vp == audit.ViewportMobile {
			return audit.Artifact{}, errors.New("net::ERR_CONNECTION_RESET")
		}
		return audit.Artifact{StatusCode: http.StatusOK}, nil
	}}
	set := newTestOrchestrator(t, adapter).CaptureBoth(context.Background(), "https://shop.test/p/1", Options{})

	require.False(t, set.Mobile.OK())
	require.Equal(t, audit.CaptureNetworkError, set.Mobile.Err.Type)
	require.True(t, set.Desktop.OK())
	require.True(t, set.Degraded())
	require.Len(t, set.Failed(), 1)

	primary, ok := set.Primary()
	require.True(t, ok)
	require.Equal(t, audit.ViewportDesktop, primary.Viewport)
}

func TestCaptureBothHardTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	// The adapter ignores cancellation entirely.
	adapter := &fakeAdapter{capture: func(context.Context, audit.Viewport) (audit.Artifact, error) {
		<-release
		return audit.Artifact{StatusCode: http.StatusOK}, nil
	}}

	start := time.Now()
	set := newTestOrchestrator(t, adapter).CaptureBoth(context.Background(), "https://shop.test/p/1",
		Options{Timeout: 50 * time.Millisecond})

	require.Less(t, time.Since(start), 2*time.Second)
	require.True(t, set.AllFailed())
	require.Equal(t, audit.CaptureTimeout, set.Mobile.Err.Type)
	require.Equal(t, audit.CaptureTimeout, set.Desktop.Err.Type)
	_, ok := set.Primary()
	require.False(t, ok)
}

func TestCaptureBothClassifiesHTTPStatus(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{capture: func(_ context.Context, vp audit.Viewport) (audit.Artifact, error) {
		if vp == audit.ViewportMobile {
			return audit.Artifact{StatusCode: http.StatusNotFound}, nil
		}
		return audit.Artifact{StatusCode: http.StatusServiceUnavailable}, nil
	}}
	set := newTestOrchestrator(t, adapter).CaptureBoth(context.Background(), "https://shop.test/gone", Options{})

	require.True(t, set.AllFailed())
	require.Equal(t, audit.CaptureNotFound, set.Mobile.Err.Type)
	require.Equal(t, http.StatusNotFound, set.Mobile.Err.Code)
	require.Equal(t, audit.CaptureNetworkError, set.Desktop.Err.Type)
}

func TestCaptureBothHostPacing(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{}
	o, err := NewOrchestrator(adapter, Config{HostQPS: 1000, HostBurst: 2}, nil)
	require.NoError(t, err)

	set := o.CaptureBoth(context.Background(), "https://shop.test/p/1", Options{})
	require.True(t, set.Mobile.OK())
	require.True(t, set.Desktop.OK())
	require.Len(t, o.limiter.limiters, 1)
	require.Contains(t, o.limiter.limiters, "shop.test")
}

func TestClassify(t *testing.T) {
	t.Parallel()

	typed := &audit.CaptureError{Type: audit.CaptureNotFound, Message: "gone"}
	tests := []struct {
		name string
		err  error
		want audit.CaptureErrorType
	}{
		{name: "typed passthrough", err: typed, want: audit.CaptureNotFound},
		{name: "deadline", err: context.DeadlineExceeded, want: audit.CaptureTimeout},
		{name: "wrapped deadline", err: errors.Join(errors.New("navigate"), context.DeadlineExceeded), want: audit.CaptureTimeout},
		{name: "timeout text", err: errors.New("page load timed out"), want: audit.CaptureTimeout},
		{name: "chrome net error", err: errors.New("page load error net::ERR_NAME_NOT_RESOLVED"), want: audit.CaptureNetworkError},
		{name: "refused", err: errors.New("dial tcp: connection refused"), want: audit.CaptureNetworkError},
		{name: "not found text", err: errors.New("Not Found"), want: audit.CaptureNotFound},
		{name: "other", err: errors.New("boom"), want: audit.CaptureUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Classify(tt.err)
			require.NotNil(t, got)
			require.Equal(t, tt.want, got.Type)
		})
	}
	require.Nil(t, Classify(nil))
	require.Same(t, typed, Classify(typed))
}

func TestStatusError(t *testing.T) {
	t.Parallel()

	require.Nil(t, StatusError(http.StatusOK))
	require.Nil(t, StatusError(http.StatusMovedPermanently))
	require.Equal(t, audit.CaptureNotFound, StatusError(http.StatusNotFound).Type)
	require.Equal(t, audit.CaptureNetworkError, StatusError(http.StatusForbidden).Type)
	require.Equal(t, audit.CaptureNetworkError, StatusError(http.StatusBadGateway).Type)
}
