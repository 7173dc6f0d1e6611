package auto

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pdp-auditor/internal/audit"
)

type fakeAdapter struct {
	art   audit.Artifact
	err   error
	calls int
}

func (f *fakeAdapter) Capture(_ context.Context, url string, viewport audit.Viewport, _ audit.CaptureOptions) (audit.Artifact, error) {
	f.calls++
	if f.err != nil {
		return audit.Artifact{}, f.err
	}
	art := f.art
	art.URL = url
	art.Viewport = viewport
	return art, nil
}

func productPage() []byte {
	return []byte(`<html><head><script type="application/ld+json">{"@type":"Product"}</script></head>` +
		`<body><h1>Trail Shoe</h1><p>` + strings.Repeat("Grippy outsole. ", 200) + `</p></body></html>`)
}

func TestAdapterKeepsStaticCapture(t *testing.T) {
	t.Parallel()

	probe := &fakeAdapter{art: audit.Artifact{StatusCode: 200, Markup: productPage()}}
	browser := &fakeAdapter{art: audit.Artifact{StatusCode: 200, Markup: []byte("rendered")}}
	a, err := New(probe, browser, nil, nil)
	require.NoError(t, err)

	art, err := a.Capture(context.Background(), "https://shop.example.com/p/1", audit.ViewportDesktop, audit.CaptureOptions{})
	require.NoError(t, err)
	assert.Equal(t, productPage(), art.Markup)
	assert.Equal(t, 1, probe.calls)
	assert.Zero(t, browser.calls)
}

func TestAdapterPromotesShellPage(t *testing.T) {
	t.Parallel()

	shell := []byte(`<html><body><div id="root"></div><script src="/app.js"></script></body></html>`)
	probe := &fakeAdapter{art: audit.Artifact{StatusCode: 200, Markup: shell}}
	browser := &fakeAdapter{art: audit.Artifact{StatusCode: 200, Markup: []byte("rendered"), RenderBuffer: []byte("png")}}
	a, err := New(probe, browser, NewDetector(0), nil)
	require.NoError(t, err)

	art, err := a.Capture(context.Background(), "https://shop.example.com/p/1", audit.ViewportMobile, audit.CaptureOptions{})
	require.NoError(t, err)
	assert.Equal(t, []byte("rendered"), art.Markup)
	assert.Equal(t, []byte("png"), art.RenderBuffer)
	assert.Equal(t, audit.ViewportMobile, art.Viewport)
	assert.Equal(t, 1, browser.calls)
}

func TestAdapterPromotesOnProbeError(t *testing.T) {
	t.Parallel()

	probe := &fakeAdapter{err: errors.New("connection reset")}
	browser := &fakeAdapter{art: audit.Artifact{StatusCode: 200, Markup: []byte("rendered")}}
	a, err := New(probe, browser, nil, nil)
	require.NoError(t, err)

	art, err := a.Capture(context.Background(), "https://shop.example.com/p/1", audit.ViewportDesktop, audit.CaptureOptions{})
	require.NoError(t, err)
	assert.Equal(t, []byte("rendered"), art.Markup)
}

func TestAdapterReturnsBrowserError(t *testing.T) {
	t.Parallel()

	probe := &fakeAdapter{err: errors.New("timeout")}
	browser := &fakeAdapter{err: errors.New("browser crashed")}
	a, err := New(probe, browser, nil, nil)
	require.NoError(t, err)

	_, err = a.Capture(context.Background(), "https://shop.example.com/p/1", audit.ViewportDesktop, audit.CaptureOptions{})
	require.EqualError(t, err, "browser crashed")
}

func TestAdapterSkipsPromotionWhenCanceled(t *testing.T) {
	t.Parallel()

	probe := &fakeAdapter{err: context.Canceled}
	browser := &fakeAdapter{}
	a, err := New(probe, browser, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.Capture(ctx, "https://shop.example.com/p/1", audit.ViewportDesktop, audit.CaptureOptions{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, browser.calls)
}

func TestNewRequiresAdapters(t *testing.T) {
	t.Parallel()

	_, err := New(nil, &fakeAdapter{}, nil, nil)
	require.Error(t, err)
	_, err = New(&fakeAdapter{}, nil, nil, nil)
	require.Error(t, err)
}

func TestDetectorNeedsBrowser(t *testing.T) {
	t.Parallel()

	d := NewDetector(0)
	scripts := []byte(`<html><script>` + strings.Repeat("var a=1;", 100) + `</script><p>hi</p></html>`)
	tests := []struct {
		name string
		art  audit.Artifact
		want bool
	}{
		{"empty body", audit.Artifact{StatusCode: 200, Markup: []byte("  \n")}, true},
		{"not found", audit.Artifact{StatusCode: 404, Markup: nil}, false},
		{"script heavy", audit.Artifact{StatusCode: 200, Markup: scripts}, true},
		{"next shell", audit.Artifact{StatusCode: 200, Markup: []byte(`<div id="__next"></div>`)}, true},
		{"product page", audit.Artifact{StatusCode: 200, Markup: productPage()}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, d.NeedsBrowser(tt.art))
		})
	}
}

func TestNewDetectorDefaultsThreshold(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 2048, NewDetector(0).BodyLengthThreshold)
	assert.Equal(t, 512, NewDetector(512).BodyLengthThreshold)
}
