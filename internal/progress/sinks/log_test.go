package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/pdp-auditor/internal/progress"
)

func TestLogSinkWritesFields(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.DebugLevel)
	sink := NewLogSink(zap.New(core))

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunKey: "r1", TS: time.Now(), Stage: progress.StageTransition, State: "synthesizing"},
		{RunKey: "r1", TS: time.Now(), Stage: progress.StageRunDone, Note: "ok"},
	}))

	entries := logs.FilterMessage("progress event").All()
	require.Len(t, entries, 2)
	fields := entries[0].ContextMap()
	require.Equal(t, "r1", fields["run_key"])
	require.Equal(t, "synthesizing", fields["state"])
	require.NotContains(t, fields, "viewport")
	require.Equal(t, "ok", entries[1].ContextMap()["note"])
}
