package tracing

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"tunecrate/internal/config"
)

func TestSetup_DisabledKeepsNoopProvider(t *testing.T) {
	tr, err := Setup(context.Background(), config.TracingConfig{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, tr)
	assert.NoError(t, tr.Shutdown(context.Background()))
}

func TestTracer_RecordsEventsAndErrors(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tr := NewTracer("tunecrate-test", exp)
	ctx := context.Background()

	spanCtx, span := tr.StartSpan(ctx, "create song")
	AddEvent(spanCtx, "AUDIO_SAVED")
	SetSpanError(spanCtx, errors.New("insert failed"))
	span.End()

	require.NoError(t, tr.tp.ForceFlush(ctx))
	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "create song", spans[0].Name)

	var events []string
	for _, e := range spans[0].Events {
		events = append(events, e.Name)
	}
	assert.Equal(t, []string{"AUDIO_SAVED", "exception"}, events)

	require.NoError(t, tr.Shutdown(ctx))
}

func TestHelpers_IgnoreContextsWithoutSpan(t *testing.T) {
	assert.NotPanics(t, func() {
		AddEvent(context.Background(), "nothing")
		SetSpanError(context.Background(), errors.New("nothing"))
	})
}

func TestStdoutExporter(t *testing.T) {
	var buf bytes.Buffer
	exp, err := newStdoutExporter(&buf)
	require.NoError(t, err)

	tr := NewTracer("tunecrate-test", exp)
	_, span := tr.StartSpan(context.Background(), "sweep")
	span.End()
	require.NoError(t, tr.Shutdown(context.Background()))

	assert.Contains(t, buf.String(), `"Name":"sweep"`)
}

func TestAttrs(t *testing.T) {
	assert.Empty(t, OwnerAttrs(uuid.Nil))
	owner := uuid.New()
	attrs := OwnerAttrs(owner)
	require.Len(t, attrs, 1)
	assert.Equal(t, owner.String(), attrs[0].Value.AsString())

	sweep := SweepTracingAttrs("task-1", true)
	assert.Len(t, sweep, 3)
	assert.Len(t, SweepTracingAttrs("", false), 2)
}
