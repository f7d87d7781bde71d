package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestStartSpan_RecordsStatusAndAttributes(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	shutdown, err := InitWithExporter("hexcron-test", "test", exporter)
	require.NoError(t, err)
	defer shutdown(context.Background())

	_, ok := StartSpan(context.Background(), "job.war_finisher")
	ok.WithAttributes(map[string]string{"job": "war_finisher"})
	EndSpan(ok, nil)

	_, failed := StartSpan(context.Background(), "job.war_detector")
	EndSpan(failed, assert.AnError)

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)

	assert.Equal(t, "job.war_finisher", spans[0].Name)
	assert.Equal(t, codes.Ok, spans[0].Status.Code)
	assert.Contains(t, spans[0].Attributes, attribute.String("job", "war_finisher"))

	assert.Equal(t, "job.war_detector", spans[1].Name)
	assert.Equal(t, codes.Error, spans[1].Status.Code)
	assert.Len(t, spans[1].Events, 1)
}

func TestNilSpanIsSafe(t *testing.T) {
	var sp *Span
	assert.Nil(t, sp.WithAttributes(map[string]string{"a": "b"}))
	sp.SetStatus(assert.AnError)
	EndSpan(nil, nil)
}

func TestInitWithExporter_Nil(t *testing.T) {
	shutdown, err := InitWithExporter("svc", "v", nil)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
