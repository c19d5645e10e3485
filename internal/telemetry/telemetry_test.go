package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewDefaultsToStdoutExporter(t *testing.T) {
	tel, err := New(time.Second)
	require.NoError(t, err)
	require.NotNil(t, tel.Log)
	require.NoError(t, tel.Shutdown(context.Background()))
}

func TestNewWithOTLPEndpointConfiguresExporterWithoutDialing(t *testing.T) {
	// otlpmetrichttp.New only opens a connection lazily on export, so
	// constructing a Telemetry against an endpoint never contacted in this
	// test must still succeed.
	tel, err := New(time.Second, WithOTLPEndpoint("127.0.0.1:4318"))
	require.NoError(t, err)
	require.NoError(t, tel.Shutdown(context.Background()))
}

func TestRecordQueryLogsSlowQuery(t *testing.T) {
	tel, err := New(10 * time.Millisecond)
	require.NoError(t, err)
	defer tel.Shutdown(context.Background())

	tel.RecordQuery(context.Background(), "MATCH (n) RETURN n", 50*time.Millisecond, 3, nil)
}

func TestRecordCacheHitAndMissDoNotPanic(t *testing.T) {
	tel, err := New(time.Second)
	require.NoError(t, err)
	defer tel.Shutdown(context.Background())

	tel.RecordCacheHit(context.Background())
	tel.RecordCacheMiss(context.Background())
	tel.AdjustNodeCount(context.Background(), 1)
	tel.AdjustRelCount(context.Background(), -1)
}

func TestStartSpanReturnsUsableSpan(t *testing.T) {
	tel, err := New(time.Second)
	require.NoError(t, err)
	defer tel.Shutdown(context.Background())

	_, span := tel.StartSpan(context.Background(), "test.op")
	defer span.End()
	require.True(t, span.SpanContext().IsValid())
}
