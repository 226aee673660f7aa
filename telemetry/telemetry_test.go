package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTrack_RecordsSpanAndCounter(t *testing.T) {
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	inst, err := New(tp, mp)
	require.NoError(t, err)

	ctx := context.Background()
	_, done := inst.Track(ctx, "claim")
	done(OutcomeOK, nil)
	_, done = inst.Track(ctx, "claim")
	done(OutcomeFailed, errors.New("backend down"))

	ended := spans.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, "sunnyflow.claim", ended[0].Name())
	assert.Equal(t, codes.Unset, ended[0].Status().Code)
	assert.Equal(t, codes.Error, ended[1].Status().Code)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	counts := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "sunnyflow.operations" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				outcome, _ := dp.Attributes.Value(attribute.Key("outcome"))
				counts[outcome.AsString()] += dp.Value
			}
		}
	}
	assert.Equal(t, int64(1), counts[OutcomeOK])
	assert.Equal(t, int64(1), counts[OutcomeFailed])
}

func TestNew_DefaultsToGlobalProviders(t *testing.T) {
	inst, err := New(nil, nil)
	require.NoError(t, err)
	_, done := inst.Track(context.Background(), "name")
	done(OutcomeRejected, errors.New("unauthorized"))
}
