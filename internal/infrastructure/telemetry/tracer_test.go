package telemetry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/marketsync/backend/internal/infrastructure/config"
	"github.com/marketsync/backend/internal/infrastructure/telemetry"
)

func TestNewTracerProvider_Disabled(t *testing.T) {
	tp, err := telemetry.NewTracerProvider(t.Context(), config.TelemetryConfig{
		Enabled:           false,
		CollectorEndpoint: "localhost:14317",
		SamplingRatio:     1.0,
	}, "marketsync-test", "test", zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.False(t, tp.IsEnabled())
	assert.NotNil(t, tp.Tracer("test"))
	assert.NoError(t, tp.ForceFlush(t.Context()))
	assert.NoError(t, tp.Shutdown(t.Context()))
}

func TestNewTracerProvider_Enabled(t *testing.T) {
	// The gRPC exporter connects lazily, so no collector is needed until spans are flushed
	for _, ratio := range []float64{0, 0.25, 1} {
		tp, err := telemetry.NewTracerProvider(t.Context(), config.TelemetryConfig{
			Enabled:           true,
			CollectorEndpoint: "localhost:14317",
			SamplingRatio:     ratio,
			Insecure:          true,
		}, "marketsync-test", "test", zaptest.NewLogger(t))
		require.NoError(t, err)
		assert.True(t, tp.IsEnabled())
		assert.NoError(t, tp.Shutdown(t.Context()))
	}
}
