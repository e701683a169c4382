package observability

import (
	"testing"

	"github.com/smallbiznis/invoiceengine/internal/config"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigPrefersEnv(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "yes")
	t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "HTTP")
	t.Setenv("OTEL_SAMPLING_RATIO", "0.5")
	t.Setenv("DEPLOYMENT_ENV", "staging")

	cfg := LoadConfig(config.Config{AppName: "", Environment: "development", OTLPEndpoint: "collector:4317"})
	require.Equal(t, "invoiceengine", cfg.ServiceName)
	require.Equal(t, "staging", cfg.Environment)
	require.True(t, cfg.OtelEnabled)
	require.Equal(t, "http", cfg.OtelExporterProtocol)
	require.Equal(t, "collector:4317", cfg.OtelExporterEndpoint)
	require.Equal(t, 0.5, cfg.OtelSamplingRatio)
}

func TestLoadConfigTracesProtocolOverride(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", "http/protobuf")
	t.Setenv("OTEL_SAMPLING_RATIO", "nope")

	cfg := LoadConfig(config.Config{AppName: "billing"})
	require.Equal(t, "http/protobuf", cfg.OtelExporterProtocol)
	require.Equal(t, 0.1, cfg.OtelSamplingRatio)
	require.False(t, cfg.OtelEnabled)
}
