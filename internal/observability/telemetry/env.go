package telemetry

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// EnvTelemetryEnabled toggles telemetry emission.
	EnvTelemetryEnabled = "SIMLAUNCHER_TELEMETRY_ENABLED"
	// EnvTelemetryOTLPHTTPEndpoint sets OTLP/HTTP endpoint base URL.
	EnvTelemetryOTLPHTTPEndpoint = "SIMLAUNCHER_TELEMETRY_OTLP_HTTP_ENDPOINT"
	// EnvTelemetryPushgatewayURL sets the Prometheus Pushgateway URL.
	EnvTelemetryPushgatewayURL = "SIMLAUNCHER_TELEMETRY_PUSHGATEWAY_URL"
	// EnvTelemetryStderr writes JSON-lines events to stderr.
	EnvTelemetryStderr = "SIMLAUNCHER_TELEMETRY_STDERR"
	// EnvTelemetryQueueCapacity sets in-memory queue capacity.
	EnvTelemetryQueueCapacity = "SIMLAUNCHER_TELEMETRY_QUEUE_CAPACITY"
	// EnvTelemetryDropSampleRate sets deterministic debug-log sample rate.
	EnvTelemetryDropSampleRate = "SIMLAUNCHER_TELEMETRY_DROP_SAMPLE_RATE"
	// EnvTelemetryExportTimeoutMS sets export timeout in milliseconds.
	EnvTelemetryExportTimeoutMS = "SIMLAUNCHER_TELEMETRY_EXPORT_TIMEOUT_MS"
)

// RuntimeConfig captures env-configured telemetry settings.
type RuntimeConfig struct {
	Enabled          bool
	OTLPHTTPEndpoint string
	PushgatewayURL   string
	Stderr           bool
	QueueCapacity    int
	LogSampleRate    int
	ExportTimeoutMS  int
}

// RuntimeConfigFromEnv parses telemetry config from environment.
func RuntimeConfigFromEnv() (RuntimeConfig, error) {
	cfg := RuntimeConfig{
		Enabled:          true,
		OTLPHTTPEndpoint: strings.TrimSpace(os.Getenv(EnvTelemetryOTLPHTTPEndpoint)),
		PushgatewayURL:   strings.TrimSpace(os.Getenv(EnvTelemetryPushgatewayURL)),
		QueueCapacity:    256,
		LogSampleRate:    1,
		ExportTimeoutMS:  200,
	}

	if raw := strings.TrimSpace(os.Getenv(EnvTelemetryEnabled)); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return RuntimeConfig{}, fmt.Errorf("%s parse error: %w", EnvTelemetryEnabled, err)
		}
		cfg.Enabled = enabled
	}
	if raw := strings.TrimSpace(os.Getenv(EnvTelemetryStderr)); raw != "" {
		stderr, err := strconv.ParseBool(raw)
		if err != nil {
			return RuntimeConfig{}, fmt.Errorf("%s parse error: %w", EnvTelemetryStderr, err)
		}
		cfg.Stderr = stderr
	}
	if raw := strings.TrimSpace(os.Getenv(EnvTelemetryQueueCapacity)); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return RuntimeConfig{}, fmt.Errorf("%s must be integer >=1", EnvTelemetryQueueCapacity)
		}
		cfg.QueueCapacity = v
	}
	if raw := strings.TrimSpace(os.Getenv(EnvTelemetryDropSampleRate)); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return RuntimeConfig{}, fmt.Errorf("%s must be integer >=1", EnvTelemetryDropSampleRate)
		}
		cfg.LogSampleRate = v
	}
	if raw := strings.TrimSpace(os.Getenv(EnvTelemetryExportTimeoutMS)); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return RuntimeConfig{}, fmt.Errorf("%s must be integer >=1", EnvTelemetryExportTimeoutMS)
		}
		cfg.ExportTimeoutMS = v
	}

	return cfg, nil
}

// NewPipelineFromEnv creates a telemetry pipeline from environment settings.
// stderr receives JSON-lines events when EnvTelemetryStderr is set.
func NewPipelineFromEnv(stderr io.Writer) (*Pipeline, error) {
	cfg, err := RuntimeConfigFromEnv()
	if err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return nil, nil
	}

	timeout := time.Duration(cfg.ExportTimeoutMS) * time.Millisecond
	sinks := MultiSink{}
	if cfg.OTLPHTTPEndpoint != "" {
		httpSink, err := NewOTLPHTTPSink(OTLPHTTPSinkConfig{
			Endpoint: cfg.OTLPHTTPEndpoint,
			Client:   &http.Client{Timeout: timeout},
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, httpSink)
	}
	if cfg.PushgatewayURL != "" {
		promSink, err := NewPrometheusSink(PrometheusSinkConfig{
			PushgatewayURL: cfg.PushgatewayURL,
			Client:         &http.Client{Timeout: timeout},
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, promSink)
	}
	if cfg.Stderr && stderr != nil {
		sinks = append(sinks, NewWriterSink(stderr))
	}

	var sink Sink = discardSink{}
	if len(sinks) > 0 {
		sink = sinks
	}
	return NewPipeline(sink, Config{
		QueueCapacity: cfg.QueueCapacity,
		LogSampleRate: cfg.LogSampleRate,
		ExportTimeout: timeout,
	}), nil
}
