package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const metricNamespace = "simlauncher"

// PrometheusSinkConfig defines Pushgateway export settings.
type PrometheusSinkConfig struct {
	PushgatewayURL string
	Job            string
	Client         *http.Client
}

// PrometheusSink folds metric events into gauges and pushes them when flushed.
// Step handlers live for one invocation, so nothing is scraped.
type PrometheusSink struct {
	mu       sync.Mutex
	registry *prometheus.Registry
	gauges   map[string]*prometheus.GaugeVec
	pusher   *push.Pusher
}

// NewPrometheusSink creates a sink. An empty PushgatewayURL keeps metrics local.
func NewPrometheusSink(cfg PrometheusSinkConfig) (*PrometheusSink, error) {
	registry := prometheus.NewRegistry()
	sink := &PrometheusSink{
		registry: registry,
		gauges:   map[string]*prometheus.GaugeVec{},
	}

	rawURL := strings.TrimSpace(cfg.PushgatewayURL)
	if rawURL == "" {
		return sink, nil
	}
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return nil, fmt.Errorf("pushgateway url must include http(s) scheme")
	}
	job := strings.TrimSpace(cfg.Job)
	if job == "" {
		job = metricNamespace
	}
	pusher := push.New(rawURL, job).Gatherer(registry)
	if cfg.Client != nil {
		pusher = pusher.Client(cfg.Client)
	}
	sink.pusher = pusher
	return sink, nil
}

// Export records metric events; spans and logs are ignored.
func (s *PrometheusSink) Export(_ context.Context, event Event) error {
	if event.Kind != EventKindMetric || event.Metric == nil {
		return nil
	}
	name := metricName(event.Metric.Name)
	if name == "" {
		return fmt.Errorf("metric name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	vec, ok := s.gauges[name]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricNamespace,
			Name:      name,
			Help:      "simlauncher " + strings.ReplaceAll(name, "_", " "),
		}, []string{"step"})
		if err := s.registry.Register(vec); err != nil {
			return fmt.Errorf("register metric %s: %w", name, err)
		}
		s.gauges[name] = vec
	}

	gauge := vec.WithLabelValues(event.Correlation.Step)
	if strings.HasSuffix(name, "_total") {
		gauge.Add(event.Metric.Value)
	} else {
		gauge.Set(event.Metric.Value)
	}
	return nil
}

// Flush pushes the collected metrics to the Pushgateway, if one is configured.
func (s *PrometheusSink) Flush(ctx context.Context) error {
	if s.pusher == nil {
		return nil
	}
	if err := s.pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}

// Gatherer exposes the sink registry.
func (s *PrometheusSink) Gatherer() prometheus.Gatherer {
	return s.registry
}

func metricName(raw string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
