package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// PromCollector adapts a Registry to prometheus.Collector, exposing every
// registered metric as a gauge or counter under the "netsentry_" prefix.
// Metric set membership is read fresh on every Collect call, since
// metrics can be registered and unregistered at runtime.
type PromCollector struct {
	registry *Registry
}

// NewPromCollector wraps registry for Prometheus text exposition.
func NewPromCollector(registry *Registry) *PromCollector {
	return &PromCollector{registry: registry}
}

// Describe sends no descriptors, making this an unchecked collector;
// Collect's output shape depends on which metrics are registered at
// scrape time.
func (c *PromCollector) Describe(chan<- *prometheus.Desc) {}

// Collect emits one metric family per registered metric.
func (c *PromCollector) Collect(ch chan<- prometheus.Metric) {
	for _, name := range c.registry.ListNames() {
		m, err := c.registry.Get(name)
		if err != nil {
			continue
		}
		value, _ := m.Current()
		fqName := "netsentry_" + sanitizeName(name)

		var valueType prometheus.ValueType
		if m.Kind() == Counter {
			valueType = prometheus.CounterValue
		} else {
			valueType = prometheus.GaugeValue
		}

		desc := prometheus.NewDesc(fqName, "netsentry metric "+name, nil, nil)
		ch <- prometheus.MustNewConstMetric(desc, valueType, value)
	}
}

func sanitizeName(name string) string {
	return strings.ReplaceAll(strings.ReplaceAll(name, ".", "_"), "-", "_")
}
