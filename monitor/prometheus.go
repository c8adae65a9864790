package monitor

import "github.com/prometheus/client_golang/prometheus"

// prometheusCollector adapts Monitor's per-engine CompletionMetrics into
// Prometheus gauges, computed on each Collect rather than held as live
// gauge state, so it always reflects the monitor's current aggregation.
type prometheusCollector struct {
	monitor *Monitor

	completedDesc *prometheus.Desc
	failedDesc    *prometheus.Desc
	tpsDesc       *prometheus.Desc
	outputTPSDesc *prometheus.Desc
	ttftDesc      *prometheus.Desc
	rpsDesc       *prometheus.Desc
}

func newPrometheusCollector(m *Monitor) *prometheusCollector {
	labels := []string{"engine"}
	return &prometheusCollector{
		monitor:       m,
		completedDesc: prometheus.NewDesc("kolosal_completion_requests_total", "Completed inference requests per engine.", labels, nil),
		failedDesc:    prometheus.NewDesc("kolosal_completion_failures_total", "Failed inference requests per engine.", labels, nil),
		tpsDesc:       prometheus.NewDesc("kolosal_completion_tokens_per_second", "Total tokens per second per engine.", labels, nil),
		outputTPSDesc: prometheus.NewDesc("kolosal_completion_output_tokens_per_second", "Output tokens per second per engine.", labels, nil),
		ttftDesc:      prometheus.NewDesc("kolosal_completion_ttft_ms", "Average time-to-first-token in milliseconds per engine.", labels, nil),
		rpsDesc:       prometheus.NewDesc("kolosal_completion_requests_per_second", "Completed requests per second per engine.", labels, nil),
	}
}

func (c *prometheusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.completedDesc
	ch <- c.failedDesc
	ch <- c.tpsDesc
	ch <- c.outputTPSDesc
	ch <- c.ttftDesc
	ch <- c.rpsDesc
}

func (c *prometheusCollector) Collect(ch chan<- prometheus.Metric) {
	_, perEngine := c.monitor.GetCompletionMetrics()
	for name, m := range perEngine {
		ch <- prometheus.MustNewConstMetric(c.completedDesc, prometheus.CounterValue, float64(m.CompletedRequests), name)
		ch <- prometheus.MustNewConstMetric(c.failedDesc, prometheus.CounterValue, float64(m.FailedRequests), name)
		ch <- prometheus.MustNewConstMetric(c.tpsDesc, prometheus.GaugeValue, m.TPS, name)
		ch <- prometheus.MustNewConstMetric(c.outputTPSDesc, prometheus.GaugeValue, m.OutputTPS, name)
		ch <- prometheus.MustNewConstMetric(c.ttftDesc, prometheus.GaugeValue, m.AvgTTFTMs, name)
		ch <- prometheus.MustNewConstMetric(c.rpsDesc, prometheus.GaugeValue, m.RPS, name)
	}
}
