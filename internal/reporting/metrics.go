// internal/reporting/metrics.go
package reporting

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xkilldash9x/flowcheck/api/schemas"
)

// collector holds the run metrics exposed to a node exporter textfile
// collector. Each report gets its own registry.
type collector struct {
	registry     *prometheus.Registry
	testsTotal   *prometheus.CounterVec
	attempts     *prometheus.CounterVec
	remediations *prometheus.CounterVec
	testDuration *prometheus.HistogramVec
	runDuration  prometheus.Gauge
	runInfo      *prometheus.GaugeVec
}

func newCollector() *collector {
	c := &collector{
		registry: prometheus.NewRegistry(),
		testsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "flowcheck_tests_total", Help: "Tests by terminal status."},
			[]string{"status"},
		),
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "flowcheck_attempts_total", Help: "Attempts made, by module."},
			[]string{"module"},
		),
		remediations: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "flowcheck_remediations_total", Help: "Remediation requests dispatched, by handler."},
			[]string{"handler"},
		),
		testDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flowcheck_test_duration_seconds",
				Help:    "Test duration across all attempts in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"module", "status"},
		),
		runDuration: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "flowcheck_run_duration_seconds", Help: "Wall time of the run in seconds."},
		),
		runInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "flowcheck_run_info", Help: "Run metadata for traceability."},
			[]string{"run_id"},
		),
	}
	c.registry.MustRegister(c.testsTotal, c.attempts, c.remediations, c.testDuration, c.runDuration, c.runInfo)
	return c
}

func (c *collector) observe(report *schemas.TestRunReport) {
	// Pre-create each status so absent outcomes read as zero.
	for _, st := range []schemas.TestStatus{schemas.StatusPassed, schemas.StatusFailed, schemas.StatusSkipped} {
		c.testsTotal.WithLabelValues(string(st))
	}

	for _, r := range report.Results {
		c.testsTotal.WithLabelValues(string(r.Status)).Inc()
		c.attempts.WithLabelValues(r.Module).Add(float64(r.Attempts))
		for _, h := range r.AgentsDeployed {
			c.remediations.WithLabelValues(h).Inc()
		}
		if r.Status != schemas.StatusSkipped {
			c.testDuration.WithLabelValues(r.Module, string(r.Status)).Observe((time.Duration(r.Duration) * time.Millisecond).Seconds())
		}
	}
	c.runDuration.Set((time.Duration(report.Duration) * time.Millisecond).Seconds())
	c.runInfo.WithLabelValues(report.RunID).Set(1)
}

func writeMetrics(path string, report *schemas.TestRunReport) error {
	c := newCollector()
	c.observe(report)
	return prometheus.WriteToTextfile(path, c.registry)
}
